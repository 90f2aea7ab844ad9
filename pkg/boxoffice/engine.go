package boxoffice

import (
	"fmt"
	"time"
)

// EngineConfig assembles every engine service over one store.
type EngineConfig struct {
	Store           Store
	Providers       ProviderSet
	Now             func() time.Time
	DefaultProvider ProviderID
	Checkout        CheckoutSettings
	// AccessSecret signs receipt and nomination access tokens. Empty means a per-process secret.
	AccessSecret string
}

// Engine bundles the services that share a store.
type Engine struct {
	Reservations *ReservationManager
	Router       *GatewayRouter
	Fulfillment  *FulfillmentEngine
	Ledger       *CommissionLedger
	Nominations  *NominationReviewer
	Checkout     *Checkout
}

// NewEngine builds every service with the same options.
func NewEngine(config EngineConfig, options ...ServiceOption) (*Engine, error) {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.DefaultProvider == "" {
		config.DefaultProvider = DefaultProvider
	}
	tokens := RandomAccessTokens()
	if config.AccessSecret != "" {
		configured, err := NewAccessTokens(config.AccessSecret)
		if err != nil {
			return nil, err
		}
		tokens = configured
	}
	options = append([]ServiceOption{WithAccessTokens(tokens)}, options...)
	reservations, err := NewReservationManager(config.Store, config.Now, options...)
	if err != nil {
		return nil, fmt.Errorf("reservations: %w", err)
	}
	router, err := NewGatewayRouter(config.Store, config.Now, config.DefaultProvider, options...)
	if err != nil {
		return nil, fmt.Errorf("gateway router: %w", err)
	}
	fulfillment, err := NewFulfillmentEngine(config.Store, config.Now, options...)
	if err != nil {
		return nil, fmt.Errorf("fulfillment: %w", err)
	}
	ledger, err := NewCommissionLedger(config.Store, config.Now, options...)
	if err != nil {
		return nil, fmt.Errorf("commission ledger: %w", err)
	}
	nominations, err := NewNominationReviewer(config.Store, config.Now, options...)
	if err != nil {
		return nil, fmt.Errorf("nominations: %w", err)
	}
	checkout, err := NewCheckout(CheckoutDependencies{
		Store:        config.Store,
		Reservations: reservations,
		Router:       router,
		Fulfillment:  fulfillment,
		Providers:    config.Providers,
		Now:          config.Now,
	}, config.Checkout, options...)
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	return &Engine{
		Reservations: reservations,
		Router:       router,
		Fulfillment:  fulfillment,
		Ledger:       ledger,
		Nominations:  nominations,
		Checkout:     checkout,
	}, nil
}
