package boxoffice

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// GatewayRouter picks the payment provider for new intents and tracks provider health.
// Routing never fails a checkout: any lookup problem falls back to the default provider.
type GatewayRouter struct {
	store    Store
	nowFn    func() time.Time
	fallback ProviderID
	options  serviceOptions
}

// NewGatewayRouter wires a GatewayRouter. An empty fallback means DefaultProvider.
func NewGatewayRouter(store Store, now func() time.Time, fallback ProviderID, options ...ServiceOption) (*GatewayRouter, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if fallback == "" {
		fallback = DefaultProvider
	}
	return &GatewayRouter{store: store, nowFn: now, fallback: fallback, options: newServiceOptions(options)}, nil
}

// Fallback returns the provider used when routing has no better answer.
func (router *GatewayRouter) Fallback() ProviderID {
	return router.fallback
}

// SelectProvider returns the enabled provider with the highest priority, ties broken by name.
func (router *GatewayRouter) SelectProvider(ctx context.Context) ProviderID {
	gateways, err := router.store.ListGateways(ctx)
	if err != nil {
		router.options.logOperation(ctx, OperationLog{
			Operation: operationSelectProvider,
			Provider:  router.fallback,
			Detail:    "health lookup failed, using fallback",
			Error:     err,
		})
		return router.fallback
	}
	selected, ok := choosePrimary(gateways)
	if !ok {
		router.options.logOperation(ctx, OperationLog{
			Operation: operationSelectProvider,
			Provider:  router.fallback,
			Detail:    "no enabled provider, using fallback",
		})
		return router.fallback
	}
	return selected
}

func choosePrimary(gateways []GatewayHealth) (ProviderID, bool) {
	enabled := make([]GatewayHealth, 0, len(gateways))
	for _, gateway := range gateways {
		if gateway.Enabled {
			enabled = append(enabled, gateway)
		}
	}
	if len(enabled) == 0 {
		return "", false
	}
	sort.Slice(enabled, func(left, right int) bool {
		if enabled[left].Priority != enabled[right].Priority {
			return enabled[left].Priority > enabled[right].Priority
		}
		return enabled[left].Provider < enabled[right].Provider
	})
	return enabled[0].Provider, true
}

// Gateways lists every known provider with its health counters.
func (router *GatewayRouter) Gateways(ctx context.Context) ([]GatewayHealth, error) {
	return router.store.ListGateways(ctx)
}

// RecordSuccess resets the provider's consecutive failure count. Failures are logged, never returned.
func (router *GatewayRouter) RecordSuccess(ctx context.Context, provider ProviderID) {
	err := router.store.RecordGatewaySuccess(ctx, provider)
	router.options.logOperation(ctx, OperationLog{
		Operation: operationRecordSuccess,
		Provider:  provider,
		Error:     err,
	})
}

// RecordFailure counts a failed call against the provider and alerts operators once the
// consecutive count exceeds FailureAlertThreshold. Failures are logged, never returned.
func (router *GatewayRouter) RecordFailure(ctx context.Context, provider ProviderID) {
	var health GatewayHealth
	err := router.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		var recordErr error
		health, recordErr = txStore.RecordGatewayFailure(ctx, provider, router.nowFn().UTC())
		return recordErr
	})
	router.options.logOperation(ctx, OperationLog{
		Operation: operationRecordFailure,
		Provider:  provider,
		Detail:    "failure_count=" + strconv.Itoa(health.FailureCount),
		Error:     err,
	})
	if err != nil || health.FailureCount <= FailureAlertThreshold {
		return
	}
	router.options.notifier.Notify(ctx, Notification{
		Kind:    NotificationGatewayAlert,
		Subject: fmt.Sprintf("Payment provider %s is failing", provider),
		Body:    fmt.Sprintf("%s has failed %d consecutive times; consider switching the primary provider.", provider, health.FailureCount),
		Attributes: map[string]string{
			"provider":      provider.String(),
			"failure_count": strconv.Itoa(health.FailureCount),
		},
	})
}

// SetPrimary enables exactly one provider and disables the rest, atomically.
func (router *GatewayRouter) SetPrimary(ctx context.Context, provider ProviderID) error {
	err := router.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		return txStore.SetGatewayPrimary(ctx, provider)
	})
	router.options.logOperation(ctx, OperationLog{
		Operation: operationSetPrimary,
		Provider:  provider,
		Error:     err,
	})
	return err
}

// EnsureProviders registers health rows for providers that have none yet. New rows start
// disabled; a newly registered primary is then enabled exclusively. Existing rows are left as they are.
func (router *GatewayRouter) EnsureProviders(ctx context.Context, providers []ProviderID, primary ProviderID) error {
	err := router.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		existing, err := txStore.ListGateways(ctx)
		if err != nil {
			return err
		}
		known := make(map[ProviderID]bool, len(existing))
		for _, gateway := range existing {
			known[gateway.Provider] = true
		}
		enablePrimary := false
		for _, provider := range providers {
			if known[provider] {
				continue
			}
			health := GatewayHealth{Provider: provider}
			if provider == primary {
				health.Priority = 1
				enablePrimary = true
			}
			if err := txStore.EnsureGateway(ctx, health); err != nil {
				return err
			}
			known[provider] = true
		}
		if !enablePrimary {
			return nil
		}
		return txStore.SetGatewayPrimary(ctx, primary)
	})
	router.options.logOperation(ctx, OperationLog{
		Operation: operationEnsureProviders,
		Provider:  primary,
		Quantity:  int64(len(providers)),
		Error:     err,
	})
	return err
}
