package boxoffice

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewEngineWiresServices(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	seedTicketUnit(test, store, "unit-ga", 3)
	provider := &fakeProvider{id: DefaultProvider, secret: testWebhookSecret}
	engine, err := NewEngine(EngineConfig{
		Store:     store,
		Providers: providerMap{DefaultProvider: provider},
		Checkout:  CheckoutSettings{CommissionRate: mustRate(test, "10")},
	})
	if err != nil {
		test.Fatalf("new engine: %v", err)
	}
	if engine.Router.Fallback() != DefaultProvider {
		test.Fatalf("expected default fallback, got %s", engine.Router.Fallback())
	}
	intent, err := engine.Checkout.StartIntent(context.Background(), IntentRequest{UnitID: "unit-ga", Quantity: 1})
	if err != nil {
		test.Fatalf("start intent: %v", err)
	}
	if intent.Provider != DefaultProvider || intent.Status != TransactionStatusPending {
		test.Fatalf("unexpected intent %+v", intent)
	}
}

func TestNewEngineRejectsMissingDependencies(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name   string
		config EngineConfig
	}{
		{name: "store", config: EngineConfig{Providers: providerMap{}}},
		{name: "providers", config: EngineConfig{Store: newMemoryStore(test)}},
	}
	for _, testCase := range testCases {
		if _, err := NewEngine(testCase.config); !errors.Is(err, ErrInvalidServiceConfig) {
			test.Fatalf("%s: expected ErrInvalidServiceConfig, got %v", testCase.name, err)
		}
	}
}

func TestNewEngineDefaultsHoldWindowToTenMinutes(test *testing.T) {
	test.Parallel()
	store := newMemoryStore(test)
	seedTicketUnit(test, store, "unit-ga", 3)
	provider := &fakeProvider{id: DefaultProvider, secret: testWebhookSecret}
	engine, err := NewEngine(EngineConfig{
		Store:     store,
		Providers: providerMap{DefaultProvider: provider},
		Now:       func() time.Time { return testEpoch },
		Checkout:  CheckoutSettings{CommissionRate: mustRate(test, "10")},
	})
	if err != nil {
		test.Fatalf("new engine: %v", err)
	}
	intent, err := engine.Checkout.StartIntent(context.Background(), IntentRequest{UnitID: "unit-ga", Quantity: 1})
	if err != nil {
		test.Fatalf("start intent: %v", err)
	}
	if !intent.ExpiresAt.Equal(testEpoch.Add(10 * time.Minute)) {
		test.Fatalf("expected a ten minute hold, got expiry %s", intent.ExpiresAt)
	}
}

func TestNewEngineSharesConfiguredAccessSecret(test *testing.T) {
	test.Parallel()
	build := func() *Engine {
		engine, err := NewEngine(EngineConfig{
			Store:        newMemoryStore(test),
			Providers:    providerMap{},
			Checkout:     CheckoutSettings{CommissionRate: mustRate(test, "10")},
			AccessSecret: "receipt-secret-1",
		})
		if err != nil {
			test.Fatalf("new engine: %v", err)
		}
		return engine
	}
	reference := mustReference(test, "BX-RESTART")
	first, second := build(), build()
	if first.Checkout.ReceiptToken(reference) != second.Checkout.ReceiptToken(reference) {
		test.Fatalf("receipt tokens must survive a restart with the same secret")
	}
	if first.Checkout.ReceiptToken(reference) == first.Nominations.AccessToken(reference.String()) {
		test.Fatalf("receipt and nomination tokens must not be interchangeable")
	}
}

func TestNewAccessTokensRejectsEmptySecret(test *testing.T) {
	test.Parallel()
	if _, err := NewAccessTokens("  "); !errors.Is(err, ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig, got %v", err)
	}
}
