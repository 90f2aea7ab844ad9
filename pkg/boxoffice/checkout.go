package boxoffice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// CallbackOutcome describes what a settlement did.
type CallbackOutcome string

const (
	CallbackProcessed        CallbackOutcome = "processed"
	CallbackDuplicate        CallbackOutcome = "duplicate"
	CallbackUnknownReference CallbackOutcome = "unknown_reference"
	CallbackIgnored          CallbackOutcome = "ignored"
)

// IntentRequest is a buyer's request to pay for inventory.
type IntentRequest struct {
	UnitID       string
	Quantity     int64
	PayerContact string
}

// IntentResult is the pending transaction plus the provider's payment instructions.
type IntentResult struct {
	Reference      Reference
	Provider       ProviderID
	Status         TransactionStatus
	Amount         AmountCents
	Currency       string
	PaymentURL     string
	DisplayMessage string
	ExpiresAt      time.Time
	ReceiptToken   string
}

// CallbackResult reports how a payment verdict was applied.
type CallbackResult struct {
	Reference   Reference
	Outcome     CallbackOutcome
	Status      TransactionStatus
	Fulfillment FulfillmentResult
}

// CheckoutSettings holds the commercial parameters of a checkout.
type CheckoutSettings struct {
	ReservationTTL time.Duration
	CommissionRate decimal.Decimal
	Currency       string
	References     ReferenceGenerator
}

// CheckoutDependencies are the collaborators a Checkout coordinates.
type CheckoutDependencies struct {
	Store        Store
	Reservations *ReservationManager
	Router       *GatewayRouter
	Fulfillment  *FulfillmentEngine
	Providers    ProviderSet
	Now          func() time.Time
}

// Checkout runs the payment flow: reserve, initialize with a provider, then settle callbacks.
type Checkout struct {
	store        Store
	reservations *ReservationManager
	router       *GatewayRouter
	fulfillment  *FulfillmentEngine
	providers    ProviderSet
	nowFn        func() time.Time
	settings     CheckoutSettings
	options      serviceOptions
}

// NewCheckout wires a Checkout.
func NewCheckout(dependencies CheckoutDependencies, settings CheckoutSettings, options ...ServiceOption) (*Checkout, error) {
	switch {
	case dependencies.Store == nil:
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	case dependencies.Reservations == nil:
		return nil, fmt.Errorf("%w: reservation manager is nil", ErrInvalidServiceConfig)
	case dependencies.Router == nil:
		return nil, fmt.Errorf("%w: gateway router is nil", ErrInvalidServiceConfig)
	case dependencies.Fulfillment == nil:
		return nil, fmt.Errorf("%w: fulfillment engine is nil", ErrInvalidServiceConfig)
	case dependencies.Providers == nil:
		return nil, fmt.Errorf("%w: provider set is nil", ErrInvalidServiceConfig)
	case dependencies.Now == nil:
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if settings.ReservationTTL <= 0 {
		settings.ReservationTTL = DefaultReservationTTL
	}
	if err := validateRate(settings.CommissionRate); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidServiceConfig, err)
	}
	settings.Currency = strings.ToUpper(strings.TrimSpace(settings.Currency))
	if settings.Currency == "" {
		settings.Currency = defaultCurrency
	}
	if settings.References == nil {
		settings.References = randomReference
	}
	return &Checkout{
		store:        dependencies.Store,
		reservations: dependencies.Reservations,
		router:       dependencies.Router,
		fulfillment:  dependencies.Fulfillment,
		providers:    dependencies.Providers,
		nowFn:        dependencies.Now,
		settings:     settings,
		options:      newServiceOptions(options),
	}, nil
}

// StartIntent prices the order, holds bounded inventory, records a pending transaction
// and asks the routed provider to start collecting payment.
func (checkout *Checkout) StartIntent(ctx context.Context, request IntentRequest) (IntentResult, error) {
	ctx, endSpan := startSpan(ctx, "boxoffice.StartIntent",
		attribute.String("unit.id", request.UnitID),
		attribute.Int64("unit.quantity", request.Quantity),
	)
	result, err := checkout.startIntent(ctx, request)
	endSpan(err)
	checkout.options.logOperation(ctx, OperationLog{
		Operation: operationStartIntent,
		Reference: result.Reference,
		UnitID:    request.UnitID,
		Quantity:  request.Quantity,
		Amount:    result.Amount,
		Provider:  result.Provider,
		Error:     err,
	})
	if err != nil {
		return IntentResult{}, err
	}
	return result, nil
}

func (checkout *Checkout) startIntent(ctx context.Context, request IntentRequest) (IntentResult, error) {
	unitID := strings.TrimSpace(request.UnitID)
	if unitID == "" {
		return IntentResult{}, fmt.Errorf("%w: unit id is empty", ErrInvalidRequest)
	}
	if request.Quantity <= 0 || request.Quantity > maxIntentQuantity {
		return IntentResult{}, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidQuantity, maxIntentQuantity)
	}
	unit, err := checkout.store.GetInventoryUnit(ctx, unitID)
	if err != nil {
		return IntentResult{}, err
	}
	if err := unit.checkOpen(checkout.nowFn().UTC()); err != nil {
		return IntentResult{}, err
	}
	event, err := checkout.store.GetEvent(ctx, unit.EventID)
	if err != nil {
		return IntentResult{}, err
	}
	amount := AmountCents(unit.PriceCents.Int64() * request.Quantity)
	if amount <= 0 {
		return IntentResult{}, fmt.Errorf("%w: unit %s has no price", ErrInvalidAmount, unit.UnitID)
	}
	split, err := Split(amount, checkout.settings.CommissionRate)
	if err != nil {
		return IntentResult{}, err
	}
	provider, err := checkout.resolveProvider(ctx)
	if err != nil {
		return IntentResult{}, err
	}

	reference := checkout.settings.References()
	result := IntentResult{
		Reference: reference,
		Provider:  provider.ID(),
		Status:    TransactionStatusPending,
		Amount:    amount,
		Currency:  checkout.settings.Currency,
	}
	if unit.Bounded {
		reservation, err := checkout.reservations.Reserve(ctx, unit.UnitID, request.Quantity, checkout.settings.ReservationTTL, reference)
		if err != nil {
			return result, err
		}
		result.ExpiresAt = reservation.ExpiresAt
	}

	metadata, err := NewOrderMetadata(OrderMetadata{
		UnitID:   unit.UnitID,
		Quantity: request.Quantity,
		Kind:     unit.Kind,
		Reserved: unit.Bounded,
	})
	if err != nil {
		return result, err
	}
	transaction := Transaction{
		Reference:       reference,
		Provider:        provider.ID(),
		EventID:         event.EventID,
		OrganizerID:     event.OrganizerID,
		AmountCents:     amount,
		CommissionCents: split.PlatformFee,
		NetCents:        split.OrganizerNet,
		Currency:        checkout.settings.Currency,
		Status:          TransactionStatusPending,
		PayerContact:    strings.TrimSpace(request.PayerContact),
		Metadata:        metadata,
		CreatedAt:       checkout.nowFn().UTC(),
	}
	if err := checkout.store.CreateTransaction(ctx, transaction); err != nil {
		checkout.releaseReservation(ctx, reference, unit.Bounded)
		return result, err
	}

	initialized, err := provider.Initialize(ctx, InitializeRequest{
		Reference:    reference,
		Amount:       amount,
		Currency:     checkout.settings.Currency,
		PayerContact: transaction.PayerContact,
		Description:  fmt.Sprintf("%d x %s", request.Quantity, unit.Name),
	})
	if err != nil {
		checkout.router.RecordFailure(ctx, provider.ID())
		checkout.abandon(ctx, reference, unit.Bounded)
		return result, fmt.Errorf("%w: %s: %v", ErrPaymentInitialization, provider.ID(), err)
	}
	checkout.router.RecordSuccess(ctx, provider.ID())
	result.ReceiptToken = checkout.ReceiptToken(reference)
	result.PaymentURL = initialized.PaymentURL
	result.DisplayMessage = initialized.DisplayMessage
	return result, nil
}

func (checkout *Checkout) resolveProvider(ctx context.Context) (PaymentProvider, error) {
	selected := checkout.router.SelectProvider(ctx)
	if provider, ok := checkout.providers.Provider(selected); ok {
		return provider, nil
	}
	fallback := checkout.router.Fallback()
	checkout.options.logOperation(ctx, OperationLog{
		Operation: operationSelectProvider,
		Provider:  selected,
		Detail:    "selected provider is not configured, using fallback " + fallback.String(),
		Status:    operationStatusError,
	})
	if provider, ok := checkout.providers.Provider(fallback); ok {
		return provider, nil
	}
	return nil, fmt.Errorf("%w: neither %s nor fallback %s is configured", ErrUnknownProvider, selected, fallback)
}

func (checkout *Checkout) abandon(ctx context.Context, reference Reference, reserved bool) {
	err := checkout.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		return txStore.UpdateTransactionStatus(ctx, reference, TransactionStatusPending, TransactionStatusFailed, checkout.nowFn().UTC())
	})
	if err != nil {
		checkout.options.logOperation(ctx, OperationLog{
			Operation: operationStartIntent,
			Reference: reference,
			Detail:    "failed to mark abandoned transaction",
			Error:     err,
		})
	}
	checkout.releaseReservation(ctx, reference, reserved)
}

func (checkout *Checkout) releaseReservation(ctx context.Context, reference Reference, reserved bool) {
	if !reserved {
		return
	}
	if err := checkout.reservations.Cancel(ctx, reference); err != nil && !errors.Is(err, ErrReservationNotFound) {
		checkout.options.logOperation(ctx, OperationLog{
			Operation: operationCancel,
			Reference: reference,
			Detail:    "reservation release failed; the sweeper will expire it",
			Error:     err,
		})
	}
}

// HandleCallback authenticates a provider callback against the raw body and applies its verdict.
func (checkout *Checkout) HandleCallback(ctx context.Context, providerID ProviderID, payload []byte, headers http.Header) (CallbackResult, error) {
	ctx, endSpan := startSpan(ctx, "boxoffice.HandleCallback", attribute.String("payment.provider", providerID.String()))
	result, err := checkout.handleCallback(ctx, providerID, payload, headers)
	endSpan(err)
	entry := OperationLog{
		Operation: operationCallback,
		Reference: result.Reference,
		Provider:  providerID,
		Detail:    string(result.Outcome),
		Error:     err,
	}
	if errors.Is(err, ErrInvalidSignature) {
		entry.Detail = "security: rejected callback with invalid signature"
	}
	checkout.options.logOperation(ctx, entry)
	return result, err
}

func (checkout *Checkout) handleCallback(ctx context.Context, providerID ProviderID, payload []byte, headers http.Header) (CallbackResult, error) {
	provider, ok := checkout.providers.Provider(providerID)
	if !ok {
		return CallbackResult{}, fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
	}
	if !provider.VerifyCallback(payload, headers) {
		return CallbackResult{}, ErrInvalidSignature
	}
	event, err := provider.ParseCallback(payload)
	if errors.Is(err, ErrCallbackIgnored) {
		return CallbackResult{Reference: event.Reference, Outcome: CallbackIgnored}, nil
	}
	if err != nil {
		return CallbackResult{}, err
	}
	var amount *AmountCents
	if event.HasAmount {
		amount = &event.Amount
	}
	return checkout.settle(ctx, event.Reference, event.Outcome, amount)
}

// OverrideStatus lets an operator settle a pending transaction by hand, with the same effects as a callback.
func (checkout *Checkout) OverrideStatus(ctx context.Context, reference Reference, status TransactionStatus, operatorID string) (CallbackResult, error) {
	result, err := func() (CallbackResult, error) {
		if !status.Terminal() {
			return CallbackResult{}, fmt.Errorf("%w: override must be %s or %s", ErrInvalidStatus, TransactionStatusSuccess, TransactionStatusFailed)
		}
		result, err := checkout.settle(ctx, reference, status, nil)
		if err == nil && result.Outcome == CallbackUnknownReference {
			return result, fmt.Errorf("%w: %s", ErrTransactionNotFound, reference)
		}
		return result, err
	}()
	checkout.options.logOperation(ctx, OperationLog{
		Operation: operationOverrideStatus,
		Reference: reference,
		Subject:   operatorID,
		Detail:    callbackSourceOperator + ":" + string(status),
		Error:     err,
	})
	return result, err
}

// Transaction returns a transaction and any units minted for it.
func (checkout *Checkout) Transaction(ctx context.Context, reference Reference) (Transaction, []FulfilledUnit, error) {
	transaction, err := checkout.store.GetTransaction(ctx, reference)
	if err != nil {
		return Transaction{}, nil, err
	}
	units, err := checkout.store.ListFulfilledUnits(ctx, reference)
	if err != nil {
		return Transaction{}, nil, err
	}
	return transaction, units, nil
}

// ReceiptToken returns the token that unlocks the receipt of reference.
func (checkout *Checkout) ReceiptToken(reference Reference) string {
	return checkout.options.tokens.issue(accessScopeReceipt, reference.String())
}

// Receipt returns a transaction and its minted units to a caller holding the receipt token
// issued with the intent.
func (checkout *Checkout) Receipt(ctx context.Context, reference Reference, token string) (Transaction, []FulfilledUnit, error) {
	if !checkout.options.tokens.verify(accessScopeReceipt, reference.String(), token) {
		return Transaction{}, nil, fmt.Errorf("%w: receipt %s", ErrInvalidAccessToken, reference)
	}
	return checkout.Transaction(ctx, reference)
}

func (checkout *Checkout) settle(ctx context.Context, reference Reference, outcome TransactionStatus, amount *AmountCents) (CallbackResult, error) {
	result := CallbackResult{Reference: reference, Outcome: CallbackDuplicate}
	if reference.IsZero() {
		return result, fmt.Errorf("%w: empty value", ErrInvalidReference)
	}
	if !outcome.Terminal() {
		return CallbackResult{Reference: reference, Outcome: CallbackIgnored}, nil
	}
	unknown := false
	transitioned := false
	var reserved bool
	err := checkout.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		current, err := txStore.GetTransactionForUpdate(ctx, reference)
		if errors.Is(err, ErrTransactionNotFound) {
			unknown = true
			return nil
		}
		if err != nil {
			return err
		}
		if amount != nil && *amount != current.AmountCents {
			return fmt.Errorf("%w: expected %s, got %s", ErrAmountMismatch, current.AmountCents, *amount)
		}
		if order, orderErr := current.Metadata.Order(); orderErr == nil {
			reserved = order.Reserved
		}
		result.Status = current.Status
		if current.Status.Terminal() {
			return nil
		}
		if err := txStore.UpdateTransactionStatus(ctx, reference, TransactionStatusPending, outcome, checkout.nowFn().UTC()); err != nil {
			return err
		}
		result.Status = outcome
		transitioned = true
		return nil
	})
	if err != nil {
		return result, err
	}
	if unknown {
		return CallbackResult{Reference: reference, Outcome: CallbackUnknownReference}, nil
	}
	if transitioned {
		result.Outcome = CallbackProcessed
	}
	switch result.Status {
	case TransactionStatusSuccess:
		fulfillment, err := checkout.fulfillment.Fulfill(ctx, reference)
		if err != nil {
			return result, err
		}
		result.Fulfillment = fulfillment
	case TransactionStatusFailed:
		if transitioned {
			checkout.releaseReservation(ctx, reference, reserved)
		}
	}
	return result, nil
}
