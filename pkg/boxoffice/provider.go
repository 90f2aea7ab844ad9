package boxoffice

import (
	"context"
	"net/http"
)

// InitializeRequest asks a provider to start collecting a payment.
type InitializeRequest struct {
	Reference    Reference
	Amount       AmountCents
	Currency     string
	PayerContact string
	Description  string
}

// InitializeResult tells the buyer how to complete the payment.
type InitializeResult struct {
	PaymentURL     string
	DisplayMessage string
}

// CallbackEvent is a provider's verdict on a payment.
type CallbackEvent struct {
	Reference Reference
	Outcome   TransactionStatus
	Amount    AmountCents
	HasAmount bool
	EventID   string
}

// PaymentProvider is one payment gateway integration.
// VerifyCallback must check the raw payload exactly as received.
// ParseCallback returns ErrCallbackIgnored for events that carry no payment verdict.
type PaymentProvider interface {
	ID() ProviderID
	Initialize(ctx context.Context, request InitializeRequest) (InitializeResult, error)
	VerifyCallback(payload []byte, headers http.Header) bool
	ParseCallback(payload []byte) (CallbackEvent, error)
}

// ProviderSet resolves provider integrations by name.
type ProviderSet interface {
	Provider(id ProviderID) (PaymentProvider, bool)
}
