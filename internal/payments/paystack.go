package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/boxoffice"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// PaystackID is the provider id used in routes and gateway health rows.
	PaystackID boxoffice.ProviderID = "paystack"

	// PaystackSignatureHeader carries the hex HMAC-SHA512 of the raw webhook body.
	PaystackSignatureHeader = "X-Paystack-Signature"

	defaultPaystackBaseURL   = "https://api.paystack.co"
	defaultPaystackTimeout   = 10 * time.Second
	paystackInitializePath   = "/transaction/initialize"
	paystackEventSuccess     = "charge.success"
	paystackEventFailed      = "charge.failed"
	paystackResponseLimit    = 1 << 20
	paystackDisplayMessage   = "Complete your payment on the Paystack checkout page."
	paystackAuthorization    = "Bearer "
	paystackContentType      = "application/json"
	paystackFallbackEmailTLD = "@customers.boxoffice.invalid"
)

var errPaystackRejected = errors.New("paystack rejected the request")

// PaystackConfig configures the Paystack integration.
type PaystackConfig struct {
	SecretKey  string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Paystack talks to the Paystack transaction API and verifies its webhooks.
type Paystack struct {
	secretKey string
	baseURL   string
	client    *http.Client
}

// NewPaystack validates config and builds an instrumented HTTP client.
func NewPaystack(config PaystackConfig) (*Paystack, error) {
	secretKey := strings.TrimSpace(config.SecretKey)
	if secretKey == "" {
		return nil, fmt.Errorf("%w: paystack secret key is required", boxoffice.ErrInvalidServiceConfig)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultPaystackBaseURL
	}
	client := config.HTTPClient
	if client == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = defaultPaystackTimeout
		}
		client = &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &Paystack{secretKey: secretKey, baseURL: baseURL, client: client}, nil
}

func (paystack *Paystack) ID() boxoffice.ProviderID {
	return PaystackID
}

type paystackInitializeRequest struct {
	Email     string            `json:"email"`
	Amount    int64             `json:"amount"`
	Currency  string            `json:"currency,omitempty"`
	Reference string            `json:"reference"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

type paystackInitializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// Initialize creates a Paystack transaction and returns its hosted checkout URL.
func (paystack *Paystack) Initialize(ctx context.Context, request boxoffice.InitializeRequest) (boxoffice.InitializeResult, error) {
	body, err := json.Marshal(paystackInitializeRequest{
		Email:     payerEmail(request),
		Amount:    request.Amount.Int64(),
		Currency:  strings.ToUpper(request.Currency),
		Reference: request.Reference.String(),
		Metadata:  map[string]string{"description": request.Description},
	})
	if err != nil {
		return boxoffice.InitializeResult{}, fmt.Errorf("encode paystack request: %w", err)
	}
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, paystack.baseURL+paystackInitializePath, bytes.NewReader(body))
	if err != nil {
		return boxoffice.InitializeResult{}, fmt.Errorf("build paystack request: %w", err)
	}
	httpRequest.Header.Set("Authorization", paystackAuthorization+paystack.secretKey)
	httpRequest.Header.Set("Content-Type", paystackContentType)

	response, err := paystack.client.Do(httpRequest)
	if err != nil {
		return boxoffice.InitializeResult{}, fmt.Errorf("paystack initialize: %w", err)
	}
	defer response.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(response.Body, paystackResponseLimit))
	if err != nil {
		return boxoffice.InitializeResult{}, fmt.Errorf("read paystack response: %w", err)
	}
	var decoded paystackInitializeResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return boxoffice.InitializeResult{}, fmt.Errorf("decode paystack response (status %d): %w", response.StatusCode, err)
	}
	if response.StatusCode >= http.StatusBadRequest || !decoded.Status || decoded.Data.AuthorizationURL == "" {
		return boxoffice.InitializeResult{}, fmt.Errorf("%w: status %d: %s", errPaystackRejected, response.StatusCode, decoded.Message)
	}
	return boxoffice.InitializeResult{
		PaymentURL:     decoded.Data.AuthorizationURL,
		DisplayMessage: paystackDisplayMessage,
	}, nil
}

// VerifyCallback checks the signature header against the exact body bytes.
func (paystack *Paystack) VerifyCallback(payload []byte, headers http.Header) bool {
	return boxoffice.VerifySignature(payload, headers.Get(PaystackSignatureHeader), paystack.secretKey)
}

type paystackWebhook struct {
	Event string `json:"event"`
	Data  struct {
		ID        json.Number `json:"id"`
		Reference string      `json:"reference"`
		Amount    *int64      `json:"amount"`
		Status    string      `json:"status"`
	} `json:"data"`
}

// ParseCallback maps charge.success and charge.failed; every other event is ignored.
func (paystack *Paystack) ParseCallback(payload []byte) (boxoffice.CallbackEvent, error) {
	var webhook paystackWebhook
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	if err := decoder.Decode(&webhook); err != nil {
		return boxoffice.CallbackEvent{}, fmt.Errorf("%w: paystack webhook: %v", boxoffice.ErrInvalidRequest, err)
	}
	var outcome boxoffice.TransactionStatus
	switch webhook.Event {
	case paystackEventSuccess:
		outcome = boxoffice.TransactionStatusSuccess
	case paystackEventFailed:
		outcome = boxoffice.TransactionStatusFailed
	default:
		return boxoffice.CallbackEvent{}, fmt.Errorf("%w: paystack event %q", boxoffice.ErrCallbackIgnored, webhook.Event)
	}
	reference, err := boxoffice.NewReference(webhook.Data.Reference)
	if err != nil {
		return boxoffice.CallbackEvent{}, err
	}
	event := boxoffice.CallbackEvent{Reference: reference, Outcome: outcome, EventID: webhook.Data.ID.String()}
	if webhook.Data.Amount != nil {
		event.Amount = boxoffice.AmountCents(*webhook.Data.Amount)
		event.HasAmount = true
	}
	return event, nil
}

// payerEmail returns the payer contact when it is an email; Paystack requires one.
func payerEmail(request boxoffice.InitializeRequest) string {
	contact := strings.TrimSpace(request.PayerContact)
	if strings.Contains(contact, "@") {
		return contact
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, contact)
	if digits == "" {
		digits = strings.ToLower(request.Reference.String())
	}
	return digits + paystackFallbackEmailTLD
}
