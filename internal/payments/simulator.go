package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/boxoffice"
)

const (
	// SimulatorID is the provider id of the in-process simulator.
	SimulatorID boxoffice.ProviderID = "simulator"

	// SimulatorSignatureHeader carries the simulator's callback signature.
	SimulatorSignatureHeader = "X-Simulator-Signature"

	simulatorStatusPending = "pending"
	simulatorDisplayFormat = "Simulated payment of %s %s. Settle it with a signed callback for %s."
)

var errSimulatedOutage = errors.New("simulated provider outage")

// Simulator is a provider for development and tests. It never moves money: payments are
// settled by posting a callback produced with SignedCallback.
type Simulator struct {
	secret       string
	checkoutURL  string
	pendingFails atomic.Int64
}

// NewSimulator returns a simulator that signs callbacks with secret.
func NewSimulator(secret string, checkoutURL string) (*Simulator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("%w: simulator secret is required", boxoffice.ErrInvalidServiceConfig)
	}
	return &Simulator{secret: secret, checkoutURL: strings.TrimRight(checkoutURL, "/")}, nil
}

func (simulator *Simulator) ID() boxoffice.ProviderID {
	return SimulatorID
}

// FailNextInitializations makes the next count Initialize calls fail.
func (simulator *Simulator) FailNextInitializations(count int64) {
	simulator.pendingFails.Store(count)
}

func (simulator *Simulator) Initialize(_ context.Context, request boxoffice.InitializeRequest) (boxoffice.InitializeResult, error) {
	for {
		remaining := simulator.pendingFails.Load()
		if remaining <= 0 {
			break
		}
		if simulator.pendingFails.CompareAndSwap(remaining, remaining-1) {
			return boxoffice.InitializeResult{}, errSimulatedOutage
		}
	}
	result := boxoffice.InitializeResult{
		DisplayMessage: fmt.Sprintf(simulatorDisplayFormat, request.Amount, request.Currency, request.Reference),
	}
	if simulator.checkoutURL != "" {
		result.PaymentURL = simulator.checkoutURL + "/" + request.Reference.String()
	}
	return result, nil
}

func (simulator *Simulator) VerifyCallback(payload []byte, headers http.Header) bool {
	return boxoffice.VerifySignature(payload, headers.Get(SimulatorSignatureHeader), simulator.secret)
}

type simulatorCallback struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    *int64 `json:"amount,omitempty"`
}

func (simulator *Simulator) ParseCallback(payload []byte) (boxoffice.CallbackEvent, error) {
	var callback simulatorCallback
	if err := json.Unmarshal(payload, &callback); err != nil {
		return boxoffice.CallbackEvent{}, fmt.Errorf("%w: simulator callback: %v", boxoffice.ErrInvalidRequest, err)
	}
	reference, err := boxoffice.NewReference(callback.Reference)
	if err != nil {
		return boxoffice.CallbackEvent{}, err
	}
	if strings.EqualFold(callback.Status, simulatorStatusPending) {
		return boxoffice.CallbackEvent{Reference: reference}, fmt.Errorf("%w: pending", boxoffice.ErrCallbackIgnored)
	}
	outcome, err := boxoffice.ParseTransactionStatus(strings.ToLower(callback.Status))
	if err != nil {
		return boxoffice.CallbackEvent{}, err
	}
	event := boxoffice.CallbackEvent{Reference: reference, Outcome: outcome}
	if callback.Amount != nil {
		event.Amount = boxoffice.AmountCents(*callback.Amount)
		event.HasAmount = true
	}
	return event, nil
}

// SignedCallback builds a callback body and the headers that authenticate it.
func (simulator *Simulator) SignedCallback(reference boxoffice.Reference, outcome boxoffice.TransactionStatus, amount boxoffice.AmountCents) ([]byte, http.Header, error) {
	amountValue := amount.Int64()
	payload, err := json.Marshal(simulatorCallback{Reference: reference.String(), Status: outcome.String(), Amount: &amountValue})
	if err != nil {
		return nil, nil, err
	}
	headers := http.Header{}
	headers.Set(SimulatorSignatureHeader, boxoffice.SignPayload(payload, simulator.secret))
	headers.Set("Content-Type", "application/json")
	return payload, headers, nil
}
