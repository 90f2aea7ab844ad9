package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/boxoffice"
)

const testPaystackSecret = "sk_test_boxoffice"

func mustReference(test *testing.T, raw string) boxoffice.Reference {
	test.Helper()
	reference, err := boxoffice.NewReference(raw)
	if err != nil {
		test.Fatalf("reference: %v", err)
	}
	return reference
}

func newTestPaystack(test *testing.T, handler http.HandlerFunc) *Paystack {
	test.Helper()
	server := httptest.NewServer(handler)
	test.Cleanup(server.Close)
	paystack, err := NewPaystack(PaystackConfig{SecretKey: testPaystackSecret, BaseURL: server.URL + "/", HTTPClient: server.Client()})
	if err != nil {
		test.Fatalf("paystack: %v", err)
	}
	return paystack
}

func TestPaystackInitializeSendsOrder(test *testing.T) {
	test.Parallel()
	var received paystackInitializeRequest
	paystack := newTestPaystack(test, func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != paystackInitializePath || request.Method != http.MethodPost {
			test.Errorf("unexpected request %s %s", request.Method, request.URL.Path)
		}
		if request.Header.Get("Authorization") != "Bearer "+testPaystackSecret {
			test.Errorf("missing bearer secret")
		}
		if err := json.NewDecoder(request.Body).Decode(&received); err != nil {
			test.Errorf("decode: %v", err)
		}
		_, _ = writer.Write([]byte(`{"status":true,"message":"ok","data":{"authorization_url":"https://checkout.paystack.com/abc","access_code":"abc","reference":"BX-1"}}`))
	})
	result, err := paystack.Initialize(context.Background(), boxoffice.InitializeRequest{
		Reference:    mustReference(test, "BX-1"),
		Amount:       25000,
		Currency:     "ngn",
		PayerContact: "buyer@example.com",
	})
	if err != nil {
		test.Fatalf("initialize: %v", err)
	}
	if result.PaymentURL != "https://checkout.paystack.com/abc" {
		test.Fatalf("unexpected payment url %q", result.PaymentURL)
	}
	if received.Amount != 25000 || received.Currency != "NGN" || received.Reference != "BX-1" || received.Email != "buyer@example.com" {
		test.Fatalf("unexpected request body %+v", received)
	}
}

func TestPaystackInitializeFailures(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name    string
		status  int
		payload string
	}{
		{name: "rejected", status: http.StatusBadRequest, payload: `{"status":false,"message":"Invalid key"}`},
		{name: "status false", status: http.StatusOK, payload: `{"status":false,"message":"nope"}`},
		{name: "missing url", status: http.StatusOK, payload: `{"status":true,"data":{}}`},
		{name: "not json", status: http.StatusBadGateway, payload: `<html>bad gateway</html>`},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			paystack := newTestPaystack(test, func(writer http.ResponseWriter, _ *http.Request) {
				writer.WriteHeader(testCase.status)
				_, _ = writer.Write([]byte(testCase.payload))
			})
			_, err := paystack.Initialize(context.Background(), boxoffice.InitializeRequest{Reference: mustReference(test, "BX-2"), Amount: 100})
			if err == nil {
				test.Fatalf("expected initialize error")
			}
		})
	}
}

func TestPaystackCallbackVerificationAndParsing(test *testing.T) {
	test.Parallel()
	paystack, err := NewPaystack(PaystackConfig{SecretKey: testPaystackSecret})
	if err != nil {
		test.Fatalf("paystack: %v", err)
	}
	payload := []byte(`{"event":"charge.success","data":{"id":302961,"reference":"BX-9","amount":50000,"status":"success"}}`)
	headers := http.Header{}
	headers.Set(PaystackSignatureHeader, boxoffice.SignPayload(payload, testPaystackSecret))
	if !paystack.VerifyCallback(payload, headers) {
		test.Fatalf("expected signature to verify")
	}
	tampered := []byte(strings.Replace(string(payload), "50000", "5000", 1))
	if paystack.VerifyCallback(tampered, headers) {
		test.Fatalf("expected tampered payload to fail verification")
	}
	event, err := paystack.ParseCallback(payload)
	if err != nil {
		test.Fatalf("parse: %v", err)
	}
	if event.Reference.String() != "BX-9" || event.Outcome != boxoffice.TransactionStatusSuccess || !event.HasAmount || event.Amount != 50000 || event.EventID != "302961" {
		test.Fatalf("unexpected event %+v", event)
	}

	failed, err := paystack.ParseCallback([]byte(`{"event":"charge.failed","data":{"reference":"BX-9"}}`))
	if err != nil || failed.Outcome != boxoffice.TransactionStatusFailed || failed.HasAmount {
		test.Fatalf("unexpected failed event %+v (%v)", failed, err)
	}
	if _, err := paystack.ParseCallback([]byte(`{"event":"transfer.success","data":{"reference":"BX-9"}}`)); !errors.Is(err, boxoffice.ErrCallbackIgnored) {
		test.Fatalf("expected ErrCallbackIgnored, got %v", err)
	}
	if _, err := paystack.ParseCallback([]byte(`{`)); !errors.Is(err, boxoffice.ErrInvalidRequest) {
		test.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestNewPaystackRequiresSecret(test *testing.T) {
	test.Parallel()
	if _, err := NewPaystack(PaystackConfig{SecretKey: "  "}); !errors.Is(err, boxoffice.ErrInvalidServiceConfig) {
		test.Fatalf("expected ErrInvalidServiceConfig, got %v", err)
	}
}

func TestPayerEmailFallback(test *testing.T) {
	test.Parallel()
	reference := mustReference(test, "BX-7")
	if email := payerEmail(boxoffice.InitializeRequest{Reference: reference, PayerContact: "+234 801 234 5678"}); email != "2348012345678"+paystackFallbackEmailTLD {
		test.Fatalf("unexpected phone fallback %q", email)
	}
	if email := payerEmail(boxoffice.InitializeRequest{Reference: reference}); email != "bx-7"+paystackFallbackEmailTLD {
		test.Fatalf("unexpected reference fallback %q", email)
	}
}

func TestSimulatorRoundTrip(test *testing.T) {
	test.Parallel()
	simulator, err := NewSimulator("sim-secret", "http://localhost:8080/simulate/")
	if err != nil {
		test.Fatalf("simulator: %v", err)
	}
	reference := mustReference(test, "BX-SIM")
	result, err := simulator.Initialize(context.Background(), boxoffice.InitializeRequest{Reference: reference, Amount: 1500, Currency: "GHS"})
	if err != nil {
		test.Fatalf("initialize: %v", err)
	}
	if result.PaymentURL != "http://localhost:8080/simulate/BX-SIM" || !strings.Contains(result.DisplayMessage, "15.00 GHS") {
		test.Fatalf("unexpected result %+v", result)
	}
	payload, headers, err := simulator.SignedCallback(reference, boxoffice.TransactionStatusSuccess, 1500)
	if err != nil {
		test.Fatalf("signed callback: %v", err)
	}
	if !simulator.VerifyCallback(payload, headers) {
		test.Fatalf("expected callback to verify")
	}
	event, err := simulator.ParseCallback(payload)
	if err != nil {
		test.Fatalf("parse: %v", err)
	}
	if event.Reference != reference || event.Outcome != boxoffice.TransactionStatusSuccess || event.Amount != 1500 {
		test.Fatalf("unexpected event %+v", event)
	}
	if _, err := simulator.ParseCallback([]byte(`{"reference":"BX-SIM","status":"pending"}`)); !errors.Is(err, boxoffice.ErrCallbackIgnored) {
		test.Fatalf("expected ErrCallbackIgnored, got %v", err)
	}
}

func TestSimulatorInjectedFailures(test *testing.T) {
	test.Parallel()
	simulator, err := NewSimulator("sim-secret", "")
	if err != nil {
		test.Fatalf("simulator: %v", err)
	}
	simulator.FailNextInitializations(2)
	request := boxoffice.InitializeRequest{Reference: mustReference(test, "BX-F"), Amount: 100}
	for attempt := 0; attempt < 2; attempt++ {
		if _, err := simulator.Initialize(context.Background(), request); !errors.Is(err, errSimulatedOutage) {
			test.Fatalf("attempt %d: expected outage, got %v", attempt, err)
		}
	}
	if _, err := simulator.Initialize(context.Background(), request); err != nil {
		test.Fatalf("expected recovery, got %v", err)
	}
}

func TestRegistryRejectsDuplicates(test *testing.T) {
	test.Parallel()
	simulator, err := NewSimulator("sim-secret", "")
	if err != nil {
		test.Fatalf("simulator: %v", err)
	}
	paystack, err := NewPaystack(PaystackConfig{SecretKey: testPaystackSecret})
	if err != nil {
		test.Fatalf("paystack: %v", err)
	}
	registry, err := NewRegistry(simulator, paystack)
	if err != nil {
		test.Fatalf("registry: %v", err)
	}
	if ids := registry.IDs(); len(ids) != 2 || ids[0] != PaystackID || ids[1] != SimulatorID {
		test.Fatalf("unexpected ids %v", ids)
	}
	if _, ok := registry.Provider("flutterwave"); ok {
		test.Fatalf("expected unknown provider lookup to fail")
	}
	if err := registry.Register(simulator); !errors.Is(err, boxoffice.ErrInvalidServiceConfig) {
		test.Fatalf("expected duplicate registration error, got %v", err)
	}
}
