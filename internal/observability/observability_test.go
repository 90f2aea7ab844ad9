package observability

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/boxoffice"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func mustReference(test *testing.T, raw string) boxoffice.Reference {
	test.Helper()
	reference, err := boxoffice.NewReference(raw)
	if err != nil {
		test.Fatalf("reference: %v", err)
	}
	return reference
}

func TestZapOperationLoggerLevels(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name  string
		entry boxoffice.OperationLog
		level zapcore.Level
	}{
		{name: "success", entry: boxoffice.OperationLog{Operation: "reserve", Status: "ok"}, level: zapcore.InfoLevel},
		{name: "capacity", entry: boxoffice.OperationLog{Operation: "reserve", Status: "error", Error: boxoffice.ErrInsufficientInventory}, level: zapcore.InfoLevel},
		{name: "forged callback", entry: boxoffice.OperationLog{Operation: "payment_callback", Status: "error", Error: boxoffice.ErrInvalidSignature, Detail: "security: rejected callback with invalid signature"}, level: zapcore.WarnLevel},
		{name: "amount mismatch", entry: boxoffice.OperationLog{Operation: "payment_callback", Status: "error", Error: boxoffice.ErrAmountMismatch}, level: zapcore.WarnLevel},
		{name: "corrupt metadata", entry: boxoffice.OperationLog{Operation: "fulfill", Status: "error", Error: fmt.Errorf("%w: unit_id missing", boxoffice.ErrInvalidMetadata)}, level: zapcore.ErrorLevel},
		{name: "database down", entry: boxoffice.OperationLog{Operation: "fulfill", Status: "error", Error: errors.New("connection refused")}, level: zapcore.ErrorLevel},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			core, logs := observer.New(zapcore.DebugLevel)
			NewZapOperationLogger(zap.New(core)).LogOperation(context.Background(), testCase.entry)
			entries := logs.AllUntimed()
			if len(entries) != 1 {
				t.Fatalf("expected one entry, got %d", len(entries))
			}
			if entries[0].Level != testCase.level {
				t.Fatalf("expected level %s, got %s", testCase.level, entries[0].Level)
			}
		})
	}
}

func TestZapOperationLoggerFields(test *testing.T) {
	test.Parallel()
	core, logs := observer.New(zapcore.DebugLevel)
	NewZapOperationLogger(zap.New(core)).LogOperation(context.Background(), boxoffice.OperationLog{
		Operation: "fulfill",
		Reference: mustReference(test, "BX-1"),
		Provider:  "paystack",
		Amount:    12050,
		Status:    "error",
		Error:     boxoffice.ErrTransactionNotSuccessful,
	})
	fields := logs.AllUntimed()[0].ContextMap()
	if fields["reference"] != "BX-1" || fields["provider"] != "paystack" || fields["amount"] != "120.50" {
		test.Fatalf("unexpected fields %v", fields)
	}
	if fields["error_reason"] != "transaction_not_successful" || fields["error_category"] != "conflict" {
		test.Fatalf("unexpected classification %v", fields)
	}
}

func counterValue(test *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	test.Helper()
	families, err := registry.Gather()
	if err != nil {
		test.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			matched := 0
			for _, pair := range metric.GetLabel() {
				if labels[pair.GetName()] == pair.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestMetricsOperationLoggerCounts(test *testing.T) {
	test.Parallel()
	registry := prometheus.NewRegistry()
	metrics, err := NewMetricsOperationLogger(registry)
	if err != nil {
		test.Fatalf("new metrics: %v", err)
	}
	logger := FanOut{metrics, nil, NewZapOperationLogger(nil)}
	ctx := context.Background()
	logger.LogOperation(ctx, boxoffice.OperationLog{Operation: "reserve", Status: "ok", Quantity: 3})
	logger.LogOperation(ctx, boxoffice.OperationLog{Operation: "reserve", Status: "ok", Quantity: 2})
	logger.LogOperation(ctx, boxoffice.OperationLog{Operation: "reserve", Status: "error", Quantity: 9, Error: boxoffice.ErrInsufficientInventory})

	if value := counterValue(test, registry, "boxoffice_operations_total", map[string]string{"operation": "reserve", "status": "ok", "category": "none"}); value != 2 {
		test.Fatalf("expected 2 ok reserves, got %v", value)
	}
	if value := counterValue(test, registry, "boxoffice_operations_total", map[string]string{"operation": "reserve", "status": "error", "category": "capacity"}); value != 1 {
		test.Fatalf("expected 1 capacity failure, got %v", value)
	}
	if value := counterValue(test, registry, "boxoffice_operation_units_total", map[string]string{"operation": "reserve"}); value != 5 {
		test.Fatalf("expected 5 units, got %v", value)
	}
}

func TestMetricsOperationLoggerRejectsDoubleRegistration(test *testing.T) {
	test.Parallel()
	registry := prometheus.NewRegistry()
	if _, err := NewMetricsOperationLogger(registry); err != nil {
		test.Fatalf("first registration: %v", err)
	}
	if _, err := NewMetricsOperationLogger(registry); err == nil {
		test.Fatalf("expected duplicate registration error")
	}
}

func TestNewTracerProviderDisabledWithoutEndpoint(test *testing.T) {
	shutdown, err := NewTracerProvider(TracingConfig{}, nil)
	if err != nil {
		test.Fatalf("tracer provider: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		test.Fatalf("shutdown: %v", err)
	}
}
