package observability

import (
	"context"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/boxoffice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	metricsNamespace = "boxoffice"
	noCategoryLabel  = "none"
)

// MetricsOperationLogger counts engine operations by outcome.
type MetricsOperationLogger struct {
	operations *prometheus.CounterVec
	quantities *prometheus.CounterVec
}

// NewRegistry returns a registry carrying the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// NewMetricsOperationLogger registers its collectors on registerer.
func NewMetricsOperationLogger(registerer prometheus.Registerer) (*MetricsOperationLogger, error) {
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "operations_total",
		Help:      "Engine operations by name, status and error category.",
	}, []string{"operation", "status", "category"})
	quantities := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "operation_units_total",
		Help:      "Inventory units moved by successful operations.",
	}, []string{"operation"})
	for _, collector := range []prometheus.Collector{operations, quantities} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return &MetricsOperationLogger{operations: operations, quantities: quantities}, nil
}

// LogOperation implements boxoffice.OperationLogger.
func (metrics *MetricsOperationLogger) LogOperation(_ context.Context, entry boxoffice.OperationLog) {
	category, _ := boxoffice.Classify(entry.Error)
	if category == boxoffice.CategoryNone {
		category = noCategoryLabel
	}
	metrics.operations.WithLabelValues(entry.Operation, entry.Status, string(category)).Inc()
	if entry.Error == nil && entry.Quantity > 0 {
		metrics.quantities.WithLabelValues(entry.Operation).Add(float64(entry.Quantity))
	}
}
