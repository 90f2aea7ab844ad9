package grpcserver

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/boxoffice"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

const (
	// StoreService reports database reachability.
	StoreService = "boxoffice.Store"
	// GatewayServicePrefix prefixes one health entry per payment provider.
	GatewayServicePrefix = "boxoffice.gateway."

	defaultProbeInterval = 15 * time.Second
	probeTimeout         = 5 * time.Second
)

// Pinger checks that the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// GatewayLister lists payment provider health rows.
type GatewayLister interface {
	Gateways(ctx context.Context) ([]boxoffice.GatewayHealth, error)
}

// HealthMonitor keeps the gRPC health service in step with the store and the gateways.
type HealthMonitor struct {
	health   *health.Server
	store    Pinger
	gateways GatewayLister
	interval time.Duration
	logger   *zap.Logger
}

// NewHealthMonitor returns a monitor that reports NOT_SERVING until its first probe.
func NewHealthMonitor(store Pinger, gateways GatewayLister, interval time.Duration, logger *zap.Logger) (*HealthMonitor, error) {
	if store == nil {
		return nil, errors.New("grpcserver: store pinger is nil")
	}
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	server := health.NewServer()
	server.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	server.SetServingStatus(StoreService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	return &HealthMonitor{health: server, store: store, gateways: gateways, interval: interval, logger: logger}, nil
}

// NewServer returns a gRPC server exposing the monitor's health service.
func NewServer(monitor *HealthMonitor, options ...grpc.ServerOption) *grpc.Server {
	options = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, options...)
	server := grpc.NewServer(options...)
	grpc_health_v1.RegisterHealthServer(server, monitor.health)
	return server
}

// Probe runs one round of checks and updates every status.
func (monitor *HealthMonitor) Probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	storeStatus := grpc_health_v1.HealthCheckResponse_SERVING
	if err := monitor.store.Ping(probeCtx); err != nil {
		monitor.logger.Warn("store health probe failed", zap.Error(err))
		storeStatus = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	monitor.health.SetServingStatus("", storeStatus)
	monitor.health.SetServingStatus(StoreService, storeStatus)
	if monitor.gateways == nil || storeStatus != grpc_health_v1.HealthCheckResponse_SERVING {
		return
	}
	gateways, err := monitor.gateways.Gateways(probeCtx)
	if err != nil {
		monitor.logger.Warn("gateway health probe failed", zap.Error(err))
		return
	}
	for _, gateway := range gateways {
		status := grpc_health_v1.HealthCheckResponse_SERVING
		if !gateway.Enabled || gateway.FailureCount > boxoffice.FailureAlertThreshold {
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
		monitor.health.SetServingStatus(GatewayServicePrefix+gateway.Provider.String(), status)
	}
}

// Run probes on every interval until ctx is cancelled, then marks everything NOT_SERVING.
func (monitor *HealthMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(monitor.interval)
	defer ticker.Stop()
	for {
		monitor.Probe(ctx)
		select {
		case <-ctx.Done():
			monitor.health.Shutdown()
			return nil
		case <-ticker.C:
		}
	}
}
