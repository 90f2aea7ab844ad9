package grpcserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/boxoffice"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

const bufconnSize = 1 << 20

type stubPinger struct {
	mu  sync.Mutex
	err error
}

func (pinger *stubPinger) Ping(context.Context) error {
	pinger.mu.Lock()
	defer pinger.mu.Unlock()
	return pinger.err
}

func (pinger *stubPinger) fail(err error) {
	pinger.mu.Lock()
	defer pinger.mu.Unlock()
	pinger.err = err
}

type stubGateways []boxoffice.GatewayHealth

func (gateways stubGateways) Gateways(context.Context) ([]boxoffice.GatewayHealth, error) {
	return gateways, nil
}

func startHealthClient(t *testing.T, monitor *HealthMonitor) grpc_health_v1.HealthClient {
	t.Helper()
	listener := bufconn.Listen(bufconnSize)
	server := NewServer(monitor)
	go func() {
		if serveErr := server.Serve(listener); serveErr != nil {
			t.Logf("gRPC server error: %v", serveErr)
		}
	}()
	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.DialContext(ctx)
	}
	conn, err := grpc.NewClient("passthrough:///bufnet", grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("gRPC client init failed: %v", err)
	}
	t.Cleanup(func() {
		server.Stop()
		_ = conn.Close()
	})
	return grpc_health_v1.NewHealthClient(conn)
}

func checkStatus(t *testing.T, client grpc_health_v1.HealthClient, service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	response, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("health check %q: %v", service, err)
	}
	return response.GetStatus()
}

func TestHealthReflectsStoreAndGateways(t *testing.T) {
	pinger := &stubPinger{}
	gateways := stubGateways{
		{Provider: "paystack", Enabled: true, Priority: 1},
		{Provider: "simulator", Enabled: false},
		{Provider: "flaky", Enabled: true, FailureCount: boxoffice.FailureAlertThreshold + 1},
	}
	monitor, err := NewHealthMonitor(pinger, gateways, time.Hour, nil)
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	client := startHealthClient(t, monitor)

	if status := checkStatus(t, client, ""); status != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before the first probe, got %s", status)
	}

	monitor.Probe(context.Background())
	expectations := map[string]grpc_health_v1.HealthCheckResponse_ServingStatus{
		"":                                 grpc_health_v1.HealthCheckResponse_SERVING,
		StoreService:                       grpc_health_v1.HealthCheckResponse_SERVING,
		GatewayServicePrefix + "paystack":  grpc_health_v1.HealthCheckResponse_SERVING,
		GatewayServicePrefix + "simulator": grpc_health_v1.HealthCheckResponse_NOT_SERVING,
		GatewayServicePrefix + "flaky":     grpc_health_v1.HealthCheckResponse_NOT_SERVING,
	}
	for service, expected := range expectations {
		if status := checkStatus(t, client, service); status != expected {
			t.Fatalf("%q: expected %s, got %s", service, expected, status)
		}
	}

	pinger.fail(errors.New("connection refused"))
	monitor.Probe(context.Background())
	if status := checkStatus(t, client, StoreService); status != grpc_health_v1.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING after a failed ping, got %s", status)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	monitor, err := NewHealthMonitor(&stubPinger{}, nil, time.Millisecond, nil)
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- monitor.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("run did not stop")
	}
}

func TestNewHealthMonitorRequiresStore(t *testing.T) {
	if _, err := NewHealthMonitor(nil, nil, 0, nil); err == nil {
		t.Fatalf("expected error for nil pinger")
	}
}
