package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/boxoffice/internal/httpapi"
	"github.com/MarkoPoloResearchLab/boxoffice/internal/notify"
	"github.com/MarkoPoloResearchLab/boxoffice/internal/observability"
	"github.com/MarkoPoloResearchLab/boxoffice/internal/payments"
	"github.com/MarkoPoloResearchLab/boxoffice/internal/sweeper"
	"github.com/MarkoPoloResearchLab/boxoffice/pkg/boxoffice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
	httpSpanName      = "boxoffice.http"
)

// App is a fully wired engine with its storage, providers and notification pipeline.
type App struct {
	Config     Config
	Logger     *zap.Logger
	Backend    *Backend
	Engine     *boxoffice.Engine
	Providers  *payments.Registry
	Dispatcher *notify.Dispatcher
	Metrics    *prometheus.Registry

	shutdownTracing observability.ShutdownFunc
}

// New validates cfg, opens storage and builds every service.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	shutdownTracing, err := observability.NewTracerProvider(observability.TracingConfig{
		Endpoint:      cfg.TracingEndpoint,
		Insecure:      cfg.TracingInsecure,
		ServiceName:   defaultServiceName,
		Version:       cfg.Version,
		SamplingRatio: cfg.TracingSampleRatio,
	}, logger)
	if err != nil {
		return nil, err
	}
	app := &App{Config: cfg, Logger: logger, shutdownTracing: shutdownTracing}
	if err := app.build(ctx); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (app *App) build(ctx context.Context) error {
	cfg := app.Config
	backend, err := OpenBackend(ctx, cfg, app.Logger)
	if err != nil {
		return err
	}
	app.Backend = backend

	providers, err := buildProviders(cfg)
	if err != nil {
		return err
	}
	app.Providers = providers

	senders := []notify.Sender{notify.NewLogSender(app.Logger)}
	if cfg.AlertWebhookURL != "" {
		webhook, err := notify.NewWebhookSender(cfg.AlertWebhookURL, cfg.ProviderTimeout)
		if err != nil {
			return err
		}
		senders = append(senders, webhook)
	}
	app.Dispatcher = notify.NewDispatcher(app.Logger, notify.Config{}, senders...)

	app.Metrics = observability.NewRegistry()
	metrics, err := observability.NewMetricsOperationLogger(app.Metrics)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	references, err := boxoffice.NewSnowflakeReferences(cfg.NodeID)
	if err != nil {
		return err
	}
	rate, err := boxoffice.ParseRate(cfg.CommissionPercent)
	if err != nil {
		return err
	}
	if cfg.AccessSecret == "" {
		app.Logger.Warn("access token secret not configured; receipt and nomination tokens reset on restart")
	}
	engine, err := boxoffice.NewEngine(boxoffice.EngineConfig{
		Store:           backend.Store,
		AccessSecret:    cfg.AccessSecret,
		Providers:       providers,
		DefaultProvider: boxoffice.ProviderID(cfg.DefaultProvider),
		Checkout: boxoffice.CheckoutSettings{
			ReservationTTL: cfg.ReservationTTL,
			CommissionRate: rate,
			Currency:       cfg.Currency,
			References:     references,
		},
	},
		boxoffice.WithOperationLogger(observability.FanOut{observability.NewZapOperationLogger(app.Logger), metrics}),
		boxoffice.WithNotifier(app.Dispatcher),
		boxoffice.WithTransactionTimeout(cfg.ReserveTimeout),
	)
	if err != nil {
		return err
	}
	app.Engine = engine
	return engine.Router.EnsureProviders(ctx, providers.IDs(), boxoffice.ProviderID(cfg.DefaultProvider))
}

func buildProviders(cfg Config) (*payments.Registry, error) {
	registry, err := payments.NewRegistry()
	if err != nil {
		return nil, err
	}
	if cfg.PaystackSecretKey != "" {
		paystack, err := payments.NewPaystack(payments.PaystackConfig{
			SecretKey: cfg.PaystackSecretKey,
			BaseURL:   cfg.PaystackBaseURL,
			Timeout:   cfg.ProviderTimeout,
		})
		if err != nil {
			return nil, err
		}
		if err := registry.Register(paystack); err != nil {
			return nil, err
		}
	}
	if cfg.SimulatorEnabled {
		simulator, err := payments.NewSimulator(cfg.SimulatorSecret, cfg.SimulatorCheckoutURL)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(simulator); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// Close flushes traces and closes storage.
func (app *App) Close() {
	if app.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.shutdownTracing(ctx); err != nil {
			app.Logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	app.Backend.Close()
}

// Do runs fn while the notification dispatcher is delivering, then drains it.
func (app *App) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Dispatcher.Run(dispatchCtx) }()
	err := fn(ctx)
	stopDispatch()
	if runErr := <-done; runErr != nil && err == nil {
		err = runErr
	}
	return err
}

// Run serves HTTP and gRPC and runs the background workers until ctx is cancelled.
func (app *App) Run(ctx context.Context) error {
	cfg := app.Config
	if err := cfg.ValidateServe(); err != nil {
		return err
	}
	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.SessionSigningKey),
		Issuer:     cfg.SessionIssuer,
		CookieName: cfg.SessionCookieName,
	})
	if err != nil {
		return fmt.Errorf("session validator: %w", err)
	}
	router, err := httpapi.NewRouter(app.Engine, validator, httpapi.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        promhttp.HandlerFor(app.Metrics, promhttp.HandlerOpts{}),
		Ready:          app.Backend.Store.Ping,
	}, app.Logger)
	if err != nil {
		return err
	}
	sweep, err := sweeper.New(app.Engine.Reservations, cfg.SweepInterval, app.Logger)
	if err != nil {
		return err
	}
	monitor, err := grpcserver.NewHealthMonitor(app.Backend.Store, app.Engine.Router, cfg.HealthInterval, app.Logger)
	if err != nil {
		return err
	}

	httpListener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	grpcListener, err := net.Listen("tcp", cfg.GRPCListenAddr)
	if err != nil {
		_ = httpListener.Close()
		return fmt.Errorf("grpc listen: %w", err)
	}
	httpServer := &http.Server{
		Handler:           otelhttp.NewHandler(router, httpSpanName),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	grpcServer := grpcserver.NewServer(monitor)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return app.Dispatcher.Run(groupCtx) })
	group.Go(func() error { return sweep.RunForever(groupCtx) })
	group.Go(func() error { return monitor.Run(groupCtx) })
	group.Go(func() error {
		app.Logger.Info("http server starting", zap.String("listen_addr", httpListener.Addr().String()))
		if serveErr := httpServer.Serve(httpListener); !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}
		return nil
	})
	group.Go(func() error {
		app.Logger.Info("gRPC server starting", zap.String("listen_addr", grpcListener.Addr().String()))
		if serveErr := grpcServer.Serve(grpcListener); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			return serveErr
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		app.Logger.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			app.Logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		grpcServer.GracefulStop()
		return nil
	})
	return group.Wait()
}
