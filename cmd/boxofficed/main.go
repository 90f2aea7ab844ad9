package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/internal/daemon"
	"github.com/MarkoPoloResearchLab/boxoffice/pkg/boxoffice"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	flagConfigFile           = "config"
	flagDatabaseURL          = "database-url"
	flagStoreDriver          = "store-driver"
	flagListenAddr           = "listen-addr"
	flagGRPCListenAddr       = "grpc-listen-addr"
	flagReservationTTL       = "reservation-ttl"
	flagReserveTimeout       = "reserve-timeout"
	flagProviderTimeout      = "provider-timeout"
	flagSweepInterval        = "sweep-interval"
	flagHealthInterval       = "health-interval"
	flagCommissionPercent    = "commission-percent"
	flagCurrency             = "currency"
	flagDefaultProvider      = "default-provider"
	flagNodeID               = "node-id"
	flagPaystackSecretKey    = "paystack-secret-key"
	flagPaystackBaseURL      = "paystack-base-url"
	flagSimulatorEnabled     = "simulator-enabled"
	flagSimulatorSecret      = "simulator-secret"
	flagSimulatorCheckoutURL = "simulator-checkout-url"
	flagAlertWebhookURL      = "alert-webhook-url"
	flagAccessSecret         = "access-token-secret"
	flagAllowedOrigins       = "allowed-origins"
	flagSessionSigningKey    = "session-signing-key"
	flagSessionIssuer        = "session-issuer"
	flagSessionCookieName    = "session-cookie-name"
	flagTracingEndpoint      = "tracing-endpoint"
	flagTracingInsecure      = "tracing-insecure"
	flagTracingSampleRatio   = "tracing-sample-ratio"
	envPrefix                = "BOXOFFICE"
)

var version = "dev"

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "boxofficed: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &daemon.Config{}
	cmd := &cobra.Command{
		Use:           "boxofficed",
		Short:         "Ticket and vote sales engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(flagConfigFile, "", "optional YAML/JSON/TOML config file")
	flags.String(flagDatabaseURL, "", "postgres:// URL, sqlite:// URL or SQLite file path")
	flags.String(flagStoreDriver, daemon.StoreDriverGORM, "store implementation: gorm or pgx")
	flags.String(flagListenAddr, "", "HTTP listen address")
	flags.String(flagGRPCListenAddr, "", "gRPC health listen address")
	flags.Duration(flagReservationTTL, 0, "how long a checkout holds inventory")
	flags.Duration(flagReserveTimeout, 0, "bound on one reservation or fulfillment transaction")
	flags.Duration(flagProviderTimeout, 0, "payment provider and alert webhook HTTP timeout")
	flags.Duration(flagSweepInterval, 0, "interval between stale reservation sweeps")
	flags.Duration(flagHealthInterval, 0, "interval between gRPC health probes")
	flags.String(flagCommissionPercent, "", "platform commission percent (0-100)")
	flags.String(flagCurrency, "", "ISO currency code for new transactions")
	flags.String(flagDefaultProvider, "", "provider used when routing has no healthy choice")
	flags.Int64(flagNodeID, 0, "snowflake node id for payment references (0-1023)")
	flags.String(flagPaystackSecretKey, "", "Paystack secret key")
	flags.String(flagPaystackBaseURL, "", "Paystack API base URL")
	flags.Bool(flagSimulatorEnabled, false, "register the in-process payment simulator")
	flags.String(flagSimulatorSecret, "", "simulator webhook signing secret")
	flags.String(flagSimulatorCheckoutURL, "", "simulator checkout page base URL")
	flags.String(flagAlertWebhookURL, "", "operator alert webhook URL")
	flags.String(flagAccessSecret, "", "secret signing receipt and nomination access tokens")
	flags.String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	flags.String(flagSessionSigningKey, "", "TAuth session signing key")
	flags.String(flagSessionIssuer, "", "expected session issuer")
	flags.String(flagSessionCookieName, "", "session cookie name")
	flags.String(flagTracingEndpoint, "", "OTLP/HTTP trace collector host:port (tracing disabled when empty)")
	flags.Bool(flagTracingInsecure, false, "send traces without TLS")
	flags.Float64(flagTracingSampleRatio, 0, "trace sampling ratio (0-1)")

	cmd.AddCommand(
		newServeCommand(cfg),
		newMigrateCommand(cfg),
		newSweepCommand(cfg),
		newFulfillCommand(cfg),
		newSetPrimaryCommand(cfg),
		newCatalogCommand(cfg),
	)
	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *daemon.Config) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if configFile := strings.TrimSpace(v.GetString(flagConfigFile)); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
	}

	*cfg = daemon.Config{
		DatabaseURL:          strings.TrimSpace(v.GetString(flagDatabaseURL)),
		StoreDriver:          strings.TrimSpace(v.GetString(flagStoreDriver)),
		ListenAddr:           strings.TrimSpace(v.GetString(flagListenAddr)),
		GRPCListenAddr:       strings.TrimSpace(v.GetString(flagGRPCListenAddr)),
		ReservationTTL:       v.GetDuration(flagReservationTTL),
		ReserveTimeout:       v.GetDuration(flagReserveTimeout),
		ProviderTimeout:      v.GetDuration(flagProviderTimeout),
		SweepInterval:        v.GetDuration(flagSweepInterval),
		HealthInterval:       v.GetDuration(flagHealthInterval),
		CommissionPercent:    strings.TrimSpace(v.GetString(flagCommissionPercent)),
		Currency:             strings.TrimSpace(v.GetString(flagCurrency)),
		DefaultProvider:      strings.TrimSpace(v.GetString(flagDefaultProvider)),
		NodeID:               v.GetInt64(flagNodeID),
		PaystackSecretKey:    strings.TrimSpace(v.GetString(flagPaystackSecretKey)),
		PaystackBaseURL:      strings.TrimSpace(v.GetString(flagPaystackBaseURL)),
		SimulatorEnabled:     v.GetBool(flagSimulatorEnabled),
		SimulatorSecret:      v.GetString(flagSimulatorSecret),
		SimulatorCheckoutURL: strings.TrimSpace(v.GetString(flagSimulatorCheckoutURL)),
		AlertWebhookURL:      strings.TrimSpace(v.GetString(flagAlertWebhookURL)),
		AccessSecret:         v.GetString(flagAccessSecret),
		AllowedOrigins:       daemon.ParseAllowedOrigins(v.GetString(flagAllowedOrigins)),
		SessionSigningKey:    v.GetString(flagSessionSigningKey),
		SessionIssuer:        strings.TrimSpace(v.GetString(flagSessionIssuer)),
		SessionCookieName:    strings.TrimSpace(v.GetString(flagSessionCookieName)),
		TracingEndpoint:      strings.TrimSpace(v.GetString(flagTracingEndpoint)),
		TracingInsecure:      v.GetBool(flagTracingInsecure),
		TracingSampleRatio:   v.GetFloat64(flagTracingSampleRatio),
		Version:              version,
	}
	return cfg.Validate()
}

// withApp builds the engine, runs fn with notifications flowing, and tears everything down.
func withApp(cmd *cobra.Command, cfg *daemon.Config, fn func(ctx context.Context, app *daemon.App) error) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	app, err := daemon.New(ctx, *cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, app)
}

func runServe(cmd *cobra.Command, cfg *daemon.Config) error {
	return withApp(cmd, cfg, func(ctx context.Context, app *daemon.App) error {
		return app.Run(ctx)
	})
}

func newServeCommand(cfg *daemon.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve HTTP and gRPC health and run background workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, cfg)
		},
	}
}

func newMigrateCommand(cfg *daemon.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewProduction()
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer func() { _ = logger.Sync() }()
			if err := daemon.Migrate(cmd.Context(), *cfg, logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newSweepCommand(cfg *daemon.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire stale reservations once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, cfg, func(ctx context.Context, app *daemon.App) error {
				return app.Do(ctx, func(ctx context.Context) error {
					expired, err := app.Engine.Reservations.ExpireStale(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "expired %d reservations\n", expired)
					return nil
				})
			})
		},
	}
}

func newFulfillCommand(cfg *daemon.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "fulfill <reference>",
		Short: "Fulfill a successful transaction (idempotent)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reference, err := boxoffice.NewReference(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, cfg, func(ctx context.Context, app *daemon.App) error {
				return app.Do(ctx, func(ctx context.Context) error {
					result, err := app.Engine.Fulfillment.Fulfill(ctx, reference)
					if err != nil {
						return err
					}
					if result.AlreadyProcessed {
						fmt.Fprintf(cmd.OutOrStdout(), "%s already fulfilled\n", reference)
					}
					for _, code := range result.Codes() {
						fmt.Fprintln(cmd.OutOrStdout(), code)
					}
					return nil
				})
			})
		},
	}
}

func newSetPrimaryCommand(cfg *daemon.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "set-primary <provider>",
		Short: "Enable one payment provider and disable the rest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := boxoffice.NewProviderID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, cfg, func(ctx context.Context, app *daemon.App) error {
				if err := app.Engine.Router.SetPrimary(ctx, provider); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "primary provider is now %s\n", provider)
				return nil
			})
		},
	}
}

func newCatalogCommand(cfg *daemon.Config) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage organizers, events and inventory units",
	}
	catalogCmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Upsert a YAML or JSON catalog document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			document, err := loadCatalog(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, cfg, func(ctx context.Context, app *daemon.App) error {
				summary, err := boxoffice.ImportCatalog(ctx, app.Backend.Store, document)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d organizers, %d events, %d units\n", summary.Organizers, summary.Events, summary.Units)
				return nil
			})
		},
	})
	return catalogCmd
}

func loadCatalog(path string) (boxoffice.CatalogDocument, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return boxoffice.CatalogDocument{}, fmt.Errorf("read catalog: %w", err)
	}
	var document boxoffice.CatalogDocument
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeHookFunc(time.RFC3339),
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&document, decodeHook); err != nil {
		return boxoffice.CatalogDocument{}, fmt.Errorf("decode catalog: %w", err)
	}
	return document, nil
}
