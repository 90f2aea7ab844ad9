package daemon

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/internal/payments"
	"github.com/MarkoPoloResearchLab/boxoffice/pkg/boxoffice"
)

const (
	// StoreDriverGORM serves the engine through GORM (SQLite or PostgreSQL).
	StoreDriverGORM = "gorm"
	// StoreDriverPGX serves the engine through pgx with raw SQL (PostgreSQL only).
	StoreDriverPGX = "pgx"

	defaultDatabaseURL       = "sqlite:///tmp/boxoffice.db"
	defaultListenAddr        = ":8080"
	defaultGRPCListenAddr    = ":7000"
	defaultReservationTTL    = boxoffice.DefaultReservationTTL
	defaultReserveTimeout    = 30 * time.Second
	defaultProviderTimeout   = 10 * time.Second
	defaultSweepInterval     = time.Minute
	defaultHealthInterval    = 15 * time.Second
	defaultCommissionPercent = "10"
	defaultCurrency          = "GHS"
	defaultSessionIssuer     = "tauth"
	defaultSessionCookie     = "app_session"
	defaultServiceName       = "boxofficed"
	maxSnowflakeNode         = 1023
)

// Config aggregates runtime settings for the boxoffice daemon.
type Config struct {
	DatabaseURL    string
	StoreDriver    string
	ListenAddr     string
	GRPCListenAddr string

	ReservationTTL    time.Duration
	ReserveTimeout    time.Duration
	ProviderTimeout   time.Duration
	SweepInterval     time.Duration
	HealthInterval    time.Duration
	CommissionPercent string
	Currency          string
	DefaultProvider   string
	NodeID            int64

	PaystackSecretKey    string
	PaystackBaseURL      string
	SimulatorEnabled     bool
	SimulatorSecret      string
	SimulatorCheckoutURL string

	AlertWebhookURL   string
	AccessSecret      string
	AllowedOrigins    []string
	SessionSigningKey string
	SessionIssuer     string
	SessionCookieName string

	TracingEndpoint    string
	TracingInsecure    bool
	TracingSampleRatio float64
	Version            string
}

// Validate fills defaults and rejects settings the daemon cannot run with.
func (cfg *Config) Validate() error {
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	cfg.StoreDriver = strings.ToLower(defaultIfEmpty(cfg.StoreDriver, StoreDriverGORM))
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.GRPCListenAddr = defaultIfEmpty(cfg.GRPCListenAddr, defaultGRPCListenAddr)
	cfg.ReservationTTL = defaultIfZero(cfg.ReservationTTL, defaultReservationTTL)
	cfg.ReserveTimeout = defaultIfZero(cfg.ReserveTimeout, defaultReserveTimeout)
	cfg.ProviderTimeout = defaultIfZero(cfg.ProviderTimeout, defaultProviderTimeout)
	cfg.SweepInterval = defaultIfZero(cfg.SweepInterval, defaultSweepInterval)
	cfg.HealthInterval = defaultIfZero(cfg.HealthInterval, defaultHealthInterval)
	cfg.CommissionPercent = defaultIfEmpty(cfg.CommissionPercent, defaultCommissionPercent)
	cfg.Currency = strings.ToUpper(defaultIfEmpty(cfg.Currency, defaultCurrency))
	cfg.DefaultProvider = strings.ToLower(defaultIfEmpty(cfg.DefaultProvider, boxoffice.DefaultProvider.String()))
	cfg.SessionIssuer = defaultIfEmpty(cfg.SessionIssuer, defaultSessionIssuer)
	cfg.SessionCookieName = defaultIfEmpty(cfg.SessionCookieName, defaultSessionCookie)

	if cfg.StoreDriver != StoreDriverGORM && cfg.StoreDriver != StoreDriverPGX {
		return fmt.Errorf("store driver %q is not one of %s, %s", cfg.StoreDriver, StoreDriverGORM, StoreDriverPGX)
	}
	if cfg.StoreDriver == StoreDriverPGX && !isPostgresURL(cfg.DatabaseURL) {
		return fmt.Errorf("store driver %s requires a postgres database url", StoreDriverPGX)
	}
	if _, err := boxoffice.ParseRate(cfg.CommissionPercent); err != nil {
		return fmt.Errorf("commission percent: %w", err)
	}
	if cfg.NodeID < 0 || cfg.NodeID > maxSnowflakeNode {
		return fmt.Errorf("node id must be between 0 and %d", maxSnowflakeNode)
	}
	if cfg.TracingSampleRatio < 0 || cfg.TracingSampleRatio > 1 {
		return fmt.Errorf("tracing sample ratio must be between 0 and 1")
	}
	if cfg.SimulatorEnabled && strings.TrimSpace(cfg.SimulatorSecret) == "" {
		return fmt.Errorf("simulator secret is required when the simulator is enabled")
	}
	configured := cfg.providerIDs()
	if len(configured) == 0 {
		return fmt.Errorf("no payment provider configured: set a paystack secret key or enable the simulator")
	}
	if !containsProvider(configured, boxoffice.ProviderID(cfg.DefaultProvider)) {
		return fmt.Errorf("default provider %q is not configured", cfg.DefaultProvider)
	}
	if cfg.AlertWebhookURL != "" {
		parsed, err := url.Parse(cfg.AlertWebhookURL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return fmt.Errorf("alert webhook url must be an http(s) url")
		}
	}
	return nil
}

// ValidateServe checks the settings only the network servers need.
func (cfg *Config) ValidateServe() error {
	if len(cfg.SessionSigningKey) == 0 {
		return fmt.Errorf("session signing key is required")
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("listen addr is required")
	}
	if strings.TrimSpace(cfg.GRPCListenAddr) == "" {
		return fmt.Errorf("grpc listen addr is required")
	}
	return nil
}

func (cfg *Config) providerIDs() []boxoffice.ProviderID {
	var ids []boxoffice.ProviderID
	if strings.TrimSpace(cfg.PaystackSecretKey) != "" {
		ids = append(ids, payments.PaystackID)
	}
	if cfg.SimulatorEnabled {
		ids = append(ids, payments.SimulatorID)
	}
	return ids
}

func containsProvider(ids []boxoffice.ProviderID, target boxoffice.ProviderID) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

func defaultIfZero(value time.Duration, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
