package daemon

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/MarkoPoloResearchLab/boxoffice/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/boxoffice/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/boxoffice/pkg/boxoffice"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	driverPostgres = "postgres"
	driverSQLite   = "sqlite"
)

// EngineStore is everything the daemon needs from a storage backend.
type EngineStore interface {
	boxoffice.Store
	boxoffice.CatalogStore
	Ping(ctx context.Context) error
}

// Backend is an opened storage backend with its schema in place.
type Backend struct {
	Store  EngineStore
	Driver string
	close  func()
}

// Close releases the backend's connections.
func (backend *Backend) Close() {
	if backend != nil && backend.close != nil {
		backend.close()
	}
}

// OpenBackend connects to the configured database, prepares its schema and returns a store.
func OpenBackend(ctx context.Context, cfg Config, logger *zap.Logger) (*Backend, error) {
	driver, sqlitePath, err := resolveDriver(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if driver == driverPostgres {
		if err := migratePostgres(ctx, cfg.DatabaseURL, logger); err != nil {
			return nil, err
		}
	}
	if cfg.StoreDriver == StoreDriverPGX {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("pgx pool: %w", err)
		}
		return &Backend{Store: pgstore.New(pool), Driver: driver, close: pool.Close}, nil
	}

	var db *gorm.DB
	switch driver {
	case driverPostgres:
		db, err = gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	case driverSQLite:
		db, err = gorm.Open(sqlite.Open(sqlitePath), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if driver == driverSQLite {
		// SQLite has a single writer.
		sqlDB.SetMaxOpenConns(1)
		if err := gormstore.AutoMigrate(db); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}
	return &Backend{
		Store:  gormstore.New(db),
		Driver: driver,
		close:  func() { _ = sqlDB.Close() },
	}, nil
}

// Migrate prepares the schema without keeping a store open.
func Migrate(ctx context.Context, cfg Config, logger *zap.Logger) error {
	backend, err := OpenBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	backend.Close()
	return nil
}

func migratePostgres(ctx context.Context, dsn string, logger *zap.Logger) error {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("migration pool: %w", err)
	}
	defer pool.Close()
	applied, err := pgstore.Migrate(ctx, pool)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	for _, name := range applied {
		logger.Info("applied migration", zap.String("name", name))
	}
	return nil
}

func isPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func resolveDriver(dsn string) (string, string, error) {
	if isPostgresURL(dsn) {
		return driverPostgres, "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "boxoffice.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return driverSQLite, sqlitePath, err
	}
	sqlitePath, err := normalizeSQLitePath(dsn)
	return driverSQLite, sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}
