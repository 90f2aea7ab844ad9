package pgstore

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/MarkoPoloResearchLab/boxoffice/internal/store/pgstore/migrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	migrationLockKey    int64 = 0x626f786f6666
	migrationUpMarker         = "-- +migrate Up"
	migrationDownMarker       = "-- +migrate Down"
	sqlCreateMigrations       = `create table if not exists schema_migrations (name text primary key, applied_at timestamptz not null default now())`
	sqlMigrationApplied       = `select exists(select 1 from schema_migrations where name = $1)`
	sqlRecordMigration        = `insert into schema_migrations(name) values($1)`
	sqlAdvisoryLock           = `select pg_advisory_lock($1)`
	sqlAdvisoryUnlock         = `select pg_advisory_unlock($1)`
)

// Migrate applies every embedded migration that has not run yet. Concurrent callers
// serialize on a session advisory lock so only one of them applies a given file.
func Migrate(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	return migrate(ctx, pool, migrations.FS)
}

func migrate(ctx context.Context, pool *pgxpool.Pool, migrationFS fs.FS) ([]string, error) {
	files, err := migrationFiles(migrationFS)
	if err != nil {
		return nil, err
	}
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Release()
	if _, err := conn.Exec(ctx, sqlAdvisoryLock, migrationLockKey); err != nil {
		return nil, fmt.Errorf("migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(context.WithoutCancel(ctx), sqlAdvisoryUnlock, migrationLockKey)
	}()
	if _, err := conn.Exec(ctx, sqlCreateMigrations); err != nil {
		return nil, fmt.Errorf("ensure migration table: %w", err)
	}

	var applied []string
	for _, name := range files {
		var done bool
		if err := conn.QueryRow(ctx, sqlMigrationApplied, name).Scan(&done); err != nil {
			return applied, fmt.Errorf("check migration %s: %w", name, err)
		}
		if done {
			continue
		}
		content, err := fs.ReadFile(migrationFS, name)
		if err != nil {
			return applied, fmt.Errorf("read migration %s: %w", name, err)
		}
		err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, upSection(string(content))); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, sqlRecordMigration, name)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("apply migration %s: %w", name, err)
		}
		applied = append(applied, name)
	}
	return applied, nil
}

func migrationFiles(migrationFS fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// upSection returns the SQL between the Up and Down markers, or the whole file without markers.
func upSection(content string) string {
	start := strings.Index(content, migrationUpMarker)
	if start == -1 {
		return content
	}
	body := content[start+len(migrationUpMarker):]
	if end := strings.Index(body, migrationDownMarker); end != -1 {
		return body[:end]
	}
	return body
}
