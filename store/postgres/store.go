// Package postgres implements store.Store on PostgreSQL via the bun ORM.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/quantfold/conductor/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a bun-backed store.Store using the PostgreSQL dialect.
// The caller owns the *bun.DB lifecycle; Store never closes it.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New wraps an existing bun DB.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects with a postgres:// DSN and wraps the connection in bun.
func Open(dsn string, opts ...Option) (*Store, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	return New(db, opts...), nil
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB { return s.db }

// Migrate creates the schema. Idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conductor_settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conductor_job_archive (
			id                  TEXT PRIMARY KEY,
			type                TEXT NOT NULL,
			status              TEXT NOT NULL,
			scheduled_for       TIMESTAMPTZ NOT NULL,
			created_at          TIMESTAMPTZ NOT NULL,
			started_at          TIMESTAMPTZ,
			finished_at         TIMESTAMPTZ,
			attempts            INTEGER NOT NULL DEFAULT 0,
			max_retries         INTEGER NOT NULL DEFAULT 0,
			description         TEXT NOT NULL DEFAULT '',
			metadata            JSONB,
			result              JSONB,
			last_error          TEXT NOT NULL DEFAULT '',
			cancel_reason       TEXT NOT NULL DEFAULT '',
			cancel_requested_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_job_archive_finished
			ON conductor_job_archive (finished_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_job_archive_type_status
			ON conductor_job_archive (type, status)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("conductor/postgres: migrate: %w", err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op because the caller owns the *bun.DB lifecycle.
func (s *Store) Close() error { return nil }

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isDuplicateKey checks for a Postgres unique constraint violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "duplicate key value")
}
