// Package postgres opens the audit database through the pgx database/sql
// driver and applies the schema.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const driverName = "pgx"

// Option tunes the connection pool.
type Option func(*sql.DB)

// WithPool sets pool limits; zero values keep database/sql defaults.
func WithPool(maxOpen, maxIdle int, maxLifetime time.Duration) Option {
	return func(db *sql.DB) {
		if maxOpen > 0 {
			db.SetMaxOpenConns(maxOpen)
		}
		if maxIdle > 0 {
			db.SetMaxIdleConns(maxIdle)
		}
		if maxLifetime > 0 {
			db.SetConnMaxLifetime(maxLifetime)
		}
	}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, opts ...Option) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	for _, opt := range opts {
		opt(db)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS audit_events (
		id             UUID PRIMARY KEY,
		occurred_at    TIMESTAMPTZ NOT NULL,
		action         TEXT NOT NULL,
		subject        TEXT NOT NULL,
		topic_id       TEXT NOT NULL,
		transaction_id TEXT NOT NULL DEFAULT '',
		outcome        TEXT NOT NULL,
		detail         TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS audit_events_subject_idx ON audit_events (subject, occurred_at)`,
}

// Migrate applies the schema idempotently.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
