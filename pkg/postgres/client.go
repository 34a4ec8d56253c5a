// Package postgres wraps a lib/pq connection pool and owns the schema of the
// corpus, duplicate-pair and query analytics tables.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/health"
	_ "github.com/lib/pq"
)

const connectTimeout = 5 * time.Second

// Migration is one forward-only schema step.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrations are applied in Version order by EnsureSchema.
var Migrations = []Migration{
	{1, "documents", `
CREATE TABLE IF NOT EXISTS documents (
    id   TEXT PRIMARY KEY,
    body TEXT NOT NULL
)`},
	{2, "duplicate_pairs", `
CREATE TABLE IF NOT EXISTS duplicate_pairs (
    run_id     TEXT             NOT NULL,
    handle_a   BIGINT           NOT NULL,
    handle_b   BIGINT           NOT NULL,
    id_a       TEXT             NOT NULL,
    id_b       TEXT             NOT NULL,
    distance   DOUBLE PRECISION NOT NULL,
    created_at TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
    PRIMARY KEY (run_id, handle_a, handle_b)
);
CREATE INDEX IF NOT EXISTS duplicate_pairs_id_a ON duplicate_pairs (id_a);
CREATE INDEX IF NOT EXISTS duplicate_pairs_id_b ON duplicate_pairs (id_b)`},
	{3, "analytics_snapshots", `
CREATE TABLE IF NOT EXISTS analytics_snapshots (
    id            BIGSERIAL PRIMARY KEY,
    source        TEXT             NOT NULL DEFAULT '',
    total_queries BIGINT           NOT NULL DEFAULT 0,
    match_rate    DOUBLE PRECISION NOT NULL DEFAULT 0,
    data          JSONB            NOT NULL,
    captured_at   TIMESTAMPTZ      NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS analytics_snapshots_captured_at ON analytics_snapshots (captured_at)`},
}

// Client is a pooled connection to the platform database.
type Client struct {
	DB     *sql.DB
	cfg    config.PostgresConfig
	logger *slog.Logger
}

// New opens the pool and verifies it with a ping.
func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Client{
		DB:     db,
		cfg:    cfg,
		logger: slog.Default().With("component", "postgres", "database", cfg.Database),
	}, nil
}

// EnsureSchema applies every migration newer than the recorded version in
// one transaction.
func (c *Client) EnsureSchema(ctx context.Context) error {
	return c.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    INT         PRIMARY KEY,
    name       TEXT        NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`); err != nil {
			return fmt.Errorf("creating schema_migrations: %w", err)
		}
		var current int
		if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
		for _, m := range Pending(current) {
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return fmt.Errorf("applying migration %d (%s): %w", m.Version, m.Name, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name,
			); err != nil {
				return fmt.Errorf("recording migration %d: %w", m.Version, err)
			}
			c.logger.Info("migration applied", "version", m.Version, "name", m.Name)
		}
		return nil
	})
}

// Pending returns the migrations above version, in order.
func Pending(version int) []Migration {
	var out []Migration
	for _, m := range Migrations {
		if m.Version > version {
			out = append(out, m)
		}
	}
	return out
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Check is a health probe that also reports pool usage.
func (c *Client) Check(ctx context.Context) health.ComponentHealth {
	if err := c.Ping(ctx); err != nil {
		return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
	}
	st := c.DB.Stats()
	return health.ComponentHealth{
		Status:  health.StatusUp,
		Message: fmt.Sprintf("%d/%d connections in use", st.InUse, st.MaxOpenConnections),
	}
}

// Close closes the pool.
func (c *Client) Close() error {
	return c.DB.Close()
}

// InTx runs fn in a transaction, committing on nil and rolling back on an
// error or panic.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back after %w: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
