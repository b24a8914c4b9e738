// Package postgres implements the state-persistence collaborators using
// PostgreSQL via pgx. Persistence is only needed for cross-restart
// durability; the engine is correct without it within a single run.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ClientConfig holds connection parameters for the PostgreSQL client.
type ClientConfig struct {
	DSN      string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN builds a PostgreSQL connection string from the given config.
func DSN(cfg ClientConfig) string {
	if strings.TrimSpace(cfg.DSN) != "" {
		return cfg.DSN
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, port, cfg.Database, sslMode,
	)
}

// Client wraps a pgxpool.Pool and manages the schema.
type Client struct {
	pool *pgxpool.Pool
}

// New creates a new Client with a connection pool configured from cfg.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	poolCfg, err := pgxpool.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = int32(cfg.MinConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Client{pool: pool}, nil
}

// schema is applied idempotently at startup.
const schema = `
CREATE TABLE IF NOT EXISTS leverage_positions (
	id                TEXT PRIMARY KEY,
	agent_id          TEXT NOT NULL,
	asset             TEXT NOT NULL,
	side              TEXT NOT NULL,
	size              DOUBLE PRECISION NOT NULL,
	entry_price       DOUBLE PRECISION NOT NULL,
	current_price     DOUBLE PRECISION NOT NULL,
	leverage          DOUBLE PRECISION NOT NULL,
	margin_used       DOUBLE PRECISION NOT NULL,
	unrealized_pnl    DOUBLE PRECISION NOT NULL DEFAULT 0,
	liquidation_price DOUBLE PRECISION NOT NULL,
	margin_status     TEXT NOT NULL,
	status            TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL,
	closed_at         TIMESTAMPTZ,
	exit_price        DOUBLE PRECISION
);
CREATE INDEX IF NOT EXISTS idx_positions_agent_open
	ON leverage_positions (agent_id) WHERE status = 'open';

CREATE TABLE IF NOT EXISTS arb_executions (
	id             TEXT PRIMARY KEY,
	opportunity_id TEXT NOT NULL,
	agent_id       TEXT NOT NULL,
	status         TEXT NOT NULL,
	actual_profit  DOUBLE PRECISION NOT NULL DEFAULT 0,
	gas_cost       DOUBLE PRECISION NOT NULL DEFAULT 0,
	slippage       DOUBLE PRECISION NOT NULL DEFAULT 0,
	legs           JSONB NOT NULL DEFAULT '[]',
	error          TEXT,
	started_at     TIMESTAMPTZ NOT NULL,
	completed_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_executions_started_at
	ON arb_executions (started_at);
`

// EnsureSchema creates the tables when they do not exist.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}

// Pool returns the underlying connection pool for the store types.
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// Close closes the connection pool.
func (c *Client) Close() {
	c.pool.Close()
}
