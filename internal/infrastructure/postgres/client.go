package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type ClientConfig struct {
	DSN             string
	ApplicationName string
	MaxConns        int32
	MaxConnIdleTime time.Duration

	// StatementTimeout caps every statement, including the bulk copy run
	// while seeding. Zero keeps the server default.
	StatementTimeout time.Duration
}

// DefaultClientConfig sizes the pool for a catalog that is read once at
// startup and rewritten only when seeding.
func DefaultClientConfig(dsn string) ClientConfig {
	return ClientConfig{
		DSN:              dsn,
		ApplicationName:  "countrytube",
		MaxConns:         4,
		MaxConnIdleTime:  5 * time.Minute,
		StatementTimeout: time.Minute,
	}
}

// Client owns the connection pool backing the catalog repository.
type Client struct {
	pool *pgxpool.Pool
}

// NewClient opens the pool and pings the server.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Client{pool: pool}, nil
}

func poolConfig(cfg ClientConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	pc.MaxConns = cfg.MaxConns
	pc.MinConns = 0
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime

	params := pc.ConnConfig.RuntimeParams
	if cfg.ApplicationName != "" {
		params["application_name"] = cfg.ApplicationName
	}
	if cfg.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(cfg.StatementTimeout.Milliseconds(), 10)
	}
	return pc, nil
}

func (c *Client) CatalogRepository() *CatalogRepository {
	return NewCatalogRepository(c.pool)
}

// Ping is registered as the postgres health check.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

func (c *Client) Close() {
	c.pool.Close()
}
