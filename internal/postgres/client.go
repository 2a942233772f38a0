// Package postgres owns the pgx dependency: the pool factory and the few
// pgx types adapters need.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Row and CommandTag are the pgx result types adapters consume.
type (
	Row        = pgx.Row
	Rows       = pgx.Rows
	CommandTag = pgconn.CommandTag
)

// NewCommandTag builds a command tag such as "UPDATE 1", for adapter tests.
var NewCommandTag = pgconn.NewCommandTag

// ErrNoRows is returned by Row.Scan when the query matched nothing.
var ErrNoRows = pgx.ErrNoRows

// Config holds pool parameters.
type Config struct {
	DSN         string
	MaxConns    int32
	MinConns    int32
	PingTimeout time.Duration
}

// Client wraps a pgx pool. Pool satisfies adapter Commander interfaces.
type Client struct {
	Pool *pgxpool.Pool
}

// NewClient parses cfg.DSN, opens the pool and pings it.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	pingCtx := ctx
	if cfg.PingTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.PingTimeout)
		defer cancel()
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Client{Pool: pool}, nil
}

// Close releases every pooled connection.
func (c *Client) Close() {
	c.Pool.Close()
}

// IsNoRows reports whether err means the query matched no row.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
