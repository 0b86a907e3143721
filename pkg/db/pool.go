// Package db wraps the pgx connection pool with the transaction semantics the
// dispatch engine needs: access-mode selection, prepared-statement opt-out,
// explicit annulment, and the retry/reconnect machinery used when the
// database becomes unreachable.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgbridge-dev/pgbridge/pkg/config"
)

// Pool owns the shared pgx connection pool.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPool creates a connection pool from the database configuration. It does
// not require the database to be reachable: the first request (or the
// reconnector) surfaces connectivity problems instead, so the gateway can
// start before its database does.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	return &Pool{pool: pool}, nil
}

// Raw exposes the underlying pgxpool for collaborators that manage their own
// connections (schema loader, notification listener).
func (p *Pool) Raw() *pgxpool.Pool { return p.pool }

// Ping verifies connectivity.
func (p *Pool) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

// Close releases the pool.
func (p *Pool) Close() { p.pool.Close() }
