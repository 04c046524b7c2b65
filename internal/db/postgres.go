package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type poolSettings struct {
	maxConns int32
	appName  string
}

type PoolOption func(*poolSettings)

// WithMaxConns caps the pool size. Values <= 0 keep the default.
func WithMaxConns(n int32) PoolOption {
	return func(s *poolSettings) {
		if n > 0 {
			s.maxConns = n
		}
	}
}

// WithApplicationName tags every connection so pg_stat_activity shows which
// binary (api-server, event-relay, seed) owns it.
func WithApplicationName(name string) PoolOption {
	return func(s *poolSettings) { s.appName = name }
}

// ConnectPostgres opens a pool and verifies it with a ping.
func ConnectPostgres(ctx context.Context, dsn string, opts ...PoolOption) (*pgxpool.Pool, error) {
	settings := poolSettings{maxConns: 20, appName: "clinic-lifecycle"}
	for _, opt := range opts {
		opt(&settings)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	cfg.MaxConns = settings.maxConns
	cfg.MinConns = 1
	cfg.HealthCheckPeriod = 30 * time.Second
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute
	if settings.appName != "" {
		cfg.ConnConfig.RuntimeParams["application_name"] = settings.appName
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}
