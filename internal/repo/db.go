package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool открывает пул соединений и проверяет доступность БД.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, fmt.Errorf("parse dsn: %w", ErrNoDSN)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 4
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// schema — таблица истории запусков.
const schema = `
CREATE TABLE IF NOT EXISTS workflow_runs (
	id          uuid PRIMARY KEY,
	status      text        NOT NULL,
	run_ts      text        NOT NULL,
	work_dir    text        NOT NULL,
	steps       jsonb       NOT NULL DEFAULT '[]',
	outcome     jsonb       NOT NULL DEFAULT '{}',
	error       text,
	started_at  timestamptz NOT NULL,
	finished_at timestamptz
);
CREATE INDEX IF NOT EXISTS workflow_runs_started_at_idx ON workflow_runs (started_at DESC);
`

// EnsureSchema создаёт таблицы, если их нет.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
