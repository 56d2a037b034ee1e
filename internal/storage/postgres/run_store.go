// Package postgres persists export run bookkeeping in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/catalog-exporter/internal/store"
)

// Config controls the connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// pool is the subset of *pgxpool.Pool used by RunStore; pgxmock satisfies it.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// RunStore implements store.RunRepository on the export_runs table.
type RunStore struct {
	pool pool
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS export_runs (
	id              uuid PRIMARY KEY,
	started_at      timestamptz NOT NULL,
	finished_at     timestamptz,
	updated_at      timestamptz NOT NULL,
	status          text NOT NULL,
	error_message   text,
	found           bigint NOT NULL DEFAULT 0,
	not_listed      bigint NOT NULL DEFAULT 0,
	failed          bigint NOT NULL DEFAULT 0,
	duplicates      bigint NOT NULL DEFAULT 0,
	degraded_fields bigint NOT NULL DEFAULT 0
);`

const runColumns = `id, started_at, finished_at, updated_at, status, error_message,
	found, not_listed, failed, duplicates, degraded_fields`

// NewRunStore connects to Postgres and ensures the export_runs table exists.
func NewRunStore(ctx context.Context, cfg Config) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
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
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &RunStore{pool: p}
	if err := s.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewRunStoreWithPool wraps an existing pool (primarily for testing).
func NewRunStoreWithPool(p pool) (*RunStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	return &RunStore{pool: p}, nil
}

// Close closes the underlying pool.
func (s *RunStore) Close() {
	s.pool.Close()
}

// EnsureSchema creates export_runs when missing.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create export_runs: %w", err)
	}
	return nil
}

// StartRun inserts the run in the running state.
func (s *RunStore) StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time) error {
	const query = `
		INSERT INTO export_runs (id, started_at, updated_at, status)
		VALUES ($1, $2, $2, $3)
		ON CONFLICT (id) DO NOTHING;`
	if _, err := s.pool.Exec(ctx, query, runID, startedAt, store.RunRunning); err != nil {
		return fmt.Errorf("insert export run: %w", err)
	}
	return nil
}

// AddTaskCounts increments the run's outcome counters.
func (s *RunStore) AddTaskCounts(ctx context.Context, runID uuid.UUID, delta store.TaskCounts, at time.Time) error {
	const query = `
		UPDATE export_runs
		SET found = found + $1,
			not_listed = not_listed + $2,
			failed = failed + $3,
			duplicates = duplicates + $4,
			degraded_fields = degraded_fields + $5,
			updated_at = GREATEST(updated_at, $6)
		WHERE id = $7;`
	tag, err := s.pool.Exec(ctx, query,
		delta.Found,
		delta.NotListed,
		delta.Failed,
		delta.Duplicates,
		delta.DegradedFields,
		at,
		runID,
	)
	if err != nil {
		return fmt.Errorf("update export run counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update export run counters %s: %w", runID, store.ErrNotFound)
	}
	return nil
}

// CompleteRun records the final status.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	const query = `
		UPDATE export_runs
		SET finished_at = $1, updated_at = $1, status = $2, error_message = $3
		WHERE id = $4;`
	if _, err := s.pool.Exec(ctx, query, finishedAt, status, errMsg, runID); err != nil {
		return fmt.Errorf("complete export run: %w", err)
	}
	return nil
}

// GetRun loads a single run.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := `SELECT ` + runColumns + ` FROM export_runs WHERE id = $1;`
	run, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("get export run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	query := `SELECT ` + runColumns + `
		FROM export_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list export runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan export run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate export runs: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (store.Run, error) {
	var run store.Run
	err := row.Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.UpdatedAt,
		&run.Status,
		&run.ErrorMessage,
		&run.Counts.Found,
		&run.Counts.NotListed,
		&run.Counts.Failed,
		&run.Counts.Duplicates,
		&run.Counts.DegradedFields,
	)
	if err != nil {
		return store.Run{}, err
	}
	return run, nil
}
