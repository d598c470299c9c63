// Package postgres mirrors crawl checkpoints into Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// DefaultTable holds one row per (run, target position).
const DefaultTable = "citation_checkpoints"

// Config controls the Postgres connection pool used for checkpoint rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// CheckpointStore implements crawler.ResultSink for one run.
type CheckpointStore struct {
	pool  pool
	table string
	runID string
	clock crawler.Clock
}

// NewCheckpointStore connects to Postgres and ensures the table exists.
func NewCheckpointStore(ctx context.Context, cfg Config, runID string, clock crawler.Clock) (*CheckpointStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.postgres_dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewCheckpointStoreWithPool(p, cfg.Table, runID, clock)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewCheckpointStoreWithPool builds a store on an existing pool.
func NewCheckpointStoreWithPool(p pool, table, runID string, clock crawler.Clock) (*CheckpointStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &CheckpointStore{pool: p, table: table, runID: runID, clock: clock}, nil
}

// EnsureSchema creates the checkpoint table when missing.
func (s *CheckpointStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	title TEXT NOT NULL,
	cited_by_count INTEGER NOT NULL,
	citers JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (run_id, position)
)`, s.table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// WriteCheckpoint replaces the run's rows with records in one transaction.
func (s *CheckpointStore) WriteCheckpoint(ctx context.Context, records []crawler.CitationRecord) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin checkpoint: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	upsert := fmt.Sprintf(`
INSERT INTO %s (run_id, position, title, cited_by_count, citers, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (run_id, position) DO UPDATE SET
	title = EXCLUDED.title,
	cited_by_count = EXCLUDED.cited_by_count,
	citers = EXCLUDED.citers,
	updated_at = EXCLUDED.updated_at`, s.table)

	now := s.clock.Now()
	for i, record := range records {
		citers, marshalErr := json.Marshal(nonNil(record.Citers))
		if marshalErr != nil {
			return fmt.Errorf("marshal citers: %w", marshalErr)
		}
		if _, err = tx.Exec(ctx, upsert, s.runID, i, record.Title, record.CitedByCount, citers, now); err != nil {
			return fmt.Errorf("upsert checkpoint row %d: %w", i, err)
		}
	}

	trim := fmt.Sprintf(`DELETE FROM %s WHERE run_id = $1 AND position >= $2`, s.table)
	if _, err = tx.Exec(ctx, trim, s.runID, len(records)); err != nil {
		return fmt.Errorf("trim checkpoint rows: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *CheckpointStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func nonNil(citers []string) []string {
	if citers == nil {
		return []string{}
	}
	return citers
}
