// Package sqlite mirrors crawl checkpoints into a local SQLite file so an
// interrupted run can be inspected with ordinary SQL tooling.
package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/scholar-citation-crawler/internal/crawler"
)

const schema = `
CREATE TABLE IF NOT EXISTS citation_checkpoints (
	run_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	title TEXT NOT NULL,
	cited_by_count INTEGER NOT NULL,
	citers TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
)`

const upsert = `
INSERT INTO citation_checkpoints (run_id, position, title, cited_by_count, citers, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (run_id, position) DO UPDATE SET
	title = excluded.title,
	cited_by_count = excluded.cited_by_count,
	citers = excluded.citers,
	updated_at = excluded.updated_at`

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

type checkpointRow struct {
	Title        string `db:"title"`
	CitedByCount int    `db:"cited_by_count"`
	Citers       string `db:"citers"`
}

// CheckpointStore implements crawler.ResultSink on SQLite.
type CheckpointStore struct {
	db    *sqlx.DB
	runID string
	clock crawler.Clock
}

// Open creates (or reuses) the database at path.
func Open(ctx context.Context, path, runID string, clock crawler.Clock) (*CheckpointStore, error) {
	if runID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return NewWithDB(db, runID, clock)
}

// NewWithDB wraps an open handle whose schema already exists.
func NewWithDB(db *sqlx.DB, runID string, clock crawler.Clock) (*CheckpointStore, error) {
	switch {
	case db == nil:
		return nil, fmt.Errorf("db is required")
	case runID == "":
		return nil, fmt.Errorf("run id is required")
	case clock == nil:
		return nil, fmt.Errorf("clock is required")
	}
	return &CheckpointStore{db: db, runID: runID, clock: clock}, nil
}

// WriteCheckpoint replaces the run's rows with records.
func (s *CheckpointStore) WriteCheckpoint(ctx context.Context, records []crawler.CitationRecord) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkpoint: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PreparexContext(ctx, upsert)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := s.clock.Now().UTC().Format(time.RFC3339Nano)
	for i, record := range records {
		citers := record.Citers
		if citers == nil {
			citers = []string{}
		}
		encoded, marshalErr := json.Marshal(citers)
		if marshalErr != nil {
			return fmt.Errorf("marshal citers: %w", marshalErr)
		}
		if _, err = stmt.ExecContext(ctx, s.runID, i, record.Title, record.CitedByCount, string(encoded), now); err != nil {
			return fmt.Errorf("upsert checkpoint row %d: %w", i, err)
		}
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM citation_checkpoints WHERE run_id = ? AND position >= ?`, s.runID, len(records)); err != nil {
		return fmt.Errorf("trim checkpoint rows: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

// Records reads back the latest checkpoint of runID in target order.
func (s *CheckpointStore) Records(ctx context.Context, runID string) ([]crawler.CitationRecord, error) {
	var rows []checkpointRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT title, cited_by_count, citers FROM citation_checkpoints WHERE run_id = ? ORDER BY position`, runID); err != nil {
		return nil, fmt.Errorf("query checkpoint: %w", err)
	}

	records := make([]crawler.CitationRecord, 0, len(rows))
	for _, row := range rows {
		record := crawler.CitationRecord{Title: row.Title, CitedByCount: row.CitedByCount}
		if err := json.Unmarshal([]byte(row.Citers), &record.Citers); err != nil {
			return nil, fmt.Errorf("decode citers of %q: %w", row.Title, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// Close closes the database.
func (s *CheckpointStore) Close() error {
	return s.db.Close()
}
