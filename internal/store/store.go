// Package store keeps a SQLite history of ingest runs so operators can see
// what each ingest listed, stored and skipped after the HTTP response is gone.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Outcome is the terminal state of an ingest run.
type Outcome string

const (
	// OutcomeSuccess means vectors were stored (or nothing was left to store).
	OutcomeSuccess Outcome = "success"
	// OutcomeEmpty means the listing returned no text files.
	OutcomeEmpty Outcome = "empty"
	// OutcomeFailed means the run aborted with an error.
	OutcomeFailed Outcome = "failed"
)

// Run is the persisted summary of one ingest.
type Run struct {
	// ID is a unique run identifier.
	ID string `json:"id"`
	// StartedAt is when the run began.
	StartedAt time.Time `json:"startedAt"`
	// FinishedAt is when the run ended.
	FinishedAt time.Time `json:"finishedAt"`
	// Listed is the number of files returned by the Drive listing.
	Listed int `json:"listed"`
	// Stored is the number of vectors written to the index.
	Stored int `json:"stored"`
	// Skipped is the number of files dropped during fetch or embed.
	Skipped int `json:"skipped"`
	// Outcome is the terminal state.
	Outcome Outcome `json:"outcome"`
	// Error is the failure message when Outcome is failed.
	Error string `json:"error,omitempty"`
}

// RunStore persists ingest runs. Implementations must be safe for concurrent use.
type RunStore interface {
	// Record persists one run.
	Record(ctx context.Context, run Run) error
	// Recent returns up to n runs, newest first.
	Recent(ctx context.Context, n int) ([]Run, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a RunStore backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns ~/.drivesearch/history.db, creating the directory
// if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".drivesearch")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at path and runs the schema
// migration. Use ":memory:" in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// One connection: a single writer avoids SQLITE_BUSY, and ":memory:"
	// databases are per-connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS ingest_runs (
    id           TEXT    PRIMARY KEY,
    started_at   INTEGER NOT NULL,  -- Unix milliseconds
    finished_at  INTEGER NOT NULL,
    listed       INTEGER NOT NULL,
    stored       INTEGER NOT NULL,
    skipped      INTEGER NOT NULL,
    outcome      TEXT    NOT NULL CHECK(outcome IN ('success','empty','failed')),
    error        TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_ingest_runs_started ON ingest_runs (started_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Record implements RunStore.
func (s *SQLiteStore) Record(ctx context.Context, run Run) error {
	if run.ID == "" {
		return errors.New("store: record: run id is required")
	}
	const q = `
INSERT INTO ingest_runs (id, started_at, finished_at, listed, stored, skipped, outcome, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		run.ID,
		run.StartedAt.UnixMilli(),
		run.FinishedAt.UnixMilli(),
		run.Listed,
		run.Stored,
		run.Skipped,
		string(run.Outcome),
		run.Error,
	)
	if err != nil {
		return fmt.Errorf("store: record: %w", err)
	}
	return nil
}

// Recent implements RunStore.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]Run, error) {
	const q = `
SELECT id, started_at, finished_at, listed, stored, skipped, outcome, error
FROM   ingest_runs
ORDER  BY started_at DESC, rowid DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		var started, finished int64
		var outcome string
		if err := rows.Scan(&r.ID, &started, &finished, &r.Listed, &r.Stored, &r.Skipped, &outcome, &r.Error); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		r.FinishedAt = time.UnixMilli(finished)
		r.Outcome = Outcome(outcome)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return runs, nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
