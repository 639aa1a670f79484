package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS invocations (
	id TEXT PRIMARY KEY,
	tool TEXT NOT NULL,
	module TEXT NOT NULL,
	success INTEGER NOT NULL,
	error_kind TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL,
	started_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_invocations_started_at ON invocations (started_at DESC);`

const (
	defaultSQLiteDir = ".ibmcloudkit"
	defaultSQLiteDB  = "history.db"
)

// SQLiteStore persists invocation records in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultSQLitePath returns the default history database path.
func DefaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("history: resolve user home: %w", err)
	}
	return filepath.Join(home, defaultSQLiteDir, defaultSQLiteDB), nil
}

// NewSQLiteStore opens (or creates) a SQLite-backed history store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("history: sqlite dsn is required")
	}
	if dir := filepath.Dir(dsn); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: sqlite open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: sqlite set WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: sqlite create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Append stores one record.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return errors.New("history: sqlite store is nil")
	}

	success := 0
	if rec.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO invocations (id, tool, module, success, error_kind, duration_ms, started_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Tool,
		rec.Module,
		success,
		rec.ErrorKind,
		rec.DurationMS,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("history: sqlite insert invocation: %w", err)
	}
	return nil
}

// Recent returns the latest records, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, errors.New("history: sqlite store is nil")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, tool, module, success, error_kind, duration_ms, started_at
FROM invocations
ORDER BY started_at DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: sqlite list invocations: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var (
			rec       Record
			success   int
			startedAt string
		)
		if err := rows.Scan(&rec.ID, &rec.Tool, &rec.Module, &success, &rec.ErrorKind, &rec.DurationMS, &startedAt); err != nil {
			return nil, fmt.Errorf("history: sqlite scan invocation: %w", err)
		}
		rec.Success = success != 0
		if parsed, perr := time.Parse(time.RFC3339Nano, startedAt); perr == nil {
			rec.StartedAt = parsed.UTC()
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: sqlite invocation rows: %w", err)
	}
	return recs, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
