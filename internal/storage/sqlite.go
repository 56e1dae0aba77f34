// Package storage opens the SQLite database backing the compile journal.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (and creates if needed) the SQLite database at path and
// ensures the journal tables exist. The path must be on local disk.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if _, err := CheckLocalFilesystem(path); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA journal_mode = WAL;",
	} {
		if _, err := db.ExecContext(pctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if err := BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// BootstrapSQLite creates tables/indexes if missing.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS compile_log (
  request_id     TEXT PRIMARY KEY,
  principal      TEXT,
  remote_addr    TEXT,
  outcome        TEXT NOT NULL,
  reason         TEXT,
  exit_code      INTEGER,
  passes         INTEGER NOT NULL DEFAULT 0,
  source_bytes   INTEGER NOT NULL,
  artifact_bytes INTEGER NOT NULL DEFAULT 0,
  duration_ms    INTEGER NOT NULL,
  created_at     TEXT NOT NULL,
  completed_at   TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS compile_log_completed_at_idx ON compile_log(completed_at);`,
		`CREATE INDEX IF NOT EXISTS compile_log_outcome_idx ON compile_log(outcome, completed_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
