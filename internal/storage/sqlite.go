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
// ensures the queue and metrics tables exist. Several worker processes may
// share one database file, so the path must live on a local filesystem.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}
	if err := CheckLocalFilesystem(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Pragmas are per connection; one connection keeps them in force.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pragmas := []string{
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA journal_mode = WAL;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(pctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}
	if err := Bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Bootstrap creates tables and indexes if missing.
//
// Timestamps used for visibility ordering are unix nanoseconds so that
// comparisons are numeric; display timestamps are RFC3339.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS queues (
  name       TEXT PRIMARY KEY,
  created_at TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS queue_messages (
  id            TEXT PRIMARY KEY,
  queue         TEXT NOT NULL REFERENCES queues(name),
  body          TEXT NOT NULL,
  body_digest   TEXT NOT NULL,
  receipt       TEXT,
  receive_count INTEGER NOT NULL DEFAULT 0,
  visible_at    INTEGER NOT NULL,
  created_at    INTEGER NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS task_metrics (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  metric      TEXT NOT NULL,
  kind        TEXT NOT NULL,
  value       REAL NOT NULL,
  tags        JSON NOT NULL DEFAULT '{}',
  recorded_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS queue_messages_queue_visible_idx ON queue_messages(queue, visible_at, created_at);`,
		`CREATE INDEX IF NOT EXISTS queue_messages_receipt_idx ON queue_messages(receipt);`,
		`CREATE INDEX IF NOT EXISTS task_metrics_metric_idx ON task_metrics(metric, recorded_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}
