package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// LogSink writes each point as a structured log record.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Send(ctx context.Context, points []Point) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, p := range points {
		logger.InfoContext(ctx, "metric", "metric", p.Metric, "kind", p.Kind, "value", p.Value, "tags", p.Tags)
	}
	return nil
}

// SQLiteSink appends points to the task_metrics table.
type SQLiteSink struct {
	db *sql.DB
}

func NewSQLiteSink(db *sql.DB) *SQLiteSink {
	return &SQLiteSink{db: db}
}

func (s *SQLiteSink) Send(ctx context.Context, points []Point) error {
	if s.db == nil {
		return ErrNotConfigured
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range points {
		tags, err := json.Marshal(p.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO task_metrics(metric, kind, value, tags, recorded_at)
VALUES(?, ?, ?, ?, ?);
`, p.Metric, string(p.Kind), p.Value, string(tags), p.Timestamp.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("insert metric %s: %w", p.Metric, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// MultiSink fans points out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Send(ctx context.Context, points []Point) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, points); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
