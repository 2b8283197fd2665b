package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/sqs-dispatch/internal/config"
	"github.com/mattjoyce/sqs-dispatch/internal/metrics"
	"github.com/mattjoyce/sqs-dispatch/internal/queue"
	"github.com/mattjoyce/sqs-dispatch/internal/queue/awssqs"
	"github.com/mattjoyce/sqs-dispatch/internal/queue/lmstfy"
	"github.com/mattjoyce/sqs-dispatch/internal/storage"
)

// openQueue builds the configured transport. The returned func releases it.
func openQueue(ctx context.Context, cfg *config.Config) (queue.Client, func(), error) {
	noop := func() {}

	switch cfg.Queue.Backend {
	case config.BackendSQS:
		c, err := awssqs.New(ctx, awssqs.Options{
			Region:   cfg.Queue.SQS.Region,
			Endpoint: cfg.Queue.SQS.Endpoint,
		})
		if err != nil {
			return nil, noop, err
		}
		return c, noop, nil

	case config.BackendSQLite:
		db, err := storage.OpenSQLite(ctx, cfg.Queue.SQLite.Path)
		if err != nil {
			return nil, noop, err
		}
		local := queue.NewLocal(db, queue.LocalOptions{
			AutoCreate:   cfg.Queue.SQLite.AutoCreate,
			PollInterval: cfg.Queue.SQLite.PollInterval,
		})
		return local, func() { _ = db.Close() }, nil

	case config.BackendLmstfy:
		l := cfg.Queue.Lmstfy
		c, err := lmstfy.New(lmstfy.Options{
			Host:      l.Host,
			Port:      l.Port,
			Namespace: l.Namespace,
			Token:     l.Token,
			Tries:     l.Tries,
			TTL:       l.TTL,
		})
		if err != nil {
			return nil, noop, err
		}
		return c, noop, nil
	}
	return nil, noop, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
}

// buildSink assembles the configured metrics sinks. No sinks yields nil,
// which records nothing.
func buildSink(ctx context.Context, cfg *config.Config, logger *slog.Logger) (metrics.Sink, func(), error) {
	var (
		sinks   metrics.MultiSink
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	for _, name := range cfg.Metrics.Sinks {
		switch name {
		case config.SinkLog:
			sinks = append(sinks, metrics.LogSink{Logger: logger})
		case config.SinkSQLite:
			db, err := storage.OpenSQLite(ctx, cfg.MetricsSQLitePath())
			if err != nil {
				closeAll()
				return nil, func() {}, fmt.Errorf("metrics sqlite: %w", err)
			}
			closers = append(closers, func() { _ = db.Close() })
			sinks = append(sinks, metrics.NewSQLiteSink(db))
		case config.SinkDatadog:
			sinks = append(sinks, metrics.NewDatadogSink(cfg.Metrics.Datadog.APIHost, cfg.Metrics.Datadog.APIKey))
		default:
			closeAll()
			return nil, func() {}, fmt.Errorf("unknown metrics sink %q", name)
		}
	}

	switch len(sinks) {
	case 0:
		return nil, closeAll, nil
	case 1:
		return sinks[0], closeAll, nil
	}
	return sinks, closeAll, nil
}
