package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/sqs-dispatch/internal/api"
	"github.com/mattjoyce/sqs-dispatch/internal/command"
	"github.com/mattjoyce/sqs-dispatch/internal/dispatch"
	"github.com/mattjoyce/sqs-dispatch/internal/events"
	"github.com/mattjoyce/sqs-dispatch/internal/lock"
	"github.com/mattjoyce/sqs-dispatch/internal/log"
	"github.com/mattjoyce/sqs-dispatch/internal/metrics"
	"github.com/mattjoyce/sqs-dispatch/internal/queue"
)

const eventBufferSize = 256

func newProcessCmd(opts *rootOptions) *cobra.Command {
	var exitWhenEmpty bool

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Consume the queue and run each message's command",
		Long: `Runs the dispatch loop until interrupted. SIGINT and SIGTERM stop the loop
between messages; a command that is already running is allowed to finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
			logger := log.WithComponent("main")
			logger.Info("sqs-dispatch starting",
				"version", version,
				"queue", cfg.Queue.Name,
				"backend", cfg.Queue.Backend,
			)

			if cfg.Service.PIDFile != "" {
				pid, err := lock.Acquire(cfg.Service.PIDFile)
				if err != nil {
					if errors.Is(err, lock.ErrLocked) {
						logger.Error("another instance holds the lock", "pid_file", cfg.Service.PIDFile)
					} else {
						logger.Error("failed to acquire lock", "pid_file", cfg.Service.PIDFile, "error", err)
					}
					return err
				}
				defer func() { _ = pid.Release() }()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, closeQueue, err := openQueue(ctx, cfg)
			if err != nil {
				logger.Error("failed to open queue transport", "error", err)
				return err
			}
			defer closeQueue()

			sink, closeSink, err := buildSink(ctx, cfg, log.WithComponent("metrics"))
			if err != nil {
				logger.Error("failed to configure metrics", "error", err)
				return err
			}
			defer closeSink()

			recorder := metrics.NewRecorder(sink, cfg.Metrics.Namespace, log.WithComponent("metrics"))
			runner := command.New(cfg.Runner.Shell, log.WithComponent("runner"))
			disp := dispatch.New(
				client,
				dispatch.CommandHandler(runner, cfg.Runner.MessageIDEnv, cfg.Runner.Env),
				recorder,
				dispatch.Config{
					Queue:             cfg.Queue.Name,
					WaitTime:          cfg.Queue.WaitTime,
					VisibilityTimeout: cfg.Queue.VisibilityTimeout,
					StopWhenEmpty:     exitWhenEmpty,
				},
			)
			hub := events.NewHub(eventBufferSize)
			disp.SetEventHub(hub)

			errCh := make(chan error, 1)
			if cfg.API.Enabled {
				queueURL, err := client.Resolve(ctx, cfg.Queue.Name)
				if err != nil {
					return queueError(logger, cfg.Queue.Name, err)
				}
				srv := api.New(api.Config{
					Listen:        cfg.API.Listen,
					Token:         cfg.API.Token,
					WebhookSecret: cfg.API.WebhookSecret,
					Queue:         cfg.Queue.Name,
					Backend:       cfg.Queue.Backend,
				}, client, queueURL, disp.Stats(), hub, log.WithComponent("api"))
				go func() {
					if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
						errCh <- fmt.Errorf("api: %w", err)
						stop()
					}
				}()
			}

			err = disp.Run(ctx)
			select {
			case apiErr := <-errCh:
				logger.Error("API server failed", "error", apiErr)
				return apiErr
			default:
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				return queueError(logger, cfg.Queue.Name, err)
			}

			logger.Info("sqs-dispatch stopped", "stats", disp.Stats().Snapshot())
			return nil
		},
	}

	cmd.Flags().BoolVar(&exitWhenEmpty, "exit-when-empty", false, "stop once a receive finds the queue empty")
	return cmd
}

func queueError(logger *slog.Logger, name string, err error) error {
	if errors.Is(err, queue.ErrQueueNotFound) {
		logger.Error("queue does not exist", "queue", name)
	} else {
		logger.Error("dispatch failed", "queue", name, "error", err)
	}
	return err
}
