package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/sqs-dispatch/internal/events"
	"github.com/mattjoyce/sqs-dispatch/internal/log"
	"github.com/mattjoyce/sqs-dispatch/internal/metrics"
	"github.com/mattjoyce/sqs-dispatch/internal/protocol"
	"github.com/mattjoyce/sqs-dispatch/internal/queue"
)

// ReceiveErrorPause is how long Run waits after a failed receive.
const ReceiveErrorPause = time.Second

// Handler executes a decoded message. A nil error means the message may be
// deleted.
type Handler func(ctx context.Context, messageID string, payload *protocol.Payload) error

// Outcome is the result of processing (or failing to receive) one message.
type Outcome int

const (
	OutcomeEmpty Outcome = iota
	OutcomeSuccess
	OutcomeInvalidPayload
	OutcomeHandlerFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEmpty:
		return "empty"
	case OutcomeSuccess:
		return "success"
	case OutcomeInvalidPayload:
		return "invalid_payload"
	case OutcomeHandlerFailure:
		return "handler_failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Config holds dispatcher settings.
type Config struct {
	// Queue is the queue name, resolved to a URL when Run starts.
	Queue string
	// WaitTime is the long-poll duration per receive. Defaults to
	// queue.DefaultWaitTime.
	WaitTime time.Duration
	// VisibilityTimeout overrides the queue's own default when non-zero.
	VisibilityTimeout time.Duration
	// StopWhenEmpty makes Run return nil after the first receive that finds
	// no message, draining the queue instead of serving it.
	StopWhenEmpty bool
}

// Dispatcher receives messages serially and runs a Handler for each.
type Dispatcher struct {
	client   queue.Client
	handler  Handler
	recorder *metrics.Recorder
	cfg      Config
	logger   *slog.Logger
	stats    *Stats
	events   *events.Hub
	pause    time.Duration
}

// New creates a Dispatcher. A nil recorder records nothing.
func New(client queue.Client, handler Handler, recorder *metrics.Recorder, cfg Config) *Dispatcher {
	if cfg.WaitTime <= 0 {
		cfg.WaitTime = queue.DefaultWaitTime
	}
	logger := log.WithComponent("dispatch").With("queue", cfg.Queue)
	if recorder == nil {
		recorder = metrics.NewRecorder(nil, "", logger)
	}
	return &Dispatcher{
		client:   client,
		handler:  handler,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger,
		stats:    &Stats{},
		pause:    ReceiveErrorPause,
	}
}

// SetEventHub records dispatch activity into h. Nil disables history.
func (d *Dispatcher) SetEventHub(h *events.Hub) {
	d.events = h
}

// Stats returns the dispatcher's live counters.
func (d *Dispatcher) Stats() *Stats {
	return d.stats
}

// Run resolves the queue and processes messages until ctx is cancelled.
// A resolution failure is returned immediately; otherwise Run returns
// ctx.Err(), or nil once the queue is drained when StopWhenEmpty is set.
func (d *Dispatcher) Run(ctx context.Context) error {
	queueURL, err := d.client.Resolve(ctx, d.cfg.Queue)
	if err != nil {
		return fmt.Errorf("resolve queue %q: %w", d.cfg.Queue, err)
	}

	d.logger.Info("dispatch loop started", "queue_url", queueURL, "wait_time", d.cfg.WaitTime)
	defer d.logger.Info("dispatch loop stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		outcome, err := d.ProcessOnce(ctx, queueURL)
		if outcome != OutcomeEmpty {
			continue
		}
		if err == nil {
			if d.cfg.StopWhenEmpty {
				d.logger.Info("queue drained")
				return nil
			}
			continue
		}

		// Receive failed.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.stats.ReceiveErrors.Inc()
		d.logger.Error("failed to receive message", "error", err)

		timer := time.NewTimer(d.pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// ProcessOnce receives at most one message from queueURL and handles it.
//
// The returned error is the receive error for OutcomeEmpty, the decode error
// for OutcomeInvalidPayload and the handler error for OutcomeHandlerFailure.
// A failed delete after a successful handler is logged and counted but still
// reports OutcomeSuccess.
func (d *Dispatcher) ProcessOnce(ctx context.Context, queueURL string) (Outcome, error) {
	msg, err := d.client.Receive(ctx, queueURL, queue.ReceiveOptions{
		WaitTime:          d.cfg.WaitTime,
		VisibilityTimeout: d.cfg.VisibilityTimeout,
	})
	if err != nil {
		return OutcomeEmpty, fmt.Errorf("receive: %w", err)
	}
	if msg == nil {
		return OutcomeEmpty, nil
	}

	d.stats.Received.Inc()
	d.stats.touch()
	logger := d.logger.With("message_id", msg.ID)
	logger.Debug("received message", "receive_count", msg.ReceiveCount)
	d.events.Publish(events.Event{Type: events.MessageReceived, MessageID: msg.ID})

	payload, err := protocol.Decode([]byte(msg.Body))
	if err != nil {
		d.stats.Invalid.Inc()
		logger.Error("invalid message payload, leaving in queue", "error", err, "receive_count", msg.ReceiveCount)
		d.events.Publish(events.Event{Type: events.PayloadInvalid, MessageID: msg.ID, Error: err.Error()})
		return OutcomeInvalidPayload, err
	}

	tags := make(map[string]string, len(payload.Tags)+1)
	for k, v := range payload.Tags {
		tags[k] = v
	}
	tags["queue_name"] = d.cfg.Queue

	// A started command and the delete after it are not cancelled by shutdown.
	hctx := context.WithoutCancel(ctx)

	start := time.Now()
	err = d.recorder.Capture(hctx, tags, func() error {
		return d.handler(hctx, msg.ID, payload)
	})
	elapsed := time.Since(start)

	if err != nil {
		d.stats.Failed.Inc()
		logger.Error("command failed, leaving in queue",
			"error", err,
			"duration", elapsed,
			"receive_count", msg.ReceiveCount,
		)
		d.events.Publish(events.Event{
			Type:       events.CommandFailed,
			MessageID:  msg.ID,
			DurationMS: elapsed.Milliseconds(),
			Error:      err.Error(),
		})
		return OutcomeHandlerFailure, err
	}

	d.stats.Succeeded.Inc()
	if err := d.client.Delete(hctx, queueURL, msg.ReceiptHandle); err != nil {
		d.stats.DeleteFailures.Inc()
		logger.Error("failed to delete message, it will be redelivered", "error", err, "duration", elapsed)
		d.events.Publish(events.Event{Type: events.DeleteFailed, MessageID: msg.ID, Error: err.Error()})
		return OutcomeSuccess, nil
	}

	logger.Info("command succeeded", "duration", elapsed)
	d.events.Publish(events.Event{Type: events.CommandSucceeded, MessageID: msg.ID, DurationMS: elapsed.Milliseconds()})
	return OutcomeSuccess, nil
}
