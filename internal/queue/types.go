package queue

import (
	"context"
	"errors"
	"time"
)

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks github.com/mattjoyce/sqs-dispatch/internal/queue Client

// DefaultWaitTime is the long-poll wait used when none is configured.
const DefaultWaitTime = 20 * time.Second

var (
	// ErrQueueNotFound means the queue name could not be resolved. It is fatal
	// at startup.
	ErrQueueNotFound = errors.New("queue does not exist")
	// ErrReceiptNotFound means the receipt no longer identifies a delivery,
	// usually because the visibility timeout lapsed and the message was
	// received again.
	ErrReceiptNotFound = errors.New("receipt handle not found")
)

// Message is one delivery of a queued message. It is immutable once received.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
	// ReceiveCount is the number of times the message has been delivered,
	// when the transport reports it (0 otherwise).
	ReceiveCount int
}

// ReceiveOptions control a single receive call.
type ReceiveOptions struct {
	// WaitTime bounds the long-poll. Zero returns immediately.
	WaitTime time.Duration
	// VisibilityTimeout hides the received message from other receivers.
	// Zero uses the queue's own default.
	VisibilityTimeout time.Duration
}

// Client is a message queue transport with visibility-timeout redelivery.
type Client interface {
	// Resolve maps a queue name to the URL used by the other methods.
	// Returns an error wrapping ErrQueueNotFound if the queue does not exist.
	Resolve(ctx context.Context, name string) (string, error)
	// Receive returns at most one message, or (nil, nil) if none arrived
	// within opts.WaitTime.
	Receive(ctx context.Context, queueURL string, opts ReceiveOptions) (*Message, error)
	// Delete acknowledges a delivery.
	Delete(ctx context.Context, queueURL, receiptHandle string) error
	// Send publishes a message and returns its id.
	Send(ctx context.Context, queueURL, body string) (string, error)
}

// Depther is implemented by transports that can report queue depth cheaply.
type Depther interface {
	Depth(ctx context.Context, queueURL string) (int, error)
}
