// Package lmstfy implements queue.Client on a lmstfy job queue server.
//
// lmstfy has no queue registry, so Resolve only validates the name. The
// receipt handle is the job id; ttr plays the role of the visibility timeout.
package lmstfy

import (
	"context"
	"fmt"
	"time"

	"github.com/bitleak/lmstfy/client"

	"github.com/mattjoyce/sqs-dispatch/internal/queue"
)

const (
	defaultTTR   = 30 * time.Second
	maxWaitTime  = 600 * time.Second
	defaultTries = 3
)

// API is the subset of *client.LmstfyClient used here.
type API interface {
	Publish(queue string, data []byte, ttlSecond uint32, tries uint16, delaySecond uint32) (string, error)
	Consume(queue string, ttrSecond, timeoutSecond uint32) (*client.Job, error)
	Ack(queue, jobID string) *client.APIError
}

var _ API = (*client.LmstfyClient)(nil)

// Options configure the lmstfy connection.
type Options struct {
	Host      string
	Port      int
	Namespace string
	Token     string
	// Tries is how many deliveries a published job gets before lmstfy moves it
	// to the dead letter queue.
	Tries uint16
	// TTL is how long a published job lives; zero keeps it until consumed.
	TTL time.Duration
}

// Client adapts a lmstfy API to queue.Client.
type Client struct {
	api   API
	tries uint16
	ttl   uint32
}

var _ queue.Client = (*Client)(nil)

// New connects to a lmstfy server.
func New(opts Options) (*Client, error) {
	if opts.Host == "" || opts.Namespace == "" || opts.Token == "" {
		return nil, fmt.Errorf("lmstfy host, namespace and token are required")
	}
	return NewWithAPI(client.NewLmstfyClient(opts.Host, opts.Port, opts.Namespace, opts.Token), opts), nil
}

// NewWithAPI wraps an existing API implementation.
func NewWithAPI(api API, opts Options) *Client {
	tries := opts.Tries
	if tries == 0 {
		tries = defaultTries
	}
	return &Client{api: api, tries: tries, ttl: uint32(opts.TTL / time.Second)}
}

func (c *Client) Resolve(_ context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("resolve: %w", queue.ErrQueueNotFound)
	}
	return name, nil
}

// Receive consumes one job. The lmstfy client is not context aware, so a
// cancelled ctx is only noticed before the call.
func (c *Client) Receive(ctx context.Context, queueURL string, opts queue.ReceiveOptions) (*queue.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ttr := opts.VisibilityTimeout
	if ttr <= 0 {
		ttr = defaultTTR
	}
	if ttr < time.Second {
		ttr = time.Second
	}
	wait := opts.WaitTime
	if wait > maxWaitTime {
		wait = maxWaitTime
	}

	job, err := c.api.Consume(queueURL, uint32(ttr/time.Second), uint32(wait/time.Second))
	if err != nil {
		return nil, fmt.Errorf("lmstfy consume: %w", err)
	}
	if job == nil {
		return nil, nil
	}
	return &queue.Message{
		ID:            job.ID,
		Body:          string(job.Data),
		ReceiptHandle: job.ID,
		ReceiveCount:  c.receiveCount(job),
	}, nil
}

// receiveCount derives deliveries so far from the job's remaining tries,
// assuming it was published with this client's tries. Jobs published with
// more tries report at least 1.
func (c *Client) receiveCount(job *client.Job) int {
	n := int(c.tries) - int(job.RemainTries)
	if n < 1 {
		return 1
	}
	return n
}

func (c *Client) Delete(_ context.Context, queueURL, receiptHandle string) error {
	// Checked as *APIError: a nil pointer stored in an error is non-nil.
	if apiErr := c.api.Ack(queueURL, receiptHandle); apiErr != nil {
		return fmt.Errorf("lmstfy ack: %w", apiErr)
	}
	return nil
}

func (c *Client) Send(_ context.Context, queueURL, body string) (string, error) {
	id, err := c.api.Publish(queueURL, []byte(body), c.ttl, c.tries, 0)
	if err != nil {
		return "", fmt.Errorf("lmstfy publish: %w", err)
	}
	return id, nil
}
