package queue

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// DefaultVisibilityTimeout matches the SQS default.
const DefaultVisibilityTimeout = 30 * time.Second

// LocalOptions configure the SQLite-backed queue.
type LocalOptions struct {
	// AutoCreate makes Resolve create unknown queues instead of failing.
	AutoCreate bool
	// PollInterval is how often Receive re-checks during a long-poll.
	PollInterval time.Duration
	// VisibilityTimeout applies when a receive does not specify one.
	VisibilityTimeout time.Duration
}

// Local is a Client over a SQLite database (see storage.OpenSQLite). Several
// worker processes may share the same file; a receive claims a message by
// moving its visible_at into the future under a fresh receipt.
type Local struct {
	db   *sql.DB
	opts LocalOptions
	now  func() time.Time
}

// NewLocal creates a Local queue client.
func NewLocal(db *sql.DB, opts LocalOptions) *Local {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = DefaultVisibilityTimeout
	}
	return &Local{db: db, opts: opts, now: time.Now}
}

// CreateQueue registers a queue name. Creating an existing queue is a no-op.
func (q *Local) CreateQueue(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("queue name is empty")
	}
	_, err := q.db.ExecContext(ctx, `
INSERT INTO queues(name, created_at) VALUES(?, ?)
ON CONFLICT(name) DO NOTHING;
`, name, q.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("create queue %q: %w", name, err)
	}
	return nil
}

func (q *Local) Resolve(ctx context.Context, name string) (string, error) {
	ok, err := q.exists(ctx, name)
	if err != nil {
		return "", err
	}
	if ok {
		return name, nil
	}
	if !q.opts.AutoCreate {
		return "", fmt.Errorf("resolve %q: %w", name, ErrQueueNotFound)
	}
	if err := q.CreateQueue(ctx, name); err != nil {
		return "", err
	}
	return name, nil
}

func (q *Local) exists(ctx context.Context, name string) (bool, error) {
	var found string
	err := q.db.QueryRowContext(ctx, `SELECT name FROM queues WHERE name = ?;`, name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("look up queue %q: %w", name, err)
	}
	return true, nil
}

func (q *Local) Send(ctx context.Context, queueURL, body string) (string, error) {
	ok, err := q.exists(ctx, queueURL)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("send to %q: %w", queueURL, ErrQueueNotFound)
	}

	id := uuid.NewString()
	now := q.now().UnixNano()
	_, err = q.db.ExecContext(ctx, `
INSERT INTO queue_messages(id, queue, body, body_digest, visible_at, created_at)
VALUES(?, ?, ?, ?, ?, ?);
`, id, queueURL, body, digest(body), now, now)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return id, nil
}

// Receive claims the oldest visible message, polling every PollInterval until
// opts.WaitTime elapses or ctx is done.
func (q *Local) Receive(ctx context.Context, queueURL string, opts ReceiveOptions) (*Message, error) {
	visibility := opts.VisibilityTimeout
	if visibility <= 0 {
		visibility = q.opts.VisibilityTimeout
	}
	deadline := q.now().Add(opts.WaitTime)

	for {
		msg, err := q.claim(ctx, queueURL, visibility)
		if err != nil || msg != nil {
			return msg, err
		}

		remaining := deadline.Sub(q.now())
		if remaining <= 0 {
			return nil, nil
		}
		pause := q.opts.PollInterval
		if remaining < pause {
			pause = remaining
		}

		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (q *Local) claim(ctx context.Context, queueURL string, visibility time.Duration) (*Message, error) {
	now := q.now()
	receipt := uuid.NewString()

	row := q.db.QueryRowContext(ctx, `
WITH next AS (
  SELECT id
  FROM queue_messages
  WHERE queue = ? AND visible_at <= ?
  ORDER BY created_at ASC, rowid ASC
  LIMIT 1
)
UPDATE queue_messages
SET receipt = ?, visible_at = ?, receive_count = receive_count + 1
WHERE id IN (SELECT id FROM next)
RETURNING id, body, body_digest, receive_count;
`, queueURL, now.UnixNano(), receipt, now.Add(visibility).UnixNano())

	var (
		msg      Message
		bodyHash string
	)
	err := row.Scan(&msg.ID, &msg.Body, &bodyHash, &msg.ReceiveCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("receive message: %w", err)
	}
	if digest(msg.Body) != bodyHash {
		return nil, fmt.Errorf("message %s: body digest mismatch", msg.ID)
	}
	msg.ReceiptHandle = receipt
	return &msg, nil
}

func (q *Local) Delete(ctx context.Context, queueURL, receiptHandle string) error {
	if receiptHandle == "" {
		return fmt.Errorf("receipt handle is empty")
	}
	res, err := q.db.ExecContext(ctx, `
DELETE FROM queue_messages WHERE queue = ? AND receipt = ?;
`, queueURL, receiptHandle)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if n == 0 {
		return ErrReceiptNotFound
	}
	return nil
}

// Depth counts messages in the queue, visible or not.
func (q *Local) Depth(ctx context.Context, queueURL string) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue_messages WHERE queue = ?;`, queueURL).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}

func digest(body string) string {
	sum := blake3.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}
