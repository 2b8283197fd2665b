package lmstfy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bitleak/lmstfy/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/sqs-dispatch/internal/queue"
)

type consumeCall struct {
	queue   string
	ttr     uint32
	timeout uint32
}

type fakeAPI struct {
	job      *client.Job
	err      error
	ackErr   *client.APIError
	consumed []consumeCall
	acked    []string
	tries    uint16
	ttl      uint32
}

func (f *fakeAPI) Publish(_ string, data []byte, ttl uint32, tries uint16, _ uint32) (string, error) {
	f.tries = tries
	f.ttl = ttl
	return "job-" + string(data), f.err
}

func (f *fakeAPI) Consume(q string, ttr, timeout uint32) (*client.Job, error) {
	f.consumed = append(f.consumed, consumeCall{queue: q, ttr: ttr, timeout: timeout})
	return f.job, f.err
}

func (f *fakeAPI) Ack(_ string, jobID string) *client.APIError {
	f.acked = append(f.acked, jobID)
	return f.ackErr
}

var _ API = (*fakeAPI)(nil)

func TestNewRequiresConnectionDetails(t *testing.T) {
	_, err := New(Options{Host: "localhost"})
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	c := NewWithAPI(&fakeAPI{}, Options{})

	url, err := c.Resolve(context.Background(), "jobs")
	require.NoError(t, err)
	assert.Equal(t, "jobs", url)

	_, err = c.Resolve(context.Background(), "")
	assert.True(t, errors.Is(err, queue.ErrQueueNotFound))
}

func TestReceive(t *testing.T) {
	api := &fakeAPI{job: &client.Job{ID: "j1", Queue: "jobs", Data: []byte(`{"command":"true"}`), RemainTries: 2}}
	c := NewWithAPI(api, Options{})

	msg, err := c.Receive(context.Background(), "jobs", queue.ReceiveOptions{
		WaitTime:          20 * time.Second,
		VisibilityTimeout: 2 * time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, &queue.Message{ID: "j1", Body: `{"command":"true"}`, ReceiptHandle: "j1", ReceiveCount: 1}, msg)
	assert.Equal(t, []consumeCall{{queue: "jobs", ttr: 120, timeout: 20}}, api.consumed)
}

func TestReceiveDefaultsAndEmpty(t *testing.T) {
	api := &fakeAPI{}
	c := NewWithAPI(api, Options{})

	msg, err := c.Receive(context.Background(), "jobs", queue.ReceiveOptions{WaitTime: time.Hour})
	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.Equal(t, []consumeCall{{queue: "jobs", ttr: 30, timeout: 600}}, api.consumed)
}

func TestReceiveCancelled(t *testing.T) {
	api := &fakeAPI{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewWithAPI(api, Options{}).Receive(ctx, "jobs", queue.ReceiveOptions{})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, api.consumed)
}

func TestDeleteAcks(t *testing.T) {
	api := &fakeAPI{ackErr: nil}
	err := NewWithAPI(api, Options{}).Delete(context.Background(), "jobs", "j1")
	assert.Nil(t, err, "a nil *APIError from Ack must not surface as an error")
	assert.Equal(t, []string{"j1"}, api.acked)
}

func TestDeleteAckFailure(t *testing.T) {
	api := &fakeAPI{ackErr: &client.APIError{Type: client.ResponseErr, Reason: "job not found", JobID: "j1"}}
	err := NewWithAPI(api, Options{}).Delete(context.Background(), "jobs", "j1")
	require.Error(t, err)

	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "j1", apiErr.JobID)
}

func TestReceiveCountFromRemainingTries(t *testing.T) {
	tests := []struct {
		name   string
		tries  uint16
		remain int64
		want   int
	}{
		{name: "first delivery", tries: 3, remain: 2, want: 1},
		{name: "last delivery", tries: 3, remain: 0, want: 3},
		{name: "published with more tries", tries: 3, remain: 9, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{job: &client.Job{ID: "j1", RemainTries: tt.remain}}
			msg, err := NewWithAPI(api, Options{Tries: tt.tries}).Receive(context.Background(), "jobs", queue.ReceiveOptions{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.ReceiveCount)
		})
	}
}

func TestReceiveSubSecondVisibility(t *testing.T) {
	api := &fakeAPI{}
	_, err := NewWithAPI(api, Options{}).Receive(context.Background(), "jobs", queue.ReceiveOptions{VisibilityTimeout: 500 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, uint32(1), api.consumed[0].ttr)
}

func TestSend(t *testing.T) {
	api := &fakeAPI{}
	id, err := NewWithAPI(api, Options{TTL: time.Hour}).Send(context.Background(), "jobs", "body")
	require.NoError(t, err)
	assert.Equal(t, "job-body", id)
	assert.Equal(t, uint16(defaultTries), api.tries)
	assert.Equal(t, uint32(3600), api.ttl)
}

func TestErrorsAreWrapped(t *testing.T) {
	boom := errors.New("server down")
	c := NewWithAPI(&fakeAPI{err: boom}, Options{})

	_, err := c.Receive(context.Background(), "jobs", queue.ReceiveOptions{})
	assert.True(t, errors.Is(err, boom))
	_, err = c.Send(context.Background(), "jobs", "x")
	assert.True(t, errors.Is(err, boom))
}
