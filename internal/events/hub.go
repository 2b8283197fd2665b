// Package events keeps a bounded in-memory history of dispatch activity.
package events

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Type names what happened to a message.
type Type string

const (
	MessageReceived  Type = "message.received"
	PayloadInvalid   Type = "payload.invalid"
	CommandSucceeded Type = "command.succeeded"
	CommandFailed    Type = "command.failed"
	DeleteFailed     Type = "delete.failed"
)

// Event is one dispatch activity record.
type Event struct {
	ID         int64     `json:"id"`
	Type       Type      `json:"type"`
	At         time.Time `json:"at"`
	MessageID  string    `json:"message_id"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Hub is a ring buffer of recent events. A nil *Hub discards everything, so
// callers need not check whether history is enabled.
type Hub struct {
	nextID atomic.Int64

	mu    sync.Mutex
	ring  []Event
	start int
	size  int
}

// NewHub creates a Hub that keeps the last capacity events.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{ring: make([]Event, capacity)}
}

// Publish stamps ev with the next ID and the current time and stores it.
func (h *Hub) Publish(ev Event) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	// Assigned under the lock so ring order matches ID order.
	ev.ID = h.nextID.Inc()
	ev.At = time.Now().UTC()

	capacity := len(h.ring)
	if h.size < capacity {
		h.ring[(h.start+h.size)%capacity] = ev
		h.size++
		return
	}
	// Overwrite oldest.
	h.ring[h.start] = ev
	h.start = (h.start + 1) % capacity
}

// Since returns buffered events with ID > lastID, oldest first.
func (h *Hub) Since(lastID int64) []Event {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}
