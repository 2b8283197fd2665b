package dispatch

import (
	"time"

	"go.uber.org/atomic"
)

// Stats are process-lifetime counters. They are safe for concurrent reads
// while the dispatcher runs.
type Stats struct {
	Received       atomic.Int64
	Succeeded      atomic.Int64
	Invalid        atomic.Int64
	Failed         atomic.Int64
	DeleteFailures atomic.Int64
	ReceiveErrors  atomic.Int64

	lastActivity atomic.Int64 // unix nanoseconds
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Received       int64      `json:"received"`
	Succeeded      int64      `json:"succeeded"`
	Invalid        int64      `json:"invalid"`
	Failed         int64      `json:"failed"`
	DeleteFailures int64      `json:"delete_failures"`
	ReceiveErrors  int64      `json:"receive_errors"`
	LastActivity   *time.Time `json:"last_activity,omitempty"`
}

func (s *Stats) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// Snapshot copies the current counter values.
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		Received:       s.Received.Load(),
		Succeeded:      s.Succeeded.Load(),
		Invalid:        s.Invalid.Load(),
		Failed:         s.Failed.Load(),
		DeleteFailures: s.DeleteFailures.Load(),
		ReceiveErrors:  s.ReceiveErrors.Load(),
	}
	if ns := s.lastActivity.Load(); ns != 0 {
		t := time.Unix(0, ns).UTC()
		snap.LastActivity = &t
	}
	return snap
}
