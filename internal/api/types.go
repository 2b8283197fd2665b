package api

import (
	"github.com/mattjoyce/sqs-dispatch/internal/dispatch"
	"github.com/mattjoyce/sqs-dispatch/internal/events"
)

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Queue         string `json:"queue"`
	Backend       string `json:"backend"`
	// QueueDepth is only reported by transports that can count cheaply.
	QueueDepth *int `json:"queue_depth,omitempty"`
}

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	Queue string `json:"queue"`
	dispatch.Snapshot
}

// EnqueueResponse is returned on a successful POST /enqueue.
type EnqueueResponse struct {
	MessageID string `json:"message_id"`
	Queue     string `json:"queue"`
}

// EventsResponse is returned by GET /events.
type EventsResponse struct {
	Events []events.Event `json:"events"`
}
