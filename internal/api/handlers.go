package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/sqs-dispatch/internal/auth"
	"github.com/mattjoyce/sqs-dispatch/internal/events"
	"github.com/mattjoyce/sqs-dispatch/internal/protocol"
	"github.com/mattjoyce/sqs-dispatch/internal/queue"
)

// maxEnqueueBody caps POST /enqueue bodies at the SQS message size limit.
const maxEnqueueBody = 256 * 1024

// handleHealthz handles GET /healthz
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Queue:         s.config.Queue,
		Backend:       s.config.Backend,
	}

	if d, ok := s.client.(queue.Depther); ok {
		depth, err := d.Depth(r.Context(), s.queueURL)
		if err != nil {
			s.logger.Error("failed to compute queue depth", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to compute queue depth")
			return
		}
		resp.QueueDepth = &depth
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleStats handles GET /stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Queue: s.config.Queue}
	if s.stats != nil {
		resp.Snapshot = s.stats.Snapshot()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleEvents handles GET /events?since=<id>
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			s.writeError(w, http.StatusBadRequest, "since must be a non-negative integer")
			return
		}
		since = v
	}

	evs := s.events.Since(since)
	if evs == nil {
		evs = []events.Event{}
	}
	s.writeJSON(w, http.StatusOK, EventsResponse{Events: evs})
}

// handleEnqueue handles POST /enqueue. The body uses the message wire format
// and is validated before it is sent.
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	s.enqueue(w, r, body)
}

// handleWebhookEnqueue handles POST /webhook/enqueue. The body is the same
// payload as /enqueue, signed in X-Hub-Signature-256 or X-Signature-256.
func (s *Server) handleWebhookEnqueue(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}

	sig := r.Header.Get("X-Hub-Signature-256")
	if sig == "" {
		sig = r.Header.Get("X-Signature-256")
	}
	if err := auth.VerifySignature(body, sig, s.config.WebhookSecret); err != nil {
		s.logger.Warn("webhook signature rejected", "remote_addr", r.RemoteAddr)
		s.writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	s.enqueue(w, r, body)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEnqueueBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	return body, true
}

// enqueue validates body as a payload, re-encodes it and sends it.
func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, body []byte) {
	payload, err := protocol.Decode(body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	encoded, err := protocol.Encode(payload)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to encode message")
		return
	}

	id, err := s.client.Send(r.Context(), s.queueURL, string(encoded))
	if err != nil {
		s.logger.Error("failed to enqueue message", "error", err)
		s.writeError(w, http.StatusBadGateway, "failed to enqueue message")
		return
	}

	s.logger.Info("message enqueued via API", "message_id", id, "path", r.URL.Path)
	s.writeJSON(w, http.StatusAccepted, EnqueueResponse{MessageID: id, Queue: s.config.Queue})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}
