package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/sqs-dispatch/internal/auth"
	"github.com/mattjoyce/sqs-dispatch/internal/dispatch"
	"github.com/mattjoyce/sqs-dispatch/internal/events"
	"github.com/mattjoyce/sqs-dispatch/internal/log"
	"github.com/mattjoyce/sqs-dispatch/internal/protocol"
	"github.com/mattjoyce/sqs-dispatch/internal/queue"
	"github.com/mattjoyce/sqs-dispatch/internal/queue/mocks"
	"github.com/mattjoyce/sqs-dispatch/internal/storage"
)

type fakeStats struct {
	snap dispatch.Snapshot
}

func (f fakeStats) Snapshot() dispatch.Snapshot { return f.snap }

func newTestServer(t *testing.T, client queue.Client, token string) http.Handler {
	t.Helper()
	return newTestServerWithHub(t, client, token, nil)
}

func newTestServerWithHub(t *testing.T, client queue.Client, token string, hub *events.Hub) http.Handler {
	t.Helper()
	logger := log.New(&strings.Builder{}, "ERROR", "json")
	cfg := Config{Listen: "127.0.0.1:0", Token: token, Queue: "jobs", Backend: "sqlite"}
	return New(cfg, client, "jobs-url", fakeStats{snap: dispatch.Snapshot{Received: 3, Failed: 1}}, hub, logger).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthzWithoutDepth(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newTestServer(t, mocks.NewMockClient(ctrl), "secret")

	rec := do(t, h, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "jobs", resp.Queue)
	assert.Equal(t, "sqlite", resp.Backend)
	assert.Nil(t, resp.QueueDepth)
}

func TestHealthzReportsLocalDepth(t *testing.T) {
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "q.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	local := queue.NewLocal(db, queue.LocalOptions{})
	require.NoError(t, local.CreateQueue(ctx, "jobs-url"))
	_, err = local.Send(ctx, "jobs-url", `{"command":"true"}`)
	require.NoError(t, err)

	rec := do(t, newTestServer(t, local, ""), http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.QueueDepth)
	assert.Equal(t, 1, *resp.QueueDepth)
}

func TestStatsRequiresToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newTestServer(t, mocks.NewMockClient(ctrl), "secret")

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/stats", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/stats", "", "wrong").Code)

	rec := do(t, h, http.MethodGet, "/stats", "", "secret")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "jobs", resp["queue"])
	assert.Equal(t, float64(3), resp["received"])
	assert.Equal(t, float64(1), resp["failed"])
}

func TestStatsOpenWithoutToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newTestServer(t, mocks.NewMockClient(ctrl), "")
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/stats", "", "").Code)
}

func TestEnqueue(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Send(gomock.Any(), "jobs-url", gomock.Any()).DoAndReturn(
		func(_ context.Context, _ string, body string) (string, error) {
			p, err := protocol.Decode([]byte(body))
			require.NoError(t, err)
			assert.Equal(t, protocol.Command{"echo hi"}, p.Command)
			assert.Equal(t, map[string]string{"team": "data"}, p.Tags)
			return "m-1", nil
		})

	h := newTestServer(t, client, "secret")
	rec := do(t, h, http.MethodPost, "/enqueue", `{"command":"echo hi","tags":{"team":"data"}}`, "secret")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp EnqueueResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, EnqueueResponse{MessageID: "m-1", Queue: "jobs"}, resp)
}

func TestEnqueueRejectsInvalidPayload(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newTestServer(t, mocks.NewMockClient(ctrl), "")

	for _, body := range []string{`not json`, `{"tags":{}}`, `{"command":[]}`, `{"command":1}`} {
		rec := do(t, h, http.MethodPost, "/enqueue", body, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestEnqueueTransportFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Send(gomock.Any(), "jobs-url", gomock.Any()).Return("", errors.New("throttled"))

	rec := do(t, newTestServer(t, client, ""), http.MethodPost, "/enqueue", `{"command":"true"}`, "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestEnqueueBodyTooLarge(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := newTestServer(t, mocks.NewMockClient(ctrl), "")

	body := `{"command":"` + strings.Repeat("x", maxEnqueueBody) + `"}`
	rec := do(t, h, http.MethodPost, "/enqueue", body, "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestEvents(t *testing.T) {
	ctrl := gomock.NewController(t)
	hub := events.NewHub(10)
	hub.Publish(events.Event{Type: events.MessageReceived, MessageID: "m-1"})
	hub.Publish(events.Event{Type: events.CommandFailed, MessageID: "m-1", Error: "exit status 2"})

	h := newTestServerWithHub(t, mocks.NewMockClient(ctrl), "secret", hub)

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/events", "", "").Code)

	rec := do(t, h, http.MethodGet, "/events?since=1", "", "secret")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp EventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, events.CommandFailed, resp.Events[0].Type)
	assert.Equal(t, "exit status 2", resp.Events[0].Error)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/events?since=abc", "", "secret").Code)
}

func TestEventsWithoutHub(t *testing.T) {
	ctrl := gomock.NewController(t)
	rec := do(t, newTestServer(t, mocks.NewMockClient(ctrl), ""), http.MethodGet, "/events", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"events":[]}`, rec.Body.String())
}

func TestWebhookEnqueue(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Send(gomock.Any(), "jobs-url", gomock.Any()).Return("m-9", nil)

	logger := log.New(&strings.Builder{}, "ERROR", "json")
	cfg := Config{Token: "secret", WebhookSecret: "hook-key", Queue: "jobs", Backend: "sqs"}
	h := New(cfg, client, "jobs-url", fakeStats{}, nil, logger).Handler()

	body := `{"command":["make","report"]}`
	send := func(header, sig string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhook/enqueue", strings.NewReader(body))
		if sig != "" {
			req.Header.Set(header, sig)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, send("X-Hub-Signature-256", "").Code)
	assert.Equal(t, http.StatusUnauthorized, send("X-Hub-Signature-256", auth.Sign([]byte(body), "wrong")).Code)

	rec := send("X-Signature-256", auth.Sign([]byte(body), "hook-key"))
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message_id":"m-9"`)
}

func TestWebhookDisabledWithoutSecret(t *testing.T) {
	ctrl := gomock.NewController(t)
	rec := do(t, newTestServer(t, mocks.NewMockClient(ctrl), ""), http.MethodPost, "/webhook/enqueue", `{"command":"true"}`, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
