package doctor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"

	"github.com/mattjoyce/sqs-dispatch/internal/config"
	"github.com/mattjoyce/sqs-dispatch/internal/queue"
	"github.com/mattjoyce/sqs-dispatch/internal/queue/mocks"
)

func validConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Queue.Name = "jobs"
	return cfg
}

func newDoctor(cfg *config.Config, client queue.Client) *Doctor {
	d := New(cfg, client)
	d.lookPath = func(p string) (string, error) { return p, nil }
	return d
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	r := newDoctor(validConfig(), nil).Validate(context.Background())
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got: %v", r.Warnings)
	}
}

func TestValidate_ConfigError(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Queue.Name = ""
	r := newDoctor(cfg, nil).Validate(context.Background())
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "config", "queue.name is required")
}

func TestValidate_ShellMissing(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Runner.Shell = "/nonexistent/shell"
	d := New(cfg, nil)
	d.lookPath = func(string) (string, error) { return "", errors.New("no such file") }

	r := d.Validate(context.Background())
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "runner", "/nonexistent/shell")
}

func TestValidate_QueueResolves(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Resolve(gomock.Any(), "jobs").Return("https://sqs/jobs", nil)

	r := newDoctor(validConfig(), client).Validate(context.Background())
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
}

func TestValidate_QueueNotFound(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Resolve(gomock.Any(), "jobs").Return("", queue.ErrQueueNotFound)

	r := newDoctor(validConfig(), client).Validate(context.Background())
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "queue", "does not exist")
}

func TestValidate_QueueUnreachable(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	client := mocks.NewMockClient(ctrl)
	client.EXPECT().Resolve(gomock.Any(), "jobs").Return("", errors.New("dial tcp: connection refused"))

	r := newDoctor(validConfig(), client).Validate(context.Background())
	assertHasError(t, r, "queue", "connection refused")
}

func TestValidate_WaitTimeClamped(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		backend string
		wait    time.Duration
		warn    bool
	}{
		{"sqs within limit", config.BackendSQS, 20 * time.Second, false},
		{"sqs over limit", config.BackendSQS, 30 * time.Second, true},
		{"lmstfy over sqs limit", config.BackendLmstfy, 5 * time.Minute, false},
		{"lmstfy over limit", config.BackendLmstfy, 11 * time.Minute, true},
		{"sqlite unbounded", config.BackendSQLite, time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Queue.Backend = tt.backend
			cfg.Queue.WaitTime = tt.wait
			r := newDoctor(cfg, nil).Validate(context.Background())
			got := hasWarning(r, "queue", "clamped")
			if got != tt.warn {
				t.Fatalf("clamp warning = %v, want %v (warnings: %v)", got, tt.warn, r.Warnings)
			}
		})
	}
}

func TestValidate_MetricsWarnings(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Metrics.Sinks = nil
	assertHasWarning(t, newDoctor(cfg, nil).Validate(context.Background()), "metrics", "no metrics sinks")

	cfg = validConfig()
	cfg.Metrics.Sinks = []string{config.SinkDatadog}
	cfg.Metrics.Datadog.APIKey = ""
	assertHasWarning(t, newDoctor(cfg, nil).Validate(context.Background()), "metrics", "no API key")
}

func TestValidate_APIWithoutToken(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.API.Enabled = true
	r := newDoctor(cfg, nil).Validate(context.Background())
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	assertHasWarning(t, r, "api", "without a token")
}

func TestValidate_RunnerEnvOverridden(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Runner.Env = map[string]string{"SQS_MESSAGE_ID": "static"}
	assertHasWarning(t, newDoctor(cfg, nil).Validate(context.Background()), "runner", "overrides")
}

func TestFormatHuman_Valid(t *testing.T) {
	t.Parallel()
	out := FormatHuman(&Result{Valid: true})
	if out != "Configuration valid.\n" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFormatHuman_Errors(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:    false,
		Errors:   []Issue{{Category: "queue", Field: "queue.name", Message: "broken"}},
		Warnings: []Issue{{Category: "api", Message: "open"}},
	}
	out := FormatHuman(r)
	if !strings.Contains(out, "ERROR [queue] queue.name: broken") {
		t.Fatalf("expected error in output, got: %s", out)
	}
	if !strings.Contains(out, "WARN  [api] open") {
		t.Fatalf("expected warning in output, got: %s", out)
	}
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()
	out, err := FormatJSON(&Result{Valid: true, Warnings: []Issue{{Category: "api", Message: "open"}}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `"valid": true`) || strings.Contains(out, `"errors"`) {
		t.Fatalf("unexpected JSON: %s", out)
	}
}

// --- helpers ---

func hasWarning(r *Result, category, substring string) bool {
	for _, w := range r.Warnings {
		if w.Category == category && strings.Contains(w.Message, substring) {
			return true
		}
	}
	return false
}

func assertHasError(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, e := range r.Errors {
		if e.Category == category && strings.Contains(e.Message, substring) {
			return
		}
	}
	t.Fatalf("expected error with category=%q containing %q, got: %v", category, substring, r.Errors)
}

func assertHasWarning(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	if !hasWarning(r, category, substring) {
		t.Fatalf("expected warning with category=%q containing %q, got: %v", category, substring, r.Warnings)
	}
}
