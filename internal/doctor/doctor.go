// Package doctor checks a worker's configuration and environment before it
// starts consuming.
package doctor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mattjoyce/sqs-dispatch/internal/config"
	"github.com/mattjoyce/sqs-dispatch/internal/queue"
)

// Receive wait ceilings of the remote transports.
const (
	maxSQSWait    = 20 * time.Second
	maxLmstfyWait = 600 * time.Second
)

// ResolveTimeout bounds the queue lookup.
const ResolveTimeout = 10 * time.Second

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a resolved configuration and, when a client is given,
// that the configured queue is reachable.
type Doctor struct {
	cfg      *config.Config
	client   queue.Client
	lookPath func(string) (string, error)
}

// New creates a Doctor. client may be nil to skip the queue check.
func New(cfg *config.Config, client queue.Client) *Doctor {
	return &Doctor{cfg: cfg, client: client, lookPath: exec.LookPath}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate(ctx context.Context) *Result {
	r := &Result{Valid: true}

	if err := d.cfg.Validate(); err != nil {
		d.addError(r, "config", "", err.Error())
	}
	d.validateShell(r)
	d.validateQueue(ctx, r)
	d.warnWaitTime(r)
	d.warnMetrics(r)
	d.warnAPI(r)
	d.warnRunnerEnv(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateShell checks that the runner shell can be executed.
func (d *Doctor) validateShell(r *Result) {
	shell := d.cfg.Runner.Shell
	if shell == "" {
		return
	}
	if _, err := d.lookPath(shell); err != nil {
		d.addError(r, "runner", "runner.shell", fmt.Sprintf("shell %q not found: %v", shell, err))
	}
}

// validateQueue resolves the configured queue on the transport.
func (d *Doctor) validateQueue(ctx context.Context, r *Result) {
	if d.client == nil || d.cfg.Queue.Name == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, ResolveTimeout)
	defer cancel()

	_, err := d.client.Resolve(ctx, d.cfg.Queue.Name)
	switch {
	case err == nil:
	case errors.Is(err, queue.ErrQueueNotFound):
		d.addError(r, "queue", "queue.name",
			fmt.Sprintf("queue %q does not exist on the %s backend", d.cfg.Queue.Name, d.cfg.Queue.Backend))
	default:
		d.addError(r, "queue", "queue.name", fmt.Sprintf("cannot resolve queue %q: %v", d.cfg.Queue.Name, err))
	}
}

// warnWaitTime flags long-poll durations the transport will clamp.
func (d *Doctor) warnWaitTime(r *Result) {
	wait := d.cfg.Queue.WaitTime
	switch d.cfg.Queue.Backend {
	case config.BackendSQS:
		if wait > maxSQSWait {
			d.addWarning(r, "queue", "queue.wait_time",
				fmt.Sprintf("wait_time %s exceeds the SQS maximum and will be clamped to %s", wait, maxSQSWait))
		}
	case config.BackendLmstfy:
		if wait > maxLmstfyWait {
			d.addWarning(r, "queue", "queue.wait_time",
				fmt.Sprintf("wait_time %s exceeds the lmstfy maximum and will be clamped to %s", wait, maxLmstfyWait))
		}
	}
}

func (d *Doctor) warnMetrics(r *Result) {
	if len(d.cfg.Metrics.Sinks) == 0 {
		d.addWarning(r, "metrics", "metrics.sinks", "no metrics sinks configured; task metrics are dropped")
		return
	}
	for _, sink := range d.cfg.Metrics.Sinks {
		if sink == config.SinkDatadog && d.cfg.Metrics.Datadog.APIKey == "" {
			d.addWarning(r, "metrics", "metrics.datadog.api_key",
				"datadog sink has no API key (set DD_API_KEY); every submission will fail")
		}
	}
}

func (d *Doctor) warnAPI(r *Result) {
	if d.cfg.API.Enabled && d.cfg.API.Token == "" {
		d.addWarning(r, "api", "api.token", "API enabled without a token; /enqueue accepts anyone")
	}
}

// warnRunnerEnv flags static env entries that the message id always overrides.
func (d *Doctor) warnRunnerEnv(r *Result) {
	key := d.cfg.Runner.MessageIDEnv
	if key == "" {
		return
	}
	if _, ok := d.cfg.Runner.Env[key]; ok {
		d.addWarning(r, "runner", "runner.env."+key,
			fmt.Sprintf("%s is set per message and overrides this value", key))
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
