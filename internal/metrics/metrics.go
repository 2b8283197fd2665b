// Package metrics records task outcomes to a best-effort sink.
//
// Capture wraps one unit of work. It emits a success or failure count and the
// elapsed duration, tagged with the caller's tags, and returns the work's
// error untouched. Sink failures are logged and dropped; they never reach the
// caller.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "ag.sqs_dispatch"

// ErrNotConfigured is returned by sinks that lack credentials or a target.
var ErrNotConfigured = errors.New("metrics sink not configured")

// Kind is the metric type understood by the backends.
type Kind string

const (
	KindCount Kind = "count"
	KindGauge Kind = "gauge"
)

// Point is a single measurement.
type Point struct {
	Metric    string
	Kind      Kind
	Value     float64
	Tags      map[string]string
	Timestamp time.Time
}

// Sink delivers points to a metrics backend.
type Sink interface {
	Send(ctx context.Context, points []Point) error
}

// Recorder emits task metrics under a namespace.
type Recorder struct {
	sink      Sink
	namespace string
	logger    *slog.Logger
	now       func() time.Time
}

// NewRecorder creates a Recorder. An empty namespace uses DefaultNamespace;
// a nil sink discards everything.
func NewRecorder(sink Sink, namespace string, logger *slog.Logger) *Recorder {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{sink: sink, namespace: namespace, logger: logger, now: time.Now}
}

// Capture runs body and records its outcome with tags. The error returned is
// exactly the one body returned.
func (r *Recorder) Capture(ctx context.Context, tags map[string]string, body func() error) error {
	start := r.now()
	err := body()
	elapsed := r.now().Sub(start)

	event := "success"
	pointTags := copyTags(tags)
	if err != nil {
		event = "failure"
		pointTags["error"] = Category(err)
	}

	ts := r.now()
	r.emit(ctx, []Point{
		{Metric: r.namespace + ".task." + event, Kind: KindCount, Value: 1, Tags: pointTags, Timestamp: ts},
		{Metric: r.namespace + ".task.duration", Kind: KindGauge, Value: elapsed.Seconds(), Tags: pointTags, Timestamp: ts},
	})
	return err
}

func (r *Recorder) emit(ctx context.Context, points []Point) {
	if r.sink == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("metrics sink panicked, dropping points", "panic", fmt.Sprint(p))
		}
	}()

	if err := r.sink.Send(ctx, points); err != nil {
		if errors.Is(err, ErrNotConfigured) {
			r.logger.Warn("metrics sink not configured, not sending metrics", "error", err)
			return
		}
		r.logger.Error("failed to send metrics", "error", err, "points", len(points))
	}
}

// Category names an error for the failure tag. Errors may name themselves by
// implementing Category() string; the first such error in the wrap chain wins.
// Otherwise the dynamic type name of err is used.
func Category(err error) string {
	var named interface{ Category() string }
	if errors.As(err, &named) {
		return named.Category()
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return name
	}
	return strings.TrimPrefix(t.String(), "*")
}

func copyTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		out[k] = v
	}
	return out
}
