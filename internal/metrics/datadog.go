package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

// DefaultDatadogHost is the Datadog EU site.
const DefaultDatadogHost = "https://api.datadoghq.eu"

// DatadogSink submits points to the Datadog v1 series endpoint.
type DatadogSink struct {
	Host   string
	APIKey string
	Client *http.Client
}

// NewDatadogSink creates a sink with a short client timeout so an unreachable
// backend cannot stall the dispatch loop for long.
func NewDatadogSink(host, apiKey string) *DatadogSink {
	if host == "" {
		host = DefaultDatadogHost
	}
	return &DatadogSink{
		Host:   host,
		APIKey: apiKey,
		Client: &http.Client{Timeout: 5 * time.Second},
	}
}

type ddSeries struct {
	Metric string       `json:"metric"`
	Type   string       `json:"type"`
	Points [][2]float64 `json:"points"`
	Tags   []string     `json:"tags,omitempty"`
}

func (s *DatadogSink) Send(ctx context.Context, points []Point) error {
	if s.APIKey == "" {
		return fmt.Errorf("datadog: %w", ErrNotConfigured)
	}

	payload := struct {
		Series []ddSeries `json:"series"`
	}{Series: make([]ddSeries, 0, len(points))}
	for _, p := range points {
		payload.Series = append(payload.Series, ddSeries{
			Metric: p.Metric,
			Type:   string(p.Kind),
			Points: [][2]float64{{float64(p.Timestamp.Unix()), p.Value}},
			Tags:   ddTags(p.Tags),
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("datadog: marshal series: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Host+"/api/v1/series", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("datadog: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("DD-API-KEY", s.APIKey)

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("datadog: submit series: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("datadog: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// ddTags renders tags as sorted key:value strings.
func ddTags(tags map[string]string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	for k, v := range tags {
		out = append(out, k+":"+v)
	}
	sort.Strings(out)
	return out
}
