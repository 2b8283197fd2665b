package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads a YAML config file over Defaults(). An empty path returns the
// defaults. The result is not validated; call Validate once environment and
// flag overrides have been applied.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()
	if configPath == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %q: %w", configPath, err)
	}

	// Apply environment variable interpolation
	interpolated := interpolateEnv(string(data))

	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML %q: %w", configPath, err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg from the process environment:
//
//	QUEUE_NAME            queue.name
//	DEBUG                 service.log_level=debug when truthy
//	SQS_DISPATCH_BACKEND  queue.backend
//	DD_API_KEY, DATADOG_API_KEY  metrics.datadog.api_key when unset
//
// lookup is usually os.LookupEnv.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup("QUEUE_NAME"); ok && v != "" {
		cfg.Queue.Name = v
	}
	if v, ok := lookup("DEBUG"); ok && ParseBool(v) {
		cfg.Service.LogLevel = "debug"
	}
	if v, ok := lookup("SQS_DISPATCH_BACKEND"); ok && v != "" {
		cfg.Queue.Backend = v
	}
	if cfg.Metrics.Datadog.APIKey == "" {
		for _, name := range []string{"DD_API_KEY", "DATADOG_API_KEY"} {
			if v, ok := lookup(name); ok && v != "" {
				cfg.Metrics.Datadog.APIKey = v
				break
			}
		}
	}
}

// ParseBool accepts the usual flag spellings (1/0, true/false, yes/no, on/off).
// Anything else is false.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "on":
		return true
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// If not found, leave the placeholder (fails validation where it matters)
		return match
	})
}

// MetricsSQLitePath is the database used by the SQLite metrics sink.
func (c *Config) MetricsSQLitePath() string {
	if c.Metrics.SQLite.Path != "" {
		return c.Metrics.SQLite.Path
	}
	return c.Queue.SQLite.Path
}

// Validate checks the configuration after all overrides.
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Service.LogLevel)] {
		return fmt.Errorf("service.log_level must be one of: debug, info, warn, error (got %q)", c.Service.LogLevel)
	}
	if c.Service.LogFormat != "json" && c.Service.LogFormat != "text" {
		return fmt.Errorf("service.log_format must be json or text (got %q)", c.Service.LogFormat)
	}

	if c.Queue.Name == "" {
		return fmt.Errorf("queue.name is required (set --queue or QUEUE_NAME)")
	}
	if c.Queue.WaitTime < 0 {
		return fmt.Errorf("queue.wait_time must not be negative")
	}
	if c.Queue.VisibilityTimeout < 0 {
		return fmt.Errorf("queue.visibility_timeout must not be negative")
	}

	switch c.Queue.Backend {
	case BackendSQS:
	case BackendSQLite:
		if c.Queue.SQLite.Path == "" {
			return fmt.Errorf("queue.sqlite.path is required for the sqlite backend")
		}
	case BackendLmstfy:
		l := c.Queue.Lmstfy
		if l.Host == "" || l.Namespace == "" {
			return fmt.Errorf("queue.lmstfy.host and queue.lmstfy.namespace are required for the lmstfy backend")
		}
		if err := checkResolved("queue.lmstfy.token", l.Token, true); err != nil {
			return err
		}
	default:
		return fmt.Errorf("queue.backend must be one of: %s, %s, %s (got %q)",
			BackendSQS, BackendSQLite, BackendLmstfy, c.Queue.Backend)
	}

	if c.Runner.Shell == "" {
		return fmt.Errorf("runner.shell is required")
	}
	if c.Runner.MessageIDEnv == "" {
		return fmt.Errorf("runner.message_id_env is required")
	}
	for k, v := range c.Runner.Env {
		if err := checkResolved("runner.env."+k, v, false); err != nil {
			return err
		}
	}

	for i, sink := range c.Metrics.Sinks {
		switch sink {
		case SinkLog:
		case SinkSQLite:
			if c.MetricsSQLitePath() == "" {
				return fmt.Errorf("metrics.sqlite.path is required for the sqlite sink")
			}
		case SinkDatadog:
			// A missing key is reported by the sink at send time.
			if err := checkResolved("metrics.datadog.api_key", c.Metrics.Datadog.APIKey, false); err != nil {
				return err
			}
		default:
			return fmt.Errorf("metrics.sinks[%d] must be one of: %s, %s, %s (got %q)",
				i, SinkLog, SinkSQLite, SinkDatadog, sink)
		}
	}

	if c.API.Enabled {
		if c.API.Listen == "" {
			return fmt.Errorf("api.listen is required when api.enabled is true")
		}
		if err := checkResolved("api.token", c.API.Token, false); err != nil {
			return err
		}
		if err := checkResolved("api.webhook_secret", c.API.WebhookSecret, false); err != nil {
			return err
		}
	}
	return nil
}

// checkResolved rejects values still holding a ${VAR} placeholder so that
// secrets are never sent in their unexpanded form.
func checkResolved(field, value string, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
		return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
	}
	return nil
}
