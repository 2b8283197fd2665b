package config

import "time"

// Queue transports.
const (
	BackendSQS    = "sqs"
	BackendSQLite = "sqlite"
	BackendLmstfy = "lmstfy"
)

// Metrics sinks.
const (
	SinkLog     = "log"
	SinkSQLite  = "sqlite"
	SinkDatadog = "datadog"
)

// Config represents the complete sqs-dispatch configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Queue   QueueConfig   `yaml:"queue"`
	Runner  RunnerConfig  `yaml:"runner"`
	Metrics MetricsConfig `yaml:"metrics"`
	API     APIConfig     `yaml:"api"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// PIDFile, when set, makes process refuse to start while another
	// instance holds the same file.
	PIDFile string `yaml:"pid_file"`
}

// QueueConfig selects the queue and the transport that serves it.
type QueueConfig struct {
	Name    string `yaml:"name"`
	Backend string `yaml:"backend"`
	// WaitTime is the long-poll duration of each receive.
	WaitTime time.Duration `yaml:"wait_time"`
	// VisibilityTimeout overrides the queue default when non-zero.
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`

	SQS    SQSConfig    `yaml:"sqs"`
	SQLite SQLiteConfig `yaml:"sqlite"`
	Lmstfy LmstfyConfig `yaml:"lmstfy"`
}

// SQSConfig configures the AWS transport. Credentials come from the default
// AWS chain.
type SQSConfig struct {
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// SQLiteConfig configures the local SQLite transport.
type SQLiteConfig struct {
	Path         string        `yaml:"path"`
	AutoCreate   bool          `yaml:"auto_create"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// LmstfyConfig configures the lmstfy transport.
type LmstfyConfig struct {
	Host      string        `yaml:"host"`
	Port      int           `yaml:"port"`
	Namespace string        `yaml:"namespace"`
	Token     string        `yaml:"token"`
	Tries     uint16        `yaml:"tries"`
	TTL       time.Duration `yaml:"ttl"`
}

// RunnerConfig configures command execution.
type RunnerConfig struct {
	Shell        string            `yaml:"shell"`
	MessageIDEnv string            `yaml:"message_id_env"`
	Env          map[string]string `yaml:"env,omitempty"`
}

// MetricsConfig selects where task metrics go.
type MetricsConfig struct {
	Namespace string        `yaml:"namespace"`
	Sinks     []string      `yaml:"sinks"`
	Datadog   DatadogConfig `yaml:"datadog"`
	// SQLite.Path defaults to queue.sqlite.path.
	SQLite SQLiteMetricsConfig `yaml:"sqlite"`
}

// DatadogConfig configures the Datadog sink. An empty APIKey falls back to
// DD_API_KEY or DATADOG_API_KEY.
type DatadogConfig struct {
	APIHost string `yaml:"api_host"`
	APIKey  string `yaml:"api_key"`
}

// SQLiteMetricsConfig configures the SQLite metrics sink.
type SQLiteMetricsConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines the status HTTP server.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// Token, when set, is required as a bearer token on /stats, /events and
	// /enqueue.
	Token string `yaml:"token"`
	// WebhookSecret enables POST /webhook/enqueue with HMAC-SHA256 signed
	// bodies.
	WebhookSecret string `yaml:"webhook_secret"`
}

// Defaults returns a config with default values.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "sqs-dispatch",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Queue: QueueConfig{
			Backend:  BackendSQS,
			WaitTime: 20 * time.Second,
			SQLite: SQLiteConfig{
				Path:         "./data/sqs-dispatch.db",
				PollInterval: 250 * time.Millisecond,
			},
			Lmstfy: LmstfyConfig{
				Port:  7777,
				Tries: 3,
			},
		},
		Runner: RunnerConfig{
			Shell:        "/bin/sh",
			MessageIDEnv: "SQS_MESSAGE_ID",
		},
		Metrics: MetricsConfig{
			Namespace: "ag.sqs_dispatch",
			Sinks:     []string{SinkLog},
			Datadog: DatadogConfig{
				APIHost: "https://api.datadoghq.eu",
			},
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "localhost:8080",
		},
	}
}
