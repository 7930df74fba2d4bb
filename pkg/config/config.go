package config

import "time"

// Config is the root configuration structure for switchboard.
// It contains the proxy listener settings, per-app provider lists, circuit
// breaker tuning, storage, usage logging and telemetry.
type Config struct {
	// Proxy contains the loopback listener and upstream forwarding settings.
	Proxy ProxyConfig `yaml:"proxy"`

	// Apps contains per-app provider lists and takeover settings.
	// Keys are app names: "claude", "codex", "gemini".
	Apps map[string]AppConfig `yaml:"apps"`

	// Breaker contains circuit breaker tuning shared by all apps.
	Breaker BreakerConfig `yaml:"breaker"`

	// Health contains active probe settings for the health tracker.
	Health HealthConfig `yaml:"health"`

	// Storage contains the SQLite state database settings. The database
	// holds takeover backups and request logs.
	Storage StorageConfig `yaml:"storage"`

	// Usage contains request/usage logging and retention settings.
	Usage UsageConfig `yaml:"usage"`

	// Takeover contains settings for rewriting CLI configuration files.
	Takeover TakeoverConfig `yaml:"takeover"`

	// Telemetry contains logging, metrics and tracing configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Watch controls hot reload of the apps section.
	Watch WatchConfig `yaml:"watch"`
}

// ProxyConfig contains configuration for the loopback proxy server.
type ProxyConfig struct {
	// ListenHost is the loopback host to bind. Only loopback addresses are accepted.
	// Default: "127.0.0.1"
	ListenHost string `yaml:"listen_host"`

	// Port is the TCP port to bind. The bound port is what takeover writes
	// into CLI configuration files.
	// Default: 15721
	Port int `yaml:"port"`

	// ReadHeaderTimeout bounds how long the server waits for request headers.
	// Request bodies and streamed responses are not bounded by the server.
	// Default: 30s
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// IdleTimeout is the keep-alive idle timeout for CLI connections.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the grace period for in-flight requests on stop.
	// After it elapses remaining connections are closed.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxAttempts is the total number of upstream attempts per request,
	// including the first one. Valid range: 1-3.
	// Default: 3
	MaxAttempts int `yaml:"max_attempts"`

	// ConnectTimeout bounds TCP connection setup to a provider.
	// Default: 10s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// TLSHandshakeTimeout bounds the TLS handshake with a provider.
	// Default: 10s
	TLSHandshakeTimeout time.Duration `yaml:"tls_handshake_timeout"`

	// ResponseHeaderTimeout bounds the wait for the provider's response headers.
	// Default: 2m
	ResponseHeaderTimeout time.Duration `yaml:"response_header_timeout"`

	// RequestTimeout is the overall per-attempt deadline. It is generous
	// because model responses stream for a long time; it guards against hung
	// connections rather than slow streams.
	// Default: 10m
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxIdleConnsPerHost sizes the upstream connection pool.
	// Default: 16
	MaxIdleConnsPerHost int `yaml:"max_idle_conns_per_host"`
}

// AppConfig contains configuration for one CLI app.
type AppConfig struct {
	// Providers is the ordered list of upstream providers for the app.
	Providers []ProviderConfig `yaml:"providers"`

	// Takeover enables rewriting the app's CLI configuration to point at the
	// proxy when the proxy starts.
	// Default: false
	Takeover bool `yaml:"takeover"`

	// ConfigPath overrides the location of the app's CLI configuration file.
	// Defaults: ~/.claude/settings.json, ~/.codex/config.toml, ~/.gemini/.env
	ConfigPath string `yaml:"config_path"`
}

// ProviderConfig contains configuration for a single upstream provider.
type ProviderConfig struct {
	// ID uniquely identifies the provider within its app.
	ID string `yaml:"id"`

	// Name is a display name.
	Name string `yaml:"name"`

	// BaseURL is the upstream API root.
	// Example: "https://api.anthropic.com"
	BaseURL string `yaml:"base_url"`

	// APIKey is the credential sent upstream.
	// Use APIKeyEnv to keep keys out of the file.
	APIKey string `yaml:"api_key"`

	// APIKeyEnv names an environment variable holding the credential.
	// It is used when APIKey is empty.
	APIKeyEnv string `yaml:"api_key_env"`

	// ModelMap rewrites requested model names. "*" maps every other model.
	ModelMap map[string]string `yaml:"model_map"`

	// Priority defines failover order (ascending). Providers with equal
	// priority keep their list order.
	// Default: 0
	Priority int `yaml:"priority"`
}

// BreakerConfig contains circuit breaker configuration.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens a breaker.
	// Default: 5
	FailureThreshold int `yaml:"failure_threshold"`

	// Cooldown is how long an open breaker waits before admitting a probe.
	// Default: 60s
	Cooldown time.Duration `yaml:"cooldown"`
}

// HealthConfig contains health tracker configuration.
type HealthConfig struct {
	// ProbeInterval is the period of background probes of open providers.
	// 0 disables background probing; on-demand checks still work.
	// Default: 0
	ProbeInterval time.Duration `yaml:"probe_interval"`

	// ProbeTimeout bounds a single active probe.
	// Default: 10s
	ProbeTimeout time.Duration `yaml:"probe_timeout"`

	// ProbeMinInterval is the minimum spacing between active probes of the
	// same provider.
	// Default: 10s
	ProbeMinInterval time.Duration `yaml:"probe_min_interval"`
}

// StorageConfig contains SQLite state database configuration.
type StorageConfig struct {
	// Path is the database file. "~" is expanded to the home directory.
	// Default: "~/.switchboard/switchboard.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long SQLite waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode *bool `yaml:"wal_mode"`
}

// UsageConfig contains request/usage logger configuration.
type UsageConfig struct {
	// Enabled controls whether request logs are persisted.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// AsyncBuffer is the capacity of the logger's write queue.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout is how long Log waits for queue space before dropping an entry.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Retention controls pruning of old request logs.
	Retention RetentionConfig `yaml:"retention"`
}

// RetentionConfig contains request log retention configuration.
type RetentionConfig struct {
	// Days is how long request logs are kept. 0 keeps them forever.
	// Default: 30
	Days int `yaml:"days"`

	// MaxRecords caps the number of stored request logs. 0 means unlimited.
	// Default: 0
	MaxRecords int64 `yaml:"max_records"`

	// PruneSchedule is a standard cron expression for pruning runs.
	// Empty disables scheduled pruning.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// TakeoverConfig contains CLI configuration takeover settings.
type TakeoverConfig struct {
	// HomeDir overrides the home directory used to locate CLI config files.
	// Default: the current user's home directory
	HomeDir string `yaml:"home_dir"`

	// RestoreOnStop restores every taken-over configuration when the proxy stops.
	// Default: true
	RestoreOnStop *bool `yaml:"restore_on_stop"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains OpenTelemetry tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the log output format: "json", "text".
	// Default: "text"
	Format string `yaml:"format"`

	// AddSource includes file and line in log records.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactCredentials masks API keys that appear in log attributes.
	// Default: true
	RedactCredentials *bool `yaml:"redact_credentials"`

	// File is an optional log file; empty logs to stderr.
	File string `yaml:"file"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and exposed.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the HTTP path for the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "switchboard"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	// Default: "proxy"
	Subsystem string `yaml:"subsystem"`

	// RequestDurationBuckets defines histogram buckets for request duration (seconds).
	// Default: [0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300]
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Exporter selects the span exporter. Only "otlp" is supported.
	// Default: "otlp"
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	// Default: false
	Insecure bool `yaml:"insecure"`

	// SampleRatio is the fraction of traces to sample (0.0 to 1.0).
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName is the service name in traces.
	// Default: "switchboard"
	ServiceName string `yaml:"service_name"`

	// Timeout bounds span exports.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`
}

// WatchConfig controls hot reload of provider configuration.
type WatchConfig struct {
	// Enabled watches the config file and applies provider changes live.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Debounce is the quiet period before a change is applied.
	// Default: 200ms
	Debounce time.Duration `yaml:"debounce"`
}

// BoolValue dereferences an optional boolean, returning def when unset.
func BoolValue(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
