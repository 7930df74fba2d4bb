package config

import "time"

// Default values for configuration fields.
const (
	// Proxy defaults
	DefaultListenHost            = "127.0.0.1"
	DefaultPort                  = 15721
	DefaultReadHeaderTimeout     = 30 * time.Second
	DefaultIdleTimeout           = 120 * time.Second
	DefaultShutdownTimeout       = 30 * time.Second
	DefaultMaxHeaderBytes        = 1048576 // 1MB
	DefaultMaxAttempts           = 3
	DefaultConnectTimeout        = 10 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 2 * time.Minute
	DefaultRequestTimeout        = 10 * time.Minute
	DefaultMaxIdleConnsPerHost   = 16

	// Breaker defaults
	DefaultFailureThreshold = 5
	DefaultCooldown         = 60 * time.Second

	// Health defaults
	DefaultProbeTimeout     = 10 * time.Second
	DefaultProbeMinInterval = 10 * time.Second

	// Storage defaults
	DefaultStoragePath        = "~/.switchboard/switchboard.db"
	DefaultStorageBusyTimeout = 5 * time.Second
	DefaultStorageWALMode     = true

	// Usage defaults
	DefaultUsageEnabled        = true
	DefaultUsageAsyncBuffer    = 1000
	DefaultUsageWriteTimeout   = 5 * time.Second
	DefaultRetentionDays       = 30
	DefaultRetentionSchedule   = "0 3 * * *"
	DefaultRetentionMaxRecords = int64(0)

	// Takeover defaults
	DefaultRestoreOnStop = true

	// Telemetry defaults
	DefaultLoggingLevel       = "info"
	DefaultLoggingFormat      = "text"
	DefaultRedactCredentials  = true
	DefaultMetricsEnabled     = true
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "switchboard"
	DefaultMetricsSubsystem   = "proxy"
	DefaultTracingExporter    = "otlp"
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingSampleRatio = 1.0
	DefaultTracingServiceName = "switchboard"
	DefaultTracingTimeout     = 10 * time.Second

	// Watch defaults
	DefaultWatchDebounce = 200 * time.Millisecond
)

// DefaultRequestDurationBuckets covers short control calls up to long
// streamed completions.
var DefaultRequestDurationBuckets = []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Proxy defaults
	if cfg.Proxy.ListenHost == "" {
		cfg.Proxy.ListenHost = DefaultListenHost
	}
	if cfg.Proxy.Port == 0 {
		cfg.Proxy.Port = DefaultPort
	}
	if cfg.Proxy.ReadHeaderTimeout == 0 {
		cfg.Proxy.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if cfg.Proxy.IdleTimeout == 0 {
		cfg.Proxy.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Proxy.ShutdownTimeout == 0 {
		cfg.Proxy.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Proxy.MaxHeaderBytes == 0 {
		cfg.Proxy.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Proxy.MaxAttempts == 0 {
		cfg.Proxy.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Proxy.ConnectTimeout == 0 {
		cfg.Proxy.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Proxy.TLSHandshakeTimeout == 0 {
		cfg.Proxy.TLSHandshakeTimeout = DefaultTLSHandshakeTimeout
	}
	if cfg.Proxy.ResponseHeaderTimeout == 0 {
		cfg.Proxy.ResponseHeaderTimeout = DefaultResponseHeaderTimeout
	}
	if cfg.Proxy.RequestTimeout == 0 {
		cfg.Proxy.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Proxy.MaxIdleConnsPerHost == 0 {
		cfg.Proxy.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}

	// App defaults - provider names fall back to ids
	for name, app := range cfg.Apps {
		for i := range app.Providers {
			if app.Providers[i].Name == "" {
				app.Providers[i].Name = app.Providers[i].ID
			}
		}
		cfg.Apps[name] = app
	}

	// Breaker defaults
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Breaker.Cooldown == 0 {
		cfg.Breaker.Cooldown = DefaultCooldown
	}

	// Health defaults
	if cfg.Health.ProbeTimeout == 0 {
		cfg.Health.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.Health.ProbeMinInterval == 0 {
		cfg.Health.ProbeMinInterval = DefaultProbeMinInterval
	}

	// Storage defaults
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Storage.BusyTimeout == 0 {
		cfg.Storage.BusyTimeout = DefaultStorageBusyTimeout
	}
	if cfg.Storage.WALMode == nil {
		cfg.Storage.WALMode = boolPtr(DefaultStorageWALMode)
	}

	// Usage defaults
	if cfg.Usage.Enabled == nil {
		cfg.Usage.Enabled = boolPtr(DefaultUsageEnabled)
	}
	if cfg.Usage.AsyncBuffer == 0 {
		cfg.Usage.AsyncBuffer = DefaultUsageAsyncBuffer
	}
	if cfg.Usage.WriteTimeout == 0 {
		cfg.Usage.WriteTimeout = DefaultUsageWriteTimeout
	}
	if cfg.Usage.Retention.Days == 0 {
		cfg.Usage.Retention.Days = DefaultRetentionDays
	}
	if cfg.Usage.Retention.PruneSchedule == "" {
		cfg.Usage.Retention.PruneSchedule = DefaultRetentionSchedule
	}

	// Takeover defaults
	if cfg.Takeover.RestoreOnStop == nil {
		cfg.Takeover.RestoreOnStop = boolPtr(DefaultRestoreOnStop)
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Logging.RedactCredentials == nil {
		cfg.Telemetry.Logging.RedactCredentials = boolPtr(DefaultRedactCredentials)
	}
	if cfg.Telemetry.Metrics.Enabled == nil {
		cfg.Telemetry.Metrics.Enabled = boolPtr(DefaultMetricsEnabled)
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(cfg.Telemetry.Metrics.RequestDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.RequestDurationBuckets = append([]float64(nil), DefaultRequestDurationBuckets...)
	}
	if cfg.Telemetry.Tracing.Exporter == "" {
		cfg.Telemetry.Tracing.Exporter = DefaultTracingExporter
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Tracing.Timeout == 0 {
		cfg.Telemetry.Tracing.Timeout = DefaultTracingTimeout
	}

	// Watch defaults
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = DefaultWatchDebounce
	}
}

// Default returns a configuration with every default applied and no providers.
func Default() *Config {
	cfg := &Config{Apps: map[string]AppConfig{}}
	ApplyDefaults(cfg)
	return cfg
}

func boolPtr(b bool) *bool {
	return &b
}
