package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"

	"mercator-hq/switchboard/pkg/providers"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "proxy.port").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
//
// A configuration without providers is valid: the proxy starts and answers
// every forwarded request with a 502 error until providers are added.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateProxy(&cfg.Proxy)...)
	errs = append(errs, validateApps(cfg.Apps)...)
	errs = append(errs, validateBreaker(&cfg.Breaker)...)
	errs = append(errs, validateHealth(&cfg.Health)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateUsage(&cfg.Usage)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateProxy validates proxy configuration.
func validateProxy(cfg *ProxyConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenHost == "" {
		errs = append(errs, FieldError{
			Field:   "proxy.listen_host",
			Message: "listen host is required",
		})
	} else if !IsLoopbackHost(cfg.ListenHost) {
		errs = append(errs, FieldError{
			Field:   "proxy.listen_host",
			Message: fmt.Sprintf("listen host %q is not a loopback address", cfg.ListenHost),
		})
	}

	if cfg.Port < 0 || cfg.Port > 65535 {
		errs = append(errs, FieldError{
			Field:   "proxy.port",
			Message: fmt.Sprintf("port %d out of range (0-65535)", cfg.Port),
		})
	}

	if cfg.MaxAttempts < 1 || cfg.MaxAttempts > 3 {
		errs = append(errs, FieldError{
			Field:   "proxy.max_attempts",
			Message: fmt.Sprintf("max attempts %d out of range (1-3)", cfg.MaxAttempts),
		})
	}

	durations := []struct {
		field string
		value int64
	}{
		{"proxy.read_header_timeout", int64(cfg.ReadHeaderTimeout)},
		{"proxy.idle_timeout", int64(cfg.IdleTimeout)},
		{"proxy.shutdown_timeout", int64(cfg.ShutdownTimeout)},
		{"proxy.connect_timeout", int64(cfg.ConnectTimeout)},
		{"proxy.tls_handshake_timeout", int64(cfg.TLSHandshakeTimeout)},
		{"proxy.response_header_timeout", int64(cfg.ResponseHeaderTimeout)},
		{"proxy.request_timeout", int64(cfg.RequestTimeout)},
	}
	for _, d := range durations {
		if d.value < 0 {
			errs = append(errs, FieldError{Field: d.field, Message: "timeout must be positive"})
		}
	}

	if cfg.RequestTimeout > 0 && cfg.ResponseHeaderTimeout > cfg.RequestTimeout {
		errs = append(errs, FieldError{
			Field:   "proxy.response_header_timeout",
			Message: "response header timeout exceeds request timeout",
		})
	}

	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "proxy.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}
	if cfg.MaxHeaderBytes > 10*1024*1024 { // 10MB is excessive
		errs = append(errs, FieldError{
			Field:   "proxy.max_header_bytes",
			Message: "max header bytes exceeds reasonable limit (10MB)",
		})
	}

	return errs
}

// validateApps validates the per-app provider lists.
func validateApps(apps map[string]AppConfig) []FieldError {
	var errs []FieldError

	for name, app := range apps {
		prefix := fmt.Sprintf("apps.%s", name)

		if parsed, err := providers.ParseApp(name); err != nil || parsed.String() != name {
			errs = append(errs, FieldError{
				Field:   prefix,
				Message: fmt.Sprintf("unknown app %q: must be 'claude', 'codex', or 'gemini'", name),
			})
			continue
		}

		seen := make(map[string]bool, len(app.Providers))
		for i, p := range app.Providers {
			field := fmt.Sprintf("%s.providers[%d]", prefix, i)

			if p.ID == "" {
				errs = append(errs, FieldError{Field: field + ".id", Message: "provider id is required"})
			} else if seen[p.ID] {
				errs = append(errs, FieldError{Field: field + ".id", Message: fmt.Sprintf("duplicate provider id %q", p.ID)})
			}
			seen[p.ID] = true

			if p.BaseURL == "" {
				errs = append(errs, FieldError{Field: field + ".base_url", Message: "base URL is required"})
			} else if u, err := url.Parse(p.BaseURL); err != nil {
				errs = append(errs, FieldError{Field: field + ".base_url", Message: fmt.Sprintf("invalid URL format: %v", err)})
			} else if u.Scheme != "http" && u.Scheme != "https" {
				errs = append(errs, FieldError{Field: field + ".base_url", Message: "URL scheme must be http or https"})
			} else if u.Host == "" {
				errs = append(errs, FieldError{Field: field + ".base_url", Message: "URL host is required"})
			}

			if p.Priority < 0 {
				errs = append(errs, FieldError{Field: field + ".priority", Message: "priority must be non-negative"})
			}
		}
	}

	return errs
}

// validateBreaker validates circuit breaker configuration.
func validateBreaker(cfg *BreakerConfig) []FieldError {
	var errs []FieldError

	if cfg.FailureThreshold < 1 {
		errs = append(errs, FieldError{
			Field:   "breaker.failure_threshold",
			Message: "failure threshold must be at least 1",
		})
	}
	if cfg.Cooldown <= 0 {
		errs = append(errs, FieldError{
			Field:   "breaker.cooldown",
			Message: "cooldown must be positive",
		})
	}

	return errs
}

// validateHealth validates health tracker configuration.
func validateHealth(cfg *HealthConfig) []FieldError {
	var errs []FieldError

	if cfg.ProbeInterval < 0 {
		errs = append(errs, FieldError{Field: "health.probe_interval", Message: "probe interval must be non-negative"})
	}
	if cfg.ProbeTimeout <= 0 {
		errs = append(errs, FieldError{Field: "health.probe_timeout", Message: "probe timeout must be positive"})
	}
	if cfg.ProbeMinInterval < 0 {
		errs = append(errs, FieldError{Field: "health.probe_min_interval", Message: "probe min interval must be non-negative"})
	}

	return errs
}

// validateStorage validates storage configuration.
func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	if cfg.Path == "" {
		errs = append(errs, FieldError{Field: "storage.path", Message: "storage path is required"})
	}
	if cfg.BusyTimeout < 0 {
		errs = append(errs, FieldError{Field: "storage.busy_timeout", Message: "busy timeout must be non-negative"})
	}

	return errs
}

// validateUsage validates usage logger configuration.
func validateUsage(cfg *UsageConfig) []FieldError {
	var errs []FieldError

	if cfg.AsyncBuffer < 1 {
		errs = append(errs, FieldError{Field: "usage.async_buffer", Message: "async buffer must be at least 1"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "usage.write_timeout", Message: "write timeout must be non-negative"})
	}
	if cfg.Retention.Days < 0 {
		errs = append(errs, FieldError{Field: "usage.retention.days", Message: "retention days must be non-negative"})
	}
	if cfg.Retention.MaxRecords < 0 {
		errs = append(errs, FieldError{Field: "usage.retention.max_records", Message: "max records must be non-negative"})
	}
	if cfg.Retention.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Retention.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "usage.retention.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	case "":
		errs = append(errs, FieldError{Field: "telemetry.logging.level", Message: "logging level is required"})
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text":
	case "":
		errs = append(errs, FieldError{Field: "telemetry.logging.format", Message: "logging format is required"})
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if BoolValue(cfg.Metrics.Enabled, DefaultMetricsEnabled) && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "metrics path must start with '/'"})
	}

	if cfg.Tracing.Enabled {
		if cfg.Tracing.Exporter != "otlp" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.exporter",
				Message: fmt.Sprintf("unsupported exporter %q: must be 'otlp'", cfg.Tracing.Exporter),
			})
		}
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{Field: "telemetry.tracing.endpoint", Message: "tracing endpoint is required"})
		}
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	return errs
}

// IsLoopbackHost reports whether host names a loopback interface.
func IsLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.IsLoopback()
}
