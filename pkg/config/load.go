package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable override.
const EnvPrefix = "SWITCHBOARD_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML and applies defaults without validating.
// Unknown fields are rejected so typos surface early.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if cfg.Apps == nil {
		cfg.Apps = make(map[string]AppConfig)
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention SWITCHBOARD_SECTION_FIELD (e.g., SWITCHBOARD_PROXY_PORT).
// Environment variables always take precedence over file-based configuration.
//
// A missing file is not an error: the defaults are used, so the proxy can run
// with providers supplied entirely through the environment.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		cfg, err = Parse(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
		}
	case os.IsNotExist(err):
		cfg = Default()
	default:
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// DefaultPath returns ~/.switchboard/config.yaml, or config.yaml in the
// working directory if the home directory cannot be determined.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".switchboard", "config.yaml")
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables use the format SWITCHBOARD_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Proxy overrides
	envString("PROXY_LISTEN_HOST", &cfg.Proxy.ListenHost)
	envInt("PROXY_PORT", &cfg.Proxy.Port)
	envInt("PROXY_MAX_ATTEMPTS", &cfg.Proxy.MaxAttempts)
	envDuration("PROXY_CONNECT_TIMEOUT", &cfg.Proxy.ConnectTimeout)
	envDuration("PROXY_RESPONSE_HEADER_TIMEOUT", &cfg.Proxy.ResponseHeaderTimeout)
	envDuration("PROXY_REQUEST_TIMEOUT", &cfg.Proxy.RequestTimeout)
	envDuration("PROXY_SHUTDOWN_TIMEOUT", &cfg.Proxy.ShutdownTimeout)

	// Breaker overrides
	envInt("BREAKER_FAILURE_THRESHOLD", &cfg.Breaker.FailureThreshold)
	envDuration("BREAKER_COOLDOWN", &cfg.Breaker.Cooldown)

	// Health overrides
	envDuration("HEALTH_PROBE_INTERVAL", &cfg.Health.ProbeInterval)
	envDuration("HEALTH_PROBE_TIMEOUT", &cfg.Health.ProbeTimeout)

	// Storage overrides
	envString("STORAGE_PATH", &cfg.Storage.Path)
	envBoolPtr("STORAGE_WAL_MODE", &cfg.Storage.WALMode)

	// Usage overrides
	envBoolPtr("USAGE_ENABLED", &cfg.Usage.Enabled)
	envInt("USAGE_RETENTION_DAYS", &cfg.Usage.Retention.Days)
	envString("USAGE_RETENTION_PRUNE_SCHEDULE", &cfg.Usage.Retention.PruneSchedule)

	// Takeover overrides
	envString("TAKEOVER_HOME_DIR", &cfg.Takeover.HomeDir)
	envBoolPtr("TAKEOVER_RESTORE_ON_STOP", &cfg.Takeover.RestoreOnStop)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envString("TELEMETRY_LOGGING_FILE", &cfg.Telemetry.Logging.File)
	envBoolPtr("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	if val := os.Getenv(EnvPrefix + "TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}

	// Provider overrides for the primary provider of each app
	for _, app := range []string{"claude", "codex", "gemini"} {
		applyProviderEnvOverrides(cfg, app)
	}
}

// applyProviderEnvOverrides applies environment variable overrides to the
// first provider of an app. Variables follow the format
// SWITCHBOARD_<APP>_BASE_URL and SWITCHBOARD_<APP>_API_KEY. When the app has
// no providers and a base URL is given, a provider with id "env" is created.
func applyProviderEnvOverrides(cfg *Config, app string) {
	prefix := EnvPrefix + strings.ToUpper(app) + "_"
	baseURL := os.Getenv(prefix + "BASE_URL")
	apiKey := os.Getenv(prefix + "API_KEY")
	if baseURL == "" && apiKey == "" {
		return
	}

	appCfg := cfg.Apps[app]
	if len(appCfg.Providers) == 0 {
		if baseURL == "" {
			return
		}
		appCfg.Providers = []ProviderConfig{{ID: "env", Name: "env"}}
	}

	if baseURL != "" {
		appCfg.Providers[0].BaseURL = baseURL
	}
	if apiKey != "" {
		appCfg.Providers[0].APIKey = apiKey
	}
	cfg.Apps[app] = appCfg
}

func envString(name string, dst *string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envBoolPtr(name string, dst **bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = &b
		}
	}
}
