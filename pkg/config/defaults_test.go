package config

import (
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	tests := []struct {
		name  string
		input Config
		check func(*testing.T, *Config)
	}{
		{
			name:  "empty config gets all defaults",
			input: Config{Apps: map[string]AppConfig{}},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Proxy.ListenHost != DefaultListenHost {
					t.Errorf("expected listen host %q, got %q", DefaultListenHost, cfg.Proxy.ListenHost)
				}
				if cfg.Proxy.Port != DefaultPort {
					t.Errorf("expected port %d, got %d", DefaultPort, cfg.Proxy.Port)
				}
				if cfg.Proxy.MaxAttempts != DefaultMaxAttempts {
					t.Errorf("expected max attempts %d, got %d", DefaultMaxAttempts, cfg.Proxy.MaxAttempts)
				}
				if cfg.Proxy.ResponseHeaderTimeout != 2*time.Minute {
					t.Errorf("expected response header timeout 2m, got %v", cfg.Proxy.ResponseHeaderTimeout)
				}
				if cfg.Proxy.RequestTimeout != 10*time.Minute {
					t.Errorf("expected request timeout 10m, got %v", cfg.Proxy.RequestTimeout)
				}
				if cfg.Breaker.FailureThreshold != 5 {
					t.Errorf("expected failure threshold 5, got %d", cfg.Breaker.FailureThreshold)
				}
				if cfg.Breaker.Cooldown != 60*time.Second {
					t.Errorf("expected cooldown 60s, got %v", cfg.Breaker.Cooldown)
				}
				if !BoolValue(cfg.Usage.Enabled, false) {
					t.Error("expected usage logging enabled by default")
				}
				if !BoolValue(cfg.Storage.WALMode, false) {
					t.Error("expected WAL mode enabled by default")
				}
				if !BoolValue(cfg.Takeover.RestoreOnStop, false) {
					t.Error("expected restore on stop enabled by default")
				}
				if cfg.Usage.Retention.PruneSchedule != DefaultRetentionSchedule {
					t.Errorf("expected prune schedule %q, got %q", DefaultRetentionSchedule, cfg.Usage.Retention.PruneSchedule)
				}
				if len(cfg.Telemetry.Metrics.RequestDurationBuckets) != len(DefaultRequestDurationBuckets) {
					t.Errorf("expected default buckets, got %v", cfg.Telemetry.Metrics.RequestDurationBuckets)
				}
			},
		},
		{
			name: "explicit false booleans are kept",
			input: Config{
				Usage:    UsageConfig{Enabled: boolPtr(false)},
				Storage:  StorageConfig{WALMode: boolPtr(false)},
				Takeover: TakeoverConfig{RestoreOnStop: boolPtr(false)},
			},
			check: func(t *testing.T, cfg *Config) {
				if BoolValue(cfg.Usage.Enabled, true) {
					t.Error("usage.enabled=false was overwritten")
				}
				if BoolValue(cfg.Storage.WALMode, true) {
					t.Error("storage.wal_mode=false was overwritten")
				}
				if BoolValue(cfg.Takeover.RestoreOnStop, true) {
					t.Error("takeover.restore_on_stop=false was overwritten")
				}
			},
		},
		{
			name: "explicit values are preserved",
			input: Config{
				Proxy:   ProxyConfig{Port: 18000, MaxAttempts: 1},
				Breaker: BreakerConfig{FailureThreshold: 2, Cooldown: time.Second},
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Proxy.Port != 18000 || cfg.Proxy.MaxAttempts != 1 {
					t.Errorf("proxy values overwritten: %+v", cfg.Proxy)
				}
				if cfg.Breaker.FailureThreshold != 2 || cfg.Breaker.Cooldown != time.Second {
					t.Errorf("breaker values overwritten: %+v", cfg.Breaker)
				}
			},
		},
		{
			name: "provider name falls back to id",
			input: Config{Apps: map[string]AppConfig{
				"claude": {Providers: []ProviderConfig{{ID: "main", BaseURL: "https://api.anthropic.com"}}},
			}},
			check: func(t *testing.T, cfg *Config) {
				if got := cfg.Apps["claude"].Providers[0].Name; got != "main" {
					t.Errorf("expected name %q, got %q", "main", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.input
			ApplyDefaults(&cfg)
			tt.check(t, &cfg)
		})
	}
}

func TestApplyDefaults_Idempotent(t *testing.T) {
	cfg := Default()
	before := *cfg
	ApplyDefaults(cfg)

	if cfg.Proxy != before.Proxy || cfg.Breaker != before.Breaker || cfg.Health != before.Health {
		t.Error("second ApplyDefaults changed scalar sections")
	}
	if cfg.Usage.Enabled != before.Usage.Enabled {
		t.Error("second ApplyDefaults replaced usage.enabled pointer")
	}
}
