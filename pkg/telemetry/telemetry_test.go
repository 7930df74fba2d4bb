package telemetry

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mercator-hq/switchboard/pkg/config"
)

func TestNew(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cfg := config.Default().Telemetry
	cfg.Logging.File = filepath.Join(t.TempDir(), "switchboard.log")

	tel, err := New(&cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if tel.Tracer().Enabled() {
		t.Error("tracing should be disabled by default")
	}
	if tel.Metrics() == nil {
		t.Fatal("Metrics() = nil")
	}

	slog.Default().Info("upstream key", "api_key", "sk-ant-supersecret")
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	data, err := os.ReadFile(cfg.Logging.File)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "upstream key") || strings.Contains(string(data), "supersecret") {
		t.Errorf("log file = %s", data)
	}
}

func TestNew_InvalidLogging(t *testing.T) {
	cfg := config.Default().Telemetry
	cfg.Logging.Level = "chatty"
	if _, err := New(&cfg); err == nil {
		t.Error("New() with invalid level should fail")
	}
}
