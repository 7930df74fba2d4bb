package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mercator-hq/switchboard/pkg/config"
	"mercator-hq/switchboard/pkg/telemetry/logging"
	"mercator-hq/switchboard/pkg/telemetry/metrics"
	"mercator-hq/switchboard/pkg/telemetry/tracing"
)

// Telemetry owns the process-wide logger, metrics collector and tracer.
type Telemetry struct {
	logger  *logging.Logger
	metrics *metrics.Collector
	tracer  *tracing.Tracer
}

// New builds the telemetry stack from configuration and installs the logger
// as the slog default.
func New(cfg *config.TelemetryConfig) (*Telemetry, error) {
	logger, err := logging.New(logging.ConfigFrom(cfg.Logging))
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	slog.SetDefault(logger.Slog())

	tracer, err := tracing.New(&cfg.Tracing)
	if err != nil {
		logger.Shutdown()
		return nil, fmt.Errorf("tracing: %w", err)
	}

	return &Telemetry{
		logger:  logger,
		metrics: metrics.NewCollector(&cfg.Metrics, nil),
		tracer:  tracer,
	}, nil
}

// Logger returns the configured logger.
func (t *Telemetry) Logger() *logging.Logger { return t.logger }

// Metrics returns the metrics collector.
func (t *Telemetry) Metrics() *metrics.Collector { return t.metrics }

// Tracer returns the tracer.
func (t *Telemetry) Tracer() *tracing.Tracer { return t.tracer }

// Shutdown flushes spans and closes the log file.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(t.tracer.Shutdown(ctx), t.logger.Shutdown())
}
