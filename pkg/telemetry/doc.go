// Package telemetry bundles switchboard's observability: structured logging
// with credential redaction, Prometheus metrics and OpenTelemetry tracing.
//
// # Components
//
//   - logging: slog setup and the redacting handler
//   - metrics: request, attempt, breaker and takeover metrics
//   - tracing: request and attempt spans exported over OTLP gRPC
//   - health: liveness and readiness endpoints
//
// # Usage
//
//	tel, err := telemetry.New(&cfg.Telemetry)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	slog.Default().Info("proxy started") // redacted, in the configured format
//	tel.Metrics().RecordRequest("claude", "primary", 200, time.Second)
//	ctx, span := tel.Tracer().Start(ctx, "proxy.request")
//	defer span.End()
package telemetry
