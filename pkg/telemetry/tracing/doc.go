// Package tracing provides OpenTelemetry tracing for the proxy.
//
// Each inbound CLI request gets a server span, and each upstream attempt a
// child span carrying the provider id, attempt number and response status,
// so a failover shows up as sibling attempt spans under one request.
//
// Tracing is off by default. When enabled, spans are exported over OTLP gRPC
// to the configured collector:
//
//	telemetry:
//	  tracing:
//	    enabled: true
//	    endpoint: localhost:4317
//	    insecure: true
//	    sample_ratio: 0.25
//
// A disabled or nil *Tracer hands out noop spans, so call sites never check.
package tracing
