package tracing

import (
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// createSampler returns a parent-based sampler. A ratio of 1 samples every
// trace, 0 samples none, anything in between samples by trace ID hash so
// that the decision is stable for a trace.
func createSampler(ratio float64) (sdktrace.Sampler, error) {
	var base sdktrace.Sampler
	switch {
	case ratio < 0 || ratio > 1:
		return nil, fmt.Errorf("sample ratio must be between 0.0 and 1.0, got %f", ratio)
	case ratio == 1:
		base = sdktrace.AlwaysSample()
	case ratio == 0:
		base = sdktrace.NeverSample()
	default:
		base = sdktrace.TraceIDRatioBased(ratio)
	}
	return sdktrace.ParentBased(base), nil
}
