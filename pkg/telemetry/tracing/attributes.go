package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys. Switchboard-specific keys use the "switchboard.*" namespace.
const (
	AttrApp        = "switchboard.app"
	AttrProvider   = "switchboard.provider"
	AttrModel      = "switchboard.model"
	AttrRequestID  = "switchboard.request_id"
	AttrAttempt    = "switchboard.attempt"
	AttrFailure    = "switchboard.failure_kind"
	AttrStreamed   = "switchboard.streamed"
	AttrStatusCode = "http.status_code"

	AttrTokensInput  = "switchboard.tokens.input"
	AttrTokensOutput = "switchboard.tokens.output"

	AttrErrorMessage = "error.message"
)

// SetRequestAttributes sets the attributes of an inbound request span.
func SetRequestAttributes(span trace.Span, app, requestID, model string) {
	attrs := []attribute.KeyValue{
		attribute.String(AttrApp, app),
		attribute.String(AttrRequestID, requestID),
	}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrModel, model))
	}
	span.SetAttributes(attrs...)
}

// SetAttemptAttributes sets the attributes of an upstream attempt span.
func SetAttemptAttributes(span trace.Span, provider string, attempt, statusCode int) {
	span.SetAttributes(
		attribute.String(AttrProvider, provider),
		attribute.Int(AttrAttempt, attempt),
		attribute.Int(AttrStatusCode, statusCode),
	)
}

// SetTokenAttributes sets token counts on a span.
func SetTokenAttributes(span trace.Span, input, output int64) {
	span.SetAttributes(
		attribute.Int64(AttrTokensInput, input),
		attribute.Int64(AttrTokensOutput, output),
	)
}
