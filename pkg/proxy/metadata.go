package proxy

import (
	"net/http"
	"time"

	"mercator-hq/switchboard/pkg/providers"
	"mercator-hq/switchboard/pkg/telemetry/logging"
)

// RequestMetadata describes an inbound CLI request. It is extracted once and
// shared by every attempt for logging, tracing and usage entries.
type RequestMetadata struct {
	// RequestID is the id assigned by the request ID middleware.
	RequestID string

	// App is the CLI app that sent the request.
	App providers.App

	// Path is the path forwarded upstream, without the app prefix.
	Path string

	// Model is the requested model before any model mapping.
	Model string

	// Stream reports whether the client asked for a streamed response.
	Stream bool

	Method    string
	UserAgent string

	// Timestamp is when the request was received.
	Timestamp time.Time
}

// ExtractRequestMetadata builds the metadata of an inbound request whose app
// and forwarded path have already been detected.
func ExtractRequestMetadata(r *http.Request, app providers.App, path string, body []byte, now time.Time) *RequestMetadata {
	requestID := logging.GetRequestID(r.Context())
	if requestID == "" {
		requestID = r.Header.Get(RequestIDHeader)
	}
	return &RequestMetadata{
		RequestID: requestID,
		App:       app,
		Path:      path,
		Model:     ModelFromRequest(app, path, body),
		Stream:    IsStreamRequest(app, r, body),
		Method:    r.Method,
		UserAgent: r.UserAgent(),
		Timestamp: now,
	}
}

// LogAttrs returns the metadata as slog key/value pairs.
func (m *RequestMetadata) LogAttrs() []any {
	return []any{
		"request_id", m.RequestID,
		"app", m.App.String(),
		"method", m.Method,
		"path", m.Path,
		"model", m.Model,
		"stream", m.Stream,
	}
}
