package logging

import (
	"context"
)

type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// AppKey is the context key for the CLI app name.
	AppKey contextKey = "app"

	// ProviderKey is the context key for the upstream provider id.
	ProviderKey contextKey = "provider"

	// ModelKey is the context key for model names.
	ModelKey contextKey = "model"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, RequestIDKey)
}

// WithApp adds the app name to the context.
func WithApp(ctx context.Context, app string) context.Context {
	return context.WithValue(ctx, AppKey, app)
}

// GetApp retrieves the app name from the context.
func GetApp(ctx context.Context) string {
	return stringValue(ctx, AppKey)
}

// WithProvider adds a provider id to the context.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, ProviderKey, provider)
}

// GetProvider retrieves the provider id from the context.
func GetProvider(ctx context.Context) string {
	return stringValue(ctx, ProviderKey)
}

// WithModel adds a model name to the context.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, ModelKey, model)
}

// GetModel retrieves the model name from the context.
func GetModel(ctx context.Context) string {
	return stringValue(ctx, ModelKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// contextAttrs returns the request-scoped fields present in ctx.
func contextAttrs(ctx context.Context) []any {
	var fields []any
	for _, key := range []contextKey{RequestIDKey, AppKey, ProviderKey, ModelKey} {
		if v := stringValue(ctx, key); v != "" {
			fields = append(fields, string(key), v)
		}
	}
	return fields
}
