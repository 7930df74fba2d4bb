package usage

import (
	"context"
	"time"

	"mercator-hq/switchboard/pkg/providers"
)

// Entry is one forwarded attempt. Entries are append-only.
type Entry struct {
	ID         string        `json:"id"`
	RequestID  string        `json:"request_id,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
	App        providers.App `json:"app"`
	ProviderID string        `json:"provider_id"`
	Model      string        `json:"model,omitempty"`
	Method     string        `json:"method,omitempty"`
	Path       string        `json:"path,omitempty"`
	StatusCode int           `json:"status_code"`
	LatencyMS  int64         `json:"latency_ms"`
	Success    bool          `json:"success"`
	// Attempt is 1 for the first try of a request and increases on failover.
	Attempt   int         `json:"attempt"`
	Streamed  bool        `json:"streamed"`
	ErrorKind string      `json:"error_kind,omitempty"`
	Tokens    *TokenUsage `json:"tokens,omitempty"`
}

// TokenUsage holds the token counts reported by the upstream.
type TokenUsage struct {
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheReadTokens     int64 `json:"cache_read_tokens,omitempty"`
	CacheCreationTokens int64 `json:"cache_creation_tokens,omitempty"`
}

// Total returns input plus output tokens.
func (t *TokenUsage) Total() int64 {
	if t == nil {
		return 0
	}
	return t.InputTokens + t.OutputTokens
}

// Query filters request logs. Zero values match everything.
type Query struct {
	App        string     `json:"app,omitempty"`
	ProviderID string     `json:"provider_id,omitempty"`
	Since      *time.Time `json:"since,omitempty"` // Inclusive
	Until      *time.Time `json:"until,omitempty"` // Exclusive
	Success    *bool      `json:"success,omitempty"`

	// Limit caps returned rows (default 100). Offset skips rows.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// ProviderStats aggregates request logs of one provider of one app.
type ProviderStats struct {
	App           string    `json:"app"`
	ProviderID    string    `json:"provider_id"`
	Requests      int64     `json:"requests"`
	Successes     int64     `json:"successes"`
	Failures      int64     `json:"failures"`
	SuccessRate   float64   `json:"success_rate"`
	AvgLatencyMS  float64   `json:"avg_latency_ms"`
	InputTokens   int64     `json:"input_tokens"`
	OutputTokens  int64     `json:"output_tokens"`
	LastRequestAt time.Time `json:"last_request_at"`
}

// Store persists request logs. Implementations must be safe for concurrent use.
type Store interface {
	// Append persists one entry.
	Append(ctx context.Context, entry *Entry) error

	// Query returns entries matching q, newest first.
	Query(ctx context.Context, q *Query) ([]*Entry, error)

	// Count returns the number of entries matching q, ignoring pagination.
	Count(ctx context.Context, q *Query) (int64, error)

	// Stats aggregates entries matching q per app and provider.
	Stats(ctx context.Context, q *Query) ([]ProviderStats, error)

	// DeleteBefore removes entries older than cutoff.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteOldest removes the oldest entries so that at most keep remain.
	DeleteOldest(ctx context.Context, keep int64) (int64, error)
}
