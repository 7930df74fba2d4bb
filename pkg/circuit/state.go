package circuit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Status is the breaker state of a single provider.
type Status int

const (
	// Closed admits all requests.
	Closed Status = iota

	// Open rejects requests until the cooldown elapses.
	Open

	// HalfOpen admits a single probe request.
	HalfOpen
)

// String returns the lowercase status name.
func (s Status) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "closed":
		*s = Closed
	case "open":
		*s = Open
	case "half_open":
		*s = HalfOpen
	default:
		return fmt.Errorf("unknown breaker status %q", text)
	}
	return nil
}

// FailureKind classifies a failed upstream attempt. All kinds count toward the
// threshold; the kind is kept for logs and metrics.
type FailureKind int

const (
	// FailureTransport is a connection-level error (refused, reset, DNS).
	FailureTransport FailureKind = iota

	// FailureTimeout is a dial, header or overall request timeout.
	FailureTimeout

	// FailureClientHTTP is a 4xx response from the provider.
	FailureClientHTTP

	// FailureServerHTTP is a 5xx (or other non-2xx) response from the provider.
	FailureServerHTTP
)

// String returns the label used for metrics.
func (k FailureKind) String() string {
	switch k {
	case FailureTransport:
		return "transport"
	case FailureTimeout:
		return "timeout"
	case FailureClientHTTP:
		return "http_4xx"
	case FailureServerHTTP:
		return "http_5xx"
	default:
		return fmt.Sprintf("failure(%d)", int(k))
	}
}

// ClassifyStatus maps an HTTP status code to a failure kind. The second result
// is false only for 2xx codes; redirects are not followed, so a 3xx is a
// failed attempt like any other non-2xx.
func ClassifyStatus(code int) (FailureKind, bool) {
	switch {
	case code >= 200 && code < 300:
		return 0, false
	case code >= 400 && code < 500:
		return FailureClientHTTP, true
	default:
		return FailureServerHTTP, true
	}
}

// ClassifyError maps a transport error to FailureTimeout or FailureTransport.
func ClassifyError(err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return FailureTimeout
	}
	return FailureTransport
}

// Outcome is the result of one upstream attempt as reported by the proxy or the
// health prober.
type Outcome struct {
	Success    bool
	Kind       FailureKind
	StatusCode int
	Latency    time.Duration
	Err        error
}

// Succeeded builds a success outcome.
func Succeeded(statusCode int, latency time.Duration) Outcome {
	if statusCode == 0 {
		statusCode = http.StatusOK
	}
	return Outcome{Success: true, StatusCode: statusCode, Latency: latency}
}

// Failed builds a failure outcome.
func Failed(kind FailureKind, statusCode int, latency time.Duration, err error) Outcome {
	return Outcome{Kind: kind, StatusCode: statusCode, Latency: latency, Err: err}
}

// State is a read-only copy of a provider's breaker state.
type State struct {
	ProviderID          string      `json:"provider_id"`
	Status              Status      `json:"status"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	OpenedAt            time.Time   `json:"opened_at,omitempty"`
	HalfOpenTrials      int         `json:"half_open_trials"`
	LastFailure         FailureKind `json:"-"`
	LastFailureAt       time.Time   `json:"last_failure_at,omitempty"`
	LastSuccessAt       time.Time   `json:"last_success_at,omitempty"`
}

// Transition describes a status change, delivered to the observer after the
// provider's lock is released.
type Transition struct {
	ProviderID string
	From       Status
	To         Status
	At         time.Time
	Failures   int
}
