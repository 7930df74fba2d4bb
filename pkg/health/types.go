package health

import (
	"fmt"
	"time"

	"mercator-hq/switchboard/pkg/circuit"
	"mercator-hq/switchboard/pkg/providers"
)

// Badge is the display health of a provider.
type Badge int

const (
	// Unknown means the provider has not been used or probed yet.
	Unknown Badge = iota

	// Available means the last observation succeeded and the breaker admits requests.
	Available

	// Unavailable means the breaker is open or the last observation failed.
	Unavailable
)

// String returns the lowercase badge name.
func (b Badge) String() string {
	switch b {
	case Unknown:
		return "unknown"
	case Available:
		return "available"
	case Unavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("badge(%d)", int(b))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (b Badge) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Badge) UnmarshalText(text []byte) error {
	for _, v := range []Badge{Unknown, Available, Unavailable} {
		if v.String() == string(text) {
			*b = v
			return nil
		}
	}
	return fmt.Errorf("unknown badge %q", text)
}

// Observation is the most recent outcome seen for a provider.
type Observation struct {
	At         time.Time `json:"at"`
	Success    bool      `json:"success"`
	StatusCode int       `json:"status_code,omitempty"`
	LatencyMS  int64     `json:"latency_ms"`
	Kind       string    `json:"kind,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// ProviderHealth is the health view of one provider.
type ProviderHealth struct {
	App             providers.App `json:"app"`
	ProviderID      string        `json:"provider_id"`
	Name            string        `json:"name"`
	BaseURL         string        `json:"base_url"`
	Priority        int           `json:"priority"`
	Badge           Badge         `json:"badge"`
	Breaker         circuit.State `json:"breaker"`
	LastObservation *Observation  `json:"last_observation,omitempty"`
}

// CheckResult is the result of an active probe.
type CheckResult struct {
	App        providers.App `json:"app"`
	ProviderID string        `json:"provider_id"`
	Success    bool          `json:"success"`
	StatusCode int           `json:"status_code,omitempty"`
	LatencyMS  int64         `json:"latency_ms"`
	Error      string        `json:"error,omitempty"`

	// Counted reports whether the outcome was fed to the circuit breaker.
	Counted bool `json:"counted"`

	CheckedAt time.Time     `json:"checked_at"`
	Breaker   circuit.State `json:"breaker"`
}
