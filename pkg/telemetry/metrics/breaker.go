package metrics

import (
	"mercator-hq/switchboard/pkg/circuit"
	"mercator-hq/switchboard/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// BreakerMetrics tracks circuit breaker state.
//
// Metrics:
//   - switchboard_proxy_breaker_state: 0=closed, 1=half_open, 2=open
//   - switchboard_proxy_breaker_transitions_total: transitions by source and target state
type BreakerMetrics struct {
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
}

// NewBreakerMetrics creates and registers breaker metrics with the provided registry.
func NewBreakerMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *BreakerMetrics {
	bm := &BreakerMetrics{
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half_open, 2=open)",
			},
			[]string{"app", "provider"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "breaker_transitions_total",
				Help:      "Total number of circuit breaker transitions",
			},
			[]string{"app", "provider", "from", "to"},
		),
	}

	registry.MustRegister(bm.state, bm.transitions)
	return bm
}

// SetState sets the state gauge.
func (bm *BreakerMetrics) SetState(app, provider string, status circuit.Status) {
	bm.state.WithLabelValues(app, provider).Set(stateValue(status))
}

// RecordTransition counts a transition and updates the state gauge.
func (bm *BreakerMetrics) RecordTransition(app, provider string, from, to circuit.Status) {
	bm.transitions.WithLabelValues(app, provider, from.String(), to.String()).Inc()
	bm.SetState(app, provider, to)
}

// Delete removes the state series of a provider.
func (bm *BreakerMetrics) Delete(app, provider string) {
	bm.state.DeleteLabelValues(app, provider)
}

func stateValue(s circuit.Status) float64 {
	switch s {
	case circuit.Closed:
		return 0
	case circuit.HalfOpen:
		return 1
	case circuit.Open:
		return 2
	}
	return -1
}
