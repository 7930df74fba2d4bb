package metrics

import (
	"mercator-hq/switchboard/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// StateMetrics tracks takeover and request log state.
//
// Metrics:
//   - switchboard_proxy_takeover_enabled: 1 while an app's CLI config points at the proxy
//   - switchboard_proxy_usage_dropped_total: request log entries dropped by the async logger
//   - switchboard_proxy_usage_pruned_total: request log entries deleted by retention
type StateMetrics struct {
	takeover     *prometheus.GaugeVec
	usageDropped prometheus.Counter
	usagePruned  prometheus.Counter
}

// NewStateMetrics creates and registers state metrics with the provided registry.
func NewStateMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *StateMetrics {
	sm := &StateMetrics{
		takeover: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "takeover_enabled",
				Help:      "Whether the app's CLI configuration is taken over (1) or not (0)",
			},
			[]string{"app"},
		),
		usageDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "usage_dropped_total",
			Help:      "Total number of request log entries dropped",
		}),
		usagePruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "usage_pruned_total",
			Help:      "Total number of request log entries deleted by retention",
		}),
	}

	registry.MustRegister(sm.takeover, sm.usageDropped, sm.usagePruned)
	return sm
}

// SetTakeover sets the takeover gauge.
func (sm *StateMetrics) SetTakeover(app string, enabled bool) {
	v := 0.0
	if enabled {
		v = 1.0
	}
	sm.takeover.WithLabelValues(app).Set(v)
}

// RecordUsageDrop counts a dropped entry.
func (sm *StateMetrics) RecordUsageDrop() { sm.usageDropped.Inc() }

// RecordPruned counts pruned entries.
func (sm *StateMetrics) RecordPruned(n int64) { sm.usagePruned.Add(float64(n)) }
