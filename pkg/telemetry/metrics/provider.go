package metrics

import (
	"time"

	"mercator-hq/switchboard/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// ProviderMetrics tracks upstream provider health and performance.
//
// Metrics:
//   - switchboard_proxy_provider_health: health badge (1=available, 0=otherwise)
//   - switchboard_proxy_provider_latency_seconds: time to response headers per attempt
//   - switchboard_proxy_provider_errors_total: failed attempts by kind
//   - switchboard_proxy_provider_probes_total: active probes by result
type ProviderMetrics struct {
	health  *prometheus.GaugeVec
	latency *prometheus.HistogramVec
	errors  *prometheus.CounterVec
	probes  *prometheus.CounterVec
}

// NewProviderMetrics creates and registers provider metrics with the provided registry.
func NewProviderMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ProviderMetrics {
	pm := &ProviderMetrics{
		health: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_health",
				Help:      "Provider health badge (1=available, 0=unavailable or unknown)",
			},
			[]string{"app", "provider"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_latency_seconds",
				Help:      "Upstream latency to response headers in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"app", "provider"},
		),
		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_errors_total",
				Help:      "Total number of failed upstream attempts by kind",
			},
			[]string{"app", "provider", "kind"},
		),
		probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_probes_total",
				Help:      "Total number of active health probes by result",
			},
			[]string{"app", "provider", "result"},
		),
	}

	registry.MustRegister(pm.health, pm.latency, pm.errors, pm.probes)
	return pm
}

// UpdateHealth sets the health gauge.
func (pm *ProviderMetrics) UpdateHealth(app, provider string, available bool) {
	v := 0.0
	if available {
		v = 1.0
	}
	pm.health.WithLabelValues(app, provider).Set(v)
}

// RecordLatency observes the latency of one attempt.
func (pm *ProviderMetrics) RecordLatency(app, provider string, latency time.Duration) {
	if latency > 0 {
		pm.latency.WithLabelValues(app, provider).Observe(latency.Seconds())
	}
}

// RecordError counts a failed attempt.
func (pm *ProviderMetrics) RecordError(app, provider, kind string) {
	pm.errors.WithLabelValues(app, provider, kind).Inc()
}

// RecordProbe counts an active probe.
func (pm *ProviderMetrics) RecordProbe(app, provider string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	pm.probes.WithLabelValues(app, provider, result).Inc()
}

// Delete removes the gauge series of a provider.
func (pm *ProviderMetrics) Delete(app, provider string) {
	pm.health.DeleteLabelValues(app, provider)
}
