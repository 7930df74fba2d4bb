package metrics

import (
	"time"

	"mercator-hq/switchboard/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks inbound requests and their upstream attempts.
//
// Metrics:
//   - switchboard_proxy_requests_total: requests by app, final provider, status class
//   - switchboard_proxy_request_duration_seconds: end-to-end request duration
//   - switchboard_proxy_attempts_total: upstream attempts by result
//   - switchboard_proxy_failovers_total: requests retried on another provider
//   - switchboard_proxy_no_eligible_total: requests rejected with no eligible provider
//   - switchboard_proxy_tokens_total: tokens reported by upstreams
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	attemptsTotal   *prometheus.CounterVec
	failoversTotal  *prometheus.CounterVec
	noEligibleTotal *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
}

// NewRequestMetrics creates and registers request metrics with the provided registry.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total number of proxied requests",
			},
			[]string{"app", "provider", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "Duration of proxied requests in seconds, including streaming",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"app", "provider"},
		),
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "attempts_total",
				Help:      "Total number of upstream attempts by result",
			},
			[]string{"app", "provider", "result"},
		),
		failoversTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "failovers_total",
				Help:      "Total number of retries on another provider",
			},
			[]string{"app"},
		),
		noEligibleTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "no_eligible_total",
				Help:      "Total number of requests rejected because every provider was circuit-open",
			},
			[]string{"app"},
		),
		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "tokens_total",
				Help:      "Total number of tokens reported by upstreams",
			},
			[]string{"app", "provider", "model", "type"},
		),
	}

	registry.MustRegister(
		rm.requestsTotal,
		rm.requestDuration,
		rm.attemptsTotal,
		rm.failoversTotal,
		rm.noEligibleTotal,
		rm.tokensTotal,
	)
	return rm
}

// RecordRequest records a finished request.
func (rm *RequestMetrics) RecordRequest(app, provider, status string, duration time.Duration) {
	rm.requestsTotal.WithLabelValues(app, provider, status).Inc()
	rm.requestDuration.WithLabelValues(app, provider).Observe(duration.Seconds())
}

// RecordAttempt records one upstream attempt.
func (rm *RequestMetrics) RecordAttempt(app, provider, result string) {
	rm.attemptsTotal.WithLabelValues(app, provider, result).Inc()
}

// RecordFailover records a retry on another provider.
func (rm *RequestMetrics) RecordFailover(app string) {
	rm.failoversTotal.WithLabelValues(app).Inc()
}

// RecordNoEligible records a request with no eligible provider.
func (rm *RequestMetrics) RecordNoEligible(app string) {
	rm.noEligibleTotal.WithLabelValues(app).Inc()
}

// RecordTokens records input and output token counts.
func (rm *RequestMetrics) RecordTokens(app, provider, model string, input, output int64) {
	if input > 0 {
		rm.tokensTotal.WithLabelValues(app, provider, model, "input").Add(float64(input))
	}
	if output > 0 {
		rm.tokensTotal.WithLabelValues(app, provider, model, "output").Add(float64(output))
	}
}
