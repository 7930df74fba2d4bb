package metrics

import (
	"fmt"
	"sync"
	"time"

	"mercator-hq/switchboard/pkg/circuit"
	"mercator-hq/switchboard/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Collector is the entry point for all switchboard metrics. Methods on a nil
// or disabled collector are no-ops.
type Collector struct {
	enabled  bool
	registry *prometheus.Registry

	requestMetrics  *RequestMetrics
	providerMetrics *ProviderMetrics
	breakerMetrics  *BreakerMetrics
	stateMetrics    *StateMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector with the given configuration. If registry
// is nil a new private registry is created, with the Go runtime and process
// collectors registered.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	opts := *cfg
	if opts.Namespace == "" {
		opts.Namespace = "switchboard"
	}
	if opts.Subsystem == "" {
		opts.Subsystem = "proxy"
	}
	if len(opts.RequestDurationBuckets) == 0 {
		// Model calls range from sub-second errors to multi-minute streams.
		opts.RequestDurationBuckets = []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}
	}

	return &Collector{
		enabled:            config.BoolValue(cfg.Enabled, true),
		registry:           registry,
		requestMetrics:     NewRequestMetrics(&opts, registry),
		providerMetrics:    NewProviderMetrics(&opts, registry),
		breakerMetrics:     NewBreakerMetrics(&opts, registry),
		stateMetrics:       NewStateMetrics(&opts, registry),
		cardinalityLimiter: NewCardinalityLimiter(1000),
	}
}

func (c *Collector) active() bool {
	return c != nil && c.enabled
}

// RecordRequest records a finished inbound request. status is the HTTP status
// returned to the CLI.
//
// Example:
//
//	collector.RecordRequest("codex", "relay", 200, 4*time.Second)
func (c *Collector) RecordRequest(app, provider string, status int, duration time.Duration) {
	if !c.active() {
		return
	}
	c.requestMetrics.RecordRequest(app, provider, statusClass(status), duration)
}

// RecordAttempt records one upstream attempt and its result
// ("success", "transport", "timeout", "http_4xx", "http_5xx").
func (c *Collector) RecordAttempt(app, provider string, outcome circuit.Outcome) {
	if !c.active() {
		return
	}
	result := "success"
	if !outcome.Success {
		result = outcome.Kind.String()
		c.providerMetrics.RecordError(app, provider, result)
	}
	c.requestMetrics.RecordAttempt(app, provider, result)
	c.providerMetrics.RecordLatency(app, provider, outcome.Latency)
}

// RecordFailover records that a request moved from one provider to another.
func (c *Collector) RecordFailover(app string) {
	if !c.active() {
		return
	}
	c.requestMetrics.RecordFailover(app)
}

// RecordNoEligible records a request rejected because no provider was eligible.
func (c *Collector) RecordNoEligible(app string) {
	if !c.active() {
		return
	}
	c.requestMetrics.RecordNoEligible(app)
}

// RecordTokens records token usage reported by the upstream.
func (c *Collector) RecordTokens(app, provider, model string, input, output int64) {
	if !c.active() {
		return
	}
	if model == "" {
		model = "unknown"
	}
	if !c.cardinalityLimiter.Allow(fmt.Sprintf("%s:%s:%s", app, provider, model)) {
		model = "other"
	}
	c.requestMetrics.RecordTokens(app, provider, model, input, output)
}

// RecordProbe records an active health probe.
func (c *Collector) RecordProbe(app, provider string, outcome circuit.Outcome) {
	if !c.active() {
		return
	}
	c.providerMetrics.RecordProbe(app, provider, outcome.Success)
}

// UpdateProviderHealth sets the health badge gauge (1 available, 0 otherwise).
func (c *Collector) UpdateProviderHealth(app, provider string, available bool) {
	if !c.active() {
		return
	}
	c.providerMetrics.UpdateHealth(app, provider, available)
}

// RecordBreakerState sets the breaker state gauge of a provider.
func (c *Collector) RecordBreakerState(app, provider string, status circuit.Status) {
	if !c.active() {
		return
	}
	c.breakerMetrics.SetState(app, provider, status)
}

// RecordBreakerTransition counts a breaker transition and updates the state gauge.
func (c *Collector) RecordBreakerTransition(app string, tr circuit.Transition) {
	if !c.active() {
		return
	}
	c.breakerMetrics.RecordTransition(app, tr.ProviderID, tr.From, tr.To)
}

// ForgetProvider removes the per-provider series of a provider that was
// removed from configuration.
func (c *Collector) ForgetProvider(app, provider string) {
	if !c.active() {
		return
	}
	c.breakerMetrics.Delete(app, provider)
	c.providerMetrics.Delete(app, provider)
}

// SetTakeover sets the takeover gauge of an app.
func (c *Collector) SetTakeover(app string, enabled bool) {
	if !c.active() {
		return
	}
	c.stateMetrics.SetTakeover(app, enabled)
}

// RecordUsageDrop counts a request log entry dropped by the usage logger.
func (c *Collector) RecordUsageDrop() {
	if !c.active() {
		return
	}
	c.stateMetrics.RecordUsageDrop()
}

// RecordPruned counts request log entries deleted by retention.
func (c *Collector) RecordPruned(n int64) {
	if !c.active() || n <= 0 {
		return
	}
	c.stateMetrics.RecordPruned(n)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "other"
	}
}

// CardinalityLimiter bounds the number of unique label combinations.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter admitting at most maxCardinality label sets.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether labelSet is already known or still fits under the limit.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
