// Package metrics exposes switchboard's Prometheus metrics.
//
// # Metrics Categories
//
//   - Request metrics: inbound requests, latency, upstream attempts, failovers, tokens
//   - Provider metrics: upstream errors by kind, active probes, health badges
//   - Breaker metrics: circuit state per provider and transition counts
//   - State metrics: takeover status per app, usage logger drops
//
// Every series is labelled with the app ("claude", "codex", "gemini") and,
// where it applies, the provider id from configuration. Model names only
// appear on the token counter and go through a cardinality limiter.
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
//	collector.RecordRequest("claude", "primary", 200, 1200*time.Millisecond)
//	collector.RecordBreakerState("claude", "primary", circuit.Open)
//
// The collector owns a private registry, so several collectors can coexist
// in tests. A nil *Collector is valid and records nothing.
package metrics
