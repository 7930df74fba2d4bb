// Package circuit implements the per-provider circuit breaker that gates
// failover routing.
//
// Each provider moves through Closed, Open and HalfOpen:
//
//	Closed --(threshold consecutive failures)--> Open
//	Open --(cooldown elapsed, checked on Acquire)--> HalfOpen (one probe admitted)
//	HalfOpen --(success)--> Closed
//	HalfOpen --(failure)--> Open
//
// A Breaker holds the state of every provider of one app. States are created
// lazily the first time a provider is addressed and are reset, never
// destroyed, on manual re-enable. Every transition happens under the
// provider's own lock, so concurrent outcomes cannot lose updates or push the
// failure count past the threshold.
package circuit
