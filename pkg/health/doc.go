// Package health reports per-provider health badges and runs active probes.
//
// Passive health comes from the outcomes the failover switch already sees:
// the Tracker subscribes to them and keeps the latest observation of every
// provider. Active health comes from CheckNow, which sends a model listing
// request with the provider's credential. Concurrent checks of one provider
// share a single probe, and each provider is probed at most once per
// ProbeMinInterval.
//
// Badges are for display only. Routing decisions are made by the circuit
// breaker alone.
package health
