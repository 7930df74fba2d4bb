// Package health serves the liveness and readiness endpoints of the proxy's
// control surface.
//
// Liveness only reports that the process answers. Readiness runs every
// registered check concurrently, each bounded by the checker timeout, and
// reports "degraded" with HTTP 503 if any of them fails. Switchboard
// registers a state database ping and a listener check.
//
// Provider health badges are a different concern and live in pkg/health.
package health
