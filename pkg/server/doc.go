// Package server runs the switchboard proxy on a loopback listener.
//
// A Server wires the failover switch, health tracker, takeover manager,
// usage logger and retention scheduler from one configuration, and serves
// two kinds of traffic on the same port:
//
//   - CLI API traffic, routed by app prefix (/claude, /codex, /gemini) to
//     the proxy router, which forwards it to the active provider.
//   - The control API under /_switchboard/, plus the Prometheus endpoint.
//
// # Lifecycle
//
// Start first restores any CLI configuration left taken over by a previous
// run that did not stop cleanly, then binds the listener (port 0 picks a
// free port), hands the bound port to the takeover manager and enables
// takeover for the apps that ask for it. Stop drains in-flight requests for
// up to proxy.shutdown_timeout, closes what remains, and restores every live
// takeover before returning.
//
//	srv, err := server.New(cfg, server.Options{ConfigPath: path})
//	if err != nil {
//	    return err
//	}
//	return srv.Run(ctx) // blocks until ctx is cancelled
//
// # Control API
//
//	GET    /_switchboard/health                 liveness
//	GET    /_switchboard/ready                  readiness (storage, listener)
//	GET    /_switchboard/version                build information
//	GET    /_switchboard/status                 active provider, breakers, takeover per app
//	GET    /_switchboard/providers[?app=]       providers with breaker state and health badge
//	POST   /_switchboard/providers/{id}/check   active probe
//	POST   /_switchboard/providers/{id}/enable  manual re-enable
//	GET    /_switchboard/takeover               takeover state of every app
//	POST   /_switchboard/takeover/{app}         enable takeover
//	DELETE /_switchboard/takeover/{app}         disable takeover
//	GET    /_switchboard/usage                  request logs
//	GET    /_switchboard/usage/stats            per-provider aggregates
//	POST   /_switchboard/usage/prune            run retention now
//	POST   /_switchboard/reload                 re-read providers from the config file
//
// Errors use the same JSON envelope as proxied requests.
package server
