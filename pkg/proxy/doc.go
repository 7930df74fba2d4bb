// Package proxy forwards CLI requests to upstream providers with
// circuit-breaker-gated failover.
//
// # Request flow
//
// The Router identifies the app from the path prefix written by takeover
// ("/claude", "/codex", "/gemini"), falling back to header and path
// heuristics for clients pointed at the proxy by hand. It then asks the
// failover switch for the app's active provider and forwards the request:
//
//   - the URL becomes the provider base URL plus the rest of the path and
//     the query (minus the Gemini "key" parameter);
//   - client credentials are replaced with the provider's, in the header the
//     app's API expects;
//   - hop-by-hop headers are dropped;
//   - the provider's model map is applied to the JSON "model" field (and to
//     the Gemini "models/{model}:" path segment) without re-encoding the rest
//     of the body.
//
// The response is streamed back chunk by chunk with a flush after each one,
// while a usage.TokenCollector reads token counts off the same bytes.
//
// # Failover
//
// A transport error, timeout or non-2xx status is reported to the switch and
// the request is retried on the next eligible provider, up to MaxAttempts in
// total. Retries only happen before the first byte of a response has been
// written to the CLI. When every attempt fails the last upstream status and
// body are relayed; if no provider answered at all the CLI gets a 502 (504
// for a timeout) error envelope. A CLI that disconnects releases its
// provider without counting as a failure.
//
// Every attempt produces one usage.Entry, one attempt metric and one child
// span of the request span.
package proxy
