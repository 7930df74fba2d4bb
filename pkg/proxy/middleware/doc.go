// Package middleware provides the HTTP middleware wrapped around the proxy
// router and the control API.
//
// # Middleware Chain
//
// The server builds the chain with Chain, outermost first:
//
//	handler = Chain(router, RecoveryMiddleware, RequestIDMiddleware, LoggingMiddleware(logger), tracing.HTTPMiddleware(tracer))
//
//   - RecoveryMiddleware turns handler panics into a 500 error envelope.
//   - RequestIDMiddleware assigns a uuid (or reuses X-Request-ID) and stores
//     it in the context for this package and for the logging package.
//   - LoggingMiddleware logs one line per request. Its response writer
//     forwards Flush, so streamed upstream responses still reach the CLI
//     chunk by chunk.
//
// There is no timeout middleware: a per-attempt deadline is applied by the
// router instead, because an overall handler timeout would cut long
// streaming responses.
package middleware
