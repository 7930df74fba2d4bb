// Package usage records one log entry per forwarded upstream attempt and
// answers usage queries.
//
// Logging is asynchronous: the proxy hands entries to a Logger, which queues
// them and writes them to a Store from a single background worker, so a slow
// disk never delays a response. Close drains the queue before returning.
//
// Token counts are extracted from upstream responses by TokenCollector
// without buffering streamed bodies: server-sent events are inspected line by
// line as they pass through, and the last usage report wins.
//
// Stores:
//   - SQLiteStore persists to the request_logs table of the state database
//   - MemoryStore keeps entries in memory (tests, usage logging disabled)
package usage
