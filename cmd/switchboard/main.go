// Switchboard is a local failover proxy for AI coding CLIs.
//
// It sits between Claude Code, Codex and Gemini CLI and their upstream API
// providers, forwarding each request to the highest-priority healthy
// provider and failing over when one stops answering:
//   - Per-app provider lists with circuit breakers
//   - Streaming pass-through with token usage accounting
//   - Reversible takeover of each CLI's configuration file
//   - Background health probes and Prometheus metrics
//
// Usage:
//
//	# Start the proxy with ~/.switchboard/config.yaml
//	switchboard run
//
//	# Point Claude Code at the running proxy
//	switchboard takeover enable claude
//
//	# Show breaker state for every provider
//	switchboard providers list
//
//	# Summarize recorded usage for the last day
//	switchboard usage stats --since 24h
package main

func main() {
	Execute()
}
