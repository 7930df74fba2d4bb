// Package takeover redirects the Claude, Codex and Gemini CLIs to the local
// proxy by rewriting the base URL field of each CLI's own configuration file,
// and guarantees the original file can be restored.
//
// # Durability
//
// Before a file is touched, its original bytes and the bytes about to be
// written are stored in the takeover_backups table of the state database. A
// crash at any later point leaves a live backup row behind, and Recover
// restores it at the next startup before the proxy serves traffic. If the
// write itself fails, the row is removed again so no half-enabled state
// remains.
//
// # Byte preservation
//
// Each app has a Codec that edits only the base URL field and leaves every
// other byte of the document as it was:
//
//   - Claude: env.ANTHROPIC_BASE_URL in ~/.claude/settings.json
//   - Codex: model_providers.<model_provider>.base_url (or openai_base_url)
//     in ~/.codex/config.toml
//   - Gemini: GOOGLE_GEMINI_BASE_URL in ~/.gemini/.env
//
// Disabling takeover on an untouched file writes the original bytes back
// verbatim (or removes the file if it did not exist).
//
// # Hand edits
//
// If the file differs from what the proxy wrote, the user's version is kept:
// only the base URL is reset to its original value (or removed if the
// original had none), the original bytes are saved next to the file with a
// ".switchboard-backup" suffix, and a *ConflictWarning is returned.
package takeover
