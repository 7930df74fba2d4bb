package providers

import (
	"fmt"
	"strings"
)

// App identifies one of the managed CLI tools. The set is closed: every switch
// over App in this module handles all three values.
type App int

const (
	// AppClaude is the Claude Code CLI (Anthropic Messages API).
	AppClaude App = iota

	// AppCodex is the Codex CLI (OpenAI Responses / Chat Completions API).
	AppCodex

	// AppGemini is the Gemini CLI (Google Generative Language API).
	AppGemini
)

// NumApps is the number of supported apps. It sizes the per-app arrays used by
// the failover switch and takeover manager.
const NumApps = 3

// Apps returns all supported apps in a stable order.
func Apps() []App {
	return []App{AppClaude, AppCodex, AppGemini}
}

// String returns the lowercase app name used in configuration, URLs and logs.
func (a App) String() string {
	switch a {
	case AppClaude:
		return "claude"
	case AppCodex:
		return "codex"
	case AppGemini:
		return "gemini"
	default:
		return fmt.Sprintf("app(%d)", int(a))
	}
}

// Valid reports whether a is one of the supported apps.
func (a App) Valid() bool {
	switch a {
	case AppClaude, AppCodex, AppGemini:
		return true
	default:
		return false
	}
}

// Index returns the array slot for a. It panics for invalid values, which can
// only be produced by a conversion from an unchecked integer.
func (a App) Index() int {
	if !a.Valid() {
		panic(fmt.Sprintf("providers: invalid app %d", int(a)))
	}
	return int(a)
}

// MarshalText implements encoding.TextMarshaler so App can be used as a JSON
// object key.
func (a App) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, &UnknownAppError{Value: a.String()}
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *App) UnmarshalText(text []byte) error {
	parsed, err := ParseApp(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseApp converts a case-insensitive app name into an App.
func ParseApp(s string) (App, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "claude", "claude-code", "claude_code":
		return AppClaude, nil
	case "codex":
		return AppCodex, nil
	case "gemini", "gemini-cli":
		return AppGemini, nil
	default:
		return 0, &UnknownAppError{Value: s}
	}
}
