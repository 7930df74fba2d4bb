package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// Redactor masks upstream credentials in log output.
type Redactor struct {
	patterns []redactPattern
}

type redactPattern struct {
	name        string
	regex       *regexp.Regexp
	replacement string
}

// Built-in pattern names.
const (
	PatternSecretKey   = "secret_key"
	PatternBearerToken = "bearer_token"
	PatternGoogleKey   = "google_key"
	PatternQueryKey    = "query_key"
)

// NewRedactor creates a Redactor with the built-in credential patterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: []redactPattern{
		// OpenAI and Anthropic keys (sk-..., sk-proj-..., sk-ant-...).
		{PatternSecretKey, regexp.MustCompile(`sk-[A-Za-z0-9_\-]{6,}`), "sk-***"},
		{PatternBearerToken, regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-._~+/]+=*`), "Bearer ***"},
		{PatternGoogleKey, regexp.MustCompile(`AIza[0-9A-Za-z_\-]{20,}`), "AIza***"},
		// Gemini accepts the key as a query parameter.
		{PatternQueryKey, regexp.MustCompile(`([?&]key=)[^&\s"]+`), "${1}***"},
	}}
}

// RedactString masks credential-shaped substrings of value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

// RedactAttr returns a with credentials masked. Groups are walked recursively.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		if isSensitiveKey(a.Key) {
			return slog.String(a.Key, RedactAPIKey(v.String()))
		}
		return slog.String(a.Key, r.RedactString(v.String()))
	case slog.KindGroup:
		attrs := v.Group()
		out := make([]any, len(attrs))
		for i, ga := range attrs {
			out[i] = r.RedactAttr(ga)
		}
		return slog.Group(a.Key, out...)
	case slog.KindAny:
		if isSensitiveKey(a.Key) {
			return slog.String(a.Key, "***")
		}
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
	}
	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, "***")
	}
	return slog.Attr{Key: a.Key, Value: v}
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range []string{"api_key", "apikey", "api-key", "authorization", "credential", "secret", "token", "password"} {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// RedactAPIKey redacts an API key, keeping only a prefix.
func RedactAPIKey(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	if len(apiKey) <= 4 {
		return "***"
	}
	return apiKey[:4] + "***"
}
