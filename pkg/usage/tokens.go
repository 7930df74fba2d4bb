package usage

import (
	"bytes"
	"encoding/json"
	"strings"
)

// maxBufferedBody caps how much of a non-streamed response is kept for token
// extraction. Larger bodies are forwarded untouched and reported without tokens.
const maxBufferedBody = 4 << 20

// maxEventLine caps a single server-sent event line.
const maxEventLine = 1 << 20

// rawUsage covers the usage objects of the Anthropic Messages API and both
// OpenAI APIs (chat completions and responses).
type rawUsage struct {
	InputTokens              *int64 `json:"input_tokens"`
	OutputTokens             *int64 `json:"output_tokens"`
	CacheReadInputTokens     *int64 `json:"cache_read_input_tokens"`
	CacheCreationInputTokens *int64 `json:"cache_creation_input_tokens"`
	PromptTokens             *int64 `json:"prompt_tokens"`
	CompletionTokens         *int64 `json:"completion_tokens"`
	PromptTokensDetails      *struct {
		CachedTokens *int64 `json:"cached_tokens"`
	} `json:"prompt_tokens_details"`
	InputTokensDetails *struct {
		CachedTokens *int64 `json:"cached_tokens"`
	} `json:"input_tokens_details"`
}

type geminiUsage struct {
	PromptTokenCount        *int64 `json:"promptTokenCount"`
	CandidatesTokenCount    *int64 `json:"candidatesTokenCount"`
	CachedContentTokenCount *int64 `json:"cachedContentTokenCount"`
}

// usageEnvelope matches every place a usage report can appear in a response
// body or stream event.
type usageEnvelope struct {
	Usage   *rawUsage `json:"usage"`
	Message *struct {
		Usage *rawUsage `json:"usage"`
	} `json:"message"`
	Response *struct {
		Usage *rawUsage `json:"usage"`
	} `json:"response"`
	UsageMetadata *geminiUsage `json:"usageMetadata"`
}

// TokenCollector extracts token usage from a response as it is streamed to
// the client. Write never fails and never blocks, so it can sit behind an
// io.MultiWriter.
type TokenCollector struct {
	sse    bool
	line   []byte
	skip   bool // discarding an oversized line
	body   bytes.Buffer
	tooBig bool
	tokens TokenUsage
	seen   bool
}

// NewTokenCollector creates a collector for a response with the given
// Content-Type.
func NewTokenCollector(contentType string) *TokenCollector {
	return &TokenCollector{
		sse: strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "text/event-stream"),
	}
}

// Write observes a chunk of the response body.
func (c *TokenCollector) Write(p []byte) (int, error) {
	if !c.sse {
		if !c.tooBig {
			if c.body.Len()+len(p) > maxBufferedBody {
				c.tooBig = true
				c.body.Reset()
			} else {
				c.body.Write(p)
			}
		}
		return len(p), nil
	}

	rest := p
	for len(rest) > 0 {
		i := bytes.IndexByte(rest, '\n')
		if i < 0 {
			c.appendLine(rest)
			break
		}
		c.appendLine(rest[:i])
		c.endLine()
		rest = rest[i+1:]
	}
	return len(p), nil
}

func (c *TokenCollector) appendLine(b []byte) {
	if c.skip {
		return
	}
	if len(c.line)+len(b) > maxEventLine {
		c.skip = true
		c.line = c.line[:0]
		return
	}
	c.line = append(c.line, b...)
}

func (c *TokenCollector) endLine() {
	line := bytes.TrimRight(c.line, "\r")
	if !c.skip && bytes.HasPrefix(line, []byte("data:")) {
		data := bytes.TrimSpace(line[len("data:"):])
		if len(data) > 0 && data[0] == '{' {
			c.observe(data)
		}
	}
	c.line = c.line[:0]
	c.skip = false
}

// Tokens returns the collected usage, or nil if the response reported none.
// For non-streamed bodies it parses the buffered body.
func (c *TokenCollector) Tokens() *TokenUsage {
	if c.sse {
		if len(c.line) > 0 {
			c.endLine()
		}
	} else if !c.tooBig && c.body.Len() > 0 {
		c.observeBody(c.body.Bytes())
		c.body.Reset()
	}

	if !c.seen {
		return nil
	}
	t := c.tokens
	return &t
}

// observeBody handles a complete JSON response. Gemini's non-SSE streaming
// endpoint returns a JSON array of chunks; the last usage report wins.
func (c *TokenCollector) observeBody(body []byte) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return
	}
	if body[0] == '[' {
		var chunks []json.RawMessage
		if err := json.Unmarshal(body, &chunks); err != nil {
			return
		}
		for _, chunk := range chunks {
			c.observe(chunk)
		}
		return
	}
	c.observe(body)
}

func (c *TokenCollector) observe(data []byte) {
	var env usageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}

	if env.UsageMetadata != nil {
		c.mergeGemini(env.UsageMetadata)
	}
	if env.Usage != nil {
		c.merge(env.Usage)
	}
	if env.Message != nil && env.Message.Usage != nil {
		c.merge(env.Message.Usage)
	}
	if env.Response != nil && env.Response.Usage != nil {
		c.merge(env.Response.Usage)
	}
}

// merge overwrites the fields present in u. Anthropic streams report input
// tokens in message_start and output tokens in message_delta, so fields are
// merged rather than replaced wholesale.
func (c *TokenCollector) merge(u *rawUsage) {
	set := func(dst *int64, v *int64) {
		if v != nil {
			*dst = *v
			c.seen = true
		}
	}
	set(&c.tokens.InputTokens, u.InputTokens)
	set(&c.tokens.OutputTokens, u.OutputTokens)
	set(&c.tokens.CacheReadTokens, u.CacheReadInputTokens)
	set(&c.tokens.CacheCreationTokens, u.CacheCreationInputTokens)
	set(&c.tokens.InputTokens, u.PromptTokens)
	set(&c.tokens.OutputTokens, u.CompletionTokens)
	if u.PromptTokensDetails != nil {
		set(&c.tokens.CacheReadTokens, u.PromptTokensDetails.CachedTokens)
	}
	if u.InputTokensDetails != nil {
		set(&c.tokens.CacheReadTokens, u.InputTokensDetails.CachedTokens)
	}
}

func (c *TokenCollector) mergeGemini(u *geminiUsage) {
	if u.PromptTokenCount != nil {
		c.tokens.InputTokens = *u.PromptTokenCount
		c.seen = true
	}
	if u.CandidatesTokenCount != nil {
		c.tokens.OutputTokens = *u.CandidatesTokenCount
		c.seen = true
	}
	if u.CachedContentTokenCount != nil {
		c.tokens.CacheReadTokens = *u.CachedContentTokenCount
	}
}

// ParseTokens extracts token usage from a complete response body.
func ParseTokens(body []byte) *TokenUsage {
	c := NewTokenCollector("application/json")
	c.observeBody(body)
	if !c.seen {
		return nil
	}
	t := c.tokens
	return &t
}
