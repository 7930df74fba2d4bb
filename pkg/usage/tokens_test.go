package usage

import (
	"io"
	"strings"
	"testing"
)

func TestParseTokens(t *testing.T) {
	tests := []struct {
		name string
		body string
		want *TokenUsage
	}{
		{
			name: "anthropic message",
			body: `{"id":"msg_1","type":"message","usage":{"input_tokens":12,"output_tokens":34,"cache_read_input_tokens":5,"cache_creation_input_tokens":2}}`,
			want: &TokenUsage{InputTokens: 12, OutputTokens: 34, CacheReadTokens: 5, CacheCreationTokens: 2},
		},
		{
			name: "openai chat completion",
			body: `{"id":"chatcmpl-1","usage":{"prompt_tokens":9,"completion_tokens":4,"prompt_tokens_details":{"cached_tokens":3}}}`,
			want: &TokenUsage{InputTokens: 9, OutputTokens: 4, CacheReadTokens: 3},
		},
		{
			name: "openai responses",
			body: `{"id":"resp_1","object":"response","usage":{"input_tokens":20,"output_tokens":8,"input_tokens_details":{"cached_tokens":0}}}`,
			want: &TokenUsage{InputTokens: 20, OutputTokens: 8},
		},
		{
			name: "gemini generateContent",
			body: `{"candidates":[],"usageMetadata":{"promptTokenCount":15,"candidatesTokenCount":6,"totalTokenCount":21}}`,
			want: &TokenUsage{InputTokens: 15, OutputTokens: 6},
		},
		{
			name: "gemini json array stream",
			body: `[{"usageMetadata":{"promptTokenCount":15,"candidatesTokenCount":1}},{"usageMetadata":{"promptTokenCount":15,"candidatesTokenCount":9}}]`,
			want: &TokenUsage{InputTokens: 15, OutputTokens: 9},
		},
		{name: "no usage", body: `{"error":{"message":"overloaded"}}`},
		{name: "not json", body: `<html>bad gateway</html>`},
		{name: "empty", body: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTokens([]byte(tt.body))
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("ParseTokens() = %+v, want %+v", got, tt.want)
			}
			if got != nil && *got != *tt.want {
				t.Errorf("ParseTokens() = %+v, want %+v", *got, *tt.want)
			}
		})
	}
}

func TestTokenCollector_AnthropicStream(t *testing.T) {
	stream := "event: message_start\n" +
		`data: {"type":"message_start","message":{"id":"m","usage":{"input_tokens":25,"output_tokens":1,"cache_read_input_tokens":10}}}` + "\n\n" +
		"event: content_block_delta\n" +
		`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"hi"}}` + "\n\n" +
		"event: message_delta\n" +
		`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":42}}` + "\n\n" +
		"event: message_stop\n" +
		`data: {"type":"message_stop"}` + "\n\n"

	c := NewTokenCollector("text/event-stream; charset=utf-8")
	writeInChunks(t, c, stream, 7)

	got := c.Tokens()
	want := TokenUsage{InputTokens: 25, OutputTokens: 42, CacheReadTokens: 10}
	if got == nil || *got != want {
		t.Errorf("Tokens() = %+v, want %+v", got, want)
	}
}

func TestTokenCollector_OpenAIStream(t *testing.T) {
	stream := `data: {"choices":[{"delta":{"content":"a"}}]}` + "\r\n\r\n" +
		`data: {"choices":[],"usage":{"prompt_tokens":11,"completion_tokens":2}}` + "\r\n\r\n" +
		"data: [DONE]\r\n\r\n"

	c := NewTokenCollector("text/event-stream")
	writeInChunks(t, c, stream, 13)

	got := c.Tokens()
	if got == nil || got.InputTokens != 11 || got.OutputTokens != 2 {
		t.Errorf("Tokens() = %+v", got)
	}
}

func TestTokenCollector_ResponsesStreamWithoutTrailingNewline(t *testing.T) {
	stream := "event: response.completed\n" +
		`data: {"type":"response.completed","response":{"usage":{"input_tokens":30,"output_tokens":12}}}`

	c := NewTokenCollector("text/event-stream")
	io.WriteString(c, stream)

	got := c.Tokens()
	if got == nil || got.InputTokens != 30 || got.OutputTokens != 12 {
		t.Errorf("Tokens() = %+v", got)
	}
}

func TestTokenCollector_GeminiSSELastWins(t *testing.T) {
	stream := `data: {"usageMetadata":{"promptTokenCount":8,"candidatesTokenCount":1}}` + "\n\n" +
		`data: {"usageMetadata":{"promptTokenCount":8,"candidatesTokenCount":17}}` + "\n\n"

	c := NewTokenCollector("text/event-stream")
	io.WriteString(c, stream)

	got := c.Tokens()
	if got == nil || got.OutputTokens != 17 {
		t.Errorf("Tokens() = %+v, want output 17", got)
	}
}

func TestTokenCollector_OversizedBodyIgnored(t *testing.T) {
	c := NewTokenCollector("application/json")
	big := strings.Repeat(" ", maxBufferedBody)
	io.WriteString(c, big)
	io.WriteString(c, `{"usage":{"input_tokens":1,"output_tokens":1}}`)

	if got := c.Tokens(); got != nil {
		t.Errorf("Tokens() for oversized body = %+v, want nil", got)
	}
}

func TestTokenCollector_OversizedLineSkipped(t *testing.T) {
	c := NewTokenCollector("text/event-stream")
	io.WriteString(c, "data: {\"pad\":\""+strings.Repeat("x", maxEventLine)+"\"}\n")
	io.WriteString(c, `data: {"usage":{"input_tokens":3,"output_tokens":4}}`+"\n")

	got := c.Tokens()
	if got == nil || got.InputTokens != 3 {
		t.Errorf("Tokens() = %+v, want usage from the line after the oversized one", got)
	}
}

func writeInChunks(t *testing.T, w io.Writer, s string, size int) {
	t.Helper()
	for len(s) > 0 {
		n := size
		if n > len(s) {
			n = len(s)
		}
		if _, err := io.WriteString(w, s[:n]); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
		s = s[n:]
	}
}
