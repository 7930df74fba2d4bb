package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"mercator-hq/switchboard/pkg/providers"
	"mercator-hq/switchboard/pkg/proxy/types"
	"mercator-hq/switchboard/pkg/telemetry/tracing"
)

const (
	// MaxRequestBodySize is the default inbound body limit (32MB). Requests
	// carry whole conversations, sometimes with images.
	MaxRequestBodySize = 32 * 1024 * 1024

	// RequestIDHeader is the HTTP header for request ID propagation.
	RequestIDHeader = "X-Request-ID"
)

// hopHeaders are connection-scoped and never forwarded (RFC 9110 section 7.6.1).
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// DetectApp identifies which app sent r and returns the path to forward
// upstream. The path prefix written by takeover ("/claude", "/codex",
// "/gemini") wins; without one the headers and path shape decide.
func DetectApp(r *http.Request) (providers.App, string, error) {
	path := r.URL.Path
	for _, app := range providers.Apps() {
		prefix := "/" + app.String()
		if path == prefix {
			return app, "/", nil
		}
		if strings.HasPrefix(path, prefix+"/") {
			return app, path[len(prefix):], nil
		}
	}

	switch {
	case r.Header.Get("Anthropic-Version") != "" || r.Header.Get("X-Api-Key") != "":
		return providers.AppClaude, path, nil
	case r.Header.Get("X-Goog-Api-Key") != "" || strings.Contains(path, "/v1beta/"):
		return providers.AppGemini, path, nil
	case strings.HasSuffix(path, "/responses") || strings.HasSuffix(path, "/chat/completions") ||
		strings.Contains(path, "/responses/"):
		return providers.AppCodex, path, nil
	}
	return 0, "", &providers.UnknownAppError{Value: path}
}

// ReadBody reads the inbound body up to limit bytes. It returns
// ErrRequestTooLarge (wrapped) when the body is larger.
func ReadBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	if limit <= 0 {
		limit = MaxRequestBodySize
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, &RequestError{
			Message: fmt.Sprintf("failed to read request body: %v", err),
			Code:    types.CodeInvalidValue,
			Param:   "body",
		}
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrRequestTooLarge, limit)
	}
	return body, nil
}

// RewriteModel applies the provider's model map to the JSON body's "model"
// field. Bodies without a string model, or that are not JSON, are returned
// unchanged. The rest of the document is preserved byte for byte.
func RewriteModel(body []byte, p providers.Provider) ([]byte, error) {
	if len(p.ModelMap) == 0 || len(body) == 0 {
		return body, nil
	}
	model := gjson.GetBytes(body, "model")
	if model.Type != gjson.String {
		return body, nil
	}
	mapped := p.MapModel(model.Str)
	if mapped == model.Str {
		return body, nil
	}
	return sjson.SetBytes(body, "model", mapped)
}

// RewriteGeminiPath applies the provider's model map to the model segment of
// a Gemini path such as "/v1beta/models/gemini-pro:generateContent".
func RewriteGeminiPath(path string, p providers.Provider) string {
	if len(p.ModelMap) == 0 {
		return path
	}
	const marker = "/models/"
	i := strings.Index(path, marker)
	if i < 0 {
		return path
	}
	start := i + len(marker)
	end := strings.IndexAny(path[start:], ":/")
	if end < 0 {
		end = len(path) - start
	}
	model := path[start : start+end]
	mapped := p.MapModel(model)
	if mapped == model {
		return path
	}
	return path[:start] + mapped + path[start+end:]
}

// ModelFromRequest returns the model a request asks for: the JSON body field,
// or for Gemini the model segment of the path.
func ModelFromRequest(app providers.App, path string, body []byte) string {
	if m := gjson.GetBytes(body, "model"); m.Type == gjson.String {
		return m.Str
	}
	if app == providers.AppGemini {
		const marker = "/models/"
		if i := strings.Index(path, marker); i >= 0 {
			rest := path[i+len(marker):]
			if j := strings.IndexAny(rest, ":/"); j >= 0 {
				rest = rest[:j]
			}
			return rest
		}
	}
	return ""
}

// IsStreamRequest reports whether the client asked for a streamed response.
func IsStreamRequest(app providers.App, r *http.Request, body []byte) bool {
	if gjson.GetBytes(body, "stream").Bool() {
		return true
	}
	if app == providers.AppGemini {
		return strings.Contains(r.URL.Path, ":streamGenerateContent") || r.URL.Query().Get("alt") == "sse"
	}
	return false
}

// NewUpstreamRequest builds the outbound request for one attempt: the
// provider's base URL plus the forwarded path and query, the inbound headers
// minus hop-by-hop and client credentials, the provider's credential, and
// the model-mapped body.
func NewUpstreamRequest(ctx context.Context, in *http.Request, p providers.Provider, path string, body []byte) (*http.Request, error) {
	if p.App == providers.AppGemini {
		path = RewriteGeminiPath(path, p)
	}
	target, err := url.Parse(p.Endpoint(path))
	if err != nil {
		return nil, fmt.Errorf("build upstream URL for %s: %w", p.ID, err)
	}
	target.RawQuery = forwardQuery(in.URL)

	mapped, err := RewriteModel(body, p)
	if err != nil {
		return nil, fmt.Errorf("rewrite model for %s: %w", p.ID, err)
	}

	var reader io.Reader = http.NoBody
	if len(mapped) > 0 {
		reader = bytes.NewReader(mapped)
	}
	out, err := http.NewRequestWithContext(ctx, in.Method, target.String(), reader)
	if err != nil {
		return nil, err
	}

	copyRequestHeaders(out.Header, in.Header)
	p.ApplyCredential(out.Header)
	tracing.Inject(ctx, out.Header)
	return out, nil
}

// forwardQuery drops the Gemini "key" parameter: the credential is sent in a
// header instead, and the client's own key must never reach another provider.
func forwardQuery(u *url.URL) string {
	q := u.Query()
	if !q.Has("key") {
		return u.RawQuery
	}
	q.Del("key")
	return q.Encode()
}

func copyRequestHeaders(dst, src http.Header) {
	for k, vv := range src {
		dst[k] = append([]string(nil), vv...)
	}
	removeHopHeaders(dst)
	dst.Del("Host")
	dst.Del("Content-Length")
	// The transport negotiates compression itself and decodes it, which the
	// token collector relies on.
	dst.Del("Accept-Encoding")
}

// removeHopHeaders deletes hop-by-hop headers, including any named in the
// Connection header.
func removeHopHeaders(h http.Header) {
	for _, f := range h.Values("Connection") {
		for _, name := range strings.Split(f, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

// copyResponseHeaders copies upstream response headers to the client,
// dropping hop-by-hop headers and the length (the body may be re-chunked).
func copyResponseHeaders(dst, src http.Header) {
	for k, vv := range src {
		dst[k] = append([]string(nil), vv...)
	}
	removeHopHeaders(dst)
	dst.Del("Content-Length")
}
