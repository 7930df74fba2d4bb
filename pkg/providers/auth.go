package providers

import (
	"net/http"
	"strings"
)

// anthropicVersion is sent on probes when the client did not supply one.
const anthropicVersion = "2023-06-01"

// ApplyCredential replaces any client-supplied credentials in h with the
// provider's own, in the header the app's upstream API expects.
func (p Provider) ApplyCredential(h http.Header) {
	h.Del("Authorization")
	h.Del("X-Api-Key")
	h.Del("X-Goog-Api-Key")
	if p.Credential == "" {
		return
	}

	switch p.App {
	case AppClaude:
		// Anthropic-compatible relays differ in which header they read.
		h.Set("X-Api-Key", p.Credential)
		h.Set("Authorization", "Bearer "+p.Credential)
	case AppCodex:
		h.Set("Authorization", "Bearer "+p.Credential)
	case AppGemini:
		h.Set("X-Goog-Api-Key", p.Credential)
	}
}

// Endpoint joins the provider base URL and an inbound path.
func (p Provider) Endpoint(path string) string {
	base := strings.TrimRight(p.BaseURL, "/")
	if path == "" {
		return base
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// ProbeRequest builds the lightweight request used to check that the
// provider is reachable and accepts the credential: a model listing.
func (p Provider) ProbeRequest() (*http.Request, error) {
	var path string
	switch p.App {
	case AppClaude:
		path = "/v1/models"
	case AppCodex:
		path = "/models"
	case AppGemini:
		path = "/v1beta/models"
	}

	req, err := http.NewRequest(http.MethodGet, p.Endpoint(path), nil)
	if err != nil {
		return nil, err
	}
	p.ApplyCredential(req.Header)
	if p.App == AppClaude {
		req.Header.Set("Anthropic-Version", anthropicVersion)
	}
	return req, nil
}
