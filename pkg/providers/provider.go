package providers

import (
	"net/url"
	"strings"
)

// Provider is an upstream API endpoint configuration that requests for one app
// can be routed to. Values are immutable once registered; reconfiguration
// replaces the whole snapshot instead of editing a provider in place.
type Provider struct {
	// ID uniquely identifies the provider within its app.
	ID string `json:"id"`

	// App is the CLI app this provider serves.
	App App `json:"app"`

	// DisplayName is a human-readable label shown in status output.
	DisplayName string `json:"display_name,omitempty"`

	// BaseURL is the upstream API root, e.g. "https://api.anthropic.com".
	// Inbound paths are appended to it.
	BaseURL string `json:"base_url"`

	// Credential is the API key sent upstream. It is never serialized.
	Credential string `json:"-"`

	// ModelMap rewrites requested model names before forwarding.
	// A "*" key acts as a catch-all target.
	ModelMap map[string]string `json:"model_map,omitempty"`

	// Priority defines failover order; lower values are tried first.
	Priority int `json:"priority"`
}

// Name returns the display name, falling back to the id.
func (p Provider) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.ID
}

// MapModel returns the upstream model name for a requested model.
// Exact matches win over the "*" wildcard; unmapped models pass through.
func (p Provider) MapModel(model string) string {
	if len(p.ModelMap) == 0 || model == "" {
		return model
	}
	if mapped, ok := p.ModelMap[model]; ok && mapped != "" {
		return mapped
	}
	if mapped, ok := p.ModelMap["*"]; ok && mapped != "" {
		return mapped
	}
	return model
}

// MaskedCredential returns the credential with everything but a short prefix
// and suffix hidden, for display purposes.
func (p Provider) MaskedCredential() string {
	c := p.Credential
	if len(c) <= 8 {
		return strings.Repeat("*", len(c))
	}
	return c[:4] + strings.Repeat("*", len(c)-8) + c[len(c)-4:]
}

// validate checks the fields that routing depends on.
func (p Provider) validate(app App) error {
	if strings.TrimSpace(p.ID) == "" {
		return &InvalidProviderError{ProviderID: p.ID, Reason: "id is required"}
	}
	if p.App != app {
		return &InvalidProviderError{ProviderID: p.ID, Reason: "registered under app " + app.String() + " but belongs to " + p.App.String()}
	}
	if p.BaseURL == "" {
		return &InvalidProviderError{ProviderID: p.ID, Reason: "base_url is required"}
	}
	u, err := url.Parse(p.BaseURL)
	if err != nil {
		return &InvalidProviderError{ProviderID: p.ID, Reason: "base_url is not a valid URL: " + err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &InvalidProviderError{ProviderID: p.ID, Reason: "base_url must use http or https"}
	}
	if u.Host == "" {
		return &InvalidProviderError{ProviderID: p.ID, Reason: "base_url must include a host"}
	}
	return nil
}

// clone returns a deep copy so snapshots never share mutable maps with callers.
func (p Provider) clone() Provider {
	if p.ModelMap != nil {
		m := make(map[string]string, len(p.ModelMap))
		for k, v := range p.ModelMap {
			m[k] = v
		}
		p.ModelMap = m
	}
	return p
}
