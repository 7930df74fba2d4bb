package proxy

import (
	"net"
	"net/http"
	"time"

	"mercator-hq/switchboard/pkg/config"
)

// NewTransport returns the upstream transport. Dial, TLS handshake and
// response header waits are bounded here; the overall per-attempt deadline
// is applied by the router through the request context.
func NewTransport(cfg config.ProxyConfig) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// NewClient returns the HTTP client used for upstream attempts. Redirects
// are never followed, so credentials are never replayed to a host other than
// the provider's; a 3xx counts as a failed attempt.
func NewClient(cfg config.ProxyConfig) *http.Client {
	return &http.Client{
		Transport: NewTransport(cfg),
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
