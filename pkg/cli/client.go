package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mercator-hq/switchboard/pkg/proxy/types"
)

// DefaultClientTimeout bounds one control API call. Active probes take up
// to health.probe_timeout, so it is kept well above that.
const DefaultClientTimeout = 60 * time.Second

// Client calls the control API of a running proxy.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient creates a client for the proxy listening at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: DefaultClientTimeout},
	}
}

// Get sends a GET request and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, out)
}

// Post sends a POST request without a body.
func (c *Client) Post(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodPost, path, query, out)
}

// Delete sends a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodDelete, path, query, out)
}

// Do sends a request to path under the control API. An unreachable proxy
// yields an error matching ErrProxyUnavailable; an error envelope yields an
// *APIError. out may be nil.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, out any) error {
	target := c.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w at %s: %v", ErrProxyUnavailable, c.BaseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var envelope types.ErrorResponse
		if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
			apiErr.Type = envelope.Error.Type
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
