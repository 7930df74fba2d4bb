package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"mercator-hq/switchboard/pkg/circuit"
	"mercator-hq/switchboard/pkg/failover"
	"mercator-hq/switchboard/pkg/providers"
	"mercator-hq/switchboard/pkg/proxy/types"
)

// Common proxy errors that can be checked with errors.Is().
var (
	// ErrUpstreamTransport is returned when a provider could not be reached
	// or the connection failed before response headers arrived.
	ErrUpstreamTransport = errors.New("upstream transport error")

	// ErrUpstreamHTTP is returned when a provider answered with a non-2xx status.
	ErrUpstreamHTTP = errors.New("upstream HTTP error")

	// ErrAttemptsExhausted is returned when every allowed attempt failed.
	ErrAttemptsExhausted = errors.New("upstream attempts exhausted")

	// ErrRequestTooLarge is returned when the inbound body exceeds the limit.
	ErrRequestTooLarge = errors.New("request body too large")
)

// UpstreamTransportError is a connection-level failure of one attempt.
type UpstreamTransportError struct {
	ProviderID string
	Kind       circuit.FailureKind
	Err        error
}

// Error implements the error interface.
func (e *UpstreamTransportError) Error() string {
	return fmt.Sprintf("provider %s: %s: %v", e.ProviderID, e.Kind, e.Err)
}

// Is implements error matching for errors.Is().
func (e *UpstreamTransportError) Is(target error) bool {
	return target == ErrUpstreamTransport
}

// Unwrap returns the underlying error.
func (e *UpstreamTransportError) Unwrap() error {
	return e.Err
}

// UpstreamHTTPError is a non-2xx response of one attempt. Header and Body
// hold the response so it can be relayed when no attempt succeeds.
type UpstreamHTTPError struct {
	ProviderID string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Error implements the error interface.
func (e *UpstreamHTTPError) Error() string {
	return fmt.Sprintf("provider %s returned HTTP %d", e.ProviderID, e.StatusCode)
}

// Is implements error matching for errors.Is().
func (e *UpstreamHTTPError) Is(target error) bool {
	return target == ErrUpstreamHTTP
}

// AttemptsExhaustedError is returned when a request failed on every provider
// it was allowed to try.
type AttemptsExhaustedError struct {
	App       providers.App
	Attempted []string
	LastError error
}

// Error implements the error interface.
func (e *AttemptsExhaustedError) Error() string {
	return fmt.Sprintf("%s: %d attempt(s) failed (%s): %v",
		e.App, len(e.Attempted), strings.Join(e.Attempted, ", "), e.LastError)
}

// Is implements error matching for errors.Is().
func (e *AttemptsExhaustedError) Is(target error) bool {
	return target == ErrAttemptsExhausted
}

// Unwrap returns the last attempt's error.
func (e *AttemptsExhaustedError) Unwrap() error {
	return e.LastError
}

// RequestError represents a problem with the inbound request itself.
type RequestError struct {
	Message string
	Code    string
	Param   string
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return e.Message
}

// ToErrorResponse converts a RequestError to an error envelope.
func (e *RequestError) ToErrorResponse() *types.ErrorResponse {
	return types.NewInvalidRequestError(e.Message, e.Param, e.Code)
}

// HandleError converts an error raised by the proxy itself into an error
// envelope. Upstream HTTP errors are normally relayed verbatim instead; they
// only reach this function when there is nothing to relay.
//
// Example usage:
//
//	if err != nil {
//	    WriteErrorResponse(w, HandleError(err))
//	    return
//	}
func HandleError(err error) *types.ErrorResponse {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.ToErrorResponse()
	}

	switch {
	case errors.Is(err, ErrRequestTooLarge):
		return types.NewErrorResponse(err.Error(), types.ErrorTypeRequestTooLarge, "body", types.CodeRequestTooLarge)
	case errors.Is(err, providers.ErrUnknownApp):
		return types.NewNotFoundError(err.Error(), types.CodeUnknownApp)
	case errors.Is(err, providers.ErrProviderNotFound):
		return types.NewNotFoundError(err.Error(), types.CodeProviderNotFound)
	case errors.Is(err, failover.ErrNoEligibleProvider):
		return types.NewBadGatewayError(err.Error(), types.CodeNoEligibleProvider)
	}

	var transportErr *UpstreamTransportError
	if errors.As(err, &transportErr) {
		if transportErr.Kind == circuit.FailureTimeout {
			return types.NewGatewayTimeoutError(err.Error())
		}
		return types.NewBadGatewayError(err.Error(), types.CodeUpstreamTransport)
	}

	if errors.Is(err, ErrAttemptsExhausted) {
		return types.NewBadGatewayError(err.Error(), types.CodeAttemptsExhausted)
	}

	return types.NewServerError("An internal error occurred. Please try again later.")
}
