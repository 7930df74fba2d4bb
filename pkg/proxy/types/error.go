package types

import "net/http"

// ErrorResponse is the error envelope returned by the proxy and control API.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error information.
type ErrorDetail struct {
	// Message is a human-readable description of the error.
	Message string `json:"message"`

	// Type categorizes the error and determines the HTTP status.
	Type string `json:"type"`

	// Param names the offending parameter, if any.
	Param string `json:"param,omitempty"`

	// Code is a machine-readable error code.
	Code string `json:"code,omitempty"`
}

// Error types.
const (
	ErrorTypeInvalidRequest     = "invalid_request_error"
	ErrorTypeNotFound           = "not_found"
	ErrorTypeMethodNotAllowed   = "method_not_allowed"
	ErrorTypeConflict           = "conflict"
	ErrorTypeRequestTooLarge    = "request_too_large"
	ErrorTypeUnprocessable      = "unprocessable_entity"
	ErrorTypeRateLimitExceeded  = "rate_limit_exceeded"
	ErrorTypeServerError        = "server_error"
	ErrorTypeBadGateway         = "bad_gateway"
	ErrorTypeServiceUnavailable = "service_unavailable"
	ErrorTypeGatewayTimeout     = "gateway_timeout"
)

// Error codes.
const (
	CodeInvalidJSON        = "invalid_json"
	CodeInvalidValue       = "invalid_value"
	CodeRequestTooLarge    = "request_too_large"
	CodeUnknownApp         = "unknown_app"
	CodeProviderNotFound   = "provider_not_found"
	CodeNoEligibleProvider = "no_eligible_provider"
	CodeAttemptsExhausted  = "attempts_exhausted"
	CodeUpstreamTransport  = "upstream_transport"
	CodeUpstreamTimeout    = "upstream_timeout"
	CodeTakeoverConflict   = "takeover_conflict"
	CodeTakeoverNotEnabled = "takeover_not_enabled"
	CodeConfigCorruption   = "config_corruption"
	CodeProbeRateLimited   = "probe_rate_limited"
	CodeShuttingDown       = "shutting_down"
	CodeInternalError      = "internal_error"
)

// NewErrorResponse creates an ErrorResponse.
func NewErrorResponse(message, errorType, param, code string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorDetail{
			Message: message,
			Type:    errorType,
			Param:   param,
			Code:    code,
		},
	}
}

// NewInvalidRequestError creates a 400 error.
func NewInvalidRequestError(message, param, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeInvalidRequest, param, code)
}

// NewNotFoundError creates a 404 error.
func NewNotFoundError(message, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeNotFound, "", code)
}

// NewConflictError creates a 409 error.
func NewConflictError(message, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeConflict, "", code)
}

// NewUnprocessableError creates a 422 error.
func NewUnprocessableError(message, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeUnprocessable, "", code)
}

// NewServerError creates a 500 error.
func NewServerError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeServerError, "", CodeInternalError)
}

// NewBadGatewayError creates a 502 error.
func NewBadGatewayError(message, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeBadGateway, "", code)
}

// NewServiceUnavailableError creates a 503 error.
func NewServiceUnavailableError(message, code string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeServiceUnavailable, "", code)
}

// NewGatewayTimeoutError creates a 504 error.
func NewGatewayTimeoutError(message string) *ErrorResponse {
	return NewErrorResponse(message, ErrorTypeGatewayTimeout, "", CodeUpstreamTimeout)
}

// HTTPStatusCode returns the HTTP status code for the error type.
func (e *ErrorDetail) HTTPStatusCode() int {
	switch e.Type {
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeRequestTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrorTypeUnprocessable:
		return http.StatusUnprocessableEntity
	case ErrorTypeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrorTypeServerError:
		return http.StatusInternalServerError
	case ErrorTypeBadGateway:
		return http.StatusBadGateway
	case ErrorTypeServiceUnavailable:
		return http.StatusServiceUnavailable
	case ErrorTypeGatewayTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
