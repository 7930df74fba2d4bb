package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"mercator-hq/switchboard/pkg/circuit"
	"mercator-hq/switchboard/pkg/failover"
	"mercator-hq/switchboard/pkg/providers"
	"mercator-hq/switchboard/pkg/proxy/types"
)

func TestHandleError(t *testing.T) {
	timeout := &UpstreamTransportError{ProviderID: "A", Kind: circuit.FailureTimeout, Err: context.DeadlineExceeded}
	refused := &UpstreamTransportError{ProviderID: "A", Kind: circuit.FailureTransport, Err: errors.New("connection refused")}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"request error", &RequestError{Message: "bad", Code: types.CodeInvalidJSON}, http.StatusBadRequest, types.CodeInvalidJSON},
		{"too large", fmt.Errorf("%w: exceeds 10 bytes", ErrRequestTooLarge), http.StatusRequestEntityTooLarge, types.CodeRequestTooLarge},
		{"unknown app", &providers.UnknownAppError{Value: "/x"}, http.StatusNotFound, types.CodeUnknownApp},
		{"no eligible", &failover.NoEligibleProviderError{App: providers.AppClaude, Attempted: []string{"A"}}, http.StatusBadGateway, types.CodeNoEligibleProvider},
		{"transport", refused, http.StatusBadGateway, types.CodeUpstreamTransport},
		{"timeout", timeout, http.StatusGatewayTimeout, types.CodeUpstreamTimeout},
		{"exhausted after timeout", &AttemptsExhaustedError{Attempted: []string{"A"}, LastError: timeout}, http.StatusGatewayTimeout, types.CodeUpstreamTimeout},
		{"exhausted", &AttemptsExhaustedError{Attempted: []string{"A"}, LastError: errors.New("boom")}, http.StatusBadGateway, types.CodeAttemptsExhausted},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, types.CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := HandleError(tt.err)
			if got := resp.Error.HTTPStatusCode(); got != tt.wantStatus {
				t.Errorf("status = %d, want %d", got, tt.wantStatus)
			}
			if resp.Error.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Error.Code, tt.wantCode)
			}
		})
	}
}

func TestErrorsIs(t *testing.T) {
	httpErr := &UpstreamHTTPError{ProviderID: "A", StatusCode: 503}
	exhausted := &AttemptsExhaustedError{LastError: httpErr}

	if !errors.Is(exhausted, ErrAttemptsExhausted) || !errors.Is(exhausted, ErrUpstreamHTTP) {
		t.Error("AttemptsExhaustedError should match itself and its last error")
	}
	refused := errors.New("connection refused")
	if err := error(&UpstreamTransportError{Err: refused}); !errors.Is(err, ErrUpstreamTransport) || !errors.Is(err, refused) {
		t.Error("UpstreamTransportError should match its sentinel and cause")
	}
}
