package types

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestErrorDetail_HTTPStatusCode(t *testing.T) {
	tests := []struct {
		resp *ErrorResponse
		want int
	}{
		{NewInvalidRequestError("bad", "body", CodeInvalidJSON), http.StatusBadRequest},
		{NewNotFoundError("no app", CodeUnknownApp), http.StatusNotFound},
		{NewConflictError("live backup", CodeTakeoverConflict), http.StatusConflict},
		{NewUnprocessableError("corrupt", CodeConfigCorruption), http.StatusUnprocessableEntity},
		{NewServerError("boom"), http.StatusInternalServerError},
		{NewBadGatewayError("none", CodeNoEligibleProvider), http.StatusBadGateway},
		{NewServiceUnavailableError("stopping", CodeShuttingDown), http.StatusServiceUnavailable},
		{NewGatewayTimeoutError("slow"), http.StatusGatewayTimeout},
		{NewErrorResponse("?", "mystery", "", ""), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.resp.Error.HTTPStatusCode(); got != tt.want {
			t.Errorf("%s: HTTPStatusCode() = %d, want %d", tt.resp.Error.Type, got, tt.want)
		}
	}
}

func TestErrorResponse_JSON(t *testing.T) {
	data, err := json.Marshal(NewBadGatewayError("no eligible provider for claude", CodeNoEligibleProvider))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"error":{"message":"no eligible provider for claude","type":"bad_gateway","code":"no_eligible_provider"}}`
	if string(data) != want {
		t.Errorf("JSON = %s, want %s", data, want)
	}
}
