package cli

import (
	"errors"
	"fmt"
	"os"
	"testing"
)

func TestConfigError(t *testing.T) {
	err := NewConfigError("switchboard.yaml", os.ErrNotExist)

	expected := "config switchboard.yaml: file does not exist"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Error("ConfigError should unwrap to its cause")
	}
}

func TestCommandError(t *testing.T) {
	baseErr := errors.New("boom")
	err := NewCommandError("run", baseErr)

	if err.Error() != "command run failed: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, baseErr) {
		t.Error("CommandError should unwrap to base error")
	}
}

func TestAPIError(t *testing.T) {
	err := &APIError{StatusCode: 409, Code: "takeover_conflict", Message: "takeover already enabled"}
	if got := err.Error(); got != "takeover already enabled (takeover_conflict, HTTP 409)" {
		t.Errorf("Error() = %q", got)
	}
	err.Code = ""
	if got := err.Error(); got != "takeover already enabled (HTTP 409)" {
		t.Errorf("Error() without code = %q", got)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config", NewCommandError("run", NewConfigError("x.yaml", errors.New("bad"))), ExitConfig},
		{"unavailable", fmt.Errorf("%w at http://127.0.0.1:1", ErrProxyUnavailable), ExitUnavailable},
		{"api", &APIError{StatusCode: 500, Message: "x"}, ExitFailure},
		{"other", errors.New("x"), ExitFailure},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("%s: ExitCode() = %d, want %d", tt.name, got, tt.want)
		}
	}
}
