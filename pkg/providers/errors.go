package providers

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownApp is returned when an app name does not match a supported app.
	ErrUnknownApp = errors.New("unknown app")

	// ErrProviderNotFound is returned when a provider id is not registered for an app.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrInvalidProvider is returned when a provider definition fails validation.
	ErrInvalidProvider = errors.New("invalid provider")
)

// UnknownAppError reports an unsupported app name.
type UnknownAppError struct {
	Value string
}

// Error implements the error interface.
func (e *UnknownAppError) Error() string {
	return fmt.Sprintf("unknown app %q (supported: claude, codex, gemini)", e.Value)
}

// Is implements error matching for errors.Is().
func (e *UnknownAppError) Is(target error) bool {
	return target == ErrUnknownApp
}

// ProviderNotFoundError is returned when a provider lookup fails.
type ProviderNotFoundError struct {
	App        App
	ProviderID string
}

// Error implements the error interface.
func (e *ProviderNotFoundError) Error() string {
	return fmt.Sprintf("provider %q not found for app %s", e.ProviderID, e.App)
}

// Is implements error matching for errors.Is().
func (e *ProviderNotFoundError) Is(target error) bool {
	return target == ErrProviderNotFound
}

// InvalidProviderError describes why a provider definition was rejected.
type InvalidProviderError struct {
	ProviderID string
	Reason     string
}

// Error implements the error interface.
func (e *InvalidProviderError) Error() string {
	return fmt.Sprintf("invalid provider %q: %s", e.ProviderID, e.Reason)
}

// Is implements error matching for errors.Is().
func (e *InvalidProviderError) Is(target error) bool {
	return target == ErrInvalidProvider
}
