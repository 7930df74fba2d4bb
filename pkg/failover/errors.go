package failover

import (
	"errors"
	"fmt"
	"strings"

	"mercator-hq/switchboard/pkg/providers"
)

// Common failover errors that can be checked with errors.Is().
var (
	// ErrNoEligibleProvider is returned when every provider of an app is
	// circuit-open (or the app has no providers).
	ErrNoEligibleProvider = errors.New("no eligible provider")
)

// NoEligibleProviderError is returned by ResolveActive when no provider of the
// app can take the request.
type NoEligibleProviderError struct {
	// App is the app being routed.
	App providers.App

	// Attempted contains the ids of providers that were considered.
	Attempted []string
}

// Error implements the error interface.
func (e *NoEligibleProviderError) Error() string {
	if len(e.Attempted) == 0 {
		return fmt.Sprintf("no eligible provider for %s: no providers configured", e.App)
	}
	return fmt.Sprintf("no eligible provider for %s (attempted: %s)",
		e.App, strings.Join(e.Attempted, ", "))
}

// Is implements error matching for errors.Is().
func (e *NoEligibleProviderError) Is(target error) bool {
	return target == ErrNoEligibleProvider
}
