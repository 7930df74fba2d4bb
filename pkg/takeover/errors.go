package takeover

import (
	"errors"
	"fmt"

	"mercator-hq/switchboard/pkg/providers"
)

// Common takeover errors that can be checked with errors.Is().
var (
	// ErrTakeoverConflict is returned when enabling takeover for an app that
	// already has a live backup.
	ErrTakeoverConflict = errors.New("takeover already enabled")

	// ErrConfigCorruption is returned when a CLI config file cannot be parsed.
	ErrConfigCorruption = errors.New("config file corrupted")

	// ErrHandEdited marks a restore where the user changed the file while
	// takeover was active. It is a warning: the restore still completed.
	ErrHandEdited = errors.New("config file edited during takeover")

	// ErrNotEnabled is returned when disabling takeover for an app without a
	// live backup.
	ErrNotEnabled = errors.New("takeover not enabled")

	// ErrProxyNotListening is returned by Enable before the proxy port is known.
	ErrProxyNotListening = errors.New("proxy is not listening")
)

// CorruptionError reports a CLI config file that failed to parse.
type CorruptionError struct {
	App  providers.App
	Path string
	Err  error
}

// Error implements the error interface.
func (e *CorruptionError) Error() string {
	return fmt.Sprintf("%s config %s is corrupted: %v", e.App, e.Path, e.Err)
}

// Is implements error matching for errors.Is().
func (e *CorruptionError) Is(target error) bool {
	return target == ErrConfigCorruption
}

// Unwrap returns the parse error.
func (e *CorruptionError) Unwrap() error {
	return e.Err
}

// ConflictWarning is returned when a restore found the file edited by hand.
// The user's file was kept with only the base URL reset, and the original
// bytes were saved to BackupPath.
type ConflictWarning struct {
	App        providers.App
	Path       string
	BackupPath string

	// Untouched is set when the edited file could not be parsed and was left
	// exactly as found.
	Untouched bool
}

// Error implements the error interface.
func (e *ConflictWarning) Error() string {
	if e.BackupPath == "" && e.Untouched {
		return fmt.Sprintf("%s config %s was created by takeover, then edited and no longer parses; left as is",
			e.App, e.Path)
	}
	if e.BackupPath == "" {
		return fmt.Sprintf("%s config %s was created by takeover and then edited; kept your edits without the base URL",
			e.App, e.Path)
	}
	if e.Untouched {
		return fmt.Sprintf("%s config %s was edited during takeover and no longer parses; left as is, original saved to %s",
			e.App, e.Path, e.BackupPath)
	}
	return fmt.Sprintf("%s config %s was edited during takeover; kept your edits and reset the base URL, original saved to %s",
		e.App, e.Path, e.BackupPath)
}

// Is implements error matching for errors.Is().
func (e *ConflictWarning) Is(target error) bool {
	return target == ErrHandEdited
}
