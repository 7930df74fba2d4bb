package usage

import "errors"

var (
	// ErrLoggerClosed is returned by Log after Close.
	ErrLoggerClosed = errors.New("usage logger closed")

	// ErrQueueFull is returned when an entry could not be queued within the
	// write timeout. The entry is dropped.
	ErrQueueFull = errors.New("usage logger queue full")
)
