package usage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Config contains configuration for the usage logger.
type Config struct {
	// Enabled enables persistence. A disabled logger accepts and discards entries.
	Enabled bool

	// AsyncBuffer is the size of the write queue.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout bounds both waiting for queue space and each store write.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Logger writes entries to a Store from a background worker.
type Logger struct {
	store  Store
	config Config
	queue  chan *Entry
	done   chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger

	closeMu sync.RWMutex
	closed  bool

	written atomic.Int64
	dropped atomic.Int64
	failed  atomic.Int64

	onDrop func()
}

// NewLogger creates a logger and starts its worker.
func NewLogger(store Store, config Config) *Logger {
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = DefaultConfig().AsyncBuffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}

	l := &Logger{
		store:  store,
		config: config,
		queue:  make(chan *Entry, config.AsyncBuffer),
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "usage.logger"),
	}

	l.wg.Add(1)
	go l.worker()

	l.logger.Debug("usage logger initialized",
		"enabled", config.Enabled,
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
	)
	return l
}

// OnDrop registers a callback invoked whenever an entry is dropped. It must
// be set before the first Log call.
func (l *Logger) OnDrop(fn func()) {
	l.onDrop = fn
}

// Log queues e for writing and returns without waiting for storage. Missing
// ID and Timestamp are filled in. If the queue stays full for WriteTimeout
// the entry is dropped and ErrQueueFull is returned.
func (l *Logger) Log(e *Entry) error {
	if !l.config.Enabled {
		return nil
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	l.closeMu.RLock()
	defer l.closeMu.RUnlock()
	if l.closed {
		l.drop(e, "closed")
		return ErrLoggerClosed
	}

	select {
	case l.queue <- e:
		return nil
	default:
	}

	timer := time.NewTimer(l.config.WriteTimeout)
	defer timer.Stop()
	select {
	case l.queue <- e:
		return nil
	case <-timer.C:
		l.drop(e, "queue_full")
		return ErrQueueFull
	}
}

func (l *Logger) drop(e *Entry, reason string) {
	l.dropped.Add(1)
	if l.onDrop != nil {
		l.onDrop()
	}
	l.logger.Warn("usage entry dropped",
		"reason", reason,
		"app", e.App.String(),
		"provider", e.ProviderID,
		"queue_capacity", l.config.AsyncBuffer,
	)
}

// Close stops accepting entries, writes everything still queued, and waits
// for the worker to exit.
func (l *Logger) Close() error {
	l.closeMu.Lock()
	if l.closed {
		l.closeMu.Unlock()
		return nil
	}
	l.closed = true
	close(l.done)
	l.closeMu.Unlock()

	l.wg.Wait()
	l.logger.Debug("usage logger closed",
		"written", l.written.Load(),
		"dropped", l.dropped.Load(),
	)
	return nil
}

// Written returns the number of entries persisted.
func (l *Logger) Written() int64 { return l.written.Load() }

// Dropped returns the number of entries dropped.
func (l *Logger) Dropped() int64 { return l.dropped.Load() }

// Failed returns the number of store writes that failed.
func (l *Logger) Failed() int64 { return l.failed.Load() }

// Pending returns the number of queued entries.
func (l *Logger) Pending() int { return len(l.queue) }

func (l *Logger) worker() {
	defer l.wg.Done()

	for {
		select {
		case e := <-l.queue:
			l.write(e)

		case <-l.done:
			// Log holds the read lock while sending, and Close took the
			// write lock before closing done, so nothing is added now.
			for {
				select {
				case e := <-l.queue:
					l.write(e)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) write(e *Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), l.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := l.store.Append(ctx, e); err != nil {
		l.failed.Add(1)
		l.logger.Error("failed to store usage entry",
			"id", e.ID,
			"app", e.App.String(),
			"provider", e.ProviderID,
			"error", err,
		)
		return
	}
	l.written.Add(1)

	if d := time.Since(start); d > l.config.WriteTimeout/2 {
		l.logger.Warn("slow usage write",
			"id", e.ID,
			"duration_ms", d.Milliseconds(),
		)
	}
}
