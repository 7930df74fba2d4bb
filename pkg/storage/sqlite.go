package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Config configures the state database.
type Config struct {
	// Path is the database file. ":memory:" opens a private in-memory database.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// WALMode enables write-ahead logging. Ignored for in-memory databases.
	WALMode bool
}

// DB is an open state database.
type DB struct {
	db        *sql.DB
	path      string
	logger    *slog.Logger
	closeOnce sync.Once
}

// Open opens (creating if needed) the database at cfg.Path and applies the schema.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, NewStorageError("open", fmt.Errorf("db path cannot be empty"))
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	memory := cfg.Path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
			return nil, NewStorageError("open", fmt.Errorf("create directory: %w", err))
		}
	}

	db, err := sql.Open("sqlite", dsn(cfg, memory))
	if err != nil {
		return nil, NewStorageError("open", err)
	}

	// SQLite supports a single writer; one connection also keeps an
	// in-memory database alive for the lifetime of the handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &DB{
		db:     db,
		path:   cfg.Path,
		logger: slog.Default().With("component", "storage.sqlite"),
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Debug("state database opened",
		"path", cfg.Path,
		"wal_mode", cfg.WALMode && !memory,
	)
	return s, nil
}

// dsn builds a modernc.org/sqlite connection string. Pragmas are applied to
// every new connection by the driver.
func dsn(cfg Config, memory bool) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")
	if cfg.WALMode && !memory {
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", "synchronous(NORMAL)")
	}
	if memory {
		return "file::memory:?" + q.Encode()
	}
	return "file:" + cfg.Path + "?" + q.Encode()
}

func (s *DB) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return NewStorageError("migrate", err)
	}
	if _, err := s.db.ExecContext(ctx, InsertSchemaVersion, SchemaVersion); err != nil {
		return NewStorageError("migrate", err)
	}

	var version sql.NullInt64
	if err := s.db.QueryRowContext(ctx, GetSchemaVersion).Scan(&version); err != nil {
		return NewStorageError("migrate", err)
	}
	if version.Int64 != SchemaVersion {
		return NewStorageError("migrate",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version.Int64))
	}
	return nil
}

// SQL returns the underlying handle for packages that own their tables.
func (s *DB) SQL() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *DB) Path() string {
	return s.path
}

// Ping verifies the database is reachable. The readiness check uses it.
func (s *DB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database. It is safe to call more than once.
func (s *DB) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.db.Close()
	})
	return err
}
