package takeover

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mercator-hq/switchboard/pkg/providers"
	"mercator-hq/switchboard/pkg/storage"
)

// Backup is the saved state of one CLI config file while takeover is active.
type Backup struct {
	ID  int64         `json:"id"`
	App providers.App `json:"app"`

	// Path is the CLI config file that was rewritten.
	Path string `json:"path"`

	// Original holds the file bytes before takeover. OriginalExisted is
	// false when there was no file, in which case restoring removes it.
	Original        []byte `json:"-"`
	OriginalExisted bool   `json:"original_existed"`

	// Written holds the bytes the proxy wrote, used to detect hand edits.
	Written []byte `json:"-"`

	ProxyURL   string    `json:"proxy_url"`
	CreatedAt  time.Time `json:"created_at"`
	Restored   bool      `json:"restored"`
	RestoredAt time.Time `json:"restored_at,omitempty"`
}

// Store persists backups durably.
type Store interface {
	// Create inserts b and sets its ID. It fails with ErrTakeoverConflict
	// if app already has a live backup.
	Create(ctx context.Context, b *Backup) error

	// Live returns the live backup of app, or nil if there is none.
	Live(ctx context.Context, app providers.App) (*Backup, error)

	// ListLive returns every live backup.
	ListLive(ctx context.Context) ([]*Backup, error)

	// MarkRestored marks a backup restored.
	MarkRestored(ctx context.Context, id int64, at time.Time) error

	// Delete removes a backup. Used to roll back a failed enable.
	Delete(ctx context.Context, id int64) error
}

// SQLiteStore implements Store on the takeover_backups table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a backup store on db.
func NewSQLiteStore(db *storage.DB) *SQLiteStore {
	return &SQLiteStore{db: db.SQL()}
}

const backupColumns = `id, app, path, original, original_existed, written, proxy_url, created_at, restored, restored_at`

// Create inserts b inside a transaction that first checks for a live row.
// The partial unique index on (app) WHERE restored = 0 backs the check.
func (s *SQLiteStore) Create(ctx context.Context, b *Backup) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.NewStorageError("create_backup", err)
	}
	defer tx.Rollback()

	var live int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM takeover_backups WHERE app = ? AND restored = 0`,
		b.App.String(),
	).Scan(&live); err != nil {
		return storage.NewStorageError("create_backup", err)
	}
	if live > 0 {
		return fmt.Errorf("%w for %s", ErrTakeoverConflict, b.App)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO takeover_backups (app, path, original, original_existed, written, proxy_url, created_at, restored)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		b.App.String(), b.Path, b.Original, b.OriginalExisted, b.Written, b.ProxyURL, b.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return storage.NewStorageError("create_backup", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return storage.NewStorageError("create_backup", err)
	}
	if err := tx.Commit(); err != nil {
		return storage.NewStorageError("create_backup", err)
	}
	b.ID = id
	return nil
}

// Live returns app's live backup.
func (s *SQLiteStore) Live(ctx context.Context, app providers.App) (*Backup, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+backupColumns+` FROM takeover_backups WHERE app = ? AND restored = 0`,
		app.String(),
	)
	b, err := scanBackup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.NewStorageError("live_backup", err)
	}
	return b, nil
}

// ListLive returns every live backup ordered by creation.
func (s *SQLiteStore) ListLive(ctx context.Context) ([]*Backup, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+backupColumns+` FROM takeover_backups WHERE restored = 0 ORDER BY created_at, id`)
	if err != nil {
		return nil, storage.NewStorageError("list_backups", err)
	}
	defer rows.Close()

	var out []*Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, storage.NewStorageError("list_backups", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.NewStorageError("list_backups", err)
	}
	return out, nil
}

// MarkRestored flags the backup as restored.
func (s *SQLiteStore) MarkRestored(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE takeover_backups SET restored = 1, restored_at = ? WHERE id = ? AND restored = 0`,
		at.UnixMilli(), id,
	)
	if err != nil {
		return storage.NewStorageError("mark_restored", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.NewStorageError("mark_restored", fmt.Errorf("no live backup with id %d", id))
	}
	return nil
}

// Delete removes the backup row.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM takeover_backups WHERE id = ?`, id); err != nil {
		return storage.NewStorageError("delete_backup", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBackup(row scanner) (*Backup, error) {
	var (
		b          Backup
		app        string
		createdAt  int64
		restoredAt sql.NullInt64
	)
	if err := row.Scan(&b.ID, &app, &b.Path, &b.Original, &b.OriginalExisted, &b.Written,
		&b.ProxyURL, &createdAt, &b.Restored, &restoredAt); err != nil {
		return nil, err
	}

	parsed, err := providers.ParseApp(app)
	if err != nil {
		return nil, err
	}
	b.App = parsed
	b.CreatedAt = time.UnixMilli(createdAt).UTC()
	if restoredAt.Valid {
		b.RestoredAt = time.UnixMilli(restoredAt.Int64).UTC()
	}
	return &b, nil
}
