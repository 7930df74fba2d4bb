package takeover

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"mercator-hq/switchboard/pkg/providers"
)

// BackupSuffix is appended to a CLI config path to save the pristine
// original when a restore finds the file edited by hand.
const BackupSuffix = ".switchboard-backup"

// Status is the takeover state of one app.
type Status struct {
	App      providers.App `json:"app"`
	Enabled  bool          `json:"enabled"`
	Path     string        `json:"path"`
	ProxyURL string        `json:"proxy_url,omitempty"`
	Since    time.Time     `json:"since,omitempty"`
}

// RestoreReport summarizes a Recover or RestoreAll run. Skipped lists apps
// whose live backup belongs to another proxy and was left in place.
type RestoreReport struct {
	Restored []providers.App
	Warnings []*ConflictWarning
	Skipped  []providers.App
}

// LiveCheck reports whether a proxy still answers at proxyURL.
type LiveCheck func(ctx context.Context, proxyURL string) bool

// Manager enables and disables takeover. Enable and Disable are serialized.
type Manager struct {
	store  Store
	paths  [providers.NumApps]string
	logger *slog.Logger
	now    func() time.Time

	// writeFile is atomicWrite outside of tests.
	writeFile func(path string, data []byte, perm os.FileMode) error

	mu       sync.Mutex
	port     int
	alive    LiveCheck
	onChange func(app providers.App, enabled bool)
}

// NewManager creates a manager. paths maps each app to its CLI config file;
// apps without a path cannot be taken over.
func NewManager(store Store, paths map[providers.App]string) *Manager {
	m := &Manager{
		store:     store,
		logger:    slog.Default().With("component", "takeover"),
		now:       time.Now,
		writeFile: atomicWrite,
	}
	for app, p := range paths {
		m.paths[app.Index()] = p
	}
	return m
}

// SetPort records the port the proxy listens on. Enable rewrites base URLs
// to this port.
func (m *Manager) SetPort(port int) {
	m.mu.Lock()
	m.port = port
	m.mu.Unlock()
}

// SetLiveCheck registers the check Recover uses to tell stale backups from
// those of a proxy that is still running. Without one every backup is stale.
func (m *Manager) SetLiveCheck(fn LiveCheck) {
	m.mu.Lock()
	m.alive = fn
	m.mu.Unlock()
}

// OnChange registers a callback invoked after an app's takeover state changes.
func (m *Manager) OnChange(fn func(app providers.App, enabled bool)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Path returns the CLI config file of app.
func (m *Manager) Path(app providers.App) string {
	return m.paths[app.Index()]
}

// ProxyURL returns the base URL written into app's config.
func ProxyURL(port int, app providers.App) string {
	return fmt.Sprintf("http://127.0.0.1:%d/%s", port, app)
}

// Enable points app's CLI at the proxy. The original file is backed up
// durably before it is rewritten; if the rewrite fails the backup is removed.
func (m *Manager) Enable(ctx context.Context, app providers.App) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.paths[app.Index()]
	if path == "" {
		return fmt.Errorf("no config path for %s", app)
	}
	if m.port == 0 {
		return ErrProxyNotListening
	}

	live, err := m.store.Live(ctx, app)
	if err != nil {
		return err
	}
	if live != nil {
		return fmt.Errorf("%w for %s since %s", ErrTakeoverConflict, app, live.CreatedAt.Format(time.RFC3339))
	}

	original, existed, err := readFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s config: %w", app, err)
	}

	codec := CodecFor(app)
	if err := codec.Validate(original); err != nil {
		return &CorruptionError{App: app, Path: path, Err: err}
	}
	proxyURL := ProxyURL(m.port, app)
	written, err := codec.SetBaseURL(original, proxyURL)
	if err != nil {
		return &CorruptionError{App: app, Path: path, Err: err}
	}

	b := &Backup{
		App:             app,
		Path:            path,
		Original:        original,
		OriginalExisted: existed,
		Written:         written,
		ProxyURL:        proxyURL,
		CreatedAt:       m.now().UTC(),
	}
	if err := m.store.Create(ctx, b); err != nil {
		return err
	}

	if err := m.writeFile(path, written, 0o600); err != nil {
		if rbErr := m.store.Delete(context.WithoutCancel(ctx), b.ID); rbErr != nil {
			m.logger.Error("failed to roll back takeover backup",
				"app", app.String(),
				"backup_id", b.ID,
				"error", rbErr,
			)
		}
		return fmt.Errorf("failed to write %s config: %w", app, err)
	}

	m.logger.Info("takeover enabled",
		"app", app.String(),
		"path", path,
		"proxy_url", proxyURL,
		"created", !existed,
	)
	m.notify(app, true)
	return nil
}

// Disable restores app's original config. A *ConflictWarning is returned
// when the file had been edited by hand; the restore still completed.
func (m *Manager) Disable(ctx context.Context, app providers.App) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, err := m.store.Live(ctx, app)
	if err != nil {
		return err
	}
	if b == nil {
		return fmt.Errorf("%w for %s", ErrNotEnabled, app)
	}
	return m.restore(ctx, b)
}

// Recover restores every live backup left by a previous run. It must run
// before the proxy serves traffic. A backup whose proxy still answers the
// live check belongs to another running instance and is skipped.
func (m *Manager) Recover(ctx context.Context) (RestoreReport, error) {
	return m.restoreAll(ctx, "recovered takeover left by previous run", m.stale)
}

// RestoreAll restores the live backups written by this proxy, i.e. those
// pointing at the port set with SetPort. The server calls it on shutdown.
func (m *Manager) RestoreAll(ctx context.Context) (RestoreReport, error) {
	return m.restoreAll(ctx, "takeover restored on shutdown", m.owned)
}

// owned reports whether b points at this proxy. Caller holds m.mu.
func (m *Manager) owned(_ context.Context, b *Backup) bool {
	return m.port != 0 && b.ProxyURL == ProxyURL(m.port, b.App)
}

// stale reports whether b was left by a proxy that is gone. A backup on
// our own port cannot have a live writer. Caller holds m.mu.
func (m *Manager) stale(ctx context.Context, b *Backup) bool {
	if m.owned(ctx, b) || m.alive == nil {
		return true
	}
	if m.alive(ctx, b.ProxyURL) {
		m.logger.Warn("takeover owned by a running proxy, leaving it in place",
			"app", b.App.String(),
			"path", b.Path,
			"proxy_url", b.ProxyURL,
		)
		return false
	}
	return true
}

func (m *Manager) restoreAll(ctx context.Context, msg string, keep func(context.Context, *Backup) bool) (RestoreReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var report RestoreReport
	live, err := m.store.ListLive(ctx)
	if err != nil {
		return report, err
	}

	var errs []error
	for _, b := range live {
		if !keep(ctx, b) {
			report.Skipped = append(report.Skipped, b.App)
			continue
		}
		err := m.restore(ctx, b)
		var warn *ConflictWarning
		switch {
		case err == nil:
		case errors.As(err, &warn):
			report.Warnings = append(report.Warnings, warn)
		default:
			errs = append(errs, err)
			continue
		}
		report.Restored = append(report.Restored, b.App)
		m.logger.Info(msg, "app", b.App.String(), "path", b.Path)
	}
	return report, errors.Join(errs...)
}

// Status returns app's takeover state.
func (m *Manager) Status(ctx context.Context, app providers.App) (Status, error) {
	st := Status{App: app, Path: m.paths[app.Index()]}
	b, err := m.store.Live(ctx, app)
	if err != nil {
		return st, err
	}
	if b != nil {
		st.Enabled = true
		st.Path = b.Path
		st.ProxyURL = b.ProxyURL
		st.Since = b.CreatedAt
	}
	return st, nil
}

// StatusAll returns the takeover state of every app.
func (m *Manager) StatusAll(ctx context.Context) ([]Status, error) {
	out := make([]Status, 0, providers.NumApps)
	for _, app := range providers.Apps() {
		st, err := m.Status(ctx, app)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// restore puts b's file back and marks b restored. Caller holds m.mu.
func (m *Manager) restore(ctx context.Context, b *Backup) error {
	current, exists, err := readFile(b.Path)
	if err != nil {
		return fmt.Errorf("failed to read %s config: %w", b.App, err)
	}

	var warning *ConflictWarning
	switch {
	case exists && bytes.Equal(current, b.Written), !exists,
		exists && b.OriginalExisted && bytes.Equal(current, b.Original):
		// Untouched, deleted by the user, or never rewritten because the
		// run stopped between backup and write: put the original back.
		if err := m.restoreOriginal(b); err != nil {
			return err
		}
	default:
		warning, err = m.mergeHandEdit(b, current)
		if err != nil {
			return err
		}
	}

	if err := m.store.MarkRestored(context.WithoutCancel(ctx), b.ID, m.now().UTC()); err != nil {
		return err
	}
	m.notify(b.App, false)

	if warning != nil {
		m.logger.Warn("config edited during takeover",
			"app", b.App.String(),
			"path", b.Path,
			"backup_path", warning.BackupPath,
			"untouched", warning.Untouched,
		)
		return warning
	}
	m.logger.Info("takeover disabled", "app", b.App.String(), "path", b.Path)
	return nil
}

func (m *Manager) restoreOriginal(b *Backup) error {
	if !b.OriginalExisted {
		if err := removeFile(b.Path); err != nil {
			return fmt.Errorf("failed to remove %s config: %w", b.App, err)
		}
		return nil
	}
	if err := m.writeFile(b.Path, b.Original, 0o600); err != nil {
		return fmt.Errorf("failed to restore %s config: %w", b.App, err)
	}
	return nil
}

// mergeHandEdit keeps the user's current file and only resets the base URL
// field to its original value, saving the original bytes alongside.
func (m *Manager) mergeHandEdit(b *Backup, current []byte) (*ConflictWarning, error) {
	warning := &ConflictWarning{App: b.App, Path: b.Path}

	if b.OriginalExisted {
		warning.BackupPath = b.Path + BackupSuffix
		if err := m.writeFile(warning.BackupPath, b.Original, 0o600); err != nil {
			return nil, fmt.Errorf("failed to save original %s config: %w", b.App, err)
		}
	}

	codec := CodecFor(b.App)
	var (
		merged []byte
		err    error
	)
	origURL, had, origErr := codec.BaseURL(b.Original)
	if origErr == nil && had {
		merged, err = codec.SetBaseURL(current, origURL)
	} else {
		merged, err = codec.RemoveBaseURL(current)
	}
	if err != nil {
		warning.Untouched = true
		return warning, nil
	}

	if !bytes.Equal(merged, current) {
		if err := m.writeFile(b.Path, merged, 0o600); err != nil {
			return nil, fmt.Errorf("failed to reset %s base URL: %w", b.App, err)
		}
	}
	return warning, nil
}

func (m *Manager) notify(app providers.App, enabled bool) {
	if m.onChange != nil {
		m.onChange(app, enabled)
	}
}

// readFile returns the contents of path; a missing file is an empty
// document with existed false.
func readFile(path string) (data []byte, existed bool, err error) {
	data, err = os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}
