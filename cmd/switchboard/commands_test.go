package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"mercator-hq/switchboard/pkg/cli"
	"mercator-hq/switchboard/pkg/config"
	"mercator-hq/switchboard/pkg/providers"
	"mercator-hq/switchboard/pkg/server"
	"mercator-hq/switchboard/pkg/takeover"
	"mercator-hq/switchboard/pkg/usage"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func cliPath(t *testing.T, app providers.App) string {
	t.Helper()
	p, err := config.GetConfig().CLIConfigPath(app)
	if err != nil {
		t.Fatalf("CLIConfigPath(%s) error = %v", app, err)
	}
	return p
}

// enableOffline records a takeover in the state database as a crashed proxy
// listening on port 40001 would have left it.
func enableOffline(t *testing.T, app providers.App) {
	t.Helper()
	ctx := context.Background()
	cfg := config.GetConfig()
	db, err := server.OpenStorage(ctx, cfg)
	if err != nil {
		t.Fatalf("OpenStorage() error = %v", err)
	}
	defer db.Close()

	m := takeover.NewManager(takeover.NewSQLiteStore(db), server.TakeoverPaths(cfg, slog.Default()))
	m.SetPort(40001)
	if err := m.Enable(ctx, app); err != nil {
		t.Fatalf("Enable(%s) error = %v", app, err)
	}
}

func TestTakeoverOffline(t *testing.T) {
	path := cliPath(t, providers.AppClaude)
	original := "{\n  \"theme\": \"dark\"\n}\n"
	writeFile(t, path, original)
	enableOffline(t, providers.AppClaude)

	out, err := execute(t, "takeover", "status", "claude", "-o", "json")
	if err != nil {
		t.Fatalf("takeover status error = %v", err)
	}
	var view takeoverView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(view.Takeover) != 1 || !view.Takeover[0].Enabled || view.Takeover[0].ProxyURL != takeover.ProxyURL(40001, providers.AppClaude) {
		t.Fatalf("takeover status = %+v", view.Takeover)
	}

	out, err = execute(t, "takeover", "disable", "claude")
	if err != nil {
		t.Fatalf("takeover disable error = %v", err)
	}
	if !strings.Contains(out, "✓ claude restored") {
		t.Errorf("disable output = %q", out)
	}
	if got, _ := os.ReadFile(path); string(got) != original {
		t.Errorf("restored file = %q, want %q", got, original)
	}

	_, err = execute(t, "takeover", "disable", "claude")
	if !errors.Is(err, takeover.ErrNotEnabled) {
		t.Errorf("second disable error = %v, want ErrNotEnabled", err)
	}
	if cli.ExitCode(err) != cli.ExitFailure {
		t.Errorf("ExitCode() = %d", cli.ExitCode(err))
	}
}

func TestTakeoverRecover(t *testing.T) {
	path := cliPath(t, providers.AppCodex)
	os.Remove(path)
	enableOffline(t, providers.AppCodex)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("takeover did not create %s: %v", path, err)
	}

	out, err := execute(t, "takeover", "recover")
	if err != nil {
		t.Fatalf("takeover recover error = %v", err)
	}
	if !strings.Contains(out, "✓ codex restored") {
		t.Errorf("recover output = %q", out)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("recover left %s behind (err %v)", path, err)
	}

	out, err = execute(t, "takeover", "recover")
	if err != nil || !strings.Contains(out, "Nothing to recover") {
		t.Errorf("second recover = %q, %v", out, err)
	}
}

func TestTakeoverEnableNeedsProxy(t *testing.T) {
	_, err := execute(t, "takeover", "enable", "gemini")
	if !errors.Is(err, cli.ErrProxyUnavailable) || cli.ExitCode(err) != cli.ExitUnavailable {
		t.Errorf("enable without proxy error = %v (exit %d)", err, cli.ExitCode(err))
	}

	if _, err := execute(t, "takeover", "enable", "vim"); err == nil {
		t.Error("enable with unknown app succeeded")
	}
}

func TestUsageCommands(t *testing.T) {
	ctx := context.Background()
	db, err := server.OpenStorage(ctx, config.GetConfig())
	if err != nil {
		t.Fatal(err)
	}
	store, err := usage.NewSQLiteStore(db)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	entries := []*usage.Entry{
		{App: providers.AppClaude, ProviderID: "primary", StatusCode: 503, Success: false, ErrorKind: "upstream_5xx", Attempt: 1, Timestamp: now.Add(-3 * time.Minute)},
		{App: providers.AppClaude, ProviderID: "backup", Model: "claude-sonnet", StatusCode: 200, Success: true, Attempt: 2, LatencyMS: 420,
			Timestamp: now.Add(-2 * time.Minute), Tokens: &usage.TokenUsage{InputTokens: 12, OutputTokens: 3}},
		{App: providers.AppCodex, ProviderID: "primary", StatusCode: 200, Success: true, Attempt: 1, Timestamp: now.Add(-time.Minute)},
	}
	for _, e := range entries {
		e.ID = uuid.NewString()
		if err := store.Append(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	db.Close()

	out, err := execute(t, "usage", "list", "--app", "claude", "-o", "csv")
	if err != nil {
		t.Fatalf("usage list error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "TIME,APP,PROVIDER") || !strings.Contains(lines[1], "backup,claude-sonnet,200") {
		t.Errorf("usage list csv =\n%s", out)
	}

	out, err = execute(t, "usage", "list", "--failed", "-o", "json")
	if err != nil {
		t.Fatalf("usage list --failed error = %v", err)
	}
	var page server.UsagePage
	if err := json.Unmarshal([]byte(out), &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || len(page.Entries) != 1 || page.Entries[0].ErrorKind != "upstream_5xx" {
		t.Errorf("failed page = %+v", page)
	}

	if _, err := execute(t, "usage", "list", "--failed", "--succeeded"); err == nil {
		t.Error("--failed with --succeeded accepted")
	}
	if _, err := execute(t, "usage", "list", "--since", "yesterday"); err == nil {
		t.Error("invalid --since accepted")
	}

	out, err = execute(t, "usage", "stats", "--since", "1h", "-o", "json")
	if err != nil {
		t.Fatalf("usage stats error = %v", err)
	}
	var stats statsView
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatal(err)
	}
	if len(stats.Stats) != 3 {
		t.Fatalf("stats = %+v, want one row per provider", stats.Stats)
	}
	for _, s := range stats.Stats {
		if s.App == "claude" && s.ProviderID == "backup" && (s.InputTokens != 12 || s.OutputTokens != 3) {
			t.Errorf("backup tokens = %d/%d", s.InputTokens, s.OutputTokens)
		}
	}

	out, err = execute(t, "usage", "prune", "--days", "0", "--max-records", "1")
	if err != nil {
		t.Fatalf("usage prune error = %v", err)
	}
	if !strings.Contains(out, "Pruned 2 entries (0 by age, 2 by count)") {
		t.Errorf("prune output = %q", out)
	}
}

func TestValidateCommand(t *testing.T) {
	path := cliPath(t, providers.AppClaude)
	writeFile(t, path, `{"env": `)

	out, err := execute(t, "validate")
	if err == nil {
		t.Fatal("validate accepted a corrupt settings.json")
	}
	if !strings.Contains(out, "✗ claude") {
		t.Errorf("validate output = %q", out)
	}

	writeFile(t, path, `{"env": {}}`)
	out, err = execute(t, "validate")
	if err != nil {
		t.Fatalf("validate error = %v\n%s", err, out)
	}
	for _, want := range []string{"✓ Configuration valid", "claude/backup has no API key", "✓ claude: 2 providers"} {
		if !strings.Contains(out, want) {
			t.Errorf("validate output missing %q:\n%s", want, out)
		}
	}
}

func TestStatusUnavailable(t *testing.T) {
	_, err := execute(t, "status")
	if cli.ExitCode(err) != cli.ExitUnavailable {
		t.Errorf("status without proxy: err = %v, exit = %d", err, cli.ExitCode(err))
	}

	if _, err := execute(t, "status", "-o", "yaml", "--addr", "http://127.0.0.1:1"); err == nil {
		t.Error("unknown output format accepted")
	}
}

func TestLiveProxyCommands(t *testing.T) {
	cfg := *config.GetConfig()
	cfg.Proxy.Port = 0
	cfg.Proxy.ShutdownTimeout = 2 * time.Second
	cfg.Usage.Retention.PruneSchedule = ""

	srv, err := server.New(&cfg, server.Options{Version: "test"})
	if err != nil {
		t.Fatalf("server.New() error = %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer srv.Stop(context.Background())
	addr := srv.Addr()

	out, err := execute(t, "status", "--addr", addr, "-o", "json")
	if err != nil {
		t.Fatalf("status error = %v", err)
	}
	var st server.Status
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode status %q: %v", out, err)
	}
	if !st.Running || st.Apps[providers.AppClaude].ActiveProvider != "primary" {
		t.Errorf("status = %+v", st)
	}

	out, err = execute(t, "status", "--addr", addr)
	if err != nil || !strings.Contains(out, "Proxy listening on") || !strings.Contains(out, "primary,backup") {
		t.Errorf("status text = %q, %v", out, err)
	}

	out, err = execute(t, "providers", "list", "--app", "codex", "-o", "csv", "--addr", addr)
	if err != nil {
		t.Fatalf("providers list error = %v", err)
	}
	if lines := strings.Split(strings.TrimSpace(out), "\n"); len(lines) != 2 || !strings.HasPrefix(lines[1], "codex,primary,") {
		t.Errorf("providers list csv =\n%s", out)
	}

	out, err = execute(t, "providers", "enable", "backup", "--app", "claude", "--addr", addr)
	if err != nil || !strings.Contains(out, "✓ Breaker for backup is closed") {
		t.Errorf("providers enable = %q, %v", out, err)
	}

	if _, err := execute(t, "providers", "check", "--addr", addr); err == nil {
		t.Error("check without id or --all accepted")
	}
	_, err = execute(t, "providers", "check", "primary", "--addr", addr)
	var apiErr *cli.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 400 {
		t.Errorf("ambiguous check error = %v, want HTTP 400", err)
	}

	gemini := cliPath(t, providers.AppGemini)
	out, err = execute(t, "takeover", "enable", "gemini", "--addr", addr)
	if err != nil {
		t.Fatalf("takeover enable error = %v", err)
	}
	if !strings.Contains(out, "gemini now uses "+takeover.ProxyURL(srv.Port(), providers.AppGemini)) {
		t.Errorf("takeover enable output = %q", out)
	}
	if _, err := os.Stat(gemini); err != nil {
		t.Errorf("takeover did not write %s: %v", gemini, err)
	}

	if err := srv.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if _, err := os.Stat(gemini); !os.IsNotExist(err) {
		t.Errorf("Stop() left %s behind (err %v)", gemini, err)
	}
}

func TestPrintTakeover(t *testing.T) {
	var out strings.Builder
	printTakeover(&out,
		[]providers.App{providers.AppClaude, providers.AppCodex},
		map[providers.App]error{providers.AppCodex: takeover.ErrConfigCorruption},
	)

	got := out.String()
	if !strings.Contains(got, "✓ claude taken over") {
		t.Errorf("output = %q; want claude success", got)
	}
	if !strings.Contains(got, "! codex takeover failed: "+takeover.ErrConfigCorruption.Error()) {
		t.Errorf("output = %q; want codex failure", got)
	}
	if strings.Contains(got, "✓ codex") {
		t.Errorf("output = %q; failed app reported as taken over", got)
	}
}
