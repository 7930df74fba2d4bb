package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/spf13/cobra"
	"mercator-hq/switchboard/pkg/cli"
	"mercator-hq/switchboard/pkg/config"
	"mercator-hq/switchboard/pkg/providers"
	"mercator-hq/switchboard/pkg/server"
	"mercator-hq/switchboard/pkg/takeover"
)

var takeoverCmd = &cobra.Command{
	Use:   "takeover",
	Short: "Point CLI configuration files at the proxy",
	Long: `Rewrite a CLI's configuration so its requests go through the proxy,
and restore the original file afterwards.

Enabling a takeover needs a running proxy. Disabling, status and recover
also work on the state database when no proxy is running.

Examples:
  # Route Claude Code through the proxy
  switchboard takeover enable claude

  # Put the original ~/.codex/config.toml back
  switchboard takeover disable codex

  # Restore takeovers left behind by a crashed proxy
  switchboard takeover recover`,
}

var takeoverEnableCmd = &cobra.Command{
	Use:       "enable <app>",
	Short:     "Take over an app's CLI configuration",
	Args:      cobra.ExactArgs(1),
	ValidArgs: appNames(),
	RunE:      enableTakeover,
}

var takeoverDisableCmd = &cobra.Command{
	Use:       "disable <app>",
	Short:     "Restore an app's original CLI configuration",
	Args:      cobra.ExactArgs(1),
	ValidArgs: appNames(),
	RunE:      disableTakeover,
}

var takeoverStatusCmd = &cobra.Command{
	Use:       "status [app]",
	Short:     "Show takeover state",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: appNames(),
	RunE:      takeoverStatus,
}

var takeoverRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Restore takeovers left by a proxy that did not shut down cleanly",
	Args:  cobra.NoArgs,
	RunE:  recoverTakeover,
}

func init() {
	rootCmd.AddCommand(takeoverCmd)
	takeoverCmd.AddCommand(takeoverEnableCmd, takeoverDisableCmd, takeoverStatusCmd, takeoverRecoverCmd)
}

func appNames() []string {
	names := make([]string, 0, providers.NumApps)
	for _, app := range providers.Apps() {
		names = append(names, app.String())
	}
	return names
}

func takeoverPath(app providers.App) string {
	return server.ControlPrefix + "/takeover/" + url.PathEscape(app.String())
}

// offlineTakeover opens the state database directly. The returned close
// function releases it.
func offlineTakeover(ctx context.Context, cfg *config.Config) (*takeover.Manager, func() error, error) {
	db, err := server.OpenStorage(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	m := takeover.NewManager(takeover.NewSQLiteStore(db), server.TakeoverPaths(cfg, slog.Default()))
	return m, db.Close, nil
}

func enableTakeover(cmd *cobra.Command, args []string) error {
	app, err := providers.ParseApp(args[0])
	if err != nil {
		return err
	}
	c, err := controlClient()
	if err != nil {
		return err
	}

	var st takeover.Status
	if err := c.Post(cmd.Context(), takeoverPath(app), nil, &st); err != nil {
		return err
	}
	if jsonOutput() {
		return printResult(cmd, st)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ %s now uses %s (%s)\n", app, st.ProxyURL, st.Path)
	return nil
}

func disableTakeover(cmd *cobra.Command, args []string) error {
	app, err := providers.ParseApp(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var res server.TakeoverResult
	err = cli.NewClient(controlURL(cfg)).Delete(ctx, takeoverPath(app), nil, &res)
	if errors.Is(err, cli.ErrProxyUnavailable) {
		res, err = disableOffline(ctx, cfg, app)
	}
	if err != nil {
		return err
	}

	if jsonOutput() {
		return printResult(cmd, res)
	}
	out := cmd.OutOrStdout()
	if res.Warning != "" {
		fmt.Fprintf(out, "! %s\n", res.Warning)
	}
	fmt.Fprintf(out, "✓ %s restored (%s)\n", app, res.Path)
	return nil
}

func disableOffline(ctx context.Context, cfg *config.Config, app providers.App) (server.TakeoverResult, error) {
	var res server.TakeoverResult
	m, closeDB, err := offlineTakeover(ctx, cfg)
	if err != nil {
		return res, err
	}
	defer closeDB()

	err = m.Disable(ctx, app)
	var warn *takeover.ConflictWarning
	switch {
	case err == nil:
	case errors.As(err, &warn):
		res.Warning = warn.Error()
	default:
		return res, err
	}
	res.Status, err = m.Status(ctx, app)
	return res, err
}

func takeoverStatus(cmd *cobra.Command, args []string) error {
	var filter *providers.App
	if len(args) == 1 {
		app, err := providers.ParseApp(args[0])
		if err != nil {
			return err
		}
		filter = &app
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var view takeoverView
	err = cli.NewClient(controlURL(cfg)).Get(ctx, server.ControlPrefix+"/takeover", nil, &view)
	if errors.Is(err, cli.ErrProxyUnavailable) {
		m, closeDB, openErr := offlineTakeover(ctx, cfg)
		if openErr != nil {
			return openErr
		}
		defer closeDB()
		view.Takeover, err = m.StatusAll(ctx)
	}
	if err != nil {
		return err
	}

	if filter != nil {
		kept := view.Takeover[:0]
		for _, st := range view.Takeover {
			if st.App == *filter {
				kept = append(kept, st)
			}
		}
		view.Takeover = kept
	}
	return printResult(cmd, view)
}

func recoverTakeover(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	// Live takeovers of a running proxy are not stale.
	base := controlURL(cfg)
	if err := cli.NewClient(base).Get(ctx, server.ControlPrefix+"/health", nil, nil); err == nil {
		return fmt.Errorf("proxy is running at %s; use 'switchboard takeover disable' instead", base)
	}

	m, closeDB, err := offlineTakeover(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()
	m.SetLiveCheck(server.ProxyAlive)

	report, err := m.Recover(ctx)
	out := cmd.OutOrStdout()
	for _, w := range report.Warnings {
		fmt.Fprintf(out, "! %s\n", w)
	}
	for _, app := range report.Skipped {
		fmt.Fprintf(out, "! %s is taken over by a running proxy, left in place\n", app)
	}
	for _, app := range report.Restored {
		fmt.Fprintf(out, "✓ %s restored\n", app)
	}
	if err != nil {
		return cli.NewCommandError("takeover recover", err)
	}
	if len(report.Restored) == 0 && len(report.Skipped) == 0 {
		fmt.Fprintln(out, "✓ Nothing to recover")
	}
	return nil
}
