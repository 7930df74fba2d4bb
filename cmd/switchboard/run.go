package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/switchboard/pkg/cli"
	"mercator-hq/switchboard/pkg/config"
	"mercator-hq/switchboard/pkg/providers"
	"mercator-hq/switchboard/pkg/server"
	"mercator-hq/switchboard/pkg/telemetry"
)

var runFlags struct {
	listenHost string
	port       int
	logLevel   string
	dryRun     bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the switchboard proxy",
	Long: `Start the switchboard proxy with the specified configuration.

Before the listener opens, takeovers left behind by a crashed run are
restored. Apps with takeover: true are then pointed at the proxy, and
restored again on shutdown.

Examples:
  # Start with the default config
  switchboard run

  # Start with a custom config
  switchboard run --config ./switchboard.yaml

  # Listen on an ephemeral port
  switchboard run --port 0

  # Validate config without starting the proxy
  switchboard run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.listenHost, "listen-host", "", "override proxy.listen_host")
	runCmd.Flags().IntVarP(&runFlags.port, "port", "p", 0, "override proxy.port (0 picks a free port)")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the proxy")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if runFlags.listenHost != "" {
		cfg.Proxy.ListenHost = runFlags.listenHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Proxy.Port = runFlags.port
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError(cfgFile, err)
	}

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	tel, err := telemetry.New(&cfg.Telemetry)
	if err != nil {
		return cli.NewConfigError(cfgFile, err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tel.Shutdown(ctx)
	}()
	logger := tel.Logger().Slog()

	printBanner(cmd)

	srv, err := server.New(cfg, server.Options{
		ConfigPath: cfgFile,
		Metrics:    tel.Metrics(),
		Tracer:     tel.Tracer(),
		Logger:     logger,
		Version:    Version,
		Commit:     GitCommit,
		BuildTime:  BuildDate,
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()

	if err := srv.Start(ctx); err != nil {
		_ = srv.Stop(context.Background())
		return cli.NewCommandError("run", err)
	}

	base := srv.Addr()
	fmt.Fprintf(out, "✓ Proxy listening on %s\n", base)
	for _, app := range providers.Apps() {
		if n := len(cfg.Apps[app.String()].Providers); n > 0 {
			fmt.Fprintf(out, "✓ %s: %s/%s (%d providers)\n", app, base, app, n)
		}
	}
	fmt.Fprintf(out, "✓ Control API: %s%s\n", base, server.ControlPrefix)
	printTakeover(out, cfg.TakeoverApps(), srv.TakeoverFailures())
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	if err := srv.Wait(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
		return cli.NewCommandError("run", err)
	}

	fmt.Fprintln(out, "✓ Proxy stopped")
	return nil
}

func printBanner(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Switchboard v%s\n", Version)
	fmt.Fprintf(out, "Loading configuration from: %s\n", cfgFile)
	fmt.Fprintln(out, "✓ Configuration loaded")
}

// printTakeover reports the outcome of takeover on start for each app.
func printTakeover(out io.Writer, apps []providers.App, failures map[providers.App]error) {
	for _, app := range apps {
		if err, ok := failures[app]; ok {
			fmt.Fprintf(out, "! %s takeover failed: %v\n", app, err)
			continue
		}
		fmt.Fprintf(out, "✓ %s taken over\n", app)
	}
}
