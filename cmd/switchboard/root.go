package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"mercator-hq/switchboard/pkg/cli"
	"mercator-hq/switchboard/pkg/config"
)

var (
	// Global flags
	cfgFile   string
	verbose   bool
	outputFmt string
	proxyAddr string
)

var rootCmd = &cobra.Command{
	Use:   "switchboard",
	Short: "Switchboard - failover proxy for AI coding CLIs",
	Long: `Switchboard is a local HTTP proxy for Claude Code, Codex and Gemini CLI.

Each CLI is pointed at the proxy, which forwards requests to an ordered list
of upstream providers and fails over when one becomes unhealthy:
  - Circuit breakers per provider with automatic recovery
  - Streaming responses relayed as they arrive
  - Token usage recorded per request
  - CLI configuration files taken over and restored byte for byte`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with a status derived from the error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.DefaultPath(), "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "text", "output format: text, json, csv")
	rootCmd.PersistentFlags().StringVar(&proxyAddr, "addr", "", "control API base URL (default derived from proxy.listen_host and proxy.port)")
}

// loadConfig loads the configuration once per process. A missing file
// yields the defaults.
func loadConfig() (*config.Config, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.NewConfigError(cfgFile, err)
	}
	return config.GetConfig(), nil
}

// controlURL returns the base URL of the running proxy.
func controlURL(cfg *config.Config) string {
	if proxyAddr != "" {
		return proxyAddr
	}
	host := cfg.Proxy.ListenHost
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Proxy.Port))
}

func controlClient() (*cli.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return cli.NewClient(controlURL(cfg)), nil
}

// printResult renders v in the format selected by --output.
func printResult(cmd *cobra.Command, v interface{}) error {
	format, err := cli.ParseFormat(outputFmt)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), v)
}

func jsonOutput() bool {
	format, err := cli.ParseFormat(outputFmt)
	return err == nil && format == cli.FormatJSON
}
