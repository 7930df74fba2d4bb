package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/switchboard/pkg/cli"
	"mercator-hq/switchboard/pkg/server"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a running proxy",
	Long: `Show the listener, the active provider of each app, open breakers and
takeover state of a running proxy.

Exits with status 3 when no proxy answers at the control address.`,
	Args: cobra.NoArgs,
	RunE: showStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func showStatus(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(outputFmt)
	if err != nil {
		return err
	}
	c, err := controlClient()
	if err != nil {
		return err
	}

	var st server.Status
	if err := c.Get(cmd.Context(), server.ControlPrefix+"/status", nil, &st); err != nil {
		return err
	}

	if format == cli.FormatText {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Proxy listening on %s (up %s)\n", c.BaseURL, time.Since(st.StartedAt).Round(time.Second))
		fmt.Fprintf(out, "Requests: %d resolved, %d failovers, %d without an eligible provider\n\n",
			st.Failover.Resolutions, st.Failover.Failovers, st.Failover.NoEligible)
	}
	if format == cli.FormatJSON {
		return printResult(cmd, st)
	}
	return printResult(cmd, statusView(st))
}
