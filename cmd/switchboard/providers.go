package main

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
	"mercator-hq/switchboard/pkg/circuit"
	"mercator-hq/switchboard/pkg/cli"
	"mercator-hq/switchboard/pkg/health"
	"mercator-hq/switchboard/pkg/server"
)

var providersFlags struct {
	app string
	all bool
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Inspect and manage upstream providers",
	Long: `Inspect and manage the providers of a running proxy.

Examples:
  # List every provider with its breaker state
  switchboard providers list

  # Probe one provider now
  switchboard providers check backup --app claude

  # Probe every provider
  switchboard providers check --all

  # Close the breaker of a provider by hand
  switchboard providers enable primary --app codex`,
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers with health and breaker state",
	Args:  cobra.NoArgs,
	RunE:  listProviders,
}

var providersCheckCmd = &cobra.Command{
	Use:   "check [provider-id]",
	Short: "Run a health probe against a provider",
	Args:  cobra.MaximumNArgs(1),
	RunE:  checkProviders,
}

var providersEnableCmd = &cobra.Command{
	Use:   "enable <provider-id>",
	Short: "Force a provider's breaker closed",
	Args:  cobra.ExactArgs(1),
	RunE:  enableProvider,
}

func init() {
	rootCmd.AddCommand(providersCmd)
	providersCmd.AddCommand(providersListCmd, providersCheckCmd, providersEnableCmd)

	providersCmd.PersistentFlags().StringVarP(&providersFlags.app, "app", "a", "", "app: claude, codex, gemini")
	providersCheckCmd.Flags().BoolVar(&providersFlags.all, "all", false, "check every configured provider")
}

func appQuery() url.Values {
	if providersFlags.app == "" {
		return nil
	}
	return url.Values{"app": {providersFlags.app}}
}

func providerPath(id, action string) string {
	return server.ControlPrefix + "/providers/" + url.PathEscape(id) + "/" + action
}

func listProviders(cmd *cobra.Command, args []string) error {
	c, err := controlClient()
	if err != nil {
		return err
	}
	var view providersView
	if err := c.Get(cmd.Context(), server.ControlPrefix+"/providers", appQuery(), &view); err != nil {
		return err
	}
	return printResult(cmd, view)
}

type checkView struct {
	Results []health.CheckResult `json:"results"`
}

func (v checkView) Header() []string {
	return []string{"APP", "ID", "RESULT", "STATUS", "LATENCY", "BREAKER", "ERROR"}
}

func (v checkView) Rows() [][]string {
	rows := make([][]string, 0, len(v.Results))
	for _, r := range v.Results {
		result := "✓"
		if !r.Success {
			result = "✗"
		}
		status := "-"
		if r.StatusCode != 0 {
			status = strconv.Itoa(r.StatusCode)
		}
		msg := r.Error
		if msg == "" {
			msg = "-"
		}
		rows = append(rows, []string{
			r.App.String(),
			r.ProviderID,
			result,
			status,
			strconv.FormatInt(r.LatencyMS, 10) + "ms",
			r.Breaker.Status.String(),
			msg,
		})
	}
	return rows
}

func checkProviders(cmd *cobra.Command, args []string) error {
	if providersFlags.all == (len(args) == 1) {
		return errors.New("specify a provider id or --all")
	}

	c, err := controlClient()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if !providersFlags.all {
		var res health.CheckResult
		if err := c.Post(ctx, providerPath(args[0], "check"), appQuery(), &res); err != nil {
			return err
		}
		return printResult(cmd, checkView{Results: []health.CheckResult{res}})
	}

	var list providersView
	if err := c.Get(ctx, server.ControlPrefix+"/providers", appQuery(), &list); err != nil {
		return err
	}

	progress := cli.NewProgressReporter(cmd.ErrOrStderr(), "Checking providers")
	progress.Start(int64(len(list.Providers)))

	view := checkView{Results: make([]health.CheckResult, 0, len(list.Providers))}
	for i, p := range list.Providers {
		var res health.CheckResult
		q := url.Values{"app": {p.App.String()}}
		if err := c.Post(ctx, providerPath(p.ProviderID, "check"), q, &res); err != nil {
			var apiErr *cli.APIError
			if !errors.As(err, &apiErr) {
				progress.Error(err)
				return err
			}
			res = health.CheckResult{App: p.App, ProviderID: p.ProviderID, Error: apiErr.Message, Breaker: p.Breaker}
		}
		view.Results = append(view.Results, res)
		progress.Update(int64(i + 1))
	}
	progress.Finish()

	return printResult(cmd, view)
}

func enableProvider(cmd *cobra.Command, args []string) error {
	c, err := controlClient()
	if err != nil {
		return err
	}
	var st circuit.State
	if err := c.Post(cmd.Context(), providerPath(args[0], "enable"), appQuery(), &st); err != nil {
		return err
	}
	if jsonOutput() {
		return printResult(cmd, st)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Breaker for %s is %s\n", st.ProviderID, st.Status)
	return nil
}
