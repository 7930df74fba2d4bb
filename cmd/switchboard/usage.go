package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/switchboard/pkg/cli"
	"mercator-hq/switchboard/pkg/server"
	"mercator-hq/switchboard/pkg/usage"
	"mercator-hq/switchboard/pkg/usage/retention"
)

var usageFlags struct {
	app        string
	provider   string
	since      string
	until      string
	failed     bool
	succeeded  bool
	limit      int
	offset     int
	days       int
	maxRecords int64
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Query recorded request usage",
	Long: `Query the request log kept in the state database.

These commands read the database directly and do not need a running proxy.
Times accept RFC 3339 or a duration back from now.

Examples:
  # Last 20 requests made by Claude Code
  switchboard usage list --app claude --limit 20

  # Failed requests in the last hour as CSV
  switchboard usage list --since 1h --failed -o csv

  # Per-provider totals for the last week
  switchboard usage stats --since 168h

  # Apply the retention policy now
  switchboard usage prune`,
}

var usageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded requests, newest first",
	Args:  cobra.NoArgs,
	RunE:  listUsage,
}

var usageStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregate requests and tokens per provider",
	Args:  cobra.NoArgs,
	RunE:  usageStats,
}

var usagePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete request logs outside the retention policy",
	Args:  cobra.NoArgs,
	RunE:  pruneUsage,
}

func init() {
	rootCmd.AddCommand(usageCmd)
	usageCmd.AddCommand(usageListCmd, usageStatsCmd, usagePruneCmd)

	for _, c := range []*cobra.Command{usageListCmd, usageStatsCmd} {
		c.Flags().StringVarP(&usageFlags.app, "app", "a", "", "filter by app")
		c.Flags().StringVar(&usageFlags.provider, "provider", "", "filter by provider id")
		c.Flags().StringVar(&usageFlags.since, "since", "", "start time, inclusive")
		c.Flags().StringVar(&usageFlags.until, "until", "", "end time, exclusive")
		c.Flags().BoolVar(&usageFlags.failed, "failed", false, "only failed requests")
		c.Flags().BoolVar(&usageFlags.succeeded, "succeeded", false, "only successful requests")
	}
	usageListCmd.Flags().IntVarP(&usageFlags.limit, "limit", "n", 50, "maximum entries to show")
	usageListCmd.Flags().IntVar(&usageFlags.offset, "offset", 0, "entries to skip")

	usagePruneCmd.Flags().IntVar(&usageFlags.days, "days", -1, "override usage.retention.days")
	usagePruneCmd.Flags().Int64Var(&usageFlags.maxRecords, "max-records", -1, "override usage.retention.max_records")
}

// usageQuery turns the filter flags into a store query using the same
// parameter rules as the control API.
func usageQuery(now time.Time) (*usage.Query, error) {
	if usageFlags.failed && usageFlags.succeeded {
		return nil, fmt.Errorf("--failed and --succeeded are mutually exclusive")
	}
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("app", usageFlags.app)
	set("provider", usageFlags.provider)
	set("since", usageFlags.since)
	set("until", usageFlags.until)
	switch {
	case usageFlags.failed:
		v.Set("success", "false")
	case usageFlags.succeeded:
		v.Set("success", "true")
	}
	if usageFlags.limit > 0 {
		v.Set("limit", strconv.Itoa(usageFlags.limit))
	}
	if usageFlags.offset > 0 {
		v.Set("offset", strconv.Itoa(usageFlags.offset))
	}
	return server.ParseUsageValues(v, now)
}

// withUsageStore opens the state database and runs fn against its usage store.
func withUsageStore(ctx context.Context, fn func(usage.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := server.OpenStorage(ctx, cfg)
	if err != nil {
		return cli.NewCommandError("usage", err)
	}
	defer db.Close()

	store, err := usage.NewSQLiteStore(db)
	if err != nil {
		return cli.NewCommandError("usage", err)
	}
	return fn(store)
}

func listUsage(cmd *cobra.Command, args []string) error {
	q, err := usageQuery(time.Now())
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var page usageView
	err = withUsageStore(ctx, func(store usage.Store) error {
		if page.Entries, err = store.Query(ctx, q); err != nil {
			return err
		}
		page.Total, err = store.Count(ctx, q)
		return err
	})
	if err != nil {
		return err
	}
	if page.Entries == nil {
		page.Entries = []*usage.Entry{}
	}

	if err := printResult(cmd, page); err != nil {
		return err
	}
	if verbose && !jsonOutput() {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d entries\n", len(page.Entries), page.Total)
	}
	return nil
}

func usageStats(cmd *cobra.Command, args []string) error {
	q, err := usageQuery(time.Now())
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var view statsView
	err = withUsageStore(ctx, func(store usage.Store) error {
		view.Stats, err = store.Stats(ctx, q)
		return err
	})
	if err != nil {
		return err
	}
	if view.Stats == nil {
		view.Stats = []usage.ProviderStats{}
	}
	return printResult(cmd, view)
}

func pruneUsage(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rc := &retention.Config{
		RetentionDays: cfg.Usage.Retention.Days,
		MaxRecords:    cfg.Usage.Retention.MaxRecords,
	}
	if usageFlags.days >= 0 {
		rc.RetentionDays = usageFlags.days
	}
	if usageFlags.maxRecords >= 0 {
		rc.MaxRecords = usageFlags.maxRecords
	}
	ctx := cmd.Context()

	var res retention.Result
	err = withUsageStore(ctx, func(store usage.Store) error {
		res, err = retention.NewPruner(store, rc).Prune(ctx)
		return err
	})
	if err != nil {
		return err
	}

	if jsonOutput() {
		return printResult(cmd, res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Pruned %d entries (%d by age, %d by count)\n", res.Total(), res.ByAge, res.ByCount)
	return nil
}
