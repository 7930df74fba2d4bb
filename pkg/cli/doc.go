/*
Package cli provides helpers shared by the switchboard subcommands.

Control API client:

Subcommands that act on a running proxy (status, providers, takeover
enable) go through Client, which turns error envelopes into *APIError and
connection failures into ErrProxyUnavailable:

	c := cli.NewClient("http://127.0.0.1:15721")
	var st server.Status
	if err := c.Get(ctx, "/_switchboard/status", nil, &st); err != nil {
		return err
	}

Output Formatting:

Results are printed as aligned text, JSON or CSV. Types implementing Table
render as rows in text and CSV:

	formatter := cli.NewFormatter(cli.FormatJSON)
	if err := formatter.FormatTo(os.Stdout, result); err != nil {
		return err
	}

Exit codes:

ExitCode maps errors to the process status: 2 for configuration errors,
3 when the proxy is not reachable, 1 for anything else.
*/
package cli
