package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"mercator-hq/switchboard/pkg/cli"
	"mercator-hq/switchboard/pkg/providers"
	"mercator-hq/switchboard/pkg/takeover"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and CLI config files",
	Long: `Load the configuration with environment overrides applied and report
problems without starting the proxy.

The CLI configuration file of every app is also parsed, since a takeover
refuses to rewrite a file it cannot parse.

Examples:
  switchboard validate
  switchboard validate --config ./switchboard.yaml`,
	Args: cobra.NoArgs,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Configuration valid (%s)\n", cfgFile)

	var problems []error
	for _, app := range providers.Apps() {
		list := cfg.ProviderList(app)
		for _, p := range list {
			if p.Credential == "" {
				fmt.Fprintf(out, "! %s/%s has no API key; requests keep the client's credentials\n", app, p.ID)
			}
		}

		path, err := cfg.CLIConfigPath(app)
		if err != nil {
			problems = append(problems, fmt.Errorf("%s: %w", app, err))
			continue
		}
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			fmt.Fprintf(out, "✓ %s: %d providers, %s not present\n", app, len(list), path)
		case err != nil:
			problems = append(problems, fmt.Errorf("%s: %w", app, err))
		default:
			if err := takeover.CodecFor(app).Validate(data); err != nil {
				problems = append(problems, fmt.Errorf("%s: %s: %w", app, path, err))
				fmt.Fprintf(out, "✗ %s: %s cannot be parsed: %v\n", app, path, err)
				continue
			}
			fmt.Fprintf(out, "✓ %s: %d providers, %s parses\n", app, len(list), path)
		}
	}

	if len(problems) > 0 {
		return cli.NewCommandError("validate", errors.Join(problems...))
	}
	return nil
}
