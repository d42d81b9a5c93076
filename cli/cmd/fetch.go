package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/grafana/nanofetch/cli/internal/client"
	"github.com/grafana/nanofetch/cli/internal/output"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [city]",
	Short: "Fetch current weather for a city without storing it",
	Long: `Fetch current weather for a city and print the extracted record.
Nothing is written to disk. The command exits non-zero when the fetch fails.

Examples:
  # Fetch the configured default city
  nanofetch fetch

  # Fetch a specific city as JSON
  nanofetch fetch Mysuru --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireAPIKey(); err != nil {
			return err
		}

		var city string
		if len(args) == 1 {
			city = args[0]
		}

		fetcher, err := client.NewFetcher(cfg, logger, nil)
		if err != nil {
			return err
		}

		req := cfg.Request(city)
		result := fetcher.Fetch(context.Background(), req)

		formatter := output.Get(getOutputFormat())
		if err := formatter.FormatResult(req.Query, result); err != nil {
			return err
		}
		if !result.OK() {
			exitWithError(result.AsError())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}
