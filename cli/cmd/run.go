package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/grafana/nanofetch/cli/internal/client"
	"github.com/grafana/nanofetch/cli/internal/output"
)

var runCmd = &cobra.Command{
	Use:   "run [city]",
	Short: "Fetch weather for a city and persist it",
	Long: `Fetch current weather for a city, append it to the CSV file, then
store it in the database and upload the CSV file when those are configured.

Examples:
  # Run once for the configured default city
  nanofetch run

  # Run for a specific city with a config file
  nanofetch run Chennai --config nanofetch.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireAPIKey(); err != nil {
			return err
		}

		var city string
		if len(args) == 1 {
			city = args[0]
		}

		ctx := context.Background()
		job, err := client.NewJob(ctx, cfg, logger, nil)
		if err != nil {
			return err
		}
		defer job.Close()

		report, err := job.Run(ctx, cfg.Request(city))
		if err != nil {
			return err
		}

		formatter := output.Get(getOutputFormat())
		return formatter.FormatReport(report)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
