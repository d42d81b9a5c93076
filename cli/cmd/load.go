package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/grafana/nanofetch/cli/internal/client"
	"github.com/grafana/nanofetch/cli/internal/output"
)

var loadCmd = &cobra.Command{
	Use:   "load [csv-file]",
	Short: "Import a CSV file into the database",
	Long: `Import every row of a CSV file into the database. Rows with missing
columns or invalid numbers are skipped and logged.

Examples:
  # Import the configured CSV file
  nanofetch load

  # Import another file
  nanofetch load archive/weather-2024.csv`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Output.CSVPath
		if len(args) == 1 {
			path = args[0]
		}

		ctx := context.Background()
		store, err := client.OpenStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("no database configured")
		}
		defer store.Close()

		stats, err := store.ImportCSV(ctx, path)
		if err != nil {
			return err
		}

		formatter := output.Get(getOutputFormat())
		return formatter.FormatImport(path, stats)
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
}
