package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/grafana/nanofetch/cli/internal/client"
	"github.com/grafana/nanofetch/cli/internal/output"
)

var showCities bool

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show stored cities and weather observations",
	Long: `Show the cities and weather observations stored in the database.

Examples:
  # Show everything
  nanofetch show

  # Show only the cities
  nanofetch show --cities`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		store, err := client.OpenStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("no database configured")
		}
		defer store.Close()

		formatter := output.Get(getOutputFormat())

		cities, err := store.ListCities(ctx)
		if err != nil {
			return err
		}
		if err := formatter.FormatCities(cities); err != nil {
			return err
		}
		if showCities {
			return nil
		}

		rows, err := store.ListObservations(ctx)
		if err != nil {
			return err
		}
		return formatter.FormatObservations(rows)
	},
}

func init() {
	showCmd.Flags().BoolVar(&showCities, "cities", false, "Show only the cities")
	rootCmd.AddCommand(showCmd)
}
