package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/grafana/nanofetch/cli/internal/client"
)

var (
	scheduleSpec string
	scheduleNow  bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the pipeline periodically",
	Long: `Run the pipeline for every scheduled city on a cron schedule until
interrupted. Cities come from schedule.cities, or the default city.

Examples:
  # Use the configured schedule
  nanofetch schedule

  # Every 15 minutes, starting with an immediate run
  nanofetch schedule --cron "*/15 * * * *" --now`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireAPIKey(); err != nil {
			return err
		}

		spec := cfg.Schedule.Cron
		if scheduleSpec != "" {
			spec = scheduleSpec
		}

		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", spec, err)
		}

		cities := cfg.Schedule.Cities
		if len(cities) == 0 {
			cities = []string{cfg.API.City}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		job, err := client.NewJob(ctx, cfg, logger, nil)
		if err != nil {
			return err
		}
		defer job.Close()

		runAll := func() {
			for _, city := range cities {
				if ctx.Err() != nil {
					return
				}
				// Failures are logged by the pipeline; the next tick retries.
				_, _ = job.Run(ctx, cfg.Request(city))
			}
		}

		c := cron.New(cron.WithParser(parser))
		if _, err := c.AddFunc(spec, runAll); err != nil {
			return fmt.Errorf("schedule job: %w", err)
		}

		logger.Info("Schedule started", "cron", spec, "cities", cities)
		if scheduleNow {
			runAll()
		}

		c.Start()
		<-ctx.Done()

		logger.Info("Stopping schedule, waiting for running jobs")
		<-c.Stop().Done()
		return nil
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleSpec, "cron", "", "Cron expression (overrides schedule.cron)")
	scheduleCmd.Flags().BoolVar(&scheduleNow, "now", false, "Run once immediately before waiting for the schedule")
	rootCmd.AddCommand(scheduleCmd)
}
