package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/grafana/nanofetch/config"
	"github.com/grafana/nanofetch/log"
)

var (
	// Global flags
	cfgFile  string
	envFiles []string
	apiKey   string
	jsonOut  bool
	debug    bool

	// Set by the persistent pre-run
	cfg    *config.Config
	logger log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "nanofetch",
	Short: "A resilient weather fetcher with retries and pluggable sinks",
	Long: `nanofetch fetches current weather for a city from an HTTP JSON API,
retrying transient failures with a fixed delay, and persists the result to a
CSV file, a SQL database and an object storage bucket.

The API key can be provided via flag or environment variables:
  - NANOFETCH_API_KEY: nanofetch-specific key
  - WEATHER_API_KEY:   shared weather key
  - API_KEY:           generic fallback

Variables are also read from a .env file in the working directory.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "Environment files to load")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key (overrides the environment)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	// Set up persistent pre-run to load configuration and logging
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(envFiles...); err != nil {
			return err
		}

		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		if apiKey != "" {
			loaded.API.Key = apiKey
		}
		if debug {
			loaded.Logging.Level = "debug"
		}

		cfg = loaded
		logger = newLogger(cfg.Logging.Level)
		return nil
	}
}

// newLogger writes colored structured logs to stderr so stdout stays parseable.
func newLogger(level string) log.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	handler := tint.NewHandler(os.Stderr, &tint.Options{Level: lvl})
	return log.NewSlogLogger(slog.New(handler))
}

// getOutputFormat returns "json" if json flag is set, otherwise "human"
func getOutputFormat() string {
	if jsonOut {
		return "json"
	}
	return "human"
}

// exitWithError prints an error and exits with code 1
func exitWithError(err error) {
	if jsonOut {
		fmt.Fprintf(os.Stderr, `{"error": %q}`+"\n", err.Error())
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}
