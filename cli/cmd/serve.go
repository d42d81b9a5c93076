package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/grafana/nanofetch/cli/internal/client"
	"github.com/grafana/nanofetch/handler"
	"github.com/grafana/nanofetch/metrics"
)

const shutdownTimeout = 10 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve fetch events over HTTP",
	Long: `Serve fetch events over HTTP. POST /fetch with {"city": "..."} runs the
pipeline and answers with a status code derived from the outcome.
GET /metrics exposes Prometheus metrics and GET /healthz a liveness probe.

Examples:
  # Listen on the configured address
  nanofetch serve

  # Listen on another port
  nanofetch serve --addr :9090`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m := metrics.NewMetrics(reg)

		job, err := client.NewJob(ctx, cfg, logger, m)
		if err != nil {
			return err
		}
		defer job.Close()

		if err := cfg.RequireAPIKey(); err != nil {
			logger.Warn("Serving without API key, every event will fail", "error", err)
		}

		srv := &http.Server{
			Addr:              addr,
			Handler:           handler.NewMux(handler.New(cfg, job, logger), reg),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("Listening", "addr", addr)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}
