// Package handler exposes a pipeline run as an HTTP endpoint. Each request
// carries an event naming the city; the response mirrors the outcome with a
// status code derived from the failure kind.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/grafana/nanofetch"
	"github.com/grafana/nanofetch/config"
	"github.com/grafana/nanofetch/log"
	"github.com/grafana/nanofetch/pipeline"
)

// maxEventSize bounds the request body.
const maxEventSize = 1 << 16

// Runner runs one fetch-and-persist job.
type Runner interface {
	Run(ctx context.Context, req nanofetch.FetchRequest) (pipeline.Report, error)
}

// Event is the request payload. An empty City uses the configured default.
type Event struct {
	City string `json:"city"`
}

// Response is the reply for every event.
type Response struct {
	StatusCode int              `json:"statusCode"`
	Body       string           `json:"body"`
	Data       nanofetch.Record `json:"data,omitempty"`
	ObjectPath string           `json:"object_path,omitempty"`
	RunID      string           `json:"run_id,omitempty"`
}

// Handler turns events into pipeline runs.
type Handler struct {
	cfg    *config.Config
	runner Runner
	logger log.Logger
}

// New creates a Handler. Configuration problems are reported per event, not here.
func New(cfg *config.Config, runner Runner, logger log.Logger) *Handler {
	if logger == nil {
		logger = log.Noop()
	}
	return &Handler{cfg: cfg, runner: runner, logger: logger}
}

// Handle processes one event.
func (h *Handler) Handle(ctx context.Context, event Event) Response {
	if err := h.cfg.RequireAPIKey(); err != nil {
		return Response{StatusCode: http.StatusInternalServerError, Body: err.Error()}
	}

	req := h.cfg.Request(event.City)
	report, err := h.runner.Run(log.WithContextLogger(ctx, h.logger), req)
	if err != nil {
		status := nanofetch.StatusForError(err)
		h.logger.Warn("Event failed", "city", req.Query, "status", status, "run_id", report.RunID, "error", err)
		return Response{StatusCode: status, Body: failureMessage(err), RunID: report.RunID}
	}

	location := report.CSVPath
	if report.ObjectPath != "" {
		location = report.ObjectPath
	}

	return Response{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf("Weather data for %s saved to %s", req.Query, location),
		Data:       report.Record,
		ObjectPath: report.ObjectPath,
		RunID:      report.RunID,
	}
}

// failureMessage prefers the classified detail, e.g. "API call timed out".
func failureMessage(err error) string {
	var fetchErr *nanofetch.FetchError
	if errors.As(err, &fetchErr) && fetchErr.Detail != "" {
		return fetchErr.Detail
	}
	return err.Error()
}

// ServeHTTP decodes the event from the request body and writes the Response as JSON.
// An empty body is the empty event.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var event Event
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventSize))
	if err != nil {
		writeJSON(w, Response{StatusCode: http.StatusBadRequest, Body: fmt.Sprintf("failed to read event: %v", err)})
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &event); err != nil {
			writeJSON(w, Response{StatusCode: http.StatusBadRequest, Body: fmt.Sprintf("invalid event: %v", err)})
			return
		}
	}

	writeJSON(w, h.Handle(r.Context(), event))
}

func writeJSON(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(resp.StatusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// NewMux routes POST /fetch to h, /metrics to gatherer and /healthz to a liveness probe.
func NewMux(h *Handler, gatherer prometheus.Gatherer) *http.ServeMux {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.Handle("POST /fetch", h)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
	return mux
}
