// Package metrics exposes Prometheus instrumentation for fetch calls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nanofetch"

// Metrics holds all Prometheus metrics for nanofetch.
// It implements nanofetch.Observer.
type Metrics struct {
	AttemptsTotal   *prometheus.CounterVec
	ResultsTotal    *prometheus.CounterVec
	FetchDuration   prometheus.Histogram
	AttemptsPerCall prometheus.Histogram
	RunsTotal       *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
// A nil reg registers with the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		AttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Total number of fetch attempts by outcome",
			},
			[]string{"outcome"},
		),
		ResultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "results_total",
				Help:      "Total number of fetch calls by final outcome",
			},
			[]string{"outcome"},
		),
		FetchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fetch_duration_seconds",
				Help:      "Duration of fetch calls including pauses between attempts",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
			},
		),
		AttemptsPerCall: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attempts_per_fetch",
				Help:      "Number of transport calls made per fetch call",
				Buckets:   prometheus.LinearBuckets(1, 1, 10),
			},
		),
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_runs_total",
				Help:      "Total number of pipeline runs by status",
			},
			[]string{"status"},
		),
	}
}

// ObserveAttempt counts one attempt.
func (m *Metrics) ObserveAttempt(outcome string) {
	m.AttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveResult records the final outcome of a fetch call.
func (m *Metrics) ObserveResult(outcome string, attempts int, elapsed time.Duration) {
	m.ResultsTotal.WithLabelValues(outcome).Inc()
	m.FetchDuration.Observe(elapsed.Seconds())
	m.AttemptsPerCall.Observe(float64(attempts))
}

// ObserveRun counts one pipeline run, status being "success" or "failure".
func (m *Metrics) ObserveRun(status string) {
	m.RunsTotal.WithLabelValues(status).Inc()
}
