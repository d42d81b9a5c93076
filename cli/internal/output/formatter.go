package output

import (
	"io"
	"os"

	"github.com/grafana/nanofetch"
	"github.com/grafana/nanofetch/pipeline"
	"github.com/grafana/nanofetch/sink/sqlstore"
)

// Formatter defines the interface for different output formats
type Formatter interface {
	// FormatResult outputs the outcome of a single fetch call
	FormatResult(query string, result nanofetch.Result) error

	// FormatReport outputs the outcome of a pipeline run
	FormatReport(report pipeline.Report) error

	// FormatImport outputs CSV import statistics
	FormatImport(path string, stats sqlstore.ImportStats) error

	// FormatCities outputs the stored cities
	FormatCities(cities []sqlstore.City) error

	// FormatObservations outputs stored observations
	FormatObservations(rows []sqlstore.ObservationRow) error
}

// Get returns the appropriate formatter based on format type
func Get(format string) Formatter {
	return GetWithWriter(format, os.Stdout)
}

// GetWithWriter returns a formatter writing to w
func GetWithWriter(format string, w io.Writer) Formatter {
	switch format {
	case "json":
		return NewJSONFormatter(w)
	default:
		return NewHumanFormatter(w)
	}
}
