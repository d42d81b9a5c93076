package output

import (
	"encoding/json"
	"io"
	"time"

	"github.com/grafana/nanofetch"
	"github.com/grafana/nanofetch/pipeline"
	"github.com/grafana/nanofetch/sink/sqlstore"
)

// JSONFormatter outputs in JSON format
type JSONFormatter struct {
	encoder *json.Encoder
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter(w io.Writer) *JSONFormatter {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return &JSONFormatter{
		encoder: enc,
	}
}

// errorOutput represents a classified fetch failure for JSON output
type errorOutput struct {
	Kind       string `json:"kind"`
	StatusCode int    `json:"status_code,omitempty"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
}

// resultOutput represents a fetch result for JSON output
type resultOutput struct {
	Query    string           `json:"query"`
	OK       bool             `json:"ok"`
	Attempts int              `json:"attempts"`
	Data     nanofetch.Record `json:"data,omitempty"`
	Error    *errorOutput     `json:"error,omitempty"`
}

// FormatResult outputs a fetch result in JSON format
func (f *JSONFormatter) FormatResult(query string, result nanofetch.Result) error {
	output := resultOutput{
		Query:    query,
		OK:       result.OK(),
		Attempts: result.Attempts,
		Data:     result.Record,
	}
	if !result.OK() {
		output.Error = &errorOutput{
			Kind:       result.Err.Kind.String(),
			StatusCode: result.Err.StatusCode,
			Message:    result.Err.Error(),
			Retryable:  result.Err.Transient(),
		}
	}
	return f.encoder.Encode(output)
}

// reportOutput represents a pipeline report for JSON output
type reportOutput struct {
	RunID      string           `json:"run_id"`
	Query      string           `json:"query"`
	Attempts   int              `json:"attempts"`
	CSVPath    string           `json:"csv_path"`
	Stored     bool             `json:"stored"`
	ObjectPath string           `json:"object_path,omitempty"`
	DurationMS int64            `json:"duration_ms"`
	Data       nanofetch.Record `json:"data"`
}

// FormatReport outputs a pipeline report in JSON format
func (f *JSONFormatter) FormatReport(report pipeline.Report) error {
	return f.encoder.Encode(reportOutput{
		RunID:      report.RunID,
		Query:      report.Query,
		Attempts:   report.Attempts,
		CSVPath:    report.CSVPath,
		Stored:     report.Stored,
		ObjectPath: report.ObjectPath,
		DurationMS: report.Duration.Milliseconds(),
		Data:       report.Record,
	})
}

// FormatImport outputs import statistics in JSON format
func (f *JSONFormatter) FormatImport(path string, stats sqlstore.ImportStats) error {
	return f.encoder.Encode(map[string]interface{}{
		"path":     path,
		"imported": stats.Imported,
		"skipped":  stats.Skipped,
	})
}

// cityOutput represents a city for JSON output
type cityOutput struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// FormatCities outputs cities in JSON format
func (f *JSONFormatter) FormatCities(cities []sqlstore.City) error {
	output := make([]cityOutput, len(cities))
	for i, city := range cities {
		output[i] = cityOutput{ID: city.ID, Name: city.Name}
	}
	return f.encoder.Encode(map[string]interface{}{
		"cities": output,
	})
}

// observationOutput represents a stored observation for JSON output
type observationOutput struct {
	ID       int64     `json:"id"`
	City     string    `json:"city"`
	Weather  string    `json:"weather"`
	Temp     float64   `json:"temp"`
	Pressure float64   `json:"pressure"`
	Humidity float64   `json:"humidity"`
	TempMin  float64   `json:"temp_min"`
	TempMax  float64   `json:"temp_max"`
	Date     time.Time `json:"date"`
}

// FormatObservations outputs observations in JSON format
func (f *JSONFormatter) FormatObservations(rows []sqlstore.ObservationRow) error {
	output := make([]observationOutput, len(rows))
	for i, row := range rows {
		output[i] = observationOutput(row)
	}
	return f.encoder.Encode(map[string]interface{}{
		"observations": output,
	})
}
