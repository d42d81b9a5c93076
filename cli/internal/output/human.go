package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/grafana/nanofetch"
	"github.com/grafana/nanofetch/pipeline"
	"github.com/grafana/nanofetch/sink/sqlstore"
)

// HumanFormatter outputs in human-readable format with colors
type HumanFormatter struct {
	w       io.Writer
	success *color.Color
	failure *color.Color
	info    *color.Color
	dim     *color.Color
}

// NewHumanFormatter creates a new human-readable formatter
func NewHumanFormatter(w io.Writer) *HumanFormatter {
	return &HumanFormatter{
		w:       w,
		success: color.New(color.FgGreen),
		failure: color.New(color.FgRed),
		info:    color.New(color.FgCyan),
		dim:     color.New(color.Faint),
	}
}

func (f *HumanFormatter) formatRecord(record nanofetch.Record) {
	width := 0
	for _, field := range record {
		width = max(width, len(field.Name))
	}
	for _, field := range record {
		fmt.Fprintf(f.w, "  %s %s\n",
			f.info.Sprintf("%-*s", width, field.Name),
			record.String(field.Name))
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// FormatResult outputs a fetch result in human-readable format
func (f *HumanFormatter) FormatResult(query string, result nanofetch.Result) error {
	if !result.OK() {
		f.failure.Fprintf(f.w, "✗ %s: %v\n", query, result.Err)
		fmt.Fprintf(f.w, "  %s\n", f.dim.Sprintf("%s after %s", result.Err.Kind, plural(result.Attempts, "attempt")))
		return nil
	}

	f.success.Fprintf(f.w, "✓ %s\n", query)
	f.formatRecord(result.Record)
	fmt.Fprintf(f.w, "  %s\n", f.dim.Sprint(plural(result.Attempts, "attempt")))
	return nil
}

// FormatReport outputs a pipeline report in human-readable format
func (f *HumanFormatter) FormatReport(report pipeline.Report) error {
	f.success.Fprintf(f.w, "✓ Weather data for %s saved to %s\n", report.Query, report.CSVPath)
	f.formatRecord(report.Record)
	if report.Stored {
		fmt.Fprintf(f.w, "  Stored in database\n")
	}
	if report.ObjectPath != "" {
		fmt.Fprintf(f.w, "  Uploaded to %s\n", report.ObjectPath)
	}
	fmt.Fprintf(f.w, "  %s\n", f.dim.Sprintf("run %s, %s, %s",
		report.RunID, plural(report.Attempts, "attempt"), report.Duration.Round(time.Millisecond)))
	return nil
}

// FormatImport outputs import statistics in human-readable format
func (f *HumanFormatter) FormatImport(path string, stats sqlstore.ImportStats) error {
	f.success.Fprintf(f.w, "✓ Imported %s from %s\n", plural(stats.Imported, "row"), path)
	if stats.Skipped > 0 {
		fmt.Fprintf(f.w, "  %s\n", f.failure.Sprintf("skipped %s", plural(stats.Skipped, "row")))
	}
	return nil
}

// FormatCities outputs cities in human-readable format
func (f *HumanFormatter) FormatCities(cities []sqlstore.City) error {
	fmt.Fprintln(f.w, "Cities in the database:")
	for _, city := range cities {
		fmt.Fprintf(f.w, "%s\t%s\n", f.dim.Sprint(city.ID), city.Name)
	}
	return nil
}

// FormatObservations outputs observations in human-readable format
func (f *HumanFormatter) FormatObservations(rows []sqlstore.ObservationRow) error {
	fmt.Fprintln(f.w, "Weather data in the database:")
	separator := strings.Repeat("-", 40)
	for _, row := range rows {
		fmt.Fprintf(f.w, "%s %s\n", f.info.Sprint(row.City), f.dim.Sprintf("#%d %s", row.ID, row.Date.Format(time.DateTime)))
		fmt.Fprintf(f.w, "  Weather:     %s\n", row.Weather)
		fmt.Fprintf(f.w, "  Temperature: %g (min %g, max %g)\n", row.Temp, row.TempMin, row.TempMax)
		fmt.Fprintf(f.w, "  Pressure:    %g\n", row.Pressure)
		fmt.Fprintf(f.w, "  Humidity:    %g\n", row.Humidity)
		fmt.Fprintln(f.w, f.dim.Sprint(separator))
	}
	return nil
}
