package sqlstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/grafana/nanofetch"
	"github.com/grafana/nanofetch/log"
	"github.com/grafana/nanofetch/sink/csvfile"
)

// numericColumns are the observation columns parsed as numbers, in table order.
var numericColumns = []string{"temp", "pressure", "humidity", "temp_min", "temp_max"}

// MissingColumnError reports a record or CSV row lacking a required column.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing expected column %q", e.Column)
}

// InvalidValueError reports a column whose value is not a number.
type InvalidValueError struct {
	Column string
	Value  string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value %q for column %q", e.Value, e.Column)
}

// ImportStats summarises an ImportCSV run.
type ImportStats struct {
	Imported int
	Skipped  int
}

// ObservationFromRecord extracts the stored columns from a fetched record.
func ObservationFromRecord(record nanofetch.Record) (string, Observation, error) {
	return observationFrom(func(column string) (string, bool) {
		if _, ok := record.Get(column); !ok {
			return "", false
		}
		return record.String(column), true
	})
}

func observationFrom(get func(column string) (string, bool)) (string, Observation, error) {
	city, ok := get("city")
	if !ok || city == "" {
		return "", Observation{}, &MissingColumnError{Column: "city"}
	}

	weather, ok := get("weather")
	if !ok {
		return "", Observation{}, &MissingColumnError{Column: "weather"}
	}

	values := make([]float64, len(numericColumns))
	for i, column := range numericColumns {
		raw, ok := get(column)
		if !ok {
			return "", Observation{}, &MissingColumnError{Column: column}
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", Observation{}, &InvalidValueError{Column: column, Value: raw}
		}
		values[i] = v
	}

	return city, Observation{
		Weather:  weather,
		Temp:     values[0],
		Pressure: values[1],
		Humidity: values[2],
		TempMin:  values[3],
		TempMax:  values[4],
	}, nil
}

// SaveRecord stores a freshly fetched record.
func (s *Store) SaveRecord(ctx context.Context, record nanofetch.Record) error {
	city, obs, err := ObservationFromRecord(record)
	if err != nil {
		return fmt.Errorf("convert record: %w", err)
	}
	return s.Save(ctx, city, obs)
}

// ImportCSV loads every row of the CSV file at path. Rows with a missing
// column, an invalid number or a failed insert are logged and skipped.
func (s *Store) ImportCSV(ctx context.Context, path string) (ImportStats, error) {
	logger := log.FromContextOr(ctx, s.logger)

	rows, err := csvfile.ReadRows(path)
	if err != nil {
		return ImportStats{}, err
	}

	var stats ImportStats
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		line := i + 2 // header is line 1
		city, obs, err := observationFrom(row.Get)
		if err != nil {
			logger.Warn("Skipping CSV row", "path", path, "line", line, "error", err)
			stats.Skipped++
			continue
		}

		if err := s.Save(ctx, city, obs); err != nil {
			logger.Error("Failed to store CSV row", "path", path, "line", line, "error", err)
			stats.Skipped++
			continue
		}
		stats.Imported++
	}

	logger.Info("Imported CSV", "path", path, "imported", stats.Imported, "skipped", stats.Skipped)
	return stats, nil
}
