// Package csvfile appends fetched records to a delimited file and reads them back.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/grafana/nanofetch"
	"github.com/grafana/nanofetch/log"
)

// Writer appends records to a single CSV file.
// The header is written on first use from the record's field names; later
// rows follow that header whatever order their fields come in.
type Writer struct {
	path   string
	logger log.Logger
	mu     sync.Mutex
}

// NewWriter returns a Writer for path. The file is not touched until the first Append.
func NewWriter(path string, logger log.Logger) *Writer {
	if logger == nil {
		logger = log.Noop()
	}
	return &Writer{path: path, logger: logger}
}

// Path returns the file the writer appends to.
func (w *Writer) Path() string {
	return w.path
}

// Append writes record as one row, creating the file and its header if needed.
func (w *Writer) Append(ctx context.Context, record nanofetch.Record) error {
	if len(record) == 0 {
		return errors.New("record is empty")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	logger := log.FromContextOr(ctx, w.logger)

	header, err := readHeader(w.path)
	if err != nil {
		return err
	}

	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", w.path, err)
	}
	defer file.Close()

	out := csv.NewWriter(file)
	if header == nil {
		header = record.Names()
		if err := out.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		logger.Debug("Created CSV file", "path", w.path, "columns", len(header))
	}

	row, dropped := align(header, record)
	if len(dropped) > 0 {
		logger.Warn("Record has fields missing from CSV header", "path", w.path, "fields", dropped)
	}

	if err := out.Write(row); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	out.Flush()
	if err := out.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", w.path, err)
	}

	return file.Close()
}

// align orders the record's values by header. Header columns the record lacks
// are left empty; record fields outside the header are returned as dropped.
func align(header []string, record nanofetch.Record) (row []string, dropped []string) {
	known := make(map[string]struct{}, len(header))
	row = make([]string, len(header))
	for i, name := range header {
		known[name] = struct{}{}
		row[i] = record.String(name)
	}
	for _, name := range record.Names() {
		if _, ok := known[name]; !ok {
			dropped = append(dropped, name)
		}
	}
	return row, dropped
}

// readHeader returns the first row of the file, or nil when the file is missing or empty.
func readHeader(path string) ([]string, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	header, err := csv.NewReader(file).Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	return header, nil
}
