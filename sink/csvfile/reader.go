package csvfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

// Row maps header names to the values of one data row.
// Columns beyond the end of a short row are absent from the map.
type Row map[string]string

// Get returns the value for column and whether the row has it.
func (r Row) Get(column string) (string, bool) {
	v, ok := r[column]
	return v, ok
}

// ReadRows reads every data row of the file at path.
// Rows may have fewer or more fields than the header.
func ReadRows(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}

	var rows []Row
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("read %s: %w", path, err)
		}

		row := make(Row, len(header))
		for i, value := range fields {
			if i >= len(header) {
				break
			}
			row[header[i]] = value
		}
		rows = append(rows, row)
	}

	return rows, nil
}
