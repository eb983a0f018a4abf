package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/jmylchreest/harvest/pkg/harvest"
)

// CSVWriter writes records as CSV rows. Values are rendered with
// harvest.FormatValue so nil becomes an empty cell.
type CSVWriter struct {
	w       *csv.Writer
	columns []string
	header  bool
	started bool
}

// NewCSVWriter creates a CSV writer. When columns is empty the first
// record's field order is used.
func NewCSVWriter(w io.Writer, columns []string, header bool) *CSVWriter {
	return &CSVWriter{
		w:       csv.NewWriter(w),
		columns: columns,
		header:  header,
	}
}

// Columns returns the column order in effect.
func (w *CSVWriter) Columns() []string {
	return w.columns
}

// WriteHeader writes the header row now instead of before the first
// record. It is a no-op once started, and when no columns are fixed yet.
func (w *CSVWriter) WriteHeader() error {
	if w.started || len(w.columns) == 0 {
		return nil
	}
	w.started = true
	if !w.header {
		return nil
	}
	return w.w.Write(w.columns)
}

// Write writes one record as a row, preceded by the header on first use.
func (w *CSVWriter) Write(r harvest.Record) error {
	if !w.started {
		if len(w.columns) == 0 {
			w.columns = r.Names()
		}
		if err := w.WriteHeader(); err != nil {
			return err
		}
	}

	row := make([]string, len(w.columns))
	for i, col := range w.columns {
		row[i] = r.String(col)
	}
	return w.w.Write(row)
}

// Flush writes buffered rows.
func (w *CSVWriter) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

// ReadCSV reads a headed CSV file into records, one per row, in header
// order. All values are strings. Short rows leave trailing fields empty.
func ReadCSV(r io.Reader) ([]harvest.Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var records []harvest.Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		fields := make([]harvest.Field, len(header))
		for i, name := range header {
			var v string
			if i < len(row) {
				v = row[i]
			}
			fields[i] = harvest.Field{Name: name, Value: v}
		}
		records = append(records, harvest.NewRecord(fields...))
	}
}
