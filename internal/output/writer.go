// Package output writes harvested records to local files.
package output

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/jmylchreest/harvest/pkg/harvest"
)

// Format represents output format types.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
	FormatJSON  Format = "json"
)

// Formats lists the supported formats.
var Formats = []Format{FormatCSV, FormatJSONL, FormatYAML, FormatJSON}

// Writer serializes records.
type Writer interface {
	// Write outputs a single record.
	Write(r harvest.Record) error

	// Flush ensures all data is written to the underlying writer.
	Flush() error
}

// Streaming reports whether every Write reaches the underlying writer on
// Flush. Formats that only produce output once all records are known
// (a JSON array) return false.
func (f Format) Streaming() bool {
	return f != FormatJSON
}

// FormatFromPath guesses the format from a file extension, defaulting to CSV.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return FormatJSONL
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	default:
		return FormatCSV
	}
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported output format: %s", s)
}

// WriterOption configures a writer.
type WriterOption func(*writerConfig)

type writerConfig struct {
	header  bool
	columns []string
	indent  string
}

// WithHeader controls whether a CSV header row is written before the first
// record. Disable it when appending to a file that already has one.
func WithHeader(enabled bool) WriterOption {
	return func(c *writerConfig) {
		c.header = enabled
	}
}

// WithColumns fixes the CSV column order. Without it the columns of the
// first record are used.
func WithColumns(columns []string) WriterOption {
	return func(c *writerConfig) {
		c.columns = columns
	}
}

// WithIndent sets the indentation string for JSON output.
func WithIndent(indent string) WriterOption {
	return func(c *writerConfig) {
		c.indent = indent
	}
}

// NewWriter creates a writer for the specified format.
func NewWriter(w io.Writer, format Format, opts ...WriterOption) (Writer, error) {
	cfg := &writerConfig{
		header: true,
		indent: "  ",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	switch format {
	case FormatCSV:
		return NewCSVWriter(w, cfg.columns, cfg.header), nil
	case FormatJSONL:
		return NewJSONLWriter(w), nil
	case FormatYAML:
		return NewYAMLWriter(w), nil
	case FormatJSON:
		return NewJSONWriter(w, cfg.indent), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
