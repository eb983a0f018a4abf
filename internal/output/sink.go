package output

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmylchreest/harvest/internal/logger"
	"github.com/jmylchreest/harvest/pkg/harvest"
)

// FileDestination opens a file sink. Streaming formats open in append mode
// and persist every record before Append returns; FormatJSON opens in
// replace mode and rewrites the file atomically.
type FileDestination struct {
	Path    string
	Format  Format
	Columns []string // CSV column order; defaults to the first record's fields
	Resume  bool     // Keep existing contents instead of truncating
}

// Open implements harvest.Destination.
func (d FileDestination) Open(_ context.Context) (harvest.Sink, error) {
	format := d.Format
	if format == "" {
		format = FormatFromPath(d.Path)
	}
	if !format.Streaming() {
		return &ReplaceFileSink{path: d.Path, format: format}, nil
	}

	if d.Path == "" || d.Path == "-" {
		w, err := NewWriter(os.Stdout, format, WithColumns(d.Columns))
		if err != nil {
			return nil, err
		}
		sink := &AppendFileSink{w: w}
		if err := sink.start(); err != nil {
			return nil, err
		}
		return sink, nil
	}

	if dir := filepath.Dir(d.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	header := true
	columns := d.Columns
	if d.Resume {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
		if format == FormatCSV {
			existing, err := csvHeader(d.Path)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				header = false
				columns = existing
				logger.Debug("appending to existing csv", "path", d.Path, "columns", len(existing))
			}
		}
	}

	f, err := os.OpenFile(d.Path, flags, 0o644) //#nosec G304 -- output path comes from the CLI
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}

	w, err := NewWriter(f, format, WithColumns(columns), WithHeader(header))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	sink := &AppendFileSink{w: w, f: f}
	if err := sink.start(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	return sink, nil
}

// AppendFileSink flushes and syncs after every record.
type AppendFileSink struct {
	mu sync.Mutex
	w  Writer
	f  *os.File
}

// start writes a CSV header as soon as the columns are known, so a run
// that harvests nothing still leaves a headed file.
func (s *AppendFileSink) start() error {
	cw, ok := s.w.(*CSVWriter)
	if !ok {
		return nil
	}
	if err := cw.WriteHeader(); err != nil {
		return err
	}
	if err := cw.Flush(); err != nil {
		return err
	}
	if s.f != nil {
		return s.f.Sync()
	}
	return nil
}

// Mode implements harvest.Sink.
func (s *AppendFileSink) Mode() harvest.Mode {
	return harvest.ModeAppend
}

// Append implements harvest.Sink.
func (s *AppendFileSink) Append(_ context.Context, r harvest.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.w.Write(r); err != nil {
		return err
	}
	if err := s.w.Flush(); err != nil {
		return err
	}
	if s.f != nil {
		return s.f.Sync()
	}
	return nil
}

// ReplaceAll implements harvest.Sink.
func (s *AppendFileSink) ReplaceAll(context.Context, []harvest.Record) error {
	return harvest.ErrModeMismatch
}

// Close implements harvest.Sink.
func (s *AppendFileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.w.Flush()
	if s.f != nil {
		err = errors.Join(err, s.f.Close())
	}
	return err
}

// ReplaceFileSink writes all records to a temporary file and renames it over
// the destination, so readers never see a partial file.
type ReplaceFileSink struct {
	path   string
	format Format
}

// Mode implements harvest.Sink.
func (s *ReplaceFileSink) Mode() harvest.Mode {
	return harvest.ModeReplace
}

// Append implements harvest.Sink.
func (s *ReplaceFileSink) Append(context.Context, harvest.Record) error {
	return harvest.ErrModeMismatch
}

// ReplaceAll implements harvest.Sink.
func (s *ReplaceFileSink) ReplaceAll(_ context.Context, records []harvest.Record) error {
	if s.path == "" || s.path == "-" {
		return writeAll(os.Stdout, s.format, records)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := writeAll(tmp, s.format, records); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// Close implements harvest.Sink.
func (s *ReplaceFileSink) Close() error {
	return nil
}

func writeAll(out io.Writer, format Format, records []harvest.Record) error {
	w, err := NewWriter(out, format)
	if err != nil {
		return err
	}
	for _, r := range records {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return w.Flush()
}

// csvHeader returns the header row of an existing CSV file, or nil when the
// file is missing or empty.
func csvHeader(path string) ([]string, error) {
	f, err := os.Open(path) //#nosec G304 -- output path comes from the CLI
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	header, err := csv.NewReader(bufio.NewReader(f)).Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	return header, nil
}
