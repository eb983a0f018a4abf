package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmylchreest/harvest/internal/logger"
	"github.com/jmylchreest/harvest/internal/normalize"
	"github.com/jmylchreest/harvest/pkg/harvest"
	"github.com/jmylchreest/harvest/pkg/schema"
)

// TableDestination opens a replace-mode sink that rewrites one table.
// When Table has no columns they are inferred from the records, with names
// passed through normalize.Column. With KeepOnEmpty set, a harvest that
// produced no records leaves the table as it was.
type TableDestination struct {
	DB          *DB
	Table       schema.Table
	KeepOnEmpty bool
}

// Open implements harvest.Destination.
func (d TableDestination) Open(_ context.Context) (harvest.Sink, error) {
	if d.DB == nil {
		return nil, fmt.Errorf("table %s: no database", d.Table.Name)
	}
	if d.Table.Name == "" {
		return nil, fmt.Errorf("table name is required")
	}
	if len(d.Table.Columns) > 0 {
		if err := d.Table.Validate(); err != nil {
			return nil, err
		}
	}
	return &TableSink{db: d.DB, table: d.Table, keepOnEmpty: d.KeepOnEmpty}, nil
}

// TableSink replaces the full contents of a table in one pass.
type TableSink struct {
	db          *DB
	table       schema.Table
	keepOnEmpty bool
}

// Mode implements harvest.Sink.
func (s *TableSink) Mode() harvest.Mode {
	return harvest.ModeReplace
}

// Append implements harvest.Sink.
func (s *TableSink) Append(context.Context, harvest.Record) error {
	return harvest.ErrModeMismatch
}

// ReplaceAll loads records into a staging table and swaps it in, so the
// previous contents stay readable until the new ones are complete.
func (s *TableSink) ReplaceAll(ctx context.Context, records []harvest.Record) error {
	if len(records) == 0 && s.keepOnEmpty {
		logger.Warn("no records harvested, table left unchanged", "table", s.table.Name)
		return nil
	}

	table := s.table
	if len(table.Columns) == 0 {
		table = schema.Infer(s.table.Name, records, normalize.Column)
		if len(table.Columns) == 0 {
			logger.Warn("no columns to write", "table", table.Name)
			return nil
		}
	}

	staging := table.Name + "__staging"
	tx, err := s.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quote(staging)); err != nil {
		return fmt.Errorf("failed to drop staging table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.createTable(staging, table)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table.Name, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertStatement(staging, table))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, r := range records {
		if _, err := stmt.ExecContext(ctx, table.Row(r)...); err != nil {
			return fmt.Errorf("failed to insert row %d into %s: %w", i+1, table.Name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quote(table.Name)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", table.Name, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quote(staging), quote(table.Name))); err != nil {
		return fmt.Errorf("failed to swap table %s: %w", table.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit table %s: %w", table.Name, err)
	}

	logger.Info("table replaced", "table", table.Name, "rows", len(records), "columns", len(table.Columns))
	return nil
}

// Close implements harvest.Sink. The database handle is owned by the caller.
func (s *TableSink) Close() error {
	return nil
}

func (s *TableSink) createTable(name string, table schema.Table) string {
	cols := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		cols[i] = quote(c.Name) + " " + s.db.dialect.ColumnType(string(c.Type))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", quote(name), strings.Join(cols, ",\n\t"))
}

func insertStatement(name string, table schema.Table) string {
	cols := make([]string, len(table.Columns))
	marks := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		cols[i] = quote(c.Name)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(name), strings.Join(cols, ", "), strings.Join(marks, ", "))
}
