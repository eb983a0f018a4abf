package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmylchreest/harvest/pkg/harvest"
)

// RunRecord is a row of the run ledger.
type RunRecord struct {
	ID         int64
	Source     string
	State      string
	Exhausted  bool
	Pages      int
	Records    int
	Failures   int
	Duplicates int
	Warnings   int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the run took.
func (r RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// RecordRun appends a finished run to the ledger.
func (db *DB) RecordRun(ctx context.Context, run *harvest.Run) (int64, error) {
	var errText sql.NullString
	if run.Err != nil {
		errText = sql.NullString{String: run.Err.Error(), Valid: true}
	}
	finished := run.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}

	res, err := db.conn.ExecContext(ctx, `INSERT INTO harvest_runs
	(source, state, exhausted, pages, records, failures, duplicates, warnings, error, started_at, finished_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Source, run.State.String(), run.Exhausted, run.Pages, run.Records, run.Failures,
		run.Duplicates, len(run.Warnings), errText, run.StartedAt.UTC(), finished.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to record run: %w", err)
	}
	return res.LastInsertId()
}

// Runs lists the most recent runs, newest first. An empty source lists all.
func (db *DB) Runs(ctx context.Context, source string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, source, state, exhausted, pages, records, failures, duplicates, warnings, error, started_at, finished_at
	FROM harvest_runs`
	args := []any{}
	if source != "" {
		query += " WHERE source = ?"
		args = append(args, source)
	}
	query += " ORDER BY started_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var errText sql.NullString
		if err := rows.Scan(&r.ID, &r.Source, &r.State, &r.Exhausted, &r.Pages, &r.Records,
			&r.Failures, &r.Duplicates, &r.Warnings, &errText, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Error = errText.String
		out = append(out, r)
	}
	return out, rows.Err()
}
