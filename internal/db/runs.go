package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/trackgeometry/internal/worker"
)

// ErrNotFound is returned when a run id has no record.
var ErrNotFound = errors.New("run not found")

var _ worker.Recorder = (*DB)(nil)

// RecordRun stores rec, replacing any earlier record with the same id.
func (db *DB) RecordRun(ctx context.Context, rec worker.RunRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("record run: empty run id")
	}
	_, err := db.ExecContext(ctx, `
		INSERT OR REPLACE INTO pipeline_runs (
			run_id, kind, status, attempts, rows_in, rows_out,
			error, settings_json, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Kind), string(rec.Status), rec.Attempts, rec.RowsIn, rec.RowsOut,
		nullString(rec.Error), nullString(rec.SettingsJSON),
		rec.StartedAt.UnixNano(), rec.FinishedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", rec.ID, err)
	}
	logf("recorded %s run %s (%s, %d attempts)", rec.Kind, rec.ID, rec.Status, rec.Attempts)
	return nil
}

const runColumns = `run_id, kind, status, attempts, rows_in, rows_out,
	error, settings_json, started_at, finished_at`

// GetRun returns the run with the given id or ErrNotFound.
func (db *DB) GetRun(ctx context.Context, id string) (*worker.RunRecord, error) {
	row := db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM pipeline_runs WHERE run_id = ?`, id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return rec, nil
}

// ListRuns returns up to limit runs, most recently finished first. A
// non-positive limit returns every run.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]worker.RunRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `SELECT `+runColumns+`
		FROM pipeline_runs
		ORDER BY finished_at DESC, run_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []worker.RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *rec)
	}
	return runs, rows.Err()
}

// CountRuns returns the number of runs per status.
func (db *DB) CountRuns(ctx context.Context) (map[worker.Status]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM pipeline_runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}
	defer rows.Close()

	counts := make(map[worker.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[worker.Status(status)] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*worker.RunRecord, error) {
	var (
		rec                 worker.RunRecord
		kind, status        string
		errText, settings   sql.NullString
		startedAt, finished int64
	)
	if err := s.Scan(&rec.ID, &kind, &status, &rec.Attempts, &rec.RowsIn, &rec.RowsOut,
		&errText, &settings, &startedAt, &finished); err != nil {
		return nil, err
	}
	rec.Kind = worker.Kind(kind)
	rec.Status = worker.Status(status)
	rec.Error = errText.String
	rec.SettingsJSON = settings.String
	rec.StartedAt = time.Unix(0, startedAt).UTC()
	rec.FinishedAt = time.Unix(0, finished).UTC()
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
