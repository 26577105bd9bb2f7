package history

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

type Repository interface {
	CreateRun(ctx context.Context, run *Run) error
	RecordItem(ctx context.Context, item *Item) error
	FinishRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	ListItems(ctx context.Context, runID string) ([]*Item, error)
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateRun(ctx context.Context, run *Run) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (id, status, input_dir, output_dir, reference, total, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Status, run.InputDir, run.OutputDir, run.Reference, run.Total, run.StartedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (r *SQLiteRepository) RecordItem(ctx context.Context, it *Item) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO run_items (run_id, idx, file, kind, size_bytes, output, outcome, error, exit_code, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, it.RunID, it.Index, it.File, it.Kind, it.SizeBytes, it.Output, it.Outcome, nullString(it.Error), it.ExitCode, it.DurationMs,
		it.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// FinishRun stores the final counts and status of a run.
func (r *SQLiteRepository) FinishRun(ctx context.Context, run *Run) error {
	var finished any
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, total = ?, successful = ?, failed = ?, duration_minutes = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, run.Status, run.Total, run.Successful, run.Failed, run.DurationMinutes, nullString(run.Error), finished, run.ID)
	return err
}

const runColumns = `id, status, input_dir, output_dir, reference, total, successful, failed, duration_minutes, error, started_at, finished_at`

func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// ListRuns returns the most recent runs first. A non-positive limit returns
// every run.
func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *SQLiteRepository) ListItems(ctx context.Context, runID string) ([]*Item, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, idx, file, kind, size_bytes, output, outcome, error, exit_code, duration_ms, created_at
		FROM run_items WHERE run_id = ? ORDER BY idx
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		var it Item
		var errMsg sql.NullString
		var createdAt string
		if err := rows.Scan(&it.RunID, &it.Index, &it.File, &it.Kind, &it.SizeBytes, &it.Output, &it.Outcome,
			&errMsg, &it.ExitCode, &it.DurationMs, &createdAt); err != nil {
			return nil, err
		}
		it.Error = errMsg.String
		it.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		items = append(items, &it)
	}
	return items, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*Run, error) {
	var run Run
	var errMsg, finishedAt sql.NullString
	var startedAt string

	err := s.Scan(&run.ID, &run.Status, &run.InputDir, &run.OutputDir, &run.Reference,
		&run.Total, &run.Successful, &run.Failed, &run.DurationMinutes, &errMsg, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	run.Error = errMsg.String
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if finishedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, finishedAt.String); err == nil {
			run.FinishedAt = &t
		}
	}
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
