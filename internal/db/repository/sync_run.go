// Package repository persists domain objects to the history database.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"bq-viewsync/internal/domain"
)

// SyncRunRepo implements domain.SyncRunRepository using SQLite. Writes go
// through the single-connection write pool, listings through the read pool.
type SyncRunRepo struct {
	write *sql.DB
	read  *sql.DB
}

// NewSyncRunRepo creates a new SyncRunRepo. readDB may be nil, in which
// case reads use writeDB.
func NewSyncRunRepo(writeDB, readDB *sql.DB) *SyncRunRepo {
	if readDB == nil {
		readDB = writeDB
	}
	return &SyncRunRepo{write: writeDB, read: readDB}
}

// Compile-time check.
var _ domain.SyncRunRepository = (*SyncRunRepo)(nil)

const insertSyncRun = `INSERT INTO sync_runs (
	id, project_id, source_root, trigger_type, triggered_by, status,
	datasets, counts, failures, error, started_at, finished_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Insert stores a finished run report.
func (r *SyncRunRepo) Insert(ctx context.Context, rep *domain.SyncReport) error {
	datasets := rep.Datasets
	if datasets == nil {
		datasets = []string{}
	}
	failures := rep.Failures
	if failures == nil {
		failures = []domain.SyncFailure{}
	}
	datasetsJSON, err := json.Marshal(datasets)
	if err != nil {
		return fmt.Errorf("marshal datasets: %w", err)
	}
	countsJSON, err := json.Marshal(rep.Counts)
	if err != nil {
		return fmt.Errorf("marshal counts: %w", err)
	}
	failuresJSON, err := json.Marshal(failures)
	if err != nil {
		return fmt.Errorf("marshal failures: %w", err)
	}

	_, err = r.write.ExecContext(ctx, insertSyncRun,
		rep.ID, rep.ProjectID, rep.SourceRoot, rep.Trigger, rep.TriggeredBy, rep.Status,
		string(datasetsJSON), string(countsJSON), string(failuresJSON), rep.Error,
		formatTime(rep.StartedAt), formatTime(rep.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert sync run %s: %w", rep.ID, err)
	}
	return nil
}

const listSyncRuns = `SELECT id, project_id, source_root, trigger_type, triggered_by, status,
	datasets, counts, failures, error, started_at, finished_at
FROM sync_runs
ORDER BY started_at DESC, id
LIMIT ? OFFSET ?`

// List returns a page of runs, newest first, plus the total run count.
func (r *SyncRunRepo) List(ctx context.Context, page domain.PageRequest) ([]*domain.SyncReport, int64, error) {
	var total int64
	if err := r.read.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_runs").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sync runs: %w", err)
	}

	rows, err := r.read.QueryContext(ctx, listSyncRuns, page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("list sync runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []*domain.SyncReport
	for rows.Next() {
		rep, err := scanSyncRun(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list sync runs: %w", err)
	}
	return out, total, nil
}

func scanSyncRun(rows *sql.Rows) (*domain.SyncReport, error) {
	var (
		rep                        domain.SyncReport
		datasets, counts, failures string
		startedAt, finishedAt      string
	)
	if err := rows.Scan(
		&rep.ID, &rep.ProjectID, &rep.SourceRoot, &rep.Trigger, &rep.TriggeredBy, &rep.Status,
		&datasets, &counts, &failures, &rep.Error, &startedAt, &finishedAt,
	); err != nil {
		return nil, fmt.Errorf("scan sync run: %w", err)
	}
	if err := json.Unmarshal([]byte(datasets), &rep.Datasets); err != nil {
		return nil, fmt.Errorf("decode datasets for run %s: %w", rep.ID, err)
	}
	if err := json.Unmarshal([]byte(counts), &rep.Counts); err != nil {
		return nil, fmt.Errorf("decode counts for run %s: %w", rep.ID, err)
	}
	if err := json.Unmarshal([]byte(failures), &rep.Failures); err != nil {
		return nil, fmt.Errorf("decode failures for run %s: %w", rep.ID, err)
	}
	if len(rep.Failures) == 0 {
		rep.Failures = nil
	}
	rep.StartedAt = parseTime(startedAt)
	rep.FinishedAt = parseTime(finishedAt)
	return &rep, nil
}

// Timestamps are stored as fixed-width RFC 3339 UTC strings so that they
// sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
