package store

import (
	"context"
	"fmt"
	"time"

	"sales-pipeline/internal/model"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// runTables hold the history of every run against the database file.
var runTables = []string{`
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id          TEXT PRIMARY KEY,
	input       TEXT NOT NULL,
	status      TEXT NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	created_at  DATETIME NOT NULL,
	updated_at  DATETIME NOT NULL
)`, `
CREATE TABLE IF NOT EXISTS run_issues (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	line        INTEGER NOT NULL,
	column_name TEXT NOT NULL,
	kind        TEXT NOT NULL,
	value       TEXT NOT NULL
)`,
	"CREATE INDEX IF NOT EXISTS idx_run_issues_run ON run_issues(run_id)",
}

// RunRecord is the row kept for a pipeline run.
type RunRecord struct {
	ID        string    `db:"id"`
	Input     string    `db:"input"`
	Status    string    `db:"status"`
	Message   string    `db:"message"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// StartRun records a new run in the running state.
func (s *Store) StartRun(ctx context.Context, runID, input string) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, input, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		runID, input, RunRunning, now, now)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// FinishRun updates run status. A non-nil runErr is stored as the message.
func (s *Store) FinishRun(ctx context.Context, runID string, runErr error) error {
	status, message := RunSucceeded, ""
	if runErr != nil {
		status, message = RunFailed, runErr.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, message = ?, updated_at = ? WHERE id = ?`,
		status, message, time.Now().UTC(), runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// GetRun fetches one run.
func (s *Store) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	var rec RunRecord
	err := s.db.GetContext(ctx, &rec,
		`SELECT id, input, status, message, created_at, updated_at FROM pipeline_runs WHERE id = ?`, runID)
	if err != nil {
		return RunRecord{}, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return rec, nil
}

// SaveIssues stores the row-level issues found while cleaning.
func (s *Store) SaveIssues(ctx context.Context, runID string, issues []model.RowIssue) error {
	if len(issues) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, issue := range issues {
		row := struct {
			RunID string `db:"run_id"`
			model.RowIssue
		}{runID, issue}
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO run_issues (run_id, line, column_name, kind, value)
			 VALUES (:run_id, :line, :column_name, :kind, :value)`, row); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to save issue: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit issues: %w", err)
	}
	return nil
}

// ListIssues returns the issues of a run in source-line order.
func (s *Store) ListIssues(ctx context.Context, runID string) ([]model.RowIssue, error) {
	var issues []model.RowIssue
	err := s.db.SelectContext(ctx, &issues,
		`SELECT line, column_name, kind, value FROM run_issues WHERE run_id = ? ORDER BY line, id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	return issues, nil
}
