package pipeline

import (
	"context"
	"time"

	"sales-pipeline/internal/logging"
	"sales-pipeline/internal/model"
)

// Run and stage statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// StageMetrics tracks one pipeline stage.
type StageMetrics struct {
	Name             string     `json:"name"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	DurationMS       int64      `json:"duration_ms"`
	RecordsProcessed int        `json:"records_processed"`
	Status           string     `json:"status"`
}

// TableStat is the shape of one exported table.
type TableStat struct {
	Name    string `json:"name"`
	Rows    int    `json:"rows"`
	Columns int    `json:"columns"`
}

// RunReport is the human-readable summary of a run, written as report.json.
type RunReport struct {
	RunID      string     `json:"run_id"`
	Input      string     `json:"input"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	DurationMS int64      `json:"duration_ms"`

	RowsRead    int `json:"rows_read"`
	RowsCleaned int `json:"rows_cleaned"`
	RowsDropped int `json:"rows_dropped"`
	Duplicates  int `json:"duplicates_removed"`
	Imputations int `json:"values_imputed"`
	FactRows    int `json:"fact_rows"`

	Load     LoadStats            `json:"load"`
	Cleaning CleaningLog          `json:"cleaning"`
	Tables   []TableStat          `json:"tables"`
	Exports  []model.ExportResult `json:"exports"`
	Warnings []string             `json:"warnings,omitempty"`
	Summary  *Summary             `json:"summary,omitempty"`
	Stages   []StageMetrics       `json:"stages"`
}

// RunTracker times stages and fills in the run report.
type RunTracker struct {
	ctx     context.Context
	Report  *RunReport
	current *StageMetrics
}

// NewRunTracker starts tracking a run.
func NewRunTracker(ctx context.Context, runID, input string) *RunTracker {
	return &RunTracker{
		ctx: ctx,
		Report: &RunReport{
			RunID:     runID,
			Input:     input,
			Status:    StatusRunning,
			StartTime: time.Now().UTC(),
		},
	}
}

// StartStage marks the beginning of a stage. An unfinished previous stage is
// closed as failed.
func (rt *RunTracker) StartStage(stage string) {
	if rt.current != nil {
		rt.finishStage(0, StatusFailed)
	}
	rt.current = &StageMetrics{Name: stage, StartTime: time.Now().UTC(), Status: StatusRunning}
	logging.FromContext(rt.ctx).Debug().Str("stage", stage).Msg("Stage started")
}

// EndStage marks the end of the current stage.
func (rt *RunTracker) EndStage(recordsProcessed int) {
	if rt.current == nil {
		return
	}
	rt.finishStage(recordsProcessed, StatusCompleted)
}

func (rt *RunTracker) finishStage(records int, status string) {
	now := time.Now().UTC()
	st := *rt.current
	st.EndTime = &now
	st.DurationMS = now.Sub(st.StartTime).Milliseconds()
	st.RecordsProcessed = records
	st.Status = status
	rt.Report.Stages = append(rt.Report.Stages, st)
	rt.current = nil

	logging.FromContext(rt.ctx).Info().
		Str("stage", st.Name).
		Str("status", status).
		Int("records", records).
		Int64("duration_ms", st.DurationMS).
		Msg("Stage finished")
}

// Warn records a run-level warning.
func (rt *RunTracker) Warn(msgs ...string) {
	rt.Report.Warnings = append(rt.Report.Warnings, msgs...)
}

// Complete marks the run as completed.
func (rt *RunTracker) Complete() {
	rt.end(StatusCompleted)
	logging.FromContext(rt.ctx).Info().
		Int64("duration_ms", rt.Report.DurationMS).
		Int("rows_read", rt.Report.RowsRead).
		Int("rows_cleaned", rt.Report.RowsCleaned).
		Int("rows_dropped", rt.Report.RowsDropped).
		Int("tables", len(rt.Report.Tables)).
		Msg("Pipeline completed")
}

// Fail marks the run as failed.
func (rt *RunTracker) Fail(err error) {
	if rt.current != nil {
		rt.finishStage(0, StatusFailed)
	}
	rt.Report.Error = err.Error()
	rt.end(StatusFailed)
	logging.FromContext(rt.ctx).Error().Err(err).Int64("duration_ms", rt.Report.DurationMS).Msg("Pipeline failed")
}

func (rt *RunTracker) end(status string) {
	now := time.Now().UTC()
	rt.Report.EndTime = &now
	rt.Report.DurationMS = now.Sub(rt.Report.StartTime).Milliseconds()
	rt.Report.Status = status
}
