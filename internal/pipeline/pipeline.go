package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sales-pipeline/internal/config"
	"sales-pipeline/internal/logging"
	"sales-pipeline/internal/model"
	"sales-pipeline/internal/store"
	"sales-pipeline/pkg/utils"
)

// ------------------- Pipeline Runner -------------------

// Stage names recorded in the run report.
const (
	StageLoad      = "load"
	StageClean     = "clean"
	StageStore     = "store"
	StageAggregate = "aggregate"
	StageReconcile = "reconcile"
	StageExplore   = "explore"
	StageExport    = "export"
)

// Run executes the whole batch: load, clean, write the cleaned CSV, load the
// SQL store, build and verify the star schema, reconcile it against SQL,
// summarize and export. Each stage receives its predecessor's output. The
// report is returned, and written, for failed runs too.
func Run(ctx context.Context, cfg *config.Config) (report *RunReport, err error) {
	if err := cfg.ValidateRun(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	runID := uuid.NewString()
	ctx = logging.WithContext(ctx, logging.WithRun(runID))
	log := logging.FromContext(ctx)
	log.Info().Str("input", cfg.Input).Str("output_dir", cfg.OutputDir).Msg("Starting pipeline")

	out := utils.NewOutputManager(cfg.OutputDir)
	tracker := NewRunTracker(ctx, runID, cfg.Input)
	report = tracker.Report

	var st *store.Store
	defer func() {
		if err != nil {
			tracker.Fail(err)
		}
		if st != nil {
			finishRun(ctx, st, runID, err)
			st.Close()
		}
		if werr := writeRunReport(ctx, out, cfg.Export.Report, report); werr != nil && err == nil {
			err = werr
		}
	}()

	// --- LOAD ---
	tracker.StartStage(StageLoad)
	raw, stats, err := LoadSales(ctx, cfg.Input)
	if err != nil {
		return report, err
	}
	report.Load = stats
	report.RowsRead = stats.RowsRead
	tracker.EndStage(len(raw))

	// --- CLEAN ---
	tracker.StartStage(StageClean)
	cleaned, cl := Clean(ctx, raw, CleanOptionsFrom(cfg.Clean))
	report.Cleaning = cl
	report.RowsCleaned = cl.RowsOut
	report.RowsDropped = cl.RowsDropped
	report.Duplicates = cl.DuplicatesRemoved
	report.Imputations = cl.ValuesImputed

	cleanedRes, err := WriteCleanedCSV(ctx, out.Resolve(cfg.Export.CleanedCSV), cleaned, cl)
	if err != nil {
		return report, err
	}
	report.Exports = append(report.Exports, cleanedRes)
	tracker.EndStage(len(cleaned))

	// --- STORE ---
	tracker.StartStage(StageStore)
	st, err = store.Open(ctx, out.Resolve(cfg.Export.Database))
	if err != nil {
		return report, err
	}
	if err = st.StartRun(ctx, runID, cfg.Input); err != nil {
		return report, err
	}
	if _, err = st.LoadSales(ctx, cleaned); err != nil {
		return report, err
	}
	issues := append(append([]model.RowIssue(nil), stats.Issues...), cl.Issues...)
	if err = st.SaveIssues(ctx, runID, issues); err != nil {
		return report, err
	}
	dbRes := model.ExportResult{
		Type:        utils.GetFileType(st.Path()),
		Path:        st.Path(),
		RecordCount: len(cleaned),
		Success:     true,
		Timestamp:   time.Now().UTC(),
	}
	dbRes.SizeBytes, _ = utils.GetFileSize(st.Path())
	report.Exports = append(report.Exports, dbRes)
	tracker.EndStage(len(cleaned))

	if err = ctx.Err(); err != nil {
		return report, err
	}

	// --- AGGREGATE ---
	tracker.StartStage(StageAggregate)
	fact := BuildFactTable(cleaned, FactOptions{ExcludedStatuses: cfg.Fact.ExcludedStatuses})
	schema := BuildStarSchema(ctx, fact)
	if err = schema.Verify(); err != nil {
		return report, err
	}
	report.FactRows = len(fact.Records)
	for _, t := range schema.Tables() {
		report.Tables = append(report.Tables, TableStat{Name: t.Name, Rows: t.Len(), Columns: len(t.Columns)})
	}
	tracker.EndStage(len(fact.Records))

	// --- RECONCILE ---
	tracker.StartStage(StageReconcile)
	err = Reconcile(ctx, schema, st, ReconcileOptions{
		ExcludedStatuses: cfg.Fact.ExcludedStatuses,
		Tolerance:        cfg.Tolerance,
	})
	if err != nil {
		return report, err
	}
	tracker.EndStage(schema.Customers.Len() + schema.Products.Len() + schema.Countries.Len())

	// --- EXPLORE ---
	tracker.StartStage(StageExplore)
	summary := Explore(ctx, cleaned)
	report.Summary = &summary
	tracker.EndStage(len(cleaned))

	if err = ctx.Err(); err != nil {
		return report, err
	}

	// --- EXPORT ---
	tracker.StartStage(StageExport)
	em := NewExportManager(ExportOptions{
		OutputDir:     cfg.OutputDir,
		Workbook:      cfg.Export.Workbook,
		CSVDir:        cfg.Export.CSVDir,
		WriteWorkbook: cfg.Export.WriteWorkbook,
		WriteCSV:      cfg.Export.WriteCSV,
	})
	results, err := em.Export(ctx, schema.Tables())
	report.Exports = append(report.Exports, results...)
	if err != nil {
		return report, err
	}
	tracker.Warn(em.Warnings...)
	tracker.EndStage(len(schema.Tables()))

	tracker.Complete()
	return report, nil
}

// finishRun records the run outcome. It still runs after the run context has
// been cancelled.
func finishRun(ctx context.Context, st *store.Store, runID string, runErr error) {
	if err := st.FinishRun(context.WithoutCancel(ctx), runID, runErr); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Msg("Could not record run status")
	}
}

func writeRunReport(ctx context.Context, out *utils.OutputManager, name string, report *RunReport) error {
	if name == "" {
		return nil
	}
	path, err := out.GetOutputFilePath(name)
	if err != nil {
		return &ExportError{Path: name, Err: err}
	}
	if _, err := WriteReport(path, report); err != nil {
		return err
	}
	logging.FromContext(ctx).Info().Str("path", path).Msg("Run report written")
	return nil
}

// CleanFile loads and cleans the input and writes the cleaned CSV with its
// log, without touching the SQL store or the star schema.
func CleanFile(ctx context.Context, cfg *config.Config) (CleaningLog, model.ExportResult, error) {
	if err := cfg.Validate(); err != nil {
		return CleaningLog{}, model.ExportResult{}, fmt.Errorf("invalid configuration: %w", err)
	}

	raw, _, err := LoadSales(ctx, cfg.Input)
	if err != nil {
		return CleaningLog{}, model.ExportResult{}, err
	}
	cleaned, cl := Clean(ctx, raw, CleanOptionsFrom(cfg.Clean))

	out := utils.NewOutputManager(cfg.OutputDir)
	res, err := WriteCleanedCSV(ctx, out.Resolve(cfg.Export.CleanedCSV), cleaned, cl)
	return cl, res, err
}

// OpenStore loads and cleans the input into a fresh SQL store at path, for
// ad-hoc catalog queries. The caller closes the store.
func OpenStore(ctx context.Context, cfg *config.Config, path string) (*store.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	raw, _, err := LoadSales(ctx, cfg.Input)
	if err != nil {
		return nil, err
	}
	cleaned, _ := Clean(ctx, raw, CleanOptionsFrom(cfg.Clean))

	st, err := store.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	if _, err := st.LoadSales(ctx, cleaned); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}
