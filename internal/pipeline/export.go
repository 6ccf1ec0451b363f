package pipeline

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/xuri/excelize/v2"

	"sales-pipeline/internal/logging"
	"sales-pipeline/internal/model"
	"sales-pipeline/pkg/utils"
)

// ------------------- Export -------------------

// ExportOptions names the star-schema artifacts. Relative paths resolve
// against the output directory.
type ExportOptions struct {
	OutputDir     string
	Workbook      string
	CSVDir        string
	WriteWorkbook bool
	WriteCSV      bool
}

// ExportManager writes tables to the workbook and per-table CSV files.
type ExportManager struct {
	opts     ExportOptions
	out      *utils.OutputManager
	Results  []model.ExportResult
	Warnings []string // one per empty table, whatever the number of artifacts
}

// NewExportManager creates an export manager for one run.
func NewExportManager(opts ExportOptions) *ExportManager {
	return &ExportManager{
		opts: opts,
		out:  utils.NewOutputManager(opts.OutputDir),
	}
}

// Export writes every enabled artifact. Empty tables are still written and
// produce a warning. The first write failure aborts with an *ExportError.
func (em *ExportManager) Export(ctx context.Context, tables []model.Table) ([]model.ExportResult, error) {
	if err := em.out.EnsureOutputDirExists(); err != nil {
		return nil, &ExportError{Path: em.opts.OutputDir, Err: err}
	}

	log := logging.FromContext(ctx)
	for _, t := range tables {
		if w := emptyWarning(t); w != "" {
			log.Warn().Str("table", t.Name).Msg("Exporting empty table")
			em.Warnings = append(em.Warnings, w)
		}
	}

	if em.opts.WriteWorkbook {
		res, err := em.ExportWorkbook(ctx, tables)
		if err != nil {
			return em.Results, err
		}
		em.Results = append(em.Results, res)
	}

	if em.opts.WriteCSV {
		res, err := em.ExportCSV(ctx, tables)
		if err != nil {
			return em.Results, err
		}
		em.Results = append(em.Results, res)
	}

	return em.Results, nil
}

// ExportWorkbook writes one sheet per table, in the given order.
func (em *ExportManager) ExportWorkbook(ctx context.Context, tables []model.Table) (model.ExportResult, error) {
	path, err := em.out.GetOutputFilePath(em.opts.Workbook)
	if err != nil {
		return model.ExportResult{}, &ExportError{Path: em.opts.Workbook, Err: err}
	}

	res, err := WriteWorkbook(ctx, path, tables)
	if err != nil {
		return res, err
	}
	logging.FromContext(ctx).Info().Str("path", path).Int("sheets", res.Tables).Msg("Workbook exported")
	return res, nil
}

// ExportCSV writes <csv_dir>/<table>.csv for every table.
func (em *ExportManager) ExportCSV(ctx context.Context, tables []model.Table) (model.ExportResult, error) {
	dir, err := em.out.CreateDir(em.opts.CSVDir)
	if err != nil {
		return model.ExportResult{}, &ExportError{Path: em.opts.CSVDir, Err: err}
	}

	res := model.ExportResult{Type: "csv", Path: dir, Timestamp: time.Now().UTC()}
	for _, t := range tables {
		path := filepath.Join(dir, t.Name+".csv")
		if err := WriteTableCSV(path, t); err != nil {
			res.Error = err.Error()
			return res, err
		}
		res.Tables++
		res.RecordCount += t.Len()
		if w := emptyWarning(t); w != "" {
			res.Warnings = append(res.Warnings, w)
		}
	}
	res.Success = true

	logging.FromContext(ctx).Info().Str("dir", dir).Int("tables", res.Tables).Msg("CSV tables exported")
	return res, nil
}

func emptyWarning(t model.Table) string {
	if t.Len() > 0 {
		return ""
	}
	return fmt.Sprintf("table %s is empty", t.Name)
}

// sheetName keeps within the 31-character sheet name limit.
func sheetName(name string) string {
	if len(name) > 31 {
		return name[:31]
	}
	return name
}

// WriteWorkbook writes tables as sheets of a new workbook at path. Numeric
// cells are stored as numbers, dates as YYYY-MM-DD text.
func WriteWorkbook(ctx context.Context, path string, tables []model.Table) (model.ExportResult, error) {
	res := model.ExportResult{Type: "workbook", Path: path, Timestamp: time.Now().UTC()}
	if len(tables) == 0 {
		err := &ExportError{Path: path, Err: fmt.Errorf("no tables to write")}
		res.Error = err.Error()
		return res, err
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, t := range tables {
		sheet := sheetName(t.Name)
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
				return res, &ExportError{Path: path, Err: err}
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return res, &ExportError{Path: path, Err: err}
		}

		if err := writeSheet(f, sheet, t); err != nil {
			return res, &ExportError{Path: path, Err: fmt.Errorf("sheet %s: %w", sheet, err)}
		}
		res.Tables++
		res.RecordCount += t.Len()
		if w := emptyWarning(t); w != "" {
			res.Warnings = append(res.Warnings, w)
		}
	}
	f.SetActiveSheet(0)

	if err := f.SaveAs(path); err != nil {
		res.Error = err.Error()
		return res, &ExportError{Path: path, Err: err}
	}
	res.SizeBytes, _ = utils.GetFileSize(path)
	res.Success = true
	return res, nil
}

func writeSheet(f *excelize.File, sheet string, t model.Table) error {
	header := make([]interface{}, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	for r, row := range t.Rows {
		cells := make([]interface{}, len(row))
		for i, v := range row {
			cells[i] = cellValue(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
			return err
		}
	}
	return nil
}

// cellValue maps table values onto types excelize stores natively.
func cellValue(v interface{}) interface{} {
	switch val := v.(type) {
	case int, int64, bool, string:
		return val
	}
	if n, ok := utils.Numeric(v); ok {
		return n
	}
	return utils.FormatValue(v)
}

// WriteTableCSV writes a header row followed by the table rows.
func WriteTableCSV(path string, t model.Table) error {
	file, err := os.Create(path)
	if err != nil {
		return &ExportError{Path: path, Err: err}
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(t.Columns); err != nil {
		return &ExportError{Path: path, Err: err}
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, v := range row {
			record[i] = utils.FormatValue(v)
		}
		if err := w.Write(record); err != nil {
			return &ExportError{Path: path, Err: err}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return &ExportError{Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		return &ExportError{Path: path, Err: err}
	}
	return nil
}

// WriteCleanedCSV writes the cleaned records and, beside them, the cleaning
// log as <stem>_cleaning_log.txt.
func WriteCleanedCSV(ctx context.Context, path string, records []model.CleanedSalesRecord, cl CleaningLog) (model.ExportResult, error) {
	res := model.ExportResult{Type: "cleaned_csv", Path: path, Timestamp: time.Now().UTC()}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return res, &ExportError{Path: path, Err: err}
	}
	file, err := os.Create(path)
	if err != nil {
		return res, &ExportError{Path: path, Err: err}
	}
	defer file.Close()

	w := csv.NewWriter(file)
	enc := csvutil.NewEncoder(w)
	if err := enc.EncodeHeader(model.CleanedSalesRecord{}); err != nil {
		return res, &ExportError{Path: path, Err: err}
	}
	if err := enc.Encode(records); err != nil {
		return res, &ExportError{Path: path, Err: err}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return res, &ExportError{Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		return res, &ExportError{Path: path, Err: err}
	}

	logPath := utils.SiblingPath(path, "_cleaning_log.txt")
	if err := os.WriteFile(logPath, []byte(cl.String()), 0644); err != nil {
		return res, &ExportError{Path: logPath, Err: err}
	}

	res.RecordCount = len(records)
	res.SizeBytes, _ = utils.GetFileSize(path)
	res.Success = true
	logging.FromContext(ctx).Info().
		Str("path", path).
		Str("log", logPath).
		Int("rows", len(records)).
		Msg("Cleaned data written")
	return res, nil
}

// WriteReport writes the run report as indented JSON.
func WriteReport(path string, report *RunReport) (model.ExportResult, error) {
	res := model.ExportResult{Type: "report", Path: path, Timestamp: time.Now().UTC()}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return res, &ExportError{Path: path, Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return res, &ExportError{Path: path, Err: err}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return res, &ExportError{Path: path, Err: err}
	}
	res.SizeBytes = int64(len(data))
	res.Success = true
	return res, nil
}
