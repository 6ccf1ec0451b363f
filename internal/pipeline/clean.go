package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"sales-pipeline/internal/config"
	"sales-pipeline/internal/logging"
	"sales-pipeline/internal/model"
	"sales-pipeline/pkg/utils"
)

// ------------------- Cleaning -------------------

// numericColumns are parsed as numbers and imputed with the column fill value.
var numericColumns = []string{
	"ORDERNUMBER", "QUANTITYORDERED", "PRICEEACH", "ORDERLINENUMBER", "SALES",
	"QTR_ID", "MONTH_ID", "YEAR_ID", "MSRP",
}

// integerColumns hold whole numbers, so their fill value is rounded.
var integerColumns = map[string]bool{
	"ORDERNUMBER": true, "QUANTITYORDERED": true, "ORDERLINENUMBER": true,
	"QTR_ID": true, "MONTH_ID": true, "YEAR_ID": true,
}

const dateColumn = "ORDERDATE"

// CleanOptions controls imputation and date parsing.
type CleanOptions struct {
	NumericFill     string // config.FillMedian or config.FillZero
	CategoricalFill string
	DateLayouts     []string
}

// DefaultCleanOptions mirrors the default configuration.
func DefaultCleanOptions() CleanOptions {
	return CleanOptionsFrom(config.DefaultConfig().Clean)
}

// CleanOptionsFrom converts the clean section of the configuration.
func CleanOptionsFrom(c config.CleanConfig) CleanOptions {
	return CleanOptions{
		NumericFill:     c.NumericFill,
		CategoricalFill: c.CategoricalFill,
		DateLayouts:     c.DateLayouts,
	}
}

// CleaningLog is the audit trail of one Clean call.
type CleaningLog struct {
	RowsIn            int               `json:"rows_in"`
	DuplicatesRemoved int               `json:"duplicates_removed"`
	ValuesImputed     int               `json:"values_imputed"`
	ImputedByColumn   map[string]int    `json:"imputed_by_column"`
	FillValues        map[string]string `json:"fill_values"`
	RowsDropped       int               `json:"rows_dropped"`
	RowsOut           int               `json:"rows_out"`
	Issues            []model.RowIssue  `json:"issues,omitempty"`
}

func (l *CleaningLog) issue(line int, column, kind, value string) {
	l.Issues = append(l.Issues, model.RowIssue{Line: line, Column: column, Kind: kind, Value: value})
}

func (l *CleaningLog) imputed(column string) {
	l.ValuesImputed++
	l.ImputedByColumn[column]++
}

// String renders the log as the plain-text report written beside the cleaned CSV.
func (l CleaningLog) String() string {
	var b strings.Builder
	b.WriteString("Sales Data Cleaning Log\n")
	b.WriteString(strings.Repeat("=", 30) + "\n")
	fmt.Fprintf(&b, "Rows in: %d\n", l.RowsIn)
	fmt.Fprintf(&b, "Duplicates removed: %d rows\n", l.DuplicatesRemoved)
	fmt.Fprintf(&b, "Missing values cleaned: %d values\n", l.ValuesImputed)

	cols := make([]string, 0, len(l.ImputedByColumn))
	for col := range l.ImputedByColumn {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		if fill, ok := l.FillValues[col]; ok {
			fmt.Fprintf(&b, "  %s: %d (filled with %s)\n", col, l.ImputedByColumn[col], fill)
		} else {
			fmt.Fprintf(&b, "  %s: %d\n", col, l.ImputedByColumn[col])
		}
	}

	fmt.Fprintf(&b, "Rows dropped (unparseable date): %d\n", l.RowsDropped)
	fmt.Fprintf(&b, "Rows out: %d\n", l.RowsOut)
	fmt.Fprintf(&b, "Issues: %d\n", len(l.Issues))
	for _, is := range l.Issues {
		fmt.Fprintf(&b, "  line %d %s", is.Line, is.Kind)
		if is.Column != "" {
			fmt.Fprintf(&b, " %s", is.Column)
		}
		if is.Value != "" {
			fmt.Fprintf(&b, ": %q", is.Value)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Clean turns raw rows into typed, complete, duplicate-free records.
// Steps run in a fixed order: exact-duplicate removal, imputation, date
// parsing (unparseable rows are dropped), numeric parsing and derivation.
// Row-level problems are recorded in the log and never returned as errors.
func Clean(ctx context.Context, raw []model.RawSalesRecord, opts CleanOptions) ([]model.CleanedSalesRecord, CleaningLog) {
	log := logging.FromContext(ctx)
	cl := CleaningLog{
		RowsIn:          len(raw),
		ImputedByColumn: make(map[string]int),
		FillValues:      make(map[string]string),
	}

	rows := removeDuplicates(raw, &cl)
	imputeMissing(rows, opts, &cl)

	cleaned := make([]model.CleanedSalesRecord, 0, len(rows))
	for i := range rows {
		rec, ok := toCleaned(&rows[i], opts.DateLayouts, &cl)
		if !ok {
			cl.RowsDropped++
			log.Debug().Int("line", rows[i].Line).Str("value", rows[i].OrderDate).Msg("Dropping row with unparseable date")
			continue
		}
		derive(&rec)
		cleaned = append(cleaned, rec)
	}

	cleaned = removeCleanedDuplicates(cleaned, &cl)
	checkKeys(cleaned, &cl)

	cl.RowsOut = len(cleaned)
	log.Info().
		Int("rows_in", cl.RowsIn).
		Int("duplicates", cl.DuplicatesRemoved).
		Int("imputed", cl.ValuesImputed).
		Int("dropped", cl.RowsDropped).
		Int("rows_out", cl.RowsOut).
		Msg("Cleaned sales data")
	return cleaned, cl
}

func removeDuplicates(raw []model.RawSalesRecord, cl *CleaningLog) []model.RawSalesRecord {
	seen := make(map[string]int, len(raw))
	out := make([]model.RawSalesRecord, 0, len(raw))
	for _, rec := range raw {
		key := strings.Join(rec.Values(), "\x1f")
		if first, dup := seen[key]; dup {
			cl.DuplicatesRemoved++
			cl.issue(rec.Line, "", model.IssueDuplicate, fmt.Sprintf("duplicate of line %d", first))
			continue
		}
		seen[key] = rec.Line
		out = append(out, rec)
	}
	return out
}

// removeCleanedDuplicates drops rows that only became identical once their
// gaps were filled.
func removeCleanedDuplicates(cleaned []model.CleanedSalesRecord, cl *CleaningLog) []model.CleanedSalesRecord {
	seen := make(map[string]int, len(cleaned))
	out := cleaned[:0]
	for _, rec := range cleaned {
		key := cleanedKey(rec)
		if first, dup := seen[key]; dup {
			cl.DuplicatesRemoved++
			cl.issue(rec.Line, "", model.IssueDuplicate, fmt.Sprintf("duplicate of line %d after imputation", first))
			continue
		}
		seen[key] = rec.Line
		out = append(out, rec)
	}
	return out
}

func imputeMissing(rows []model.RawSalesRecord, opts CleanOptions, cl *CleaningLog) {
	for _, col := range numericColumns {
		var values []decimal.Decimal
		for i := range rows {
			if d, ok := utils.ParseDecimal(*rows[i].Field(col)); ok {
				values = append(values, d)
			}
		}

		fill := decimal.Zero
		if opts.NumericFill != config.FillZero {
			fill = utils.Median(values)
		}
		if integerColumns[col] {
			fill = fill.Round(0)
		}

		for i := range rows {
			cell := rows[i].Field(col)
			if _, ok := utils.ParseDecimal(*cell); ok {
				continue
			}
			if !utils.IsMissing(*cell) {
				cl.issue(rows[i].Line, col, model.IssueNumeric, *cell)
			}
			*cell = fill.String()
			cl.imputed(col)
			cl.FillValues[col] = fill.String()
		}
	}

	for _, col := range model.RequiredColumns {
		if col == dateColumn || isNumericColumn(col) {
			continue
		}
		for i := range rows {
			cell := rows[i].Field(col)
			if utils.IsMissing(*cell) {
				*cell = opts.CategoricalFill
				cl.imputed(col)
				cl.FillValues[col] = opts.CategoricalFill
				continue
			}
			*cell = strings.TrimSpace(*cell)
		}
	}
}

func isNumericColumn(col string) bool {
	for _, c := range numericColumns {
		if c == col {
			return true
		}
	}
	return false
}
