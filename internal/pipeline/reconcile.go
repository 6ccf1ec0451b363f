package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"sales-pipeline/internal/logging"
	"sales-pipeline/internal/model"
	"sales-pipeline/internal/store"
	"sales-pipeline/pkg/utils"
)

// ------------------- Reconciliation -------------------

// ReconcileOptions must use the same status exclusion as the fact table.
type ReconcileOptions struct {
	ExcludedStatuses []string
	Tolerance        float64
}

// Reconcile compares each dimension's per-key totals against the store's
// validation queries. Differences beyond the tolerance, missing keys and
// differing line counts are all reported in one *MismatchError.
func Reconcile(ctx context.Context, schema StarSchema, st *store.Store, opts ReconcileOptions) error {
	log := logging.FromContext(ctx)
	filter := store.QueryFilter{ExcludedStatuses: opts.ExcludedStatuses}

	checks := []struct {
		table string
		query string
	}{
		{TableCustomers, store.CustomerTotals},
		{TableProducts, store.ProductTotals},
		{TableCountries, store.CountryTotals},
	}

	var mismatches []Mismatch
	for _, c := range checks {
		result, err := st.Run(ctx, c.query, filter)
		if err != nil {
			return fmt.Errorf("reconcile %s: %w", c.table, err)
		}
		found := compareDimension(c.table, schema.dims[c.table], result, opts.Tolerance)
		log.Debug().Str("table", c.table).Int("keys", result.Len()).Int("mismatches", len(found)).Msg("Reconciled table")
		mismatches = append(mismatches, found...)
	}

	if len(mismatches) > 0 {
		return &MismatchError{Source: "sql", Mismatches: mismatches}
	}
	log.Info().Float64("tolerance", opts.Tolerance).Msg("Aggregates agree with SQL")
	return nil
}

// compareDimension expects rows of (dim_key, order_lines, total_sales).
func compareDimension(table string, dim dimension, result model.Table, tolerance float64) []Mismatch {
	var out []Mismatch
	seen := make(map[string]bool, result.Len())

	for _, row := range result.Rows {
		key := utils.FormatValue(row[0])
		seen[key] = true

		lines, _ := utils.Numeric(row[1])
		sqlSales, _ := utils.Numeric(row[2])

		exact, ok := dim.sales[key]
		if !ok {
			out = append(out, Mismatch{Table: table, Key: key, Measure: "total_sales",
				Expected: fmt.Sprintf("%.2f", sqlSales), Actual: "missing"})
			continue
		}
		if math.Abs(exact.InexactFloat64()-sqlSales) > tolerance {
			out = append(out, Mismatch{Table: table, Key: key, Measure: "total_sales",
				Expected: fmt.Sprintf("%.2f", sqlSales), Actual: exact.StringFixed(2)})
		}
		if int(lines) != dim.lines[key] {
			out = append(out, Mismatch{Table: table, Key: key, Measure: "total_orders",
				Expected: fmt.Sprintf("%d", int(lines)), Actual: fmt.Sprintf("%d", dim.lines[key])})
		}
	}

	var extra []string
	for key := range dim.sales {
		if !seen[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	for _, key := range extra {
		out = append(out, Mismatch{Table: table, Key: key, Measure: "total_sales",
			Expected: "missing", Actual: dim.sales[key].StringFixed(2)})
	}
	return out
}

// totalOf is the exact SALES sum of a dimension.
func totalOf(dim dimension) decimal.Decimal {
	total := decimal.Zero
	for _, v := range dim.sales {
		total = total.Add(v)
	}
	return total
}
