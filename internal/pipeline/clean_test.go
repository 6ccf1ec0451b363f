package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-pipeline/internal/config"
	"sales-pipeline/internal/model"
)

func loadRaw(t *testing.T, lines ...string) []model.RawSalesRecord {
	t.Helper()
	raw, _, err := LoadSales(context.Background(), writeCSV(t, lines...))
	require.NoError(t, err)
	return raw
}

func TestCleanSample(t *testing.T) {
	raw := loadRaw(t, sampleLines()...)

	cleaned, cl := Clean(context.Background(), raw, DefaultCleanOptions())
	require.Len(t, cleaned, 4)

	assert.Equal(t, 5, cl.RowsIn)
	assert.Equal(t, 1, cl.DuplicatesRemoved)
	assert.Equal(t, 1, cl.ValuesImputed)
	assert.Equal(t, map[string]int{"SALES": 1}, cl.ImputedByColumn)
	assert.Equal(t, "100", cl.FillValues["SALES"])
	assert.Zero(t, cl.RowsDropped)
	assert.Equal(t, 4, cl.RowsOut)

	require.Len(t, cl.Issues, 1)
	assert.Equal(t, model.IssueDuplicate, cl.Issues[0].Kind)
	assert.Equal(t, 5, cl.Issues[0].Line)

	imputed := cleaned[3]
	assert.Equal(t, 10103, imputed.OrderNumber)
	assert.True(t, imputed.Sales.Equal(decimal.NewFromInt(100)), imputed.Sales.String())
}

func TestCleanDerivedFields(t *testing.T) {
	raw := loadRaw(t, sampleLines()[0])

	cleaned, _ := Clean(context.Background(), raw, DefaultCleanOptions())
	require.Len(t, cleaned, 1)
	r := cleaned[0]

	assert.Equal(t, model.NewDate(2003, time.February, 24), r.OrderDate)
	assert.Equal(t, 2003, r.Year)
	assert.Equal(t, 2, r.Month)
	assert.Equal(t, 1, r.Quarter)
	assert.Equal(t, 0, r.DayOfWeek)
	assert.Equal(t, "Monday", r.DayName)
	assert.False(t, r.IsWeekend)
	assert.Equal(t, "0.7", r.Margin.String())
	assert.Equal(t, "0.73", r.MarginPercentage.String())
	assert.Equal(t, "Small", r.SalesCategory)
}

func TestCleanDropsUnparseableDates(t *testing.T) {
	lines := sampleLines()
	bad := csvLine(10200, 1, "80", "not a date", "Shipped", "Gamma", "Spain", "Madrid", "S10_4757")
	raw := loadRaw(t, lines[0], bad, lines[1])

	cleaned, cl := Clean(context.Background(), raw, DefaultCleanOptions())
	assert.Len(t, cleaned, 2)
	assert.Equal(t, 1, cl.RowsDropped)
	require.Len(t, cl.Issues, 1)
	assert.Equal(t, model.IssueDate, cl.Issues[0].Kind)
	assert.Equal(t, "ORDERDATE", cl.Issues[0].Column)
	assert.Equal(t, "not a date", cl.Issues[0].Value)
	assert.Equal(t, 3, cl.Issues[0].Line)
}

func TestCleanNumericFill(t *testing.T) {
	lines := sampleLines()
	tests := []struct {
		name string
		fill string
		want string
	}{
		{"median", config.FillMedian, "100"},
		{"zero", config.FillZero, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := loadRaw(t, lines[0], lines[1], lines[2], lines[4])
			opts := DefaultCleanOptions()
			opts.NumericFill = tt.fill

			cleaned, cl := Clean(context.Background(), raw, opts)
			require.Len(t, cleaned, 4)
			assert.Equal(t, tt.want, cl.FillValues["SALES"])
			assert.Equal(t, tt.want, cleaned[3].Sales.String())
		})
	}
}

func TestCleanIntegerFillIsRounded(t *testing.T) {
	missingLine := strings.Replace(
		csvLine(10103, 3, "80", "8/25/2003 0:00", "Shipped", "Beta", "USA", "NYC", "S10_1678"),
		"10103,10,95.70,3,", "10103,10,95.70,,", 1)
	raw := loadRaw(t,
		csvLine(10100, 1, "100", "2/24/2003 0:00", "Shipped", "Alpha", "France", "Nantes", "S10_1678"),
		csvLine(10101, 2, "150", "5/7/2003 0:00", "Shipped", "Alpha", "France", "Nantes", "S10_1949"),
		missingLine,
	)

	cleaned, cl := Clean(context.Background(), raw, DefaultCleanOptions())
	require.Len(t, cleaned, 3)
	assert.Equal(t, "2", cl.FillValues["ORDERLINENUMBER"])
	assert.Equal(t, 2, cleaned[2].OrderLineNumber)
	assert.Contains(t, cl.String(), "ORDERLINENUMBER: 1 (filled with 2)")
}

func TestCleanUnparseableNumber(t *testing.T) {
	lines := sampleLines()
	raw := loadRaw(t, lines[0], lines[1], strings.Replace(lines[2], ",50,", ",abc,", 1))

	cleaned, cl := Clean(context.Background(), raw, DefaultCleanOptions())
	require.Len(t, cleaned, 3)
	assert.Equal(t, "125", cleaned[2].Sales.String())
	assert.Equal(t, 1, cl.ValuesImputed)
	require.Len(t, cl.Issues, 1)
	assert.Equal(t, model.IssueNumeric, cl.Issues[0].Kind)
	assert.Equal(t, "SALES", cl.Issues[0].Column)
	assert.Equal(t, "abc", cl.Issues[0].Value)
}

func TestCleanCategoricalFill(t *testing.T) {
	line := strings.Replace(sampleLines()[0], ",Loire,", ",,", 1)
	raw := loadRaw(t, line)

	cleaned, cl := Clean(context.Background(), raw, DefaultCleanOptions())
	require.Len(t, cleaned, 1)
	assert.Equal(t, "Unknown", cleaned[0].State)
	assert.Equal(t, 1, cl.ImputedByColumn["STATE"])
	assert.Equal(t, "Unknown", cl.FillValues["STATE"])
}

func TestCleanDuplicateAfterImputation(t *testing.T) {
	first := sampleLines()[0]
	gap := strings.Replace(first, ",100,", ",,", 1)
	raw := loadRaw(t, first, gap)

	cleaned, cl := Clean(context.Background(), raw, DefaultCleanOptions())
	assert.Len(t, cleaned, 1)
	assert.Equal(t, 1, cl.DuplicatesRemoved)
	assert.Equal(t, 1, cl.ValuesImputed)
}

func TestCleanKeyCollision(t *testing.T) {
	first := sampleLines()[0]
	other := strings.Replace(first, ",100,", ",120,", 1)
	raw := loadRaw(t, first, other)

	cleaned, cl := Clean(context.Background(), raw, DefaultCleanOptions())
	assert.Len(t, cleaned, 2)
	assert.Zero(t, cl.DuplicatesRemoved)
	require.Len(t, cl.Issues, 1)
	assert.Equal(t, model.IssueKey, cl.Issues[0].Kind)
	assert.Equal(t, 3, cl.Issues[0].Line)
}

func TestSalesCategory(t *testing.T) {
	tests := []struct {
		sales string
		want  string
	}{
		{"0", "Small"},
		{"1000", "Small"},
		{"1000.01", "Medium"},
		{"5000", "Medium"},
		{"10000", "Large"},
		{"10000.5", "Very Large"},
	}
	for _, tt := range tests {
		t.Run(tt.sales, func(t *testing.T) {
			assert.Equal(t, tt.want, salesCategory(decimal.RequireFromString(tt.sales)))
		})
	}
}

func TestCleaningLogString(t *testing.T) {
	raw := loadRaw(t, sampleLines()...)
	_, cl := Clean(context.Background(), raw, DefaultCleanOptions())

	out := cl.String()
	assert.True(t, strings.HasPrefix(out, "Sales Data Cleaning Log\n"+strings.Repeat("=", 30)+"\n"))
	assert.Contains(t, out, "Duplicates removed: 1 rows")
	assert.Contains(t, out, "Missing values cleaned: 1 values")
	assert.Contains(t, out, "SALES: 1 (filled with 100)")
	assert.Contains(t, out, "line 5 duplicate")
}
