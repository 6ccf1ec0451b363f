package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"sales-pipeline/internal/model"
)

func exportOptions(dir string) ExportOptions {
	return ExportOptions{
		OutputDir:     dir,
		Workbook:      "schema.xlsx",
		CSVDir:        "csv",
		WriteWorkbook: true,
		WriteCSV:      true,
	}
}

func readDir(t *testing.T, dir string) map[string]string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		out[e.Name()] = string(data)
	}
	return out
}

func TestExportWritesEveryTable(t *testing.T) {
	_, s := buildSchema(t)
	dir := t.TempDir()

	results, err := NewExportManager(exportOptions(dir)).Export(context.Background(), s.Tables())
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Success, r.Type)
		assert.Equal(t, 7, r.Tables, r.Type)
		assert.Empty(t, r.Warnings, r.Type)
	}

	files := readDir(t, filepath.Join(dir, "csv"))
	require.Len(t, files, 7)
	for _, name := range TableNames {
		assert.Contains(t, files, name+".csv")
	}
	assert.Equal(t,
		"CUSTOMERNAME,COUNTRY,CITY,total_orders,total_sales,avg_order_value,first_order_date,last_order_date\n"+
			"Alpha,France,Nantes,2,250.00,125.00,2003-02-24,2003-05-07\n"+
			"Beta,USA,NYC,1,50.00,50.00,2003-07-01,2003-07-01\n",
		files["dim_customers.csv"])
}

func TestExportCSVIsIdempotent(t *testing.T) {
	_, s := buildSchema(t)
	dir := t.TempDir()
	ctx := context.Background()

	_, err := NewExportManager(exportOptions(dir)).Export(ctx, s.Tables())
	require.NoError(t, err)
	first := readDir(t, filepath.Join(dir, "csv"))

	_, again := buildSchema(t)
	_, err = NewExportManager(exportOptions(dir)).Export(ctx, again.Tables())
	require.NoError(t, err)
	assert.Equal(t, first, readDir(t, filepath.Join(dir, "csv")))
}

func TestExportWorkbook(t *testing.T) {
	_, s := buildSchema(t)
	dir := t.TempDir()

	_, err := NewExportManager(exportOptions(dir)).Export(context.Background(), s.Tables())
	require.NoError(t, err)

	f, err := excelize.OpenFile(filepath.Join(dir, "schema.xlsx"))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, TableNames, f.GetSheetList())

	rows, err := f.GetRows(TableCustomers)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, customerColumns, rows[0])
	assert.Equal(t, "Alpha", rows[1][0])
	assert.Equal(t, "250", rows[1][4])
	assert.Equal(t, "2003-02-24", rows[1][6])
}

func TestExportEmptyTableWarns(t *testing.T) {
	dir := t.TempDir()
	empty := BuildStarSchema(context.Background(), BuildFactTable(nil, FactOptions{}))

	em := NewExportManager(exportOptions(dir))
	results, err := em.Export(context.Background(), empty.Tables())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Len(t, results[0].Warnings, 7)
	assert.Contains(t, results[0].Warnings, "table sales_fact is empty")
	assert.Len(t, em.Warnings, 7, "one warning per empty table across both artifacts")

	data, err := os.ReadFile(filepath.Join(dir, "csv", "sales_fact.csv"))
	require.NoError(t, err)
	assert.Equal(t, strings.Join(factColumns, ",")+"\n", string(data))
}

func TestExportFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, s := buildSchema(t)
	_, err := NewExportManager(exportOptions(blocker)).Export(context.Background(), s.Tables())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExportFailed)

	var exportErr *ExportError
	require.ErrorAs(t, err, &exportErr)
	assert.Equal(t, blocker, exportErr.Path)
}

func TestWriteWorkbookWithoutTables(t *testing.T) {
	_, err := WriteWorkbook(context.Background(), filepath.Join(t.TempDir(), "x.xlsx"), nil)
	assert.ErrorIs(t, err, ErrExportFailed)
}

func TestWriteCleanedCSV(t *testing.T) {
	raw := loadRaw(t, sampleLines()...)
	cleaned, cl := Clean(context.Background(), raw, DefaultCleanOptions())
	path := filepath.Join(t.TempDir(), "out", "sales_cleaned.csv")

	res, err := WriteCleanedCSV(context.Background(), path, cleaned, cl)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 4, res.RecordCount)
	assert.Positive(t, res.SizeBytes)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], strings.Join(model.RequiredColumns, ",")+",YEAR,"), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "10100,10,95.7,1,100,2003-02-24,Shipped,"), lines[1])

	logData, err := os.ReadFile(filepath.Join(filepath.Dir(path), "sales_cleaned_cleaning_log.txt"))
	require.NoError(t, err)
	assert.Equal(t, cl.String(), string(logData))
}
