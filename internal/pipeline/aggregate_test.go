package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-pipeline/internal/model"
	"sales-pipeline/pkg/utils"
)

func buildSchema(t *testing.T) (FactTable, StarSchema) {
	t.Helper()
	fact := BuildFactTable(cleanedFixture(), FactOptions{ExcludedStatuses: []string{"cancelled"}})
	return fact, BuildStarSchema(context.Background(), fact)
}

// cells renders a row with the same formatting as the CSV export.
func cells(row []interface{}) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = utils.FormatValue(v)
	}
	return out
}

func TestBuildFactTable(t *testing.T) {
	fact, _ := buildSchema(t)

	require.Len(t, fact.Records, 3)
	var orders []int
	for _, r := range fact.Records {
		orders = append(orders, r.OrderNumber)
	}
	assert.Equal(t, []int{10102, 10101, 10100}, orders)
	assert.True(t, fact.Total().Equal(decimal.NewFromInt(300)))

	table := fact.Table()
	assert.Equal(t, TableFact, table.Name)
	assert.Equal(t, factColumns, table.Columns)
	assert.Equal(t, []string{
		"10102", "1", "2003-07-01", "Beta", "S10_1678", "Classic Cars",
		"USA", "NYC", "50.00", "1", "50.00", "Shipped", "Small",
	}, cells(table.Rows[0]))
}

func TestBuildFactTableKeepsAllStatusesWithoutExclusions(t *testing.T) {
	fact := BuildFactTable(cleanedFixture(), FactOptions{})
	require.Len(t, fact.Records, 4)
	assert.Equal(t, 10103, fact.Records[0].OrderNumber)
}

func TestStarSchemaTables(t *testing.T) {
	_, s := buildSchema(t)

	tables := s.Tables()
	require.Len(t, tables, len(TableNames))
	for i, table := range tables {
		assert.Equal(t, TableNames[i], table.Name)
	}

	tests := []struct {
		name  string
		table model.Table
		want  [][]string
	}{
		{
			name:  "customers by sales",
			table: s.Customers,
			want: [][]string{
				{"Alpha", "France", "Nantes", "2", "250.00", "125.00", "2003-02-24", "2003-05-07"},
				{"Beta", "USA", "NYC", "1", "50.00", "50.00", "2003-07-01", "2003-07-01"},
			},
		},
		{
			name:  "products tie broken by code",
			table: s.Products,
			want: [][]string{
				{"S10_1678", "Classic Cars", "2", "150.00", "2", "75.00", "75.00"},
				{"S10_1949", "Classic Cars", "1", "150.00", "1", "150.00", "150.00"},
			},
		},
		{
			name:  "countries",
			table: s.Countries,
			want: [][]string{
				{"France", "1", "2", "250.00", "125.00", "2"},
				{"USA", "1", "1", "50.00", "50.00", "1"},
			},
		},
		{
			name:  "daily metrics by date",
			table: s.Daily,
			want: [][]string{
				{"2003-02-24", "100.00", "1", "1", "100.00"},
				{"2003-05-07", "150.00", "1", "1", "150.00"},
				{"2003-07-01", "50.00", "1", "1", "50.00"},
			},
		},
		{
			name:  "temporal by year month weekday",
			table: s.Temporal,
			want: [][]string{
				{"2003", "2", "0", "1", "100.00", "1", "100.00"},
				{"2003", "5", "2", "1", "150.00", "1", "150.00"},
				{"2003", "7", "1", "1", "50.00", "1", "50.00"},
			},
		},
		{
			name:  "geographic by sales",
			table: s.Geographic,
			want: [][]string{
				{"France", "Nantes", "2", "250.00", "1", "2", "125.00"},
				{"USA", "NYC", "1", "50.00", "1", "1", "50.00"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got [][]string
			for _, row := range tt.table.Rows {
				got = append(got, cells(row))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStarSchemaIsLossless(t *testing.T) {
	fact, s := buildSchema(t)

	for _, table := range []model.Table{s.Customers, s.Products, s.Countries, s.Daily, s.Geographic} {
		t.Run(table.Name, func(t *testing.T) {
			salesCol := "total_sales"
			if table.Name == TableDaily {
				salesCol = "daily_sales"
			}
			sum := decimal.Zero
			for _, v := range table.Column(salesCol) {
				sum = sum.Add(v.(decimal.Decimal))
			}
			assert.True(t, sum.Equal(fact.Total()), "%s sums to %s", table.Name, sum)
		})
	}
	require.NoError(t, s.Verify())
}

func TestStarSchemaEmptyFact(t *testing.T) {
	fact := BuildFactTable(nil, FactOptions{})
	s := BuildStarSchema(context.Background(), fact)

	for _, table := range s.Tables() {
		assert.Zero(t, table.Len(), table.Name)
		assert.NotEmpty(t, table.Columns, table.Name)
	}
	assert.NoError(t, s.Verify())
}

func TestVerifyDetectsMismatch(t *testing.T) {
	_, s := buildSchema(t)
	s.factTotal = s.factTotal.Add(decimal.NewFromInt(1))

	err := s.Verify()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAggregationMismatch)

	var mErr *MismatchError
	require.True(t, errors.As(err, &mErr))
	assert.Equal(t, "fact", mErr.Source)
	assert.Len(t, mErr.Mismatches, 3)
	assert.Equal(t, "total_sales", mErr.Mismatches[0].Measure)
}

func TestCustomerLocationFromEarliestLine(t *testing.T) {
	records := []model.CleanedSalesRecord{
		rec(10200, "Gamma", "Spain", "Madrid", "S10_1678", "Shipped", "10", model.NewDate(2004, time.June, 1)),
		rec(10199, "Gamma", "France", "Lyon", "S10_1678", "Shipped", "10", model.NewDate(2004, time.January, 5)),
	}
	s := BuildStarSchema(context.Background(), BuildFactTable(records, FactOptions{}))

	require.Equal(t, 1, s.Customers.Len())
	assert.Equal(t, []string{"Gamma", "France", "Lyon", "2", "20.00", "10.00", "2004-01-05", "2004-06-01"},
		cells(s.Customers.Rows[0]))
	assert.Equal(t, 2, s.Countries.Len())
}
