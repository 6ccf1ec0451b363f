package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"sales-pipeline/internal/model"
)

var csvHeader = strings.Join(model.RequiredColumns, ",")

// csvLine renders one raw sales row with every other column filled in.
func csvLine(order, line int, sales, date, status, customer, country, city, code string) string {
	return fmt.Sprintf(
		"%d,10,95.70,%d,%s,%s,%s,1,2,2003,Classic Cars,95,%s,%s,555-0100,1 Main St,Suite 1,%s,Loire,44000,%s,EMEA,Smith,Jo,Small",
		order, line, sales, date, status, code, customer, city, country,
	)
}

// sampleLines is three fact orders for two customers (100, 150, 50), one exact
// duplicate and one row with a missing SALES value.
func sampleLines() []string {
	return []string{
		csvLine(10100, 1, "100", "2/24/2003 0:00", "Shipped", "Alpha", "France", "Nantes", "S10_1678"),
		csvLine(10101, 1, "150", "5/7/2003 0:00", "Shipped", "Alpha", "France", "Nantes", "S10_1949"),
		csvLine(10102, 1, "50", "7/1/2003 0:00", "Shipped", "Beta", "USA", "NYC", "S10_1678"),
		csvLine(10100, 1, "100", "2/24/2003 0:00", "Shipped", "Alpha", "France", "Nantes", "S10_1678"),
		csvLine(10103, 1, "", "8/25/2003 0:00", "Cancelled", "Beta", "USA", "NYC", "S10_1678"),
	}
}

func writeCSV(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sales.csv")
	content := csvHeader + "\n" + strings.Join(lines, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// rec builds a cleaned record with its derived fields.
func rec(order int, customer, country, city, code, status, sales string, date model.Date) model.CleanedSalesRecord {
	amount := decimal.RequireFromString(sales)
	r := model.CleanedSalesRecord{
		OrderNumber:     order,
		QuantityOrdered: 1,
		PriceEach:       amount,
		OrderLineNumber: 1,
		Sales:           amount,
		OrderDate:       date,
		Status:          status,
		QtrID:           int(date.Month()-1)/3 + 1,
		MonthID:         int(date.Month()),
		YearID:          date.Year(),
		ProductLine:     "Classic Cars",
		MSRP:            amount,
		ProductCode:     code,
		CustomerName:    customer,
		Country:         country,
		City:            city,
		DealSize:        "Small",
	}
	derive(&r)
	return r
}

func cleanedFixture() []model.CleanedSalesRecord {
	return []model.CleanedSalesRecord{
		rec(10100, "Alpha", "France", "Nantes", "S10_1678", "Shipped", "100", model.NewDate(2003, time.February, 24)),
		rec(10101, "Alpha", "France", "Nantes", "S10_1949", "Shipped", "150", model.NewDate(2003, time.May, 7)),
		rec(10102, "Beta", "USA", "NYC", "S10_1678", "Shipped", "50", model.NewDate(2003, time.July, 1)),
		rec(10103, "Beta", "USA", "NYC", "S10_1678", "Cancelled", "999", model.NewDate(2003, time.August, 25)),
	}
}
