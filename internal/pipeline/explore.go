package pipeline

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"sales-pipeline/internal/logging"
	"sales-pipeline/internal/model"
	"sales-pipeline/pkg/utils"
)

// ------------------- Exploratory summary -------------------

const topN = 10

// SalesStats describes the distribution of SALES.
type SalesStats struct {
	Count  int             `json:"count"`
	Total  decimal.Decimal `json:"total"`
	Mean   decimal.Decimal `json:"mean"`
	Median decimal.Decimal `json:"median"`
	StdDev float64         `json:"std_dev"`
	Min    decimal.Decimal `json:"min"`
	Max    decimal.Decimal `json:"max"`
}

// Breakdown is the SALES total of one category.
type Breakdown struct {
	Key   string          `json:"key"`
	Lines int             `json:"lines"`
	Sales decimal.Decimal `json:"sales"`
	Mean  decimal.Decimal `json:"mean"`
}

// Correlation is the Pearson coefficient of one column against SALES.
type Correlation struct {
	Column      string  `json:"column"`
	Coefficient float64 `json:"coefficient"`
}

// Correlations is the Pearson matrix over the numeric columns. Columns with
// no variance have no defined coefficient and are left out.
type Correlations struct {
	Columns []string      `json:"columns"`
	Matrix  [][]float64   `json:"matrix"`
	Sales   []Correlation `json:"sales"` // descending
}

// Summary is the exploratory view of the cleaned data set.
type Summary struct {
	Sales         SalesStats   `json:"sales"`
	ByYear        []Breakdown  `json:"by_year"`
	ByMonth       []Breakdown  `json:"by_month"`
	ByProductLine []Breakdown  `json:"by_product_line"`
	ByDealSize    []Breakdown  `json:"by_deal_size"`
	ByDayName     []Breakdown  `json:"by_day_name"`
	TopCustomers  []Breakdown  `json:"top_customers"`
	TopProducts   []Breakdown  `json:"top_products"`
	Correlations  Correlations `json:"correlations"`
}

// Explore computes summary statistics over every cleaned record, whatever
// its status.
func Explore(ctx context.Context, cleaned []model.CleanedSalesRecord) Summary {
	s := Summary{Sales: salesStats(cleaned)}

	s.ByYear = breakdown(cleaned, func(r model.CleanedSalesRecord) []interface{} { return []interface{}{r.Year} }, false)
	s.ByMonth = breakdown(cleaned, func(r model.CleanedSalesRecord) []interface{} {
		return []interface{}{r.Year, r.Month, fmt.Sprintf("%04d-%02d", r.Year, r.Month)}
	}, false)
	s.ByProductLine = breakdown(cleaned, func(r model.CleanedSalesRecord) []interface{} { return []interface{}{r.ProductLine} }, true)
	s.ByDealSize = breakdown(cleaned, func(r model.CleanedSalesRecord) []interface{} { return []interface{}{r.DealSize} }, true)
	s.ByDayName = breakdown(cleaned, func(r model.CleanedSalesRecord) []interface{} {
		return []interface{}{r.DayOfWeek, r.DayName}
	}, false)
	s.TopCustomers = top(breakdown(cleaned, func(r model.CleanedSalesRecord) []interface{} { return []interface{}{r.CustomerName} }, true))
	s.TopProducts = top(breakdown(cleaned, func(r model.CleanedSalesRecord) []interface{} { return []interface{}{r.ProductCode} }, true))
	s.Correlations = correlations(cleaned)

	logging.FromContext(ctx).Info().
		Int("rows", s.Sales.Count).
		Str("total_sales", s.Sales.Total.StringFixed(2)).
		Str("mean_sales", s.Sales.Mean.StringFixed(2)).
		Msg("Exploratory summary computed")
	return s
}

func salesStats(records []model.CleanedSalesRecord) SalesStats {
	st := SalesStats{Count: len(records), Total: decimal.Zero}
	if len(records) == 0 {
		return st
	}

	values := make([]decimal.Decimal, len(records))
	st.Min, st.Max = records[0].Sales, records[0].Sales
	for i, r := range records {
		values[i] = r.Sales
		st.Total = st.Total.Add(r.Sales)
		st.Min = decimal.Min(st.Min, r.Sales)
		st.Max = decimal.Max(st.Max, r.Sales)
	}

	n := decimal.NewFromInt(int64(len(records)))
	mean := st.Total.Div(n)
	st.Mean = money(mean)
	st.Median = money(utils.Median(values))

	// Sample standard deviation.
	if len(records) > 1 {
		xs := make([]float64, len(values))
		for i, v := range values {
			xs[i] = v.InexactFloat64()
		}
		st.StdDev = math.Round(stat.StdDev(xs, nil)*100) / 100
	}
	return st
}

// breakdown groups records and orders the result by sales descending when
// bySales is set, by key otherwise. The last key component names the row.
func breakdown(records []model.CleanedSalesRecord, keyFn func(model.CleanedSalesRecord) []interface{}, bySales bool) []Breakdown {
	groups := groupBy(records, keyFn)
	if bySales {
		sortBySales(groups)
	} else {
		sortByKey(groups)
	}

	out := make([]Breakdown, 0, len(groups))
	for _, g := range groups {
		out = append(out, Breakdown{
			Key:   utils.FormatValue(g.keys[len(g.keys)-1]),
			Lines: g.lines,
			Sales: money(g.sales),
			Mean:  g.avgSales(),
		})
	}
	return out
}

// correlationColumns are the numeric columns of a cleaned record.
var correlationColumns = []struct {
	name  string
	value func(model.CleanedSalesRecord) float64
}{
	{"ORDERNUMBER", func(r model.CleanedSalesRecord) float64 { return float64(r.OrderNumber) }},
	{"QUANTITYORDERED", func(r model.CleanedSalesRecord) float64 { return float64(r.QuantityOrdered) }},
	{"PRICEEACH", func(r model.CleanedSalesRecord) float64 { return r.PriceEach.InexactFloat64() }},
	{"ORDERLINENUMBER", func(r model.CleanedSalesRecord) float64 { return float64(r.OrderLineNumber) }},
	{"SALES", func(r model.CleanedSalesRecord) float64 { return r.Sales.InexactFloat64() }},
	{"QTR_ID", func(r model.CleanedSalesRecord) float64 { return float64(r.QtrID) }},
	{"MONTH_ID", func(r model.CleanedSalesRecord) float64 { return float64(r.MonthID) }},
	{"YEAR_ID", func(r model.CleanedSalesRecord) float64 { return float64(r.YearID) }},
	{"MSRP", func(r model.CleanedSalesRecord) float64 { return r.MSRP.InexactFloat64() }},
	{"MARGIN", func(r model.CleanedSalesRecord) float64 { return r.Margin.InexactFloat64() }},
	{"MARGIN_PERCENTAGE", func(r model.CleanedSalesRecord) float64 { return r.MarginPercentage.InexactFloat64() }},
}

func correlations(records []model.CleanedSalesRecord) Correlations {
	c := Correlations{Columns: []string{}, Matrix: [][]float64{}, Sales: []Correlation{}}
	if len(records) < 2 {
		return c
	}

	var series [][]float64
	for _, col := range correlationColumns {
		xs := make([]float64, len(records))
		for i, r := range records {
			xs[i] = col.value(r)
		}
		if stat.Variance(xs, nil) == 0 {
			continue
		}
		c.Columns = append(c.Columns, col.name)
		series = append(series, xs)
	}

	salesIdx := -1
	for i, xs := range series {
		row := make([]float64, len(series))
		for j, ys := range series {
			if i == j {
				row[j] = 1
				continue
			}
			row[j] = math.Round(stat.Correlation(xs, ys, nil)*1e4) / 1e4
		}
		c.Matrix = append(c.Matrix, row)
		if c.Columns[i] == "SALES" {
			salesIdx = i
		}
	}

	if salesIdx >= 0 {
		for j, name := range c.Columns {
			c.Sales = append(c.Sales, Correlation{Column: name, Coefficient: c.Matrix[salesIdx][j]})
		}
		sort.SliceStable(c.Sales, func(i, j int) bool {
			if c.Sales[i].Coefficient != c.Sales[j].Coefficient {
				return c.Sales[i].Coefficient > c.Sales[j].Coefficient
			}
			return c.Sales[i].Column < c.Sales[j].Column
		})
	}
	return c
}

func top(b []Breakdown) []Breakdown {
	if len(b) > topN {
		return b[:topN]
	}
	return b
}

// CorrelationTable renders the SALES correlations for display.
func CorrelationTable(c Correlations) model.Table {
	t := model.Table{Name: "sales_correlations", Columns: []string{"column", "coefficient"}}
	for _, cr := range c.Sales {
		t.Rows = append(t.Rows, []interface{}{cr.Column, cr.Coefficient})
	}
	return t
}

// BreakdownTable renders a breakdown for display.
func BreakdownTable(name string, rows []Breakdown) model.Table {
	t := model.Table{Name: name, Columns: []string{"key", "lines", "sales", "mean"}}
	for _, b := range rows {
		t.Rows = append(t.Rows, []interface{}{b.Key, b.Lines, b.Sales, b.Mean})
	}
	return t
}
