package pipeline

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"sales-pipeline/internal/logging"
	"sales-pipeline/internal/model"
	"sales-pipeline/pkg/utils"
)

// ------------------- Star schema -------------------

// Table names, in export order.
const (
	TableFact       = "sales_fact"
	TableCustomers  = "dim_customers"
	TableProducts   = "dim_products"
	TableCountries  = "dim_countries"
	TableDaily      = "sales_metrics"
	TableTemporal   = "temporal_analysis"
	TableGeographic = "geographic_analysis"
)

// TableNames lists the seven star-schema tables in export order.
var TableNames = []string{
	TableFact, TableCustomers, TableProducts, TableCountries,
	TableDaily, TableTemporal, TableGeographic,
}

var (
	factColumns = []string{
		"ORDERNUMBER", "ORDERLINENUMBER", "ORDERDATE", "CUSTOMERNAME", "PRODUCTCODE", "PRODUCTLINE",
		"COUNTRY", "CITY", "SALES", "QUANTITYORDERED", "PRICEEACH", "STATUS", "DEALSIZE",
	}
	customerColumns = []string{
		"CUSTOMERNAME", "COUNTRY", "CITY", "total_orders", "total_sales", "avg_order_value",
		"first_order_date", "last_order_date",
	}
	productColumns = []string{
		"PRODUCTCODE", "PRODUCTLINE", "total_orders", "total_sales", "total_quantity",
		"avg_price", "avg_order_value",
	}
	countryColumns = []string{
		"COUNTRY", "unique_customers", "total_orders", "total_sales", "avg_order_value", "unique_products",
	}
	dailyColumns = []string{
		"order_date", "daily_sales", "daily_orders", "daily_customers", "avg_order_value",
	}
	temporalColumns = []string{
		"year", "month", "day_of_week", "order_count", "total_sales", "unique_customers", "avg_order_value",
	}
	geographicColumns = []string{
		"COUNTRY", "CITY", "order_count", "total_sales", "unique_customers", "unique_products", "avg_order_value",
	}
)

// FactOptions selects the cleaned rows that enter sales_fact.
type FactOptions struct {
	ExcludedStatuses []string
}

// FactTable is the atomic grain of the star schema: one cleaned order line
// per row, ordered by ORDERDATE desc, then ORDERNUMBER and ORDERLINENUMBER asc.
type FactTable struct {
	Records []model.CleanedSalesRecord
}

// BuildFactTable filters out excluded statuses and orders the remainder.
func BuildFactTable(cleaned []model.CleanedSalesRecord, opts FactOptions) FactTable {
	excluded := make(map[string]bool, len(opts.ExcludedStatuses))
	for _, s := range opts.ExcludedStatuses {
		excluded[strings.ToLower(s)] = true
	}

	records := make([]model.CleanedSalesRecord, 0, len(cleaned))
	for _, r := range cleaned {
		if excluded[strings.ToLower(r.Status)] {
			continue
		}
		records = append(records, r)
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.OrderDate.Equal(b.OrderDate.Time) {
			return a.OrderDate.After(b.OrderDate.Time)
		}
		if a.OrderNumber != b.OrderNumber {
			return a.OrderNumber < b.OrderNumber
		}
		return a.OrderLineNumber < b.OrderLineNumber
	})
	return FactTable{Records: records}
}

// Total returns the exact sum of SALES over the fact table.
func (f FactTable) Total() decimal.Decimal {
	total := decimal.Zero
	for _, r := range f.Records {
		total = total.Add(r.Sales)
	}
	return total
}

// Table materializes sales_fact.
func (f FactTable) Table() model.Table {
	t := model.Table{Name: TableFact, Columns: factColumns, Rows: make([][]interface{}, 0, len(f.Records))}
	for _, r := range f.Records {
		t.Rows = append(t.Rows, []interface{}{
			r.OrderNumber, r.OrderLineNumber, r.OrderDate, r.CustomerName, r.ProductCode, r.ProductLine,
			r.Country, r.City, money(r.Sales), r.QuantityOrdered, money(r.PriceEach), r.Status, r.DealSize,
		})
	}
	return t
}

// group accumulates the measures of one dimension key.
type group struct {
	keys      []interface{}
	lines     int
	sales     decimal.Decimal
	quantity  int
	priceSum  decimal.Decimal
	customers map[string]struct{}
	products  map[string]struct{}
	first     model.CleanedSalesRecord
	last      model.Date
}

func (g *group) add(r model.CleanedSalesRecord) {
	if g.lines == 0 || earlier(r, g.first) {
		g.first = r
	}
	if g.lines == 0 || r.OrderDate.After(g.last.Time) {
		g.last = r.OrderDate
	}
	g.lines++
	g.sales = g.sales.Add(r.Sales)
	g.quantity += r.QuantityOrdered
	g.priceSum = g.priceSum.Add(r.PriceEach)
	g.customers[r.CustomerName] = struct{}{}
	g.products[r.ProductCode] = struct{}{}
}

func (g *group) avgSales() decimal.Decimal {
	return money(g.sales.Div(decimal.NewFromInt(int64(g.lines))))
}

func (g *group) avgPrice() decimal.Decimal {
	return money(g.priceSum.Div(decimal.NewFromInt(int64(g.lines))))
}

// earlier orders fact lines by date, then order number and line.
func earlier(a, b model.CleanedSalesRecord) bool {
	if !a.OrderDate.Equal(b.OrderDate.Time) {
		return a.OrderDate.Before(b.OrderDate.Time)
	}
	if a.OrderNumber != b.OrderNumber {
		return a.OrderNumber < b.OrderNumber
	}
	return a.OrderLineNumber < b.OrderLineNumber
}

// groupBy partitions records by the key returned from keyFn. Groups are
// returned in first-seen order.
func groupBy(records []model.CleanedSalesRecord, keyFn func(model.CleanedSalesRecord) []interface{}) []*group {
	index := make(map[string]*group)
	var groups []*group
	for _, r := range records {
		keys := keyFn(r)
		id := groupID(keys)
		g, ok := index[id]
		if !ok {
			g = &group{
				keys:      keys,
				sales:     decimal.Zero,
				priceSum:  decimal.Zero,
				customers: make(map[string]struct{}),
				products:  make(map[string]struct{}),
			}
			index[id] = g
			groups = append(groups, g)
		}
		g.add(r)
	}
	return groups
}

func groupID(keys []interface{}) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = utils.FormatValue(k)
	}
	return strings.Join(parts, "\x1f")
}

// compareKeys orders two key tuples component by component.
func compareKeys(a, b []interface{}) int {
	for i := range a {
		var c int
		switch av := a[i].(type) {
		case string:
			c = strings.Compare(av, b[i].(string))
		case int:
			bv := b[i].(int)
			switch {
			case av < bv:
				c = -1
			case av > bv:
				c = 1
			}
		case model.Date:
			c = av.Compare(b[i].(model.Date).Time)
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// sortBySales orders groups by total sales descending, ties by key ascending.
func sortBySales(groups []*group) {
	sort.SliceStable(groups, func(i, j int) bool {
		if c := groups[i].sales.Cmp(groups[j].sales); c != 0 {
			return c > 0
		}
		return compareKeys(groups[i].keys, groups[j].keys) < 0
	})
}

// sortByKey orders groups by key ascending.
func sortByKey(groups []*group) {
	sort.SliceStable(groups, func(i, j int) bool {
		return compareKeys(groups[i].keys, groups[j].keys) < 0
	})
}

// money rounds a monetary amount for presentation.
func money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// dimension keeps the exact per-key measures of one grouped table.
type dimension struct {
	sales map[string]decimal.Decimal
	lines map[string]int
}

func newDimension(groups []*group) dimension {
	d := dimension{
		sales: make(map[string]decimal.Decimal, len(groups)),
		lines: make(map[string]int, len(groups)),
	}
	for _, g := range groups {
		id := groupID(g.keys)
		d.sales[id] = g.sales
		d.lines[id] = g.lines
	}
	return d
}

// StarSchema is the fact table plus the six derived tables.
type StarSchema struct {
	Fact       model.Table
	Customers  model.Table
	Products   model.Table
	Countries  model.Table
	Daily      model.Table
	Temporal   model.Table
	Geographic model.Table

	factTotal     decimal.Decimal
	factLines     int
	distinctNames int
	dims          map[string]dimension
}

// Tables returns the seven tables in export order.
func (s StarSchema) Tables() []model.Table {
	return []model.Table{s.Fact, s.Customers, s.Products, s.Countries, s.Daily, s.Temporal, s.Geographic}
}

// BuildStarSchema derives the dimension and metric tables from the fact table.
func BuildStarSchema(ctx context.Context, fact FactTable) StarSchema {
	recs := fact.Records
	s := StarSchema{
		Fact:      fact.Table(),
		factTotal: fact.Total(),
		factLines: len(recs),
		dims:      make(map[string]dimension),
	}

	customers := groupBy(recs, func(r model.CleanedSalesRecord) []interface{} {
		return []interface{}{r.CustomerName}
	})
	sortBySales(customers)
	s.Customers = model.Table{Name: TableCustomers, Columns: customerColumns, Rows: [][]interface{}{}}
	for _, g := range customers {
		s.Customers.Rows = append(s.Customers.Rows, []interface{}{
			g.keys[0], g.first.Country, g.first.City, g.lines, money(g.sales), g.avgSales(),
			g.first.OrderDate, g.last,
		})
	}
	names := make(map[string]struct{}, len(customers))
	for _, r := range recs {
		names[r.CustomerName] = struct{}{}
	}
	s.distinctNames = len(names)
	s.dims[TableCustomers] = newDimension(customers)

	products := groupBy(recs, func(r model.CleanedSalesRecord) []interface{} {
		return []interface{}{r.ProductCode}
	})
	sortBySales(products)
	s.Products = model.Table{Name: TableProducts, Columns: productColumns, Rows: [][]interface{}{}}
	for _, g := range products {
		s.Products.Rows = append(s.Products.Rows, []interface{}{
			g.keys[0], g.first.ProductLine, g.lines, money(g.sales), g.quantity, g.avgPrice(), g.avgSales(),
		})
	}
	s.dims[TableProducts] = newDimension(products)

	countries := groupBy(recs, func(r model.CleanedSalesRecord) []interface{} {
		return []interface{}{r.Country}
	})
	sortBySales(countries)
	s.Countries = model.Table{Name: TableCountries, Columns: countryColumns, Rows: [][]interface{}{}}
	for _, g := range countries {
		s.Countries.Rows = append(s.Countries.Rows, []interface{}{
			g.keys[0], len(g.customers), g.lines, money(g.sales), g.avgSales(), len(g.products),
		})
	}
	s.dims[TableCountries] = newDimension(countries)

	days := groupBy(recs, func(r model.CleanedSalesRecord) []interface{} {
		return []interface{}{r.OrderDate}
	})
	sortByKey(days)
	s.Daily = model.Table{Name: TableDaily, Columns: dailyColumns, Rows: [][]interface{}{}}
	for _, g := range days {
		s.Daily.Rows = append(s.Daily.Rows, []interface{}{
			g.keys[0], money(g.sales), g.lines, len(g.customers), g.avgSales(),
		})
	}

	periods := groupBy(recs, func(r model.CleanedSalesRecord) []interface{} {
		return []interface{}{r.Year, r.Month, r.DayOfWeek}
	})
	sortByKey(periods)
	s.Temporal = model.Table{Name: TableTemporal, Columns: temporalColumns, Rows: [][]interface{}{}}
	for _, g := range periods {
		s.Temporal.Rows = append(s.Temporal.Rows, []interface{}{
			g.keys[0], g.keys[1], g.keys[2], g.lines, money(g.sales), len(g.customers), g.avgSales(),
		})
	}

	places := groupBy(recs, func(r model.CleanedSalesRecord) []interface{} {
		return []interface{}{r.Country, r.City}
	})
	sortBySales(places)
	s.Geographic = model.Table{Name: TableGeographic, Columns: geographicColumns, Rows: [][]interface{}{}}
	for _, g := range places {
		s.Geographic.Rows = append(s.Geographic.Rows, []interface{}{
			g.keys[0], g.keys[1], g.lines, money(g.sales), len(g.customers), len(g.products), g.avgSales(),
		})
	}

	log := logging.FromContext(ctx)
	for _, t := range s.Tables() {
		log.Debug().Str("table", t.Name).Int("rows", t.Len()).Msg("Built table")
	}
	log.Info().
		Int("fact_rows", s.factLines).
		Int("customers", s.Customers.Len()).
		Int("products", s.Products.Len()).
		Int("countries", s.Countries.Len()).
		Msg("Star schema built")
	return s
}

// Verify checks that every dimension accounts for the whole fact table: the
// exact per-key totals sum to the fact total and the line counts add up.
func (s StarSchema) Verify() error {
	var mismatches []Mismatch
	for _, name := range []string{TableCustomers, TableProducts, TableCountries} {
		dim := s.dims[name]
		sum, lines := totalOf(dim), 0
		for _, n := range dim.lines {
			lines += n
		}
		if !sum.Equal(s.factTotal) {
			mismatches = append(mismatches, Mismatch{
				Table: name, Key: "*", Measure: "total_sales",
				Expected: s.factTotal.String(), Actual: sum.String(),
			})
		}
		if lines != s.factLines {
			mismatches = append(mismatches, Mismatch{
				Table: name, Key: "*", Measure: "total_orders",
				Expected: itoa(s.factLines), Actual: itoa(lines),
			})
		}
	}
	if s.Customers.Len() != s.distinctNames {
		mismatches = append(mismatches, Mismatch{
			Table: TableCustomers, Key: "*", Measure: "rows",
			Expected: itoa(s.distinctNames), Actual: itoa(s.Customers.Len()),
		})
	}

	if len(mismatches) > 0 {
		return &MismatchError{Source: "fact", Mismatches: mismatches}
	}
	return nil
}

func itoa(n int) string {
	return utils.FormatValue(n)
}
