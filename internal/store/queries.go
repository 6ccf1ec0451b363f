package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"sales-pipeline/internal/logging"
	"sales-pipeline/internal/model"
	"sales-pipeline/pkg/utils"
)

// Query is one named statement of the analytical catalog. Its SQL reads from
// the filtered view "sales" rather than from sales_data directly.
type Query struct {
	Name        string
	Description string
	SQL         string
}

// QueryFilter narrows the rows a catalog query sees. Zero values mean no filter.
type QueryFilter struct {
	Country          string
	ProductLine      string
	Year             int
	ExcludedStatuses []string
}

// Names of the validation queries used to reconcile the star schema.
const (
	CustomerTotals = "customer_totals"
	ProductTotals  = "product_totals"
	CountryTotals  = "country_totals"
)

var catalog = []Query{
	{
		Name:        "customer_rank_by_country",
		Description: "Customers ranked by total sales within their country (RANK)",
		SQL: `
WITH customer_sales AS (
    SELECT COUNTRY, CUSTOMERNAME, COUNT(*) AS order_lines, SUM(SALES) AS total_sales
    FROM sales
    GROUP BY COUNTRY, CUSTOMERNAME
)
SELECT COUNTRY, CUSTOMERNAME, order_lines,
       ROUND(total_sales, 2) AS total_sales,
       RANK() OVER (PARTITION BY COUNTRY ORDER BY total_sales DESC) AS country_rank
FROM customer_sales
ORDER BY COUNTRY, country_rank, CUSTOMERNAME`,
	},
	{
		Name:        "running_monthly_totals",
		Description: "Monthly sales with running and year-to-date totals (SUM OVER)",
		SQL: `
WITH monthly AS (
    SELECT YEAR_ID, MONTH_ID, COUNT(*) AS order_lines, SUM(SALES) AS monthly_sales
    FROM sales
    GROUP BY YEAR_ID, MONTH_ID
)
SELECT YEAR_ID, MONTH_ID, order_lines,
       ROUND(monthly_sales, 2) AS monthly_sales,
       ROUND(SUM(monthly_sales) OVER (
           ORDER BY YEAR_ID, MONTH_ID
           ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW), 2) AS running_total,
       ROUND(SUM(monthly_sales) OVER (
           PARTITION BY YEAR_ID ORDER BY MONTH_ID
           ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW), 2) AS year_to_date
FROM monthly
ORDER BY YEAR_ID, MONTH_ID`,
	},
	{
		Name:        "above_productline_average",
		Description: "Order lines whose sales exceed the average of their product line (correlated subquery)",
		SQL: `
SELECT s1.ORDERNUMBER, s1.ORDERLINENUMBER, s1.PRODUCTLINE, s1.CUSTOMERNAME, s1.SALES,
       ROUND((SELECT AVG(s2.SALES) FROM sales s2 WHERE s2.PRODUCTLINE = s1.PRODUCTLINE), 2) AS productline_avg
FROM sales s1
WHERE s1.SALES > (SELECT AVG(s2.SALES) FROM sales s2 WHERE s2.PRODUCTLINE = s1.PRODUCTLINE)
ORDER BY s1.PRODUCTLINE, s1.SALES DESC, s1.ORDERNUMBER, s1.ORDERLINENUMBER`,
	},
	{
		Name:        "top_lines_per_productline",
		Description: "Top 5 lines per product line with ROW_NUMBER, DENSE_RANK, LAG, LEAD and a moving average",
		SQL: `
WITH ranked AS (
    SELECT ORDERNUMBER, ORDERLINENUMBER, CUSTOMERNAME, PRODUCTLINE, SALES, ORDERDATE, COUNTRY,
           ROW_NUMBER() OVER (
               PARTITION BY PRODUCTLINE ORDER BY SALES DESC, ORDERNUMBER, ORDERLINENUMBER) AS row_num,
           RANK() OVER (PARTITION BY COUNTRY ORDER BY SALES DESC) AS country_rank,
           DENSE_RANK() OVER (PARTITION BY YEAR_ID ORDER BY SALES DESC) AS year_dense_rank,
           LAG(SALES, 1) OVER (
               PARTITION BY CUSTOMERNAME ORDER BY ORDERDATE, ORDERNUMBER, ORDERLINENUMBER) AS prev_sale,
           LEAD(SALES, 1) OVER (
               PARTITION BY PRODUCTLINE ORDER BY ORDERDATE, ORDERNUMBER, ORDERLINENUMBER) AS next_sale,
           AVG(SALES) OVER (
               PARTITION BY PRODUCTLINE ORDER BY ORDERDATE, ORDERNUMBER, ORDERLINENUMBER
               ROWS BETWEEN 2 PRECEDING AND CURRENT ROW) AS moving_avg_3,
           ROUND(SALES * 100.0 / SUM(SALES) OVER (PARTITION BY PRODUCTLINE), 2) AS pct_of_productline
    FROM sales
    WHERE SALES > 0
)
SELECT ORDERNUMBER, ORDERLINENUMBER, CUSTOMERNAME, PRODUCTLINE, SALES, ORDERDATE, COUNTRY,
       row_num, country_rank, year_dense_rank, prev_sale, next_sale,
       ROUND(moving_avg_3, 2) AS moving_avg_3, pct_of_productline
FROM ranked
WHERE row_num <= 5
ORDER BY PRODUCTLINE, row_num`,
	},
	{
		Name:        "customer_productline_cte",
		Description: "Top 10 shipped customers per product line with quarter-over-quarter growth (CTE chain)",
		SQL: `
WITH customer_product_sales AS (
    SELECT CUSTOMERNAME, PRODUCTLINE, COUNT(*) AS order_count,
           SUM(SALES) AS total_sales, AVG(SALES) AS avg_sales
    FROM sales
    WHERE STATUS = 'Shipped'
    GROUP BY CUSTOMERNAME, PRODUCTLINE
),
customer_ranking AS (
    SELECT CUSTOMERNAME, SUM(total_sales) AS customer_total_sales,
           COUNT(DISTINCT PRODUCTLINE) AS products_purchased,
           RANK() OVER (ORDER BY SUM(total_sales) DESC) AS customer_rank
    FROM customer_product_sales
    GROUP BY CUSTOMERNAME
),
quarterly AS (
    SELECT YEAR_ID, QTR_ID, PRODUCTLINE, SUM(SALES) AS quarterly_sales,
           LAG(SUM(SALES)) OVER (PARTITION BY PRODUCTLINE ORDER BY YEAR_ID, QTR_ID) AS prev_quarter_sales
    FROM sales
    WHERE STATUS = 'Shipped'
    GROUP BY YEAR_ID, QTR_ID, PRODUCTLINE
),
latest_growth AS (
    SELECT PRODUCTLINE, YEAR_ID, QTR_ID, quarterly_sales,
           CASE WHEN prev_quarter_sales IS NOT NULL AND prev_quarter_sales <> 0
                THEN ROUND((quarterly_sales - prev_quarter_sales) / prev_quarter_sales * 100, 2)
           END AS qoq_growth_pct,
           ROW_NUMBER() OVER (PARTITION BY PRODUCTLINE ORDER BY YEAR_ID DESC, QTR_ID DESC) AS recency
    FROM quarterly
)
SELECT cr.CUSTOMERNAME, ROUND(cr.customer_total_sales, 2) AS customer_total_sales,
       cr.customer_rank, cr.products_purchased,
       cps.PRODUCTLINE, cps.order_count,
       ROUND(cps.total_sales, 2) AS productline_sales, ROUND(cps.avg_sales, 2) AS avg_sales,
       lg.YEAR_ID AS latest_year, lg.QTR_ID AS latest_qtr,
       ROUND(lg.quarterly_sales, 2) AS latest_quarter_sales, lg.qoq_growth_pct
FROM customer_ranking cr
JOIN customer_product_sales cps ON cr.CUSTOMERNAME = cps.CUSTOMERNAME
JOIN latest_growth lg ON cps.PRODUCTLINE = lg.PRODUCTLINE AND lg.recency = 1
WHERE cr.customer_rank <= 10
ORDER BY cr.customer_rank, cr.CUSTOMERNAME, cps.total_sales DESC, cps.PRODUCTLINE`,
	},
	{
		Name:        "customer_value_subqueries",
		Description: "Top 50 shipped lines above average with scalar, EXISTS and correlated subqueries",
		SQL: `
SELECT s1.ORDERNUMBER, s1.ORDERLINENUMBER, s1.CUSTOMERNAME, s1.PRODUCTLINE, s1.SALES, s1.ORDERDATE,
       ROUND((SELECT AVG(s2.SALES) FROM sales s2
              WHERE s2.CUSTOMERNAME = s1.CUSTOMERNAME), 2) AS customer_avg_sales,
       CASE WHEN EXISTS (
                SELECT 1 FROM sales s3
                WHERE s3.CUSTOMERNAME = s1.CUSTOMERNAME AND s3.SALES > s1.SALES * 2)
            THEN 'High Value Customer' ELSE 'Regular Customer'
       END AS customer_type,
       (SELECT COUNT(*) + 1 FROM sales s4
        WHERE s4.CUSTOMERNAME = s1.CUSTOMERNAME AND s4.SALES > s1.SALES) AS customer_rank,
       (SELECT COUNT(DISTINCT s5.PRODUCTLINE) FROM sales s5
        WHERE s5.CUSTOMERNAME = s1.CUSTOMERNAME) AS unique_productlines,
       CASE WHEN s1.SALES > (SELECT AVG(s6.SALES) FROM sales s6
                             WHERE s6.CUSTOMERNAME <> s1.CUSTOMERNAME)
            THEN 'Above Average' ELSE 'Below Average'
       END AS performance_category
FROM sales s1
WHERE s1.STATUS = 'Shipped'
  AND s1.SALES > (SELECT AVG(SALES) FROM sales WHERE STATUS = 'Shipped')
ORDER BY s1.SALES DESC, s1.ORDERNUMBER, s1.ORDERLINENUMBER
LIMIT 50`,
	},
	{
		Name:        "country_market_share",
		Description: "Customer share of country sales with a same-country self join (CTE, JOIN, window)",
		SQL: `
WITH customer_summary AS (
    SELECT CUSTOMERNAME, COUNTRY, COUNT(*) AS total_orders,
           SUM(SALES) AS total_sales, AVG(SALES) AS avg_order_value
    FROM sales
    GROUP BY CUSTOMERNAME, COUNTRY
),
peers AS (
    SELECT cs.CUSTOMERNAME, cs.COUNTRY,
           COUNT(cs2.CUSTOMERNAME) AS country_peers,
           AVG(cs2.total_sales) AS peer_avg_sales
    FROM customer_summary cs
    LEFT JOIN customer_summary cs2
        ON cs.COUNTRY = cs2.COUNTRY AND cs.CUSTOMERNAME <> cs2.CUSTOMERNAME
    GROUP BY cs.CUSTOMERNAME, cs.COUNTRY
)
SELECT cs.CUSTOMERNAME, cs.COUNTRY, cs.total_orders,
       ROUND(cs.total_sales, 2) AS total_sales,
       ROUND(cs.avg_order_value, 2) AS avg_order_value,
       p.country_peers,
       ROUND(p.peer_avg_sales, 2) AS peer_avg_sales,
       ROUND(cs.total_sales * 100.0 / SUM(cs.total_sales) OVER (PARTITION BY cs.COUNTRY), 2) AS market_share_pct,
       CASE WHEN cs.total_sales > AVG(cs.total_sales) OVER (PARTITION BY cs.COUNTRY)
            THEN 'Above Country Average' ELSE 'Below Country Average'
       END AS country_performance
FROM customer_summary cs
JOIN peers p ON p.CUSTOMERNAME = cs.CUSTOMERNAME AND p.COUNTRY = cs.COUNTRY
ORDER BY cs.COUNTRY, cs.total_sales DESC, cs.CUSTOMERNAME`,
	},
	{
		Name:        CustomerTotals,
		Description: "Total sales and order lines per customer",
		SQL: `
SELECT CUSTOMERNAME AS dim_key, COUNT(*) AS order_lines, SUM(SALES) AS total_sales
FROM sales
GROUP BY CUSTOMERNAME
ORDER BY CUSTOMERNAME`,
	},
	{
		Name:        ProductTotals,
		Description: "Total sales and order lines per product code",
		SQL: `
SELECT PRODUCTCODE AS dim_key, COUNT(*) AS order_lines, SUM(SALES) AS total_sales
FROM sales
GROUP BY PRODUCTCODE
ORDER BY PRODUCTCODE`,
	},
	{
		Name:        CountryTotals,
		Description: "Total sales and order lines per country",
		SQL: `
SELECT COUNTRY AS dim_key, COUNT(*) AS order_lines, SUM(SALES) AS total_sales
FROM sales
GROUP BY COUNTRY
ORDER BY COUNTRY`,
	},
}

// Catalog returns the analytical queries in display order.
func Catalog() []Query {
	out := make([]Query, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a catalog query by name.
func Lookup(name string) (Query, bool) {
	for _, q := range catalog {
		if q.Name == name {
			return q, true
		}
	}
	return Query{}, false
}

// build prefixes the query with the filtered "sales" view. A query that
// already opens with WITH gets the view as its first CTE.
func (q Query) build(f QueryFilter) (string, []interface{}, error) {
	conds := []string{"1 = 1"}
	var args []interface{}
	if f.Country != "" {
		conds = append(conds, "COUNTRY = ?")
		args = append(args, f.Country)
	}
	if f.ProductLine != "" {
		conds = append(conds, "PRODUCTLINE = ?")
		args = append(args, f.ProductLine)
	}
	if f.Year != 0 {
		conds = append(conds, "YEAR_ID = ?")
		args = append(args, f.Year)
	}
	if len(f.ExcludedStatuses) > 0 {
		// Statuses match case-insensitively, as in the fact table.
		lowered := make([]string, len(f.ExcludedStatuses))
		for i, st := range f.ExcludedStatuses {
			lowered[i] = strings.ToLower(st)
		}
		conds = append(conds, "LOWER(STATUS) NOT IN (?)")
		args = append(args, lowered)
	}

	view := "WITH sales AS (SELECT * FROM sales_data WHERE " + strings.Join(conds, " AND ") + ")"
	body := strings.TrimSpace(q.SQL)
	if len(body) > 5 && strings.EqualFold(body[:5], "WITH ") {
		body = view + ",\n" + body[5:]
	} else {
		body = view + "\n" + body
	}

	// Expand the status list into one placeholder per value.
	return sqlx.In(body, args...)
}

// Run executes a catalog query and returns its rows.
func (s *Store) Run(ctx context.Context, name string, filter QueryFilter) (model.Table, error) {
	q, ok := Lookup(name)
	if !ok {
		return model.Table{}, fmt.Errorf("unknown query %q", name)
	}

	sqlText, args, err := q.build(filter)
	if err != nil {
		return model.Table{}, fmt.Errorf("failed to build query %s: %w", name, err)
	}

	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(sqlText), args...)
	if err != nil {
		return model.Table{}, fmt.Errorf("query %s failed: %w", name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return model.Table{}, fmt.Errorf("query %s failed: %w", name, err)
	}

	table := model.Table{Name: name, Columns: cols}
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return model.Table{}, fmt.Errorf("query %s scan failed: %w", name, err)
		}
		for i := range vals {
			vals[i] = utils.NormalizeSQLValue(vals[i])
		}
		table.Rows = append(table.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return model.Table{}, fmt.Errorf("query %s failed: %w", name, err)
	}

	logging.FromContext(ctx).Debug().
		Str("query", name).
		Int("rows", table.Len()).
		Msg("Query executed")
	return table, nil
}

// Explain returns the EXPLAIN QUERY PLAN detail lines of a catalog query.
func (s *Store) Explain(ctx context.Context, name string) ([]string, error) {
	q, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown query %q", name)
	}

	sqlText, args, err := q.build(QueryFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to build query %s: %w", name, err)
	}

	rows, err := s.db.QueryxContext(ctx, "EXPLAIN QUERY PLAN "+s.db.Rebind(sqlText), args...)
	if err != nil {
		return nil, fmt.Errorf("explain %s failed: %w", name, err)
	}
	defer rows.Close()

	var plan []string
	for rows.Next() {
		var (
			id, parent, notUsed int
			detail              string
		)
		if err := rows.Scan(&id, &parent, &notUsed, &detail); err != nil {
			return nil, fmt.Errorf("explain %s scan failed: %w", name, err)
		}
		plan = append(plan, detail)
	}
	return plan, rows.Err()
}
