package pipeline

import (
	"github.com/shopspring/decimal"

	"sales-pipeline/internal/model"
)

// ------------------- Derived fields -------------------

var (
	hundred     = decimal.NewFromInt(100)
	smallLimit  = decimal.NewFromInt(1000)
	mediumLimit = decimal.NewFromInt(5000)
	largeLimit  = decimal.NewFromInt(10000)
)

// derive fills the calendar and pricing fields computed from a cleaned row.
func derive(r *model.CleanedSalesRecord) {
	d := r.OrderDate
	r.Year = d.Year()
	r.Month = int(d.Month())
	r.Quarter = (r.Month-1)/3 + 1
	r.DayOfWeek = (int(d.Weekday()) + 6) % 7
	r.DayName = d.Weekday().String()
	r.IsWeekend = r.DayOfWeek >= 5

	r.Margin = r.PriceEach.Sub(r.MSRP)
	if r.PriceEach.IsZero() {
		r.MarginPercentage = decimal.Zero
	} else {
		r.MarginPercentage = r.Margin.Div(r.PriceEach).Mul(hundred).Round(2)
	}
	r.SalesCategory = salesCategory(r.Sales)
}

// salesCategory bins an amount: Small up to 1000, Medium up to 5000, Large up
// to 10000, Very Large above.
func salesCategory(sales decimal.Decimal) string {
	switch {
	case sales.LessThanOrEqual(smallLimit):
		return "Small"
	case sales.LessThanOrEqual(mediumLimit):
		return "Medium"
	case sales.LessThanOrEqual(largeLimit):
		return "Large"
	default:
		return "Very Large"
	}
}
