package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sales-pipeline/internal/model"
	"sales-pipeline/pkg/utils"
)

// parseDate tries each layout in order and truncates the result to its day.
func parseDate(value string, layouts []string) (model.Date, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return model.Date{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return model.NewDate(t.Year(), t.Month(), t.Day()), true
		}
	}
	return model.Date{}, false
}

// toCleaned types an imputed raw row. It fails only when ORDERDATE cannot be
// parsed, in which case a date issue is recorded.
func toCleaned(raw *model.RawSalesRecord, layouts []string, cl *CleaningLog) (model.CleanedSalesRecord, bool) {
	date, ok := parseDate(raw.OrderDate, layouts)
	if !ok {
		cl.issue(raw.Line, dateColumn, model.IssueDate, raw.OrderDate)
		return model.CleanedSalesRecord{}, false
	}

	// Numeric cells were imputed, so parsing cannot fail here.
	num := func(s string) int {
		n, _ := utils.ParseInt(s)
		return n
	}
	dec := func(s string) (d decimal.Decimal) {
		d, _ = utils.ParseDecimal(s)
		return d
	}

	return model.CleanedSalesRecord{
		Line:             raw.Line,
		OrderNumber:      num(raw.OrderNumber),
		QuantityOrdered:  num(raw.QuantityOrdered),
		PriceEach:        dec(raw.PriceEach),
		OrderLineNumber:  num(raw.OrderLineNumber),
		Sales:            dec(raw.Sales),
		OrderDate:        date,
		Status:           raw.Status,
		QtrID:            num(raw.QtrID),
		MonthID:          num(raw.MonthID),
		YearID:           num(raw.YearID),
		ProductLine:      raw.ProductLine,
		MSRP:             dec(raw.MSRP),
		ProductCode:      raw.ProductCode,
		CustomerName:     raw.CustomerName,
		Phone:            raw.Phone,
		AddressLine1:     raw.AddressLine1,
		AddressLine2:     raw.AddressLine2,
		City:             raw.City,
		State:            raw.State,
		PostalCode:       raw.PostalCode,
		Country:          raw.Country,
		Territory:        raw.Territory,
		ContactLastName:  raw.ContactLastName,
		ContactFirstName: raw.ContactFirstName,
		DealSize:         raw.DealSize,
	}, true
}

// cleanedKey identifies a cleaned row by its 25 normalized source columns.
func cleanedKey(r model.CleanedSalesRecord) string {
	return strings.Join([]string{
		fmt.Sprint(r.OrderNumber), fmt.Sprint(r.QuantityOrdered), r.PriceEach.String(),
		fmt.Sprint(r.OrderLineNumber), r.Sales.String(), r.OrderDate.String(), r.Status,
		fmt.Sprint(r.QtrID), fmt.Sprint(r.MonthID), fmt.Sprint(r.YearID),
		r.ProductLine, r.MSRP.String(), r.ProductCode, r.CustomerName, r.Phone,
		r.AddressLine1, r.AddressLine2, r.City, r.State, r.PostalCode,
		r.Country, r.Territory, r.ContactLastName, r.ContactFirstName, r.DealSize,
	}, "\x1f")
}

// checkKeys reports rows sharing an order number and line that are not exact
// duplicates. Such rows are kept.
func checkKeys(records []model.CleanedSalesRecord, cl *CleaningLog) {
	type orderLine struct{ order, line int }
	first := make(map[orderLine]int, len(records))
	for _, r := range records {
		k := orderLine{r.OrderNumber, r.OrderLineNumber}
		if line, seen := first[k]; seen {
			cl.issue(r.Line, "ORDERNUMBER", model.IssueKey,
				fmt.Sprintf("order %d line %d also on line %d", r.OrderNumber, r.OrderLineNumber, line))
			continue
		}
		first[k] = r.Line
	}
}
