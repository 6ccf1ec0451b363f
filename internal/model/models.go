package model

import (
	"database/sql/driver"
	"time"

	"github.com/shopspring/decimal"
)

// RequiredColumns is the fixed 25-column schema of the raw sales file, in file order.
var RequiredColumns = []string{
	"ORDERNUMBER", "QUANTITYORDERED", "PRICEEACH", "ORDERLINENUMBER", "SALES",
	"ORDERDATE", "STATUS", "QTR_ID", "MONTH_ID", "YEAR_ID",
	"PRODUCTLINE", "MSRP", "PRODUCTCODE", "CUSTOMERNAME", "PHONE",
	"ADDRESSLINE1", "ADDRESSLINE2", "CITY", "STATE", "POSTALCODE",
	"COUNTRY", "TERRITORY", "CONTACTLASTNAME", "CONTACTFIRSTNAME", "DEALSIZE",
}

// RawSalesRecord is one row of the source file exactly as read. Every field is
// kept as text so that empty cells stay observable.
type RawSalesRecord struct {
	Line int `csv:"-"` // 1-based line in the source file

	OrderNumber      string `csv:"ORDERNUMBER"`
	QuantityOrdered  string `csv:"QUANTITYORDERED"`
	PriceEach        string `csv:"PRICEEACH"`
	OrderLineNumber  string `csv:"ORDERLINENUMBER"`
	Sales            string `csv:"SALES"`
	OrderDate        string `csv:"ORDERDATE"`
	Status           string `csv:"STATUS"`
	QtrID            string `csv:"QTR_ID"`
	MonthID          string `csv:"MONTH_ID"`
	YearID           string `csv:"YEAR_ID"`
	ProductLine      string `csv:"PRODUCTLINE"`
	MSRP             string `csv:"MSRP"`
	ProductCode      string `csv:"PRODUCTCODE"`
	CustomerName     string `csv:"CUSTOMERNAME"`
	Phone            string `csv:"PHONE"`
	AddressLine1     string `csv:"ADDRESSLINE1"`
	AddressLine2     string `csv:"ADDRESSLINE2"`
	City             string `csv:"CITY"`
	State            string `csv:"STATE"`
	PostalCode       string `csv:"POSTALCODE"`
	Country          string `csv:"COUNTRY"`
	Territory        string `csv:"TERRITORY"`
	ContactLastName  string `csv:"CONTACTLASTNAME"`
	ContactFirstName string `csv:"CONTACTFIRSTNAME"`
	DealSize         string `csv:"DEALSIZE"`
}

// Values returns the 25 raw cells in RequiredColumns order.
func (r RawSalesRecord) Values() []string {
	return []string{
		r.OrderNumber, r.QuantityOrdered, r.PriceEach, r.OrderLineNumber, r.Sales,
		r.OrderDate, r.Status, r.QtrID, r.MonthID, r.YearID,
		r.ProductLine, r.MSRP, r.ProductCode, r.CustomerName, r.Phone,
		r.AddressLine1, r.AddressLine2, r.City, r.State, r.PostalCode,
		r.Country, r.Territory, r.ContactLastName, r.ContactFirstName, r.DealSize,
	}
}

// Field returns a pointer to the raw cell for a column name, or nil.
func (r *RawSalesRecord) Field(column string) *string {
	switch column {
	case "ORDERNUMBER":
		return &r.OrderNumber
	case "QUANTITYORDERED":
		return &r.QuantityOrdered
	case "PRICEEACH":
		return &r.PriceEach
	case "ORDERLINENUMBER":
		return &r.OrderLineNumber
	case "SALES":
		return &r.Sales
	case "ORDERDATE":
		return &r.OrderDate
	case "STATUS":
		return &r.Status
	case "QTR_ID":
		return &r.QtrID
	case "MONTH_ID":
		return &r.MonthID
	case "YEAR_ID":
		return &r.YearID
	case "PRODUCTLINE":
		return &r.ProductLine
	case "MSRP":
		return &r.MSRP
	case "PRODUCTCODE":
		return &r.ProductCode
	case "CUSTOMERNAME":
		return &r.CustomerName
	case "PHONE":
		return &r.Phone
	case "ADDRESSLINE1":
		return &r.AddressLine1
	case "ADDRESSLINE2":
		return &r.AddressLine2
	case "CITY":
		return &r.City
	case "STATE":
		return &r.State
	case "POSTALCODE":
		return &r.PostalCode
	case "COUNTRY":
		return &r.Country
	case "TERRITORY":
		return &r.Territory
	case "CONTACTLASTNAME":
		return &r.ContactLastName
	case "CONTACTFIRSTNAME":
		return &r.ContactFirstName
	case "DEALSIZE":
		return &r.DealSize
	}
	return nil
}

// CleanedSalesRecord is a RawSalesRecord with typed values, no missing cells
// and the derived calendar and pricing fields appended.
type CleanedSalesRecord struct {
	Line int `csv:"-" db:"-"` // source line of the raw row

	OrderNumber      int             `csv:"ORDERNUMBER" db:"ORDERNUMBER"`
	QuantityOrdered  int             `csv:"QUANTITYORDERED" db:"QUANTITYORDERED"`
	PriceEach        decimal.Decimal `csv:"PRICEEACH" db:"PRICEEACH"`
	OrderLineNumber  int             `csv:"ORDERLINENUMBER" db:"ORDERLINENUMBER"`
	Sales            decimal.Decimal `csv:"SALES" db:"SALES"`
	OrderDate        Date            `csv:"ORDERDATE" db:"ORDERDATE"`
	Status           string          `csv:"STATUS" db:"STATUS"`
	QtrID            int             `csv:"QTR_ID" db:"QTR_ID"`
	MonthID          int             `csv:"MONTH_ID" db:"MONTH_ID"`
	YearID           int             `csv:"YEAR_ID" db:"YEAR_ID"`
	ProductLine      string          `csv:"PRODUCTLINE" db:"PRODUCTLINE"`
	MSRP             decimal.Decimal `csv:"MSRP" db:"MSRP"`
	ProductCode      string          `csv:"PRODUCTCODE" db:"PRODUCTCODE"`
	CustomerName     string          `csv:"CUSTOMERNAME" db:"CUSTOMERNAME"`
	Phone            string          `csv:"PHONE" db:"PHONE"`
	AddressLine1     string          `csv:"ADDRESSLINE1" db:"ADDRESSLINE1"`
	AddressLine2     string          `csv:"ADDRESSLINE2" db:"ADDRESSLINE2"`
	City             string          `csv:"CITY" db:"CITY"`
	State            string          `csv:"STATE" db:"STATE"`
	PostalCode       string          `csv:"POSTALCODE" db:"POSTALCODE"`
	Country          string          `csv:"COUNTRY" db:"COUNTRY"`
	Territory        string          `csv:"TERRITORY" db:"TERRITORY"`
	ContactLastName  string          `csv:"CONTACTLASTNAME" db:"CONTACTLASTNAME"`
	ContactFirstName string          `csv:"CONTACTFIRSTNAME" db:"CONTACTFIRSTNAME"`
	DealSize         string          `csv:"DEALSIZE" db:"DEALSIZE"`

	Year             int             `csv:"YEAR" db:"YEAR"`
	Month            int             `csv:"MONTH" db:"MONTH"`
	Quarter          int             `csv:"QUARTER" db:"QUARTER"`
	DayOfWeek        int             `csv:"DAY_OF_WEEK" db:"DAY_OF_WEEK"` // 0 = Monday
	DayName          string          `csv:"DAY_NAME" db:"DAY_NAME"`
	IsWeekend        bool            `csv:"IS_WEEKEND" db:"IS_WEEKEND"`
	Margin           decimal.Decimal `csv:"MARGIN" db:"MARGIN"`
	MarginPercentage decimal.Decimal `csv:"MARGIN_PERCENTAGE" db:"MARGIN_PERCENTAGE"`
	SalesCategory    string          `csv:"SALES_CATEGORY" db:"SALES_CATEGORY"`
}

// Date is a calendar day. It marshals as YYYY-MM-DD in both CSV and SQL.
type Date struct {
	time.Time
}

// DateLayout is the canonical textual form of a Date.
const DateLayout = "2006-01-02"

// NewDate truncates t to its calendar day in UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	t, err := time.Parse(DateLayout, string(b))
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// Value implements driver.Valuer so dates are stored as YYYY-MM-DD text.
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

// Row issue kinds recorded while loading and cleaning.
const (
	IssueMalformed = "malformed"
	IssueDuplicate = "duplicate"
	IssueNumeric   = "numeric"
	IssueDate      = "date"
	IssueKey       = "key"
)

// RowIssue is a row-level data-quality finding. It never aborts a run.
type RowIssue struct {
	Line   int    `json:"line" db:"line"`
	Column string `json:"column,omitempty" db:"column_name"`
	Kind   string `json:"kind" db:"kind"`
	Value  string `json:"value,omitempty" db:"value"`
}
