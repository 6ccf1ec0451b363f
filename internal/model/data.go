package model

import "time"

// Table is a named, column-ordered result set. Rows hold Go values
// (string, int, int64, float64, bool, decimal.Decimal, Date) in column order.
type Table struct {
	Name    string          `json:"name"`
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

// Len returns the number of rows.
func (t Table) Len() int {
	return len(t.Rows)
}

// ColumnIndex returns the position of a column, or -1.
func (t Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns every value of one column, or nil if the column is unknown.
func (t Table) Column(name string) []interface{} {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil
	}
	out := make([]interface{}, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out
}

// ExportResult represents the result of one export target
type ExportResult struct {
	Type        string    `json:"type"` // "workbook", "csv", "cleaned_csv", "database", "report"
	Path        string    `json:"path"`
	Tables      int       `json:"tables,omitempty"`
	RecordCount int       `json:"record_count"`
	SizeBytes   int64     `json:"size_bytes,omitempty"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	Warnings    []string  `json:"warnings,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
