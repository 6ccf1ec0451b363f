package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInputNotFound is returned when the source file does not exist.
	ErrInputNotFound = errors.New("input file not found")
	// ErrMalformedInput is returned for a missing header, missing required
	// columns, or a file without data rows.
	ErrMalformedInput = errors.New("malformed input")
	// ErrAggregationMismatch means a derived table disagrees with its source.
	ErrAggregationMismatch = errors.New("aggregation mismatch")
	// ErrExportFailed wraps every failure to write an output artifact.
	ErrExportFailed = errors.New("export failed")
)

// ExportError reports the artifact path that could not be written.
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() []error {
	return []error{ErrExportFailed, e.Err}
}

// Mismatch is one disagreeing (table, key, measure) triple.
type Mismatch struct {
	Table    string
	Key      string
	Measure  string
	Expected string
	Actual   string
}

// MismatchError lists every disagreement found by Verify or Reconcile.
type MismatchError struct {
	Source     string // "fact" or "sql"
	Mismatches []Mismatch
}

func (e *MismatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d totals disagree with %s", len(e.Mismatches), e.Source)
	for i, m := range e.Mismatches {
		if i == 5 {
			fmt.Fprintf(&b, "; and %d more", len(e.Mismatches)-i)
			break
		}
		fmt.Fprintf(&b, "; %s[%s].%s expected %s got %s", m.Table, m.Key, m.Measure, m.Expected, m.Actual)
	}
	return b.String()
}

func (e *MismatchError) Unwrap() error {
	return ErrAggregationMismatch
}
