package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/jszwec/csvutil"
	"golang.org/x/text/encoding/charmap"

	"sales-pipeline/internal/logging"
	"sales-pipeline/internal/model"
)

// ------------------- Loading -------------------

// LoadStats summarizes one read of the source file.
type LoadStats struct {
	Path          string           `json:"path"`
	Encoding      string           `json:"encoding"`
	Columns       int              `json:"columns"`
	RowsRead      int              `json:"rows_read"`
	MalformedRows int              `json:"malformed_rows"`
	Issues        []model.RowIssue `json:"issues,omitempty"`
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LoadSales reads the raw sales CSV. Rows whose field count differs from the
// header are skipped and reported; every other row is kept verbatim.
func LoadSales(ctx context.Context, path string) ([]model.RawSalesRecord, LoadStats, error) {
	log := logging.FromContext(ctx)
	stats := LoadStats{Path: path, Encoding: "utf-8"}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, stats, fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return nil, stats, fmt.Errorf("failed to read %s: %w", path, err)
	}

	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
		if err != nil {
			return nil, stats, fmt.Errorf("%w: %s: cannot decode text: %v", ErrMalformedInput, path, err)
		}
		data = decoded
		stats.Encoding = "latin-1"
	}

	records, err := decodeSales(ctx, bytes.NewReader(data), &stats)
	if err != nil {
		return nil, stats, fmt.Errorf("%s: %w", path, err)
	}

	log.Info().
		Str("path", path).
		Str("encoding", stats.Encoding).
		Int("rows", stats.RowsRead).
		Int("malformed", stats.MalformedRows).
		Msg("Loaded sales file")
	return records, stats, nil
}

func decodeSales(ctx context.Context, r io.Reader, stats *LoadStats) ([]model.RawSalesRecord, error) {
	log := logging.FromContext(ctx)

	csvReader := csv.NewReader(r)
	csvReader.LazyQuotes = true
	csvReader.FieldsPerRecord = -1

	header, err := csvReader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: missing header", ErrMalformedInput)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read header: %v", ErrMalformedInput, err)
	}

	header = NormalizeHeader(header)
	if missing := missingColumns(header); len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %s", ErrMalformedInput, strings.Join(missing, ", "))
	}
	stats.Columns = len(header)

	dec, err := csvutil.NewDecoder(csvReader, header...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	var records []model.RawSalesRecord
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var rec model.RawSalesRecord
		err := dec.Decode(&rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedInput, perr.Line, perr.Err)
			}
			if errors.Is(err, csvutil.ErrFieldCount) {
				line, _ := csvReader.FieldPos(0)
				stats.MalformedRows++
				stats.Issues = append(stats.Issues, model.RowIssue{
					Line:  line,
					Kind:  model.IssueMalformed,
					Value: fmt.Sprintf("%d fields, want %d", len(dec.Record()), len(header)),
				})
				log.Debug().Int("line", line).Msg("Skipping row with wrong field count")
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
		}

		rec.Line, _ = csvReader.FieldPos(0)
		records = append(records, rec)
	}

	stats.RowsRead = len(records)
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no data rows", ErrMalformedInput)
	}
	return records, nil
}

// NormalizeHeader trims whitespace, quotes and byte-order marks from column
// names and upper-cases them.
func NormalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimPrefix(h, "\ufeff")
		h = strings.ReplaceAll(h, `"`, "")
		out[i] = strings.ToUpper(strings.TrimSpace(h))
	}
	return out
}

func missingColumns(header []string) []string {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	var missing []string
	for _, col := range model.RequiredColumns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	return missing
}
