package utils

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestIsMissing(t *testing.T) {
	for _, s := range []string{"", "  ", "NA", "n/a", "NaN", "null", "None"} {
		assert.True(t, IsMissing(s), "%q", s)
	}
	for _, s := range []string{"0", "Nantes", "NAN-1"} {
		assert.False(t, IsMissing(s), "%q", s)
	}
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"95.70", "95.7", true},
		{" 1,234.5 ", "1234.5", true},
		{"-3", "-3", true},
		{"", "0", false},
		{"NA", "0", false},
		{"abc", "0", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDecimal(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"42", 42, true},
		{"41.6", 42, true},
		{"10100.0", 10100, true},
		{"x", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseInt(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMedian(t *testing.T) {
	d := func(vals ...int64) []decimal.Decimal {
		out := make([]decimal.Decimal, len(vals))
		for i, v := range vals {
			out[i] = decimal.NewFromInt(v)
		}
		return out
	}

	assert.True(t, Median(nil).IsZero())
	assert.Equal(t, "100", Median(d(150, 50, 100)).String())
	assert.Equal(t, "125", Median(d(150, 100)).String())

	values := d(3, 1, 2)
	Median(values)
	assert.Equal(t, d(3, 1, 2), values, "input is not reordered")
}

func TestNumeric(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want float64
		ok   bool
	}{
		{"int", 3, 3, true},
		{"int64", int64(7), 7, true},
		{"float", 2.5, 2.5, true},
		{"decimal", decimal.RequireFromString("10.25"), 10.25, true},
		{"string", "10", 0, false},
		{"nil", nil, 0, false},
		{"bool", true, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Numeric(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{"nil", nil, ""},
		{"string", "Nantes", "Nantes"},
		{"int", 12, "12"},
		{"int64", int64(-4), "-4"},
		{"float", 0.1, "0.1"},
		{"bool", true, "true"},
		{"decimal", decimal.RequireFromString("250"), "250.00"},
		{"time", time.Date(2003, time.May, 7, 13, 0, 0, 0, time.UTC), "2003-05-07"},
		{"int8", int8(3), "3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.in))
		})
	}
}

func TestNormalizeSQLValue(t *testing.T) {
	assert.Equal(t, "Alpha", NormalizeSQLValue([]byte("Alpha")))
	assert.Equal(t, "2003-05-07", NormalizeSQLValue(time.Date(2003, time.May, 7, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, int64(3), NormalizeSQLValue(int64(3)))
}
