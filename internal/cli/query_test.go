package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-pipeline/internal/model"
)

func TestPrintTable(t *testing.T) {
	table := model.Table{
		Name:    "country_totals",
		Columns: []string{"dim_key", "order_lines", "total_sales"},
		Rows: [][]interface{}{
			{"France", int64(2), decimal.RequireFromString("250")},
			{"USA", int64(1), 50.0},
		},
	}

	tests := []struct {
		name  string
		limit int
		lines int
		tail  string
	}{
		{"all rows", 0, 4, "(2 of 2 rows)"},
		{"limited", 1, 3, "(1 of 2 rows)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			cmd := &cobra.Command{}
			cmd.SetOut(&buf)

			require.NoError(t, printTable(cmd, table, tt.limit))

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			require.Len(t, lines, tt.lines)
			assert.Equal(t, []string{"dim_key", "order_lines", "total_sales"}, strings.Fields(lines[0]))
			assert.Equal(t, []string{"France", "2", "250.00"}, strings.Fields(lines[1]))
			assert.Equal(t, tt.tail, lines[len(lines)-1])
		})
	}
}

func TestQueriesCommandListsCatalog(t *testing.T) {
	var buf bytes.Buffer
	queriesCmd.SetOut(&buf)
	defer queriesCmd.SetOut(nil)

	queriesCmd.Run(queriesCmd, nil)

	out := buf.String()
	assert.Contains(t, out, "customer_rank_by_country")
	assert.Contains(t, out, "country_market_share")
}
