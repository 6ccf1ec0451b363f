package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sales-pipeline/internal/model"
	"sales-pipeline/internal/pipeline"
	"sales-pipeline/internal/store"
	"sales-pipeline/pkg/utils"
)

var (
	queryCountry     string
	queryProductLine string
	queryYear        int
	queryLimit       int
	queryExplain     bool
	queryDatabase    string
)

var queryCmd = &cobra.Command{
	Use:   "query <name>",
	Short: "Run one catalog query against the cleaned sales data",
	Long: `Load and clean the raw CSV into a fresh SQL store and print the
result of one named query. Use 'salespipe queries' to list the names.

Example:
  salespipe query customer_rank_by_country --country France
  salespipe query running_monthly_totals --year 2004 --limit 12
  salespipe query country_market_share --explain`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryCountry, "country", "",
		"only rows for this country")
	queryCmd.Flags().StringVar(&queryProductLine, "product-line", "",
		"only rows for this product line")
	queryCmd.Flags().IntVar(&queryYear, "year", 0,
		"only rows for this year")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 0,
		"print at most this many rows (0 = all)")
	queryCmd.Flags().BoolVar(&queryExplain, "explain", false,
		"print the query plan instead of the rows")
	queryCmd.Flags().StringVar(&queryDatabase, "database", store.MemoryPath,
		"SQLite file to load into (default: in memory)")
}

func runQuery(cmd *cobra.Command, args []string) error {
	name := args[0]
	if _, ok := store.Lookup(name); !ok {
		return fmt.Errorf("unknown query %q; run 'salespipe queries' for the list", name)
	}

	ctx, cancel := signalContext()
	defer cancel()

	st, err := pipeline.OpenStore(ctx, cfg, queryDatabase)
	if err != nil {
		return err
	}
	defer st.Close()

	if queryExplain {
		plan, err := st.Explain(ctx, name)
		if err != nil {
			return err
		}
		for _, line := range plan {
			cmd.Println(line)
		}
		return nil
	}

	table, err := st.Run(ctx, name, store.QueryFilter{
		Country:     queryCountry,
		ProductLine: queryProductLine,
		Year:        queryYear,
	})
	if err != nil {
		return err
	}
	return printTable(cmd, table, queryLimit)
}

func printTable(cmd *cobra.Command, t model.Table, limit int) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(t.Columns, "\t"))

	rows := t.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	cells := make([]string, len(t.Columns))
	for _, row := range rows {
		for i, v := range row {
			cells[i] = utils.FormatValue(v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	cmd.Printf("(%d of %d rows)\n", len(rows), t.Len())
	return nil
}
