package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"sales-pipeline/internal/logging"
	"sales-pipeline/internal/model"
	"sales-pipeline/internal/pipeline"
)

var (
	runExclude    []string
	runTolerance  float64
	runNoWorkbook bool
	runNoCSV      bool
	runSummary    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the whole pipeline and export the star schema",
	Long: `Run every stage in order: load, clean, write the cleaned CSV, load
the SQL store, build and verify the star schema, reconcile it against
SQL, summarize and export. A run report is written to the output
directory even when the run fails.

Example:
  salespipe run --input sales_data_sample.csv --output-dir output
  salespipe run --exclude-status Cancelled --exclude-status "On Hold"
  salespipe run --no-workbook
  salespipe run --summary`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringSliceVar(&runExclude, "exclude-status", nil,
		"order status to leave out of the fact table (repeatable)")
	runCmd.Flags().Float64Var(&runTolerance, "tolerance", 0,
		"allowed difference when reconciling totals against SQL")
	runCmd.Flags().BoolVar(&runNoWorkbook, "no-workbook", false,
		"skip the xlsx workbook")
	runCmd.Flags().BoolVar(&runNoCSV, "no-csv", false,
		"skip the per-table CSV files")
	runCmd.Flags().BoolVar(&runSummary, "summary", false,
		"print the exploratory summary after the run")
}

func runRun(cmd *cobra.Command, args []string) error {
	// Override config with CLI flags
	if cmd.Flags().Changed("exclude-status") {
		cfg.Fact.ExcludedStatuses = runExclude
	}
	if runTolerance > 0 {
		cfg.Tolerance = runTolerance
	}
	if runNoWorkbook {
		cfg.Export.WriteWorkbook = false
	}
	if runNoCSV {
		cfg.Export.WriteCSV = false
	}

	ctx, cancel := signalContext()
	defer cancel()

	report, err := pipeline.Run(ctx, cfg)
	if err != nil {
		var mErr *pipeline.MismatchError
		if errors.As(err, &mErr) {
			for _, m := range mErr.Mismatches {
				logging.Error().
					Str("table", m.Table).
					Str("key", m.Key).
					Str("measure", m.Measure).
					Str("expected", m.Expected).
					Str("actual", m.Actual).
					Msg("Totals disagree")
			}
		}
		return err
	}

	cmd.Printf("Run %s completed in %d ms\n", report.RunID, report.DurationMS)
	cmd.Printf("  rows read: %d, cleaned: %d, dropped: %d, duplicates: %d, imputed: %d\n",
		report.RowsRead, report.RowsCleaned, report.RowsDropped, report.Duplicates, report.Imputations)
	for _, t := range report.Tables {
		cmd.Printf("  %-20s %6d rows\n", t.Name, t.Rows)
	}
	for _, e := range report.Exports {
		cmd.Printf("  wrote %-12s %s\n", e.Type, e.Path)
	}
	for _, w := range report.Warnings {
		cmd.Printf("  warning: %s\n", w)
	}

	if runSummary && report.Summary != nil {
		return printSummary(cmd, report.Summary)
	}
	return nil
}

func printSummary(cmd *cobra.Command, s *pipeline.Summary) error {
	cmd.Println()
	cmd.Printf("Sales: %d lines, total %s, mean %s, median %s, std dev %.2f\n",
		s.Sales.Count, s.Sales.Total.StringFixed(2), s.Sales.Mean.StringFixed(2),
		s.Sales.Median.StringFixed(2), s.Sales.StdDev)

	tables := []model.Table{
		pipeline.BreakdownTable("by_year", s.ByYear),
		pipeline.BreakdownTable("by_month", s.ByMonth),
		pipeline.BreakdownTable("by_product_line", s.ByProductLine),
		pipeline.BreakdownTable("by_deal_size", s.ByDealSize),
		pipeline.BreakdownTable("top_customers", s.TopCustomers),
		pipeline.CorrelationTable(s.Correlations),
	}
	for _, t := range tables {
		cmd.Println()
		cmd.Println(t.Name)
		if err := printTable(cmd, t, 0); err != nil {
			return err
		}
	}
	return nil
}
