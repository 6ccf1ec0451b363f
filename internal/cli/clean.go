package cli

import (
	"github.com/spf13/cobra"

	"sales-pipeline/internal/config"
	"sales-pipeline/internal/pipeline"
)

var (
	cleanOutput      string
	cleanNumericFill string
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean the raw CSV and write the cleaned file with its log",
	Long: `Load and clean the raw sales CSV, then write the cleaned records and
the cleaning log. No database, star schema or workbook is produced.

Example:
  salespipe clean --input sales_data_sample.csv
  salespipe clean --numeric-fill zero --out sales_clean.csv`,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().StringVar(&cleanOutput, "out", "",
		"cleaned CSV path, relative to the output directory")
	cleanCmd.Flags().StringVar(&cleanNumericFill, "numeric-fill", "",
		"numeric imputation: "+config.FillMedian+" or "+config.FillZero)
}

func runClean(cmd *cobra.Command, args []string) error {
	if cleanOutput != "" {
		cfg.Export.CleanedCSV = cleanOutput
	}
	if cleanNumericFill != "" {
		cfg.Clean.NumericFill = cleanNumericFill
	}

	ctx, cancel := signalContext()
	defer cancel()

	cl, res, err := pipeline.CleanFile(ctx, cfg)
	if err != nil {
		return err
	}

	cmd.Print(cl.String())
	cmd.Printf("Wrote %d rows to %s\n", res.RecordCount, res.Path)
	return nil
}
