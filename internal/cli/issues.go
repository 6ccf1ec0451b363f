package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"sales-pipeline/internal/logging"
	"sales-pipeline/internal/model"
	"sales-pipeline/internal/store"
	"sales-pipeline/pkg/utils"
)

var issuesDatabase string

var issuesCmd = &cobra.Command{
	Use:   "issues <run-id>",
	Short: "Show the status and row issues of a past run",
	Long: `Read the run history kept in the SQLite file of a previous
'salespipe run' and print the run status with every row-level issue
found while loading and cleaning. The run id is printed by 'salespipe
run' and stored in report.json.

Example:
  salespipe issues 6f1c2a3e-0b7d-4b9e-9a51-2f4f0c6d8e10
  salespipe issues 6f1c2a3e-0b7d-4b9e-9a51-2f4f0c6d8e10 --database out/sales_data.db`,
	Args: cobra.ExactArgs(1),
	RunE: runIssues,
}

func init() {
	issuesCmd.Flags().StringVar(&issuesDatabase, "database", "",
		"SQLite file written by the run (default: export.database under the output directory)")
}

func runIssues(cmd *cobra.Command, args []string) error {
	path := issuesDatabase
	if path == "" {
		path = utils.NewOutputManager(cfg.OutputDir).Resolve(cfg.Export.Database)
	}

	ctx, cancel := signalContext()
	defer cancel()
	return showIssues(ctx, cmd, path, args[0])
}

func showIssues(ctx context.Context, cmd *cobra.Command, path, runID string) error {
	st, err := store.OpenExisting(ctx, path)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status == store.RunFailed {
		logging.Warn().Str("run_id", run.ID).Str("error", run.Message).Msg("Run failed")
	}

	cmd.Printf("Run %s: %s\n", run.ID, run.Status)
	cmd.Printf("  input:   %s\n", run.Input)
	cmd.Printf("  started: %s\n", run.CreatedAt.Format("2006-01-02 15:04:05"))
	if run.Message != "" {
		cmd.Printf("  error:   %s\n", run.Message)
	}
	cmd.Println()

	issues, err := st.ListIssues(ctx, runID)
	if err != nil {
		return err
	}
	return printTable(cmd, issueTable(issues), 0)
}

func issueTable(issues []model.RowIssue) model.Table {
	t := model.Table{Name: "run_issues", Columns: []string{"line", "kind", "column", "value"}}
	for _, is := range issues {
		t.Rows = append(t.Rows, []interface{}{is.Line, is.Kind, is.Column, fmt.Sprintf("%q", is.Value)})
	}
	return t
}
