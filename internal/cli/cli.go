// Package cli implements the command-line interface for salespipe.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sales-pipeline/internal/config"
	"sales-pipeline/internal/logging"
	"sales-pipeline/internal/store"
	"sales-pipeline/pkg/version"
)

var (
	// Global flags
	cfgFile   string
	input     string
	outputDir string
	logLevel  string

	// Global config
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "salespipe",
		Short: "Batch pipeline from a raw sales CSV to a star schema",
		Long: `salespipe loads a raw sales order CSV, cleans it, loads the cleaned
rows into an embedded SQLite database, builds a star schema of seven
tables and exports it as a workbook and as one CSV file per table.

Aggregated totals are checked against the fact table and against
independent SQL queries before anything is exported.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./salespipe.yaml)")
	rootCmd.PersistentFlags().StringVar(&input, "input", "",
		"raw sales CSV file")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output-dir", "",
		"directory for every output artifact")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(queriesCmd)
	rootCmd.AddCommand(issuesCmd)
}

func initConfig() error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	// Override with CLI flags
	if input != "" {
		cfg.Input = input
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	// Reinitialize logger with config
	logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})
	logging.Debug().
		Str("input", cfg.Input).
		Str("output_dir", cfg.OutputDir).
		Msg("Configuration loaded")

	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logging.Info().
				Str("signal", sig.String()).
				Msg("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(version.Info())
	},
}

var queriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "List the SQL query catalog",
	Long: `List every named query that 'salespipe query' can run against the
cleaned sales data.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("Available queries:")
		cmd.Println()
		for _, q := range store.Catalog() {
			cmd.Printf("  %-28s %s\n", q.Name, q.Description)
		}
		cmd.Println()
		cmd.Println("Use 'salespipe query <name>' to run one.")
	},
}
