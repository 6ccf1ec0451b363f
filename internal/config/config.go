// Package config handles configuration management for salespipe.
// Configuration is loaded from a yaml file and CLI flags (no environment variables).
// CLI flags take precedence over config file values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Numeric imputation strategies.
const (
	FillMedian = "median"
	FillZero   = "zero"
)

// Config holds all configuration for salespipe.
type Config struct {
	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=trace debug info warn error"`

	// Input is the raw sales CSV.
	Input string `mapstructure:"input" validate:"required"`

	// OutputDir is the directory every relative export path is resolved against.
	OutputDir string `mapstructure:"output_dir" validate:"required"`

	Clean  CleanConfig  `mapstructure:"clean"`
	Fact   FactConfig   `mapstructure:"fact"`
	Export ExportConfig `mapstructure:"export"`

	// Tolerance is the allowed absolute difference when aggregated totals
	// are reconciled against SQL.
	Tolerance float64 `mapstructure:"tolerance" validate:"gte=0"`
}

// CleanConfig holds data-cleaning options.
type CleanConfig struct {
	// NumericFill is "median" or "zero".
	NumericFill string `mapstructure:"numeric_fill" validate:"oneof=median zero"`

	// CategoricalFill replaces missing text cells.
	CategoricalFill string `mapstructure:"categorical_fill" validate:"required"`

	// DateLayouts are tried in order when parsing ORDERDATE.
	DateLayouts []string `mapstructure:"date_layouts" validate:"min=1,dive,required"`
}

// FactConfig controls which cleaned rows enter sales_fact.
type FactConfig struct {
	ExcludedStatuses []string `mapstructure:"excluded_statuses"`
}

// ExportConfig names the output artifacts.
type ExportConfig struct {
	Workbook      string `mapstructure:"workbook" validate:"required_if=WriteWorkbook true"`
	CSVDir        string `mapstructure:"csv_dir" validate:"required_if=WriteCSV true"`
	CleanedCSV    string `mapstructure:"cleaned_csv" validate:"required"`
	Database      string `mapstructure:"database"`
	Report        string `mapstructure:"report"`
	WriteWorkbook bool   `mapstructure:"write_workbook"`
	WriteCSV      bool   `mapstructure:"write_csv"`
}

// DefaultDateLayouts are the ORDERDATE formats seen in the sales extract.
var DefaultDateLayouts = []string{
	"1/2/2006 15:04",
	"1/2/2006",
	"2006-01-02",
	"2006-01-02 15:04:05",
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		Input:     "sales_data_sample.csv",
		OutputDir: "output",
		Clean: CleanConfig{
			NumericFill:     FillMedian,
			CategoricalFill: "Unknown",
			DateLayouts:     append([]string(nil), DefaultDateLayouts...),
		},
		Fact: FactConfig{
			ExcludedStatuses: []string{"Cancelled"},
		},
		Export: ExportConfig{
			Workbook:      "sales_star_schema.xlsx",
			CSVDir:        "csv",
			CleanedCSV:    "sales_data_cleaned.csv",
			Database:      "sales_data.db",
			Report:        "report.json",
			WriteWorkbook: true,
			WriteCSV:      true,
		},
		Tolerance: 0.01,
	}
}

// Load reads configuration from config files.
// Config file locations (in order of precedence):
// 1. Path specified by configFile parameter
// 2. ./salespipe.yaml
// 3. ~/.config/salespipe/salespipe.yaml
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("salespipe")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "salespipe"))
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := DefaultConfig()

	// Lists in the file replace the default lists instead of overlaying them.
	replaceSlices := func(dc *mapstructure.DecoderConfig) { dc.ZeroFields = true }
	if err := v.Unmarshal(cfg, replaceSlices); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	return cfg, nil
}

var validate = newValidator()

// newValidator reports fields by their configuration key.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func formatFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "required_if":
		return fmt.Sprintf("%s is required when %s is enabled", field, strings.Fields(fe.Param())[0])
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// ValidateRun checks configuration required for the run command.
func (c *Config) ValidateRun() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Export.Database == "" {
		return fmt.Errorf("export.database is required")
	}
	if !c.Export.WriteWorkbook && !c.Export.WriteCSV {
		return fmt.Errorf("at least one of export.write_workbook or export.write_csv must be enabled")
	}
	return nil
}
