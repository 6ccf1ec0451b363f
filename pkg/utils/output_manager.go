package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// OutputManager resolves run artifact paths under one output directory.
type OutputManager struct {
	BaseOutputDir string
}

// NewOutputManager creates a new output manager
func NewOutputManager(baseOutputDir string) *OutputManager {
	return &OutputManager{
		BaseOutputDir: baseOutputDir,
	}
}

// EnsureOutputDirExists ensures the base output directory exists
func (om *OutputManager) EnsureOutputDirExists() error {
	return os.MkdirAll(om.BaseOutputDir, 0755)
}

// Resolve returns name joined to the base directory. Absolute paths are
// returned unchanged.
func (om *OutputManager) Resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(om.BaseOutputDir, name)
}

// CreateDir creates a directory for grouped outputs and returns its path.
func (om *OutputManager) CreateDir(name string) (string, error) {
	dir := om.Resolve(name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return dir, nil
}

// GetOutputFilePath resolves a file path and makes sure its parent exists.
func (om *OutputManager) GetOutputFilePath(fileName string) (string, error) {
	path := om.Resolve(fileName)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return path, nil
}

// SiblingPath returns a path next to file with the extension replaced by suffix,
// e.g. sales_cleaned.csv -> sales_cleaned_cleaning_log.txt.
func SiblingPath(file, suffix string) string {
	stem := strings.TrimSuffix(file, filepath.Ext(file))
	return stem + suffix
}

// GetFileType determines the file type based on extension
func GetFileType(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return "csv"
	case ".json":
		return "json"
	case ".xlsx", ".xls":
		return "excel"
	case ".txt":
		return "text"
	case ".db", ".sqlite":
		return "database"
	default:
		return "unknown"
	}
}

// GetFileSize returns the size of a file in bytes
func GetFileSize(filePath string) (int64, error) {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return 0, err
	}
	return fileInfo.Size(), nil
}
