package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputManagerPaths(t *testing.T) {
	base := filepath.Join(t.TempDir(), "out")
	om := NewOutputManager(base)

	require.NoError(t, om.EnsureOutputDirExists())
	assert.DirExists(t, base)

	assert.Equal(t, filepath.Join(base, "report.json"), om.Resolve("report.json"))
	abs := filepath.Join(t.TempDir(), "elsewhere.db")
	assert.Equal(t, abs, om.Resolve(abs))

	dir, err := om.CreateDir("csv")
	require.NoError(t, err)
	assert.DirExists(t, dir)

	path, err := om.GetOutputFilePath(filepath.Join("nested", "sales.xlsx"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "nested", "sales.xlsx"), path)
	assert.DirExists(t, filepath.Join(base, "nested"))
}

func TestSiblingPath(t *testing.T) {
	assert.Equal(t, "out/sales_cleaned_cleaning_log.txt", SiblingPath("out/sales_cleaned.csv", "_cleaning_log.txt"))
	assert.Equal(t, "data_log.txt", SiblingPath("data", "_log.txt"))
}

func TestGetFileType(t *testing.T) {
	tests := map[string]string{
		"a.csv":    "csv",
		"r.JSON":   "json",
		"s.xlsx":   "excel",
		"log.txt":  "text",
		"sales.db": "database",
		":memory:": "unknown",
	}
	for name, want := range tests {
		assert.Equal(t, want, GetFileType(name), name)
	}
}

func TestGetFileSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	size, err := GetFileSize(path)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	_, err = GetFileSize(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
