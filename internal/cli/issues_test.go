package cli

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-pipeline/internal/model"
	"sales-pipeline/internal/store"
)

func TestShowIssues(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sales.db")

	st, err := store.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, st.StartRun(ctx, "run-1", "sales.csv"))
	require.NoError(t, st.SaveIssues(ctx, "run-1", []model.RowIssue{
		{Line: 7, Column: "ORDERDATE", Kind: model.IssueDate, Value: "13/45/2003"},
		{Line: 3, Kind: model.IssueDuplicate, Value: "duplicate of line 2"},
	}))
	require.NoError(t, st.FinishRun(ctx, "run-1", errors.New("totals disagree")))
	require.NoError(t, st.Close())

	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	require.NoError(t, showIssues(ctx, cmd, path, "run-1"))

	out := buf.String()
	assert.Contains(t, out, "Run run-1: failed")
	assert.Contains(t, out, "error:   totals disagree")
	assert.Contains(t, out, "(2 of 2 rows)")

	lines := strings.Split(out, "\n")
	var rows []string
	for _, l := range lines {
		if f := strings.Fields(l); len(f) > 1 && (f[0] == "3" || f[0] == "7") {
			rows = append(rows, f[0]+" "+f[1])
		}
	}
	assert.Equal(t, []string{"3 duplicate", "7 date"}, rows)
}

func TestShowIssuesUnknownRun(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sales.db")
	st, err := store.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	cmd := &cobra.Command{}
	cmd.SetOut(&bytes.Buffer{})
	assert.Error(t, showIssues(ctx, cmd, path, "missing"))
	assert.Error(t, showIssues(ctx, cmd, filepath.Join(t.TempDir(), "none.db"), "run-1"))
}
