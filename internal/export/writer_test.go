package export

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"overdose-pipeline/pkg/logging"
)

type yearRow struct {
	Year  int `json:"year" csv:"year"`
	Cases int `json:"cases" csv:"cases"`
}

func TestParseFormats(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    []string
		wantErr bool
	}{
		{name: "both", in: []string{"json", "csv"}, want: []string{"json", "csv"}},
		{name: "normalizes and dedupes", in: []string{" JSON", "json", "csv"}, want: []string{"json", "csv"}},
		{name: "unknown", in: []string{"xml"}, wantErr: true},
		{name: "empty", in: nil, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormats(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriter_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "charts")
	logger := logging.NewStructuredLoggerWithWriter("export-test", "0", logging.ErrorLevel, io.Discard)

	w, err := NewWriter(dir, []string{"json", "csv"}, logger)
	require.NoError(t, err)

	rows := []yearRow{{Year: 2007, Cases: 3}, {Year: 2020, Cases: 2}}
	paths, err := w.Write(context.Background(), &Table{
		Name:        "cases_by_year",
		Title:       "Cases by year",
		Source:      "cases",
		RunID:       "run-1",
		GeneratedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Rows:        rows,
		RowCount:    len(rows),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "cases_by_year.json"),
		filepath.Join(dir, "cases_by_year.csv"),
	}, paths)

	raw, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	var env struct {
		Chart       string    `json:"chart"`
		RunID       string    `json:"run_id"`
		GeneratedAt string    `json:"generated_at"`
		RowCount    int       `json:"row_count"`
		Rows        []yearRow `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, "cases_by_year", env.Chart)
	assert.Equal(t, "run-1", env.RunID)
	assert.Equal(t, "2024-05-01T12:00:00Z", env.GeneratedAt)
	assert.Equal(t, 2, env.RowCount)
	assert.Equal(t, rows, env.Rows)

	csvData, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Equal(t, "year,cases\n2007,3\n2020,2\n", string(csvData))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestWriter_CSVRejectsNonStructRows(t *testing.T) {
	logger := logging.NewStructuredLoggerWithWriter("export-test", "0", logging.ErrorLevel, io.Discard)
	w, err := NewWriter(t.TempDir(), []string{"csv"}, logger)
	require.NoError(t, err)

	_, err = w.Write(context.Background(), &Table{Name: "bad", Rows: []int{1, 2}})
	require.Error(t, err)
}
