package repository

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"overdose-pipeline/internal/aggregate"
	"overdose-pipeline/internal/models"
	"overdose-pipeline/pkg/logging"
	"overdose-pipeline/pkg/metrics"
)

func testDeps() (*logging.StructuredLogger, *metrics.Collector) {
	return logging.NewStructuredLoggerWithWriter("repo-test", "0", logging.ErrorLevel, io.Discard),
		metrics.NewCollector("repo_test")
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

const casesCSV = `case_year,death_date_and_time,incident_zip,race,sex,age,extra
2007,2007-01-15T08:30:00,15213,W,M,41,x
2016,2016-06-02 22:00:00,15212.0,B,F,N/A,x
bad,2016-06-02,15212,B,F,30,x
2023,,,H,,19,x
`

func TestCSVRepository_LoadCases(t *testing.T) {
	dir := t.TempDir()
	logger, m := testDeps()
	repo, err := NewCSVRepository(map[SourceKind]string{
		SourceCases: writeFile(t, dir, "cases.csv", []byte(casesCSV)),
	}, "utf-8", logger, m)
	require.NoError(t, err)

	records, stats, err := repo.LoadCases(context.Background(), SourceCases)
	require.NoError(t, err)

	require.Len(t, records, 4)
	assert.Equal(t, 4, stats.TotalRows)
	assert.Equal(t, 4, stats.LoadedRows)
	assert.Equal(t, 0, stats.RejectedRows)
	assert.Equal(t, 1, stats.FlaggedRows)
	require.Len(t, stats.Errors, 1)
	assert.Contains(t, stats.Errors[0], "row 3")

	assert.Equal(t, 2007, records[0].CaseYear)
	require.NotNil(t, records[0].DeathDateTime)
	assert.Nil(t, records[1].Age)

	// kept without a year; every other column still usable
	assert.True(t, records[2].YearUnknown)
	assert.Equal(t, "B", records[2].Race)
	require.NotNil(t, records[2].Age)

	assert.Nil(t, records[3].DeathDateTime)

	assert.Equal(t, 4.0, testutil.ToFloat64(m.SourceRowsTotal.WithLabelValues("cases")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceInvalidTotal.WithLabelValues("cases", "case_year")))
}

func TestCSVRepository_DrugTypesWithOnlyTypeColumn(t *testing.T) {
	dir := t.TempDir()
	logger, m := testDeps()
	repo, err := NewCSVRepository(map[SourceKind]string{
		SourceDrugTypes: writeFile(t, dir, "types.csv", []byte("drug_case_type\nSingle\nSingle\nPoly\nMixed-invalid\n")),
	}, "utf-8", logger, m)
	require.NoError(t, err)

	records, stats, err := repo.LoadCases(context.Background(), SourceDrugTypes)
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, 0, stats.FlaggedRows)
	assert.Empty(t, stats.Errors)

	got := aggregate.DrugCaseTypes(models.LabelAll(records))
	assert.Equal(t, []aggregate.Count{{Key: "Single", Count: 2}, {Key: "Poly", Count: 1}}, got)
}

func TestCSVRepository_BOMAndLegacyCharset(t *testing.T) {
	dir := t.TempDir()
	logger, m := testDeps()

	bom := append([]byte{0xEF, 0xBB, 0xBF}, []byte("case_year,drug_case_type\n2019,Poly\n")...)
	// "Peña" encoded as windows-1252
	latin := []byte("drug\nPe\xf1a\n")

	paths := map[SourceKind]string{
		SourceDrugTypes: writeFile(t, dir, "types.csv", bom),
	}
	repo, err := NewCSVRepository(paths, "", logger, m)
	require.NoError(t, err)

	types, _, err := repo.LoadCases(context.Background(), SourceDrugTypes)
	require.NoError(t, err)
	require.Len(t, types, 1)
	assert.Equal(t, 2019, types[0].CaseYear)
	assert.Equal(t, "Poly", types[0].DrugCaseType)

	repo, err = NewCSVRepository(map[SourceKind]string{
		SourceDrugs: writeFile(t, dir, "drugs.csv", latin),
	}, "windows-1252", logger, m)
	require.NoError(t, err)

	drugs, _, err := repo.LoadDrugInvolvements(context.Background())
	require.NoError(t, err)
	require.Len(t, drugs, 1)
	assert.Equal(t, "Peña", drugs[0].Drug)
}

func TestCSVRepository_LoadDrugInvolvements_DropsEmpty(t *testing.T) {
	dir := t.TempDir()
	logger, m := testDeps()
	repo, err := NewCSVRepository(map[SourceKind]string{
		SourceDrugs: writeFile(t, dir, "drugs.csv", []byte("case_id,drug\n1,Fentanyl\n1,\n2,Heroin\n2, \n")),
	}, "utf-8", logger, m)
	require.NoError(t, err)

	drugs, stats, err := repo.LoadDrugInvolvements(context.Background())
	require.NoError(t, err)
	require.Len(t, drugs, 2)
	assert.Equal(t, "Fentanyl", drugs[0].Drug)
	assert.Equal(t, "Heroin", drugs[1].Drug)
	assert.Equal(t, 2, stats.RejectedRows)
}

func TestCSVRepository_Errors(t *testing.T) {
	dir := t.TempDir()
	logger, m := testDeps()

	_, err := NewCSVRepository(nil, "ebcdic", logger, m)
	require.Error(t, err)

	repo, err := NewCSVRepository(map[SourceKind]string{
		SourceCases:        filepath.Join(dir, "missing.csv"),
		SourceJurisdiction: writeFile(t, dir, "short.csv", []byte("case_year,race\n2007,W\n")),
		SourceDrugTypes:    writeFile(t, dir, "empty.csv", nil),
	}, "utf-8", logger, m)
	require.NoError(t, err)
	ctx := context.Background()

	var nf *NotFoundError
	_, _, err = repo.LoadCases(ctx, SourceCases)
	require.True(t, errors.As(err, &nf))
	assert.False(t, nf.IsTransient())

	_, _, err = repo.LoadDrugInvolvements(ctx)
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "drugs", nf.ID)

	_, _, err = repo.LoadCases(ctx, SourceJurisdiction)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required columns")

	records, stats, err := repo.LoadCases(ctx, SourceDrugTypes)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 0, stats.TotalRows)

	require.Error(t, repo.HealthCheck(ctx))
	require.NoError(t, repo.HealthCheck(ctx, SourceJurisdiction, SourceDrugTypes))
	require.Error(t, repo.HealthCheck(ctx, SourceCases))
	require.True(t, errors.As(repo.HealthCheck(ctx, SourceDrugs), &nf))
	require.NoError(t, repo.Close())
}
