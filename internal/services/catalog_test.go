package services

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"overdose-pipeline/internal/aggregate"
	"overdose-pipeline/internal/models"
	"overdose-pipeline/internal/repository"
)

func fixtureTables(t *testing.T) *Tables {
	t.Helper()
	repo := fixtureRepo()
	tables := NewTables()
	for kind, rows := range repo.cases {
		tables.SetCases(kind, rows)
	}
	tables.SetDrugs(repo.drugs)
	return tables
}

func build(t *testing.T, name string) interface{} {
	t.Helper()
	return buildFrom(t, fixtureTables(t), DefaultParams(), name)
}

func buildFrom(t *testing.T, tables *Tables, p Params, name string) interface{} {
	t.Helper()
	charts, err := SelectCharts([]string{name})
	require.NoError(t, err)
	require.Len(t, charts, 1)
	return charts[0].build(tables, p).rows
}

func TestCatalog_Recipes(t *testing.T) {
	tests := []struct {
		chart string
		want  interface{}
	}{
		{
			chart: "cases_by_year",
			want: []aggregate.YearCount{
				{Year: 2007, Cases: 2}, {Year: 2016, Cases: 2}, {Year: 2025, Cases: 1},
			},
		},
		{
			chart: "top_zips",
			want: []aggregate.RankedCount{
				{Rank: 1, Key: "15213", Count: 2},
				{Rank: 2, Key: "15212", Count: 1},
				{Rank: 2, Key: "Unknown Zip", Count: 1},
			},
		},
		{
			chart: "race_by_year",
			want: []aggregate.CrossCount{
				{Year: 2007, Key: "Black", Count: 1},
				{Year: 2007, Key: "White", Count: 1},
				{Year: 2016, Key: "Black", Count: 1},
			},
		},
		{
			chart: "sex_share",
			want: []aggregate.ShareCount{
				{Key: "Male", Count: 3, Share: 0.6, Percent: "60.0%"},
				{Key: "Female", Count: 2, Share: 0.4, Percent: "40.0%"},
			},
		},
		{
			chart: "minority_race_breakdown",
			want: []aggregate.TwoStageShare{
				{Key: "Hispanic", Count: 1, PctAll: 0.2, PctMinority: 1, RowText: "Hispanic: 1 (20.0% of all; 100.0% of minority)"},
			},
		},
		{
			chart: "drug_case_types",
			want:  []aggregate.Count{{Key: "Single", Count: 1}, {Key: "Poly", Count: 2}},
		},
		{
			chart: "top_drugs",
			want: []aggregate.RankedCount{
				{Rank: 1, Key: "Fentanyl", Count: 3},
				{Rank: 2, Key: "Cocaine", Count: 1},
				{Rank: 2, Key: "Heroin", Count: 1},
			},
		},
		{
			chart: "zip_counts_by_year",
			want: []aggregate.CrossCount{
				{Year: 2007, Key: "15213", Count: 2},
				{Year: 2016, Key: "15212", Count: 1},
				{Year: 2016, Key: "Unknown Zip", Count: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.chart, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, build(t, tt.chart)); diff != "" {
				t.Errorf("%s mismatch (-want +got):\n%s", tt.chart, diff)
			}
		})
	}
}

func TestCatalog_AgeGroupShareSumsToOne(t *testing.T) {
	rows := build(t, "age_group_share").([]aggregate.ShareCount)

	total, sum := 0, 0.0
	for _, r := range rows {
		total += r.Count
		sum += r.Share
	}
	assert.Equal(t, 5, total)
	assert.InDelta(t, 1.0, sum, 1e-3)
	assert.Equal(t, "0–24", rows[0].Key)
}

func TestCatalog_CasesWithoutYearAreCounted(t *testing.T) {
	noYear := caseRec(0, "2020-05-02T10:00:00", "15213", "H", "F", 33)
	noYear.YearUnknown = true
	cases := []models.CaseRecord{
		caseRec(2020, "2020-05-01T10:00:00", "15213", "W", "M", 40),
		noYear,
	}

	tables := NewTables()
	tables.SetCases(repository.SourceCases, cases)
	tables.SetCases(repository.SourceJurisdiction, cases)
	tables.SetCases(repository.SourceDrugTypes, []models.CaseRecord{
		{CaseYear: 2020, DrugCaseType: "Single"},
		{YearUnknown: true, DrugCaseType: "Poly"},
	})
	p := DefaultParams()
	p.FacetYears = []int{2020}

	tests := []struct {
		chart string
		want  interface{}
	}{
		{
			chart: "race_share",
			want: []aggregate.ShareCount{
				{Key: "White", Count: 1, Share: 0.5, Percent: "50.0%"},
				{Key: "Hispanic", Count: 1, Share: 0.5, Percent: "50.0%"},
			},
		},
		{
			chart: "drug_case_types",
			want:  []aggregate.Count{{Key: "Single", Count: 1}, {Key: "Poly", Count: 1}},
		},
		{
			chart: "cases_by_month",
			want:  []aggregate.MonthCount{{Month: 4, Season: "Spring", Cases: 2}},
		},
		{
			chart: "zip_counts",
			want:  []aggregate.Count{{Key: "15213", Count: 2}},
		},
		{
			chart: "cases_by_year",
			want:  []aggregate.YearCount{{Year: 2020, Cases: 1}},
		},
		{
			chart: "top_zips",
			want:  []aggregate.RankedCount{{Rank: 1, Key: "15213", Count: 1}},
		},
		{
			chart: "sex_by_year",
			want:  []aggregate.CrossCount{{Year: 2020, Key: "Male", Count: 1}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.chart, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, buildFrom(t, tables, p, tt.chart)); diff != "" {
				t.Errorf("%s mismatch (-want +got):\n%s", tt.chart, diff)
			}
		})
	}
}

func TestSelectCharts(t *testing.T) {
	all, err := SelectCharts(nil)
	require.NoError(t, err)
	assert.Len(t, all, len(ChartNames()))
	assert.Len(t, ChartNames(), 15)

	picked, err := SelectCharts([]string{"top_drugs", " cases_by_year"})
	require.NoError(t, err)
	require.Len(t, picked, 2)
	// catalog order, not request order
	assert.Equal(t, "cases_by_year", picked[0].Name)
	assert.Equal(t, "top_drugs", picked[1].Name)

	_, err = SelectCharts([]string{"pie_of_everything", "cases_by_year", "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope, pie_of_everything")
}

func TestSourcesFor(t *testing.T) {
	charts, err := SelectCharts([]string{"top_drugs", "race_share", "cases_by_month", "zip_counts"})
	require.NoError(t, err)
	assert.Equal(t, []repository.SourceKind{
		repository.SourceCases, repository.SourceJurisdiction, repository.SourceDrugs,
	}, sourcesFor(charts))
}
