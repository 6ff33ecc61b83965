package services

import (
	"fmt"
	"sort"
	"strings"

	"overdose-pipeline/internal/aggregate"
	"overdose-pipeline/internal/models"
	"overdose-pipeline/internal/repository"
)

// Params tunes the chart recipes
type Params struct {
	TopN       int
	ZipYearMin int
	ZipYearMax int
	FacetYears []int
}

// DefaultParams returns the parameters used by the published charts
func DefaultParams() Params {
	return Params{
		TopN:       10,
		ZipYearMin: 2007,
		ZipYearMax: 2024,
		FacetYears: []int{2007, 2016, 2017, 2023},
	}
}

// Chart is a named recipe turning one source table into a chart table
type Chart struct {
	Name   string
	Title  string
	Source repository.SourceKind
	build  func(t *Tables, p Params) result
}

type result struct {
	rows interface{}
	n    int
}

func rowsOf[T any](rows []T) result {
	return result{rows: rows, n: len(rows)}
}

var catalog = []Chart{
	{
		Name:   "cases_by_year",
		Title:  "Overdose deaths by year",
		Source: repository.SourceCases,
		build: func(t *Tables, _ Params) result {
			return rowsOf(aggregate.CountByYear(t.Cases(repository.SourceCases)))
		},
	},
	{
		Name:   "cases_by_month",
		Title:  "Overdose deaths by month and season",
		Source: repository.SourceCases,
		build: func(t *Tables, _ Params) result {
			return rowsOf(aggregate.CountByMonth(t.Cases(repository.SourceCases)))
		},
	},
	{
		Name:   "cases_by_weekday",
		Title:  "Overdose deaths by day of week",
		Source: repository.SourceCases,
		build: func(t *Tables, _ Params) result {
			return rowsOf(aggregate.CountByWeekday(t.Cases(repository.SourceCases)))
		},
	},
	{
		Name:   "top_zips",
		Title:  "Top incident ZIP codes",
		Source: repository.SourceCases,
		build: func(t *Tables, p Params) result {
			inRange := aggregate.Filter(t.Cases(repository.SourceCases), func(c models.LabeledCase) bool {
				return !c.YearUnknown && c.CaseYear >= p.ZipYearMin && c.CaseYear <= p.ZipYearMax
			})
			return rowsOf(aggregate.TopN(aggregate.CountBy(inRange, zipOf), p.TopN))
		},
	},
	{
		Name:   "race_share",
		Title:  "Share of deaths by race",
		Source: repository.SourceJurisdiction,
		build: func(t *Tables, _ Params) result {
			return rowsOf(categoryShares(t.Cases(repository.SourceJurisdiction), raceOf, models.RaceLabels))
		},
	},
	{
		Name:   "minority_race_breakdown",
		Title:  "Deaths among races other than White and Black",
		Source: repository.SourceJurisdiction,
		build: func(t *Tables, _ Params) result {
			counts := aggregate.CountBy(t.Cases(repository.SourceJurisdiction), raceOf)
			return rowsOf(aggregate.TwoStageShares(counts, "White", "Black"))
		},
	},
	{
		Name:   "sex_share",
		Title:  "Share of deaths by sex",
		Source: repository.SourceJurisdiction,
		build: func(t *Tables, _ Params) result {
			return rowsOf(categoryShares(t.Cases(repository.SourceJurisdiction), sexOf, models.SexLabels))
		},
	},
	{
		Name:   "age_group_share",
		Title:  "Share of deaths by age group",
		Source: repository.SourceJurisdiction,
		build: func(t *Tables, _ Params) result {
			return rowsOf(categoryShares(t.Cases(repository.SourceJurisdiction), ageGroupOf, models.AgeGroups))
		},
	},
	{
		Name:   "race_by_year",
		Title:  "Black and White deaths in selected years",
		Source: repository.SourceCases,
		build: func(t *Tables, p Params) result {
			blackWhite := aggregate.Filter(withYear(t.Cases(repository.SourceCases)), func(c models.LabeledCase) bool {
				return c.RaceCode == "B" || c.RaceCode == "W"
			})
			return rowsOf(aggregate.CrossTab(blackWhite, p.FacetYears, yearOf, raceOf, []string{"Black", "White"}))
		},
	},
	{
		Name:   "sex_by_year",
		Title:  "Deaths by sex in selected years",
		Source: repository.SourceCases,
		build: func(t *Tables, p Params) result {
			return rowsOf(aggregate.CrossTab(withYear(t.Cases(repository.SourceCases)), p.FacetYears, yearOf, sexOf, withUnknown(models.SexLabels)))
		},
	},
	{
		Name:   "age_group_by_year",
		Title:  "Deaths by age group in selected years",
		Source: repository.SourceCases,
		build: func(t *Tables, p Params) result {
			return rowsOf(aggregate.CrossTab(withYear(t.Cases(repository.SourceCases)), p.FacetYears, yearOf, ageGroupOf, withUnknown(models.AgeGroups)))
		},
	},
	{
		Name:   "top_drugs",
		Title:  "Most frequently involved drugs",
		Source: repository.SourceDrugs,
		build: func(t *Tables, p Params) result {
			counts := aggregate.CountBy(t.Drugs(), func(d models.DrugInvolvementRecord) string { return d.Drug })
			return rowsOf(aggregate.TopN(counts, p.TopN))
		},
	},
	{
		Name:   "drug_case_types",
		Title:  "Single versus polysubstance deaths",
		Source: repository.SourceDrugTypes,
		build: func(t *Tables, _ Params) result {
			return rowsOf(aggregate.DrugCaseTypes(t.Cases(repository.SourceDrugTypes)))
		},
	},
	{
		Name:   "zip_counts",
		Title:  "Deaths by incident ZIP code",
		Source: repository.SourceJurisdiction,
		build: func(t *Tables, _ Params) result {
			return rowsOf(aggregate.SortByCount(aggregate.CountBy(t.Cases(repository.SourceJurisdiction), zipOf)))
		},
	},
	{
		Name:   "zip_counts_by_year",
		Title:  "Deaths by incident ZIP code in selected years",
		Source: repository.SourceJurisdiction,
		build: func(t *Tables, p Params) result {
			return rowsOf(aggregate.CrossTab(withYear(t.Cases(repository.SourceJurisdiction)), p.FacetYears, yearOf, zipOf, nil))
		},
	},
}

func yearOf(c models.LabeledCase) int        { return c.CaseYear }
func zipOf(c models.LabeledCase) string      { return c.Zip }
func raceOf(c models.LabeledCase) string     { return c.RaceLabel }
func sexOf(c models.LabeledCase) string      { return c.SexLabel }
func ageGroupOf(c models.LabeledCase) string { return c.AgeGroup }

// withYear drops cases whose case_year could not be parsed
func withYear(rows []models.LabeledCase) []models.LabeledCase {
	return aggregate.Filter(rows, func(c models.LabeledCase) bool { return !c.YearUnknown })
}

func withUnknown(order []string) []string {
	return append(append([]string(nil), order...), models.UnknownLabel)
}

func categoryShares(rows []models.LabeledCase, key func(models.LabeledCase) string, order []string) []aggregate.ShareCount {
	return aggregate.Shares(aggregate.OrderBy(aggregate.CountBy(rows, key), withUnknown(order)))
}

// Catalog returns every chart in publication order
func Catalog() []Chart {
	return append([]Chart(nil), catalog...)
}

// ChartNames returns the names of every chart
func ChartNames() []string {
	names := make([]string, len(catalog))
	for i, c := range catalog {
		names[i] = c.Name
	}
	return names
}

// SelectCharts resolves chart names against the catalog, keeping catalog
// order. An empty selection means every chart.
func SelectCharts(names []string) ([]Chart, error) {
	if len(names) == 0 {
		return Catalog(), nil
	}

	wanted := make(map[string]bool, len(names))
	var unknown []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if !hasChart(n) {
			unknown = append(unknown, n)
			continue
		}
		wanted[n] = true
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown charts: %s", strings.Join(unknown, ", "))
	}
	if len(wanted) == 0 {
		return Catalog(), nil
	}

	selected := make([]Chart, 0, len(wanted))
	for _, c := range catalog {
		if wanted[c.Name] {
			selected = append(selected, c)
		}
	}
	return selected, nil
}

func hasChart(name string) bool {
	for _, c := range catalog {
		if c.Name == name {
			return true
		}
	}
	return false
}

// sourcesFor lists the distinct source tables the charts read
func sourcesFor(charts []Chart) []repository.SourceKind {
	seen := make(map[repository.SourceKind]bool)
	var out []repository.SourceKind
	for _, k := range repository.SourceKinds {
		for _, c := range charts {
			if c.Source == k && !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}
