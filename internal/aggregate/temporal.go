package aggregate

import (
	"sort"

	"overdose-pipeline/internal/models"
)

// YearCount is the number of cases reported in one year
type YearCount struct {
	Year  int `json:"year" csv:"year"`
	Cases int `json:"cases" csv:"cases"`
}

// MonthCount is the number of cases in one calendar month.
// Month is 0-based; -1 marks cases without a valid death date.
type MonthCount struct {
	Month  int    `json:"month" csv:"month"`
	Season string `json:"season" csv:"season"`
	Cases  int    `json:"cases" csv:"cases"`
}

// CountByYear counts cases per case_year, ascending. Only years present
// in the input appear; cases without a valid year are left out.
func CountByYear(rows []models.LabeledCase) []YearCount {
	byYear := make(map[int]int)
	for _, r := range rows {
		if r.YearUnknown {
			continue
		}
		byYear[r.CaseYear]++
	}

	out := make([]YearCount, 0, len(byYear))
	for y, n := range byYear {
		out = append(out, YearCount{Year: y, Cases: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

// CountByMonth counts cases per month index tagged with its season.
// Cases without a date are counted in a trailing Unknown bucket.
func CountByMonth(rows []models.LabeledCase) []MonthCount {
	var months [12]int
	unknown := 0
	for _, r := range rows {
		if r.MonthIndex < 0 || r.MonthIndex > 11 {
			unknown++
			continue
		}
		months[r.MonthIndex]++
	}

	out := []MonthCount{}
	for m, n := range months {
		if n == 0 {
			continue
		}
		out = append(out, MonthCount{Month: m, Season: models.Season(m), Cases: n})
	}
	if unknown > 0 {
		out = append(out, MonthCount{Month: -1, Season: models.UnknownLabel, Cases: unknown})
	}
	return out
}

// CountByWeekday counts cases per weekday in Sunday..Saturday order.
// Cases without a date are counted in a trailing Unknown bucket.
func CountByWeekday(rows []models.LabeledCase) []Count {
	counts := CountBy(rows, func(r models.LabeledCase) string { return r.DayOfWeek })
	return OrderBy(counts, append(append([]string(nil), models.Weekdays...), models.UnknownLabel))
}
