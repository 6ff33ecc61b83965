package aggregate

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"overdose-pipeline/internal/models"
)

func labeled(year int, ts string) models.LabeledCase {
	c := models.CaseRecord{CaseYear: year, DeathDateTime: models.ParseTimestamp(ts)}
	return models.Label(c)
}

func TestCountBy_FirstSeenOrderAndPartition(t *testing.T) {
	rows := []string{"b", "a", "b", "c", "a", "b"}
	got := CountBy(rows, func(s string) string { return s })

	want := []Count{{"b", 3}, {"a", 2}, {"c", 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CountBy mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, len(rows), Total(got))
}

func TestCountBy_Empty(t *testing.T) {
	got := CountBy([]string{}, func(s string) string { return s })
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestOrderBy_UnknownKeysTrail(t *testing.T) {
	counts := []Count{{"z", 1}, {"Friday", 2}, {"Sunday", 3}, {"a", 4}}
	got := OrderBy(counts, models.Weekdays)

	want := []Count{{"Sunday", 3}, {"Friday", 2}, {"a", 4}, {"z", 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("OrderBy mismatch (-want +got):\n%s", diff)
	}
	// input untouched
	assert.Equal(t, "z", counts[0].Key)
}

func TestCountByYear(t *testing.T) {
	rows := []models.LabeledCase{
		labeled(2020, ""), labeled(2007, ""), labeled(2007, ""),
		labeled(2020, ""), labeled(2007, ""),
	}
	got := CountByYear(rows)

	want := []YearCount{{Year: 2007, Cases: 3}, {Year: 2020, Cases: 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CountByYear mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, CountByYear(nil))

	noYear := models.Label(models.CaseRecord{YearUnknown: true})
	got = CountByYear(append(rows, noYear))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CountByYear with unknown year mismatch (-want +got):\n%s", diff)
	}
}

func TestCountByMonth(t *testing.T) {
	rows := []models.LabeledCase{
		labeled(2019, "2019-12-03"),
		labeled(2019, "2019-01-20"),
		labeled(2019, "2019-01-21"),
		labeled(2019, "2019-07-04"),
		labeled(2019, "not a date"),
	}
	got := CountByMonth(rows)

	want := []MonthCount{
		{Month: 0, Season: "Winter", Cases: 2},
		{Month: 6, Season: "Summer", Cases: 1},
		{Month: 11, Season: "Winter", Cases: 1},
		{Month: -1, Season: "Unknown", Cases: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CountByMonth mismatch (-want +got):\n%s", diff)
	}
}

func TestCountByWeekday_CanonicalOrder(t *testing.T) {
	sat := time.Date(2023, 1, 7, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	sun := time.Date(2023, 1, 8, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	wed := time.Date(2023, 1, 4, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)

	rows := []models.LabeledCase{
		labeled(2023, sat), labeled(2023, sat), labeled(2023, ""),
		labeled(2023, wed), labeled(2023, sun),
	}
	got := CountByWeekday(rows)

	want := []Count{{"Sunday", 1}, {"Wednesday", 1}, {"Saturday", 2}, {"Unknown", 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CountByWeekday mismatch (-want +got):\n%s", diff)
	}
}

func TestDrugCaseTypes(t *testing.T) {
	rows := []models.LabeledCase{
		{DrugCaseType: "Poly"},
		{DrugCaseType: "Single"},
		{DrugCaseType: "Mixed-invalid"},
		{DrugCaseType: "Single"},
	}
	got := DrugCaseTypes(rows)

	want := []Count{{"Single", 2}, {"Poly", 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DrugCaseTypes mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, DrugCaseTypes([]models.LabeledCase{{DrugCaseType: "None"}}))
}
