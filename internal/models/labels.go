package models

import (
	"math"
	"strings"
	"time"
)

// Label values shared by every derived field
const (
	UnknownLabel = "Unknown"
	UnknownZip   = "Unknown Zip"
)

// Seasons in display order
var Seasons = []string{"Winter", "Spring", "Summer", "Fall"}

// seasonByMonth is indexed by the 0-based month
var seasonByMonth = [12]string{
	"Winter", "Winter",
	"Spring", "Spring", "Spring",
	"Summer", "Summer", "Summer",
	"Fall", "Fall", "Fall",
	"Winter",
}

// Weekdays in canonical Sunday..Saturday order
var Weekdays = []string{
	"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday",
}

// AgeGroups in ascending order
var AgeGroups = []string{"0–24", "25–34", "35–44", "45–54", "55–64", "65+"}

var ageBounds = []struct {
	upper float64
	label string
}{
	{25, "0–24"},
	{35, "25–34"},
	{45, "35–44"},
	{55, "45–54"},
	{65, "55–64"},
}

var raceLabels = map[string]string{
	"W": "White",
	"B": "Black",
	"H": "Hispanic",
	"A": "Asian",
	"I": "American Indian/Alaska Native",
	"M": "Mixed",
	"O": "Other",
}

// RaceLabels in code order W, B, H, A, I, M, O
var RaceLabels = []string{
	"White", "Black", "Hispanic", "Asian", "American Indian/Alaska Native", "Mixed", "Other",
}

var sexLabels = map[string]string{
	"M": "Male",
	"F": "Female",
}

// SexLabels in display order
var SexLabels = []string{"Male", "Female"}

// MonthIndex converts a timestamp to a 0-based month (January = 0)
func MonthIndex(t time.Time) int {
	return int(t.Month()) - 1
}

// Season maps a 0-based month index to its season
func Season(month int) string {
	if month < 0 || month >= len(seasonByMonth) {
		return UnknownLabel
	}
	return seasonByMonth[month]
}

// DayOfWeek returns the weekday name, or Unknown for a nil timestamp
func DayOfWeek(t *time.Time) string {
	if t == nil {
		return UnknownLabel
	}
	return t.Weekday().String()
}

// AgeGroup buckets an age into half-open ranges
func AgeGroup(age *float64) string {
	if age == nil {
		return UnknownLabel
	}
	a := *age
	if math.IsNaN(a) || math.IsInf(a, 0) || a < 0 {
		return UnknownLabel
	}
	for _, b := range ageBounds {
		if a < b.upper {
			return b.label
		}
	}
	return "65+"
}

// RaceLabel maps a race code to its label
func RaceLabel(code string) string {
	if label, ok := raceLabels[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return label
	}
	return UnknownLabel
}

// SexLabel maps a sex code to its label
func SexLabel(code string) string {
	if label, ok := sexLabels[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return label
	}
	return UnknownLabel
}

// NormalizeZip trims the ZIP, drops a float suffix such as "15213.0" and
// left-pads numeric ZIPs to five digits. Empty ZIPs become "Unknown Zip".
func NormalizeZip(zip string) string {
	z := strings.TrimSpace(zip)
	z = strings.TrimSuffix(z, ".0")
	if z == "" || strings.EqualFold(z, "nan") {
		return UnknownZip
	}
	if isDigits(z) && len(z) < 5 {
		z = strings.Repeat("0", 5-len(z)) + z
	}
	return z
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// LabeledCase is a case with every derived label attached
type LabeledCase struct {
	CaseYear     int
	YearUnknown  bool
	MonthIndex   int // -1 when the death date is missing
	Season       string
	DayOfWeek    string
	Zip          string
	RaceCode     string
	RaceLabel    string
	SexLabel     string
	AgeGroup     string
	DrugCaseType string
}

// Label derives every label for a case. The input is not modified.
func Label(c CaseRecord) LabeledCase {
	lc := LabeledCase{
		CaseYear:     c.CaseYear,
		YearUnknown:  c.YearUnknown,
		MonthIndex:   -1,
		Season:       UnknownLabel,
		DayOfWeek:    DayOfWeek(c.DeathDateTime),
		Zip:          NormalizeZip(c.IncidentZip),
		RaceCode:     strings.ToUpper(strings.TrimSpace(c.Race)),
		RaceLabel:    RaceLabel(c.Race),
		SexLabel:     SexLabel(c.Sex),
		AgeGroup:     AgeGroup(c.Age),
		DrugCaseType: c.DrugCaseType,
	}
	if c.DeathDateTime != nil {
		lc.MonthIndex = MonthIndex(*c.DeathDateTime)
		lc.Season = Season(lc.MonthIndex)
	}
	return lc
}

// LabelAll labels a slice of cases into a new slice
func LabelAll(cases []CaseRecord) []LabeledCase {
	out := make([]LabeledCase, len(cases))
	for i, c := range cases {
		out[i] = Label(c)
	}
	return out
}
