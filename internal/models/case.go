package models

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// RawCaseRecord represents a single row of a case table as read from a source.
// Every column is kept as text; conversion happens in ToCaseRecord.
type RawCaseRecord struct {
	CaseYear         string `csv:"case_year" db:"case_year"`
	DeathDateAndTime string `csv:"death_date_and_time" db:"death_date_and_time"`
	IncidentZip      string `csv:"incident_zip" db:"incident_zip"`
	Race             string `csv:"race" db:"race"`
	Sex              string `csv:"sex" db:"sex"`
	Age              string `csv:"age" db:"age"`
	DrugCaseType     string `csv:"drug_case_type" db:"drug_case_type"`
}

// CaseRecord represents one fatal overdose case.
// Missing or unparseable values are represented as nil pointers; a case_year
// that cannot be parsed sets YearUnknown and leaves CaseYear zero.
type CaseRecord struct {
	CaseYear      int        `json:"case_year"`
	YearUnknown   bool       `json:"year_unknown,omitempty"`
	DeathDateTime *time.Time `json:"death_date_and_time,omitempty"`
	IncidentZip   string     `json:"incident_zip"`
	Race          string     `json:"race"`
	Sex           string     `json:"sex"`
	Age           *float64   `json:"age,omitempty"`
	DrugCaseType  string     `json:"drug_case_type,omitempty"`
}

// timestampLayouts lists the accepted death_date_and_time formats, tried in order
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/2006",
}

// Accepted case_year range
const (
	MinCaseYear = 1900
	MaxCaseYear = 9999
)

// ToCaseRecord converts RawCaseRecord to CaseRecord. No row is rejected:
// bad timestamps and ages become nil, and an unparseable case_year is
// flagged on the record and reported in the returned issues.
func (r *RawCaseRecord) ToCaseRecord() (CaseRecord, []*ValidationError) {
	record := CaseRecord{
		DeathDateTime: ParseTimestamp(r.DeathDateAndTime),
		IncidentZip:   strings.TrimSpace(r.IncidentZip),
		Race:          strings.TrimSpace(r.Race),
		Sex:           strings.TrimSpace(r.Sex),
		Age:           ParseAge(r.Age),
		DrugCaseType:  strings.TrimSpace(r.DrugCaseType),
	}

	var issues []*ValidationError
	year, err := ParseCaseYear(r.CaseYear)
	if err != nil {
		record.YearUnknown = true
		issues = append(issues, &ValidationError{
			Field:   "case_year",
			Value:   r.CaseYear,
			Message: fmt.Sprintf("invalid case_year %q: %v", r.CaseYear, err),
		})
	} else {
		record.CaseYear = year
	}
	return record, issues
}

// ParseCaseYear accepts "2007" as well as float renderings such as "2007.0".
// Years outside MinCaseYear..MaxCaseYear are rejected.
func ParseCaseYear(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty year")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("year %s is not an integer", s)
	}
	if f < MinCaseYear || f > MaxCaseYear {
		return 0, fmt.Errorf("year %s out of range %d-%d", s, MinCaseYear, MaxCaseYear)
	}
	return int(f), nil
}

// ParseTimestamp returns nil when s is empty or matches none of the known layouts
func ParseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// ParseAge returns nil for missing, non-numeric, NaN or infinite ages
func ParseAge(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// RawDrugRecord represents one row of the long-format drug table
type RawDrugRecord struct {
	CaseID string `csv:"case_id" db:"case_id"`
	Drug   string `csv:"drug" db:"drug"`
}

// DrugInvolvementRecord represents one (case, drug) pair
type DrugInvolvementRecord struct {
	CaseID string `json:"case_id,omitempty"`
	Drug   string `json:"drug"`
}

// ToDrugInvolvement converts RawDrugRecord to DrugInvolvementRecord.
// Rows with an empty drug carry no involvement and are rejected.
func (r *RawDrugRecord) ToDrugInvolvement() (*DrugInvolvementRecord, error) {
	drug := strings.TrimSpace(r.Drug)
	if drug == "" {
		return nil, &ValidationError{
			Field:   "drug",
			Value:   r.Drug,
			Message: "empty drug name",
		}
	}
	return &DrugInvolvementRecord{
		CaseID: strings.TrimSpace(r.CaseID),
		Drug:   drug,
	}, nil
}

// ValidationError represents a data validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}
