package repository

import (
	"context"
	"fmt"
	"time"

	"overdose-pipeline/internal/models"
	"overdose-pipeline/pkg/logging"
	"overdose-pipeline/pkg/metrics"
)

// SourceKind names one of the source tables
type SourceKind string

const (
	SourceCases        SourceKind = "cases"
	SourceJurisdiction SourceKind = "jurisdiction"
	SourceDrugs        SourceKind = "drugs"
	SourceDrugTypes    SourceKind = "drug_types"
)

// SourceKinds lists every source table
var SourceKinds = []SourceKind{SourceCases, SourceJurisdiction, SourceDrugs, SourceDrugTypes}

// ParseSourceKind validates a source table name
func ParseSourceKind(s string) (SourceKind, error) {
	for _, k := range SourceKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown source table %q", s)
}

// maxErrorSamples caps the rejected-row messages kept in LoadStats
const maxErrorSamples = 20

// CaseRepository provides read-only access to the source tables
type CaseRepository interface {
	// LoadCases reads a case-shaped table (cases, jurisdiction or drug_types)
	LoadCases(ctx context.Context, kind SourceKind) ([]models.CaseRecord, *LoadStats, error)
	// LoadDrugInvolvements reads the long-format drug table
	LoadDrugInvolvements(ctx context.Context) ([]models.DrugInvolvementRecord, *LoadStats, error)

	// HealthCheck verifies the given sources are reachable; no kinds means
	// every configured source
	HealthCheck(ctx context.Context, kinds ...SourceKind) error
	Close() error
}

// LoadStats contains per-table load statistics. Flagged rows are loaded
// but carry a value that could not be parsed.
type LoadStats struct {
	Source       SourceKind
	TotalRows    int
	LoadedRows   int
	RejectedRows int
	FlaggedRows  int
	Duration     time.Duration
	Errors       []string
}

func newLoadStats(kind SourceKind) *LoadStats {
	return &LoadStats{
		Source: kind,
		Errors: make([]string, 0),
	}
}

func (s *LoadStats) sample(row int, err error) {
	if len(s.Errors) < maxErrorSamples {
		s.Errors = append(s.Errors, fmt.Sprintf("row %d: %v", row, err))
	}
}

// rowConverter turns raw rows into records, counting and logging rejects
type rowConverter struct {
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// cases converts every raw row. Rows with an unparseable case_year are kept
// and flagged; the drug_types table is not checked since it may carry no
// year column at all.
func (c rowConverter) cases(ctx context.Context, kind SourceKind, raws []models.RawCaseRecord, stats *LoadStats) []models.CaseRecord {
	records := make([]models.CaseRecord, 0, len(raws))
	for i := range raws {
		stats.TotalRows++

		record, issues := raws[i].ToCaseRecord()
		records = append(records, record)
		if len(issues) == 0 || kind == SourceDrugTypes {
			continue
		}

		stats.FlaggedRows++
		for _, issue := range issues {
			stats.sample(i+1, issue)
			c.metrics.RecordInvalidValue(string(kind), issue.Field)
			c.logger.Debug(ctx, "[LOAD_ROW_FLAGGED] Row kept with invalid value", logging.Fields{
				"source": string(kind),
				"row":    i + 1,
				"field":  issue.Field,
				"value":  issue.Value,
			})
		}
	}
	stats.LoadedRows = len(records)
	return records
}

func (c rowConverter) drugs(raws []models.RawDrugRecord, stats *LoadStats) []models.DrugInvolvementRecord {
	records := make([]models.DrugInvolvementRecord, 0, len(raws))
	for i := range raws {
		stats.TotalRows++

		record, err := raws[i].ToDrugInvolvement()
		if err != nil {
			// empty drug cells are padding from the wide-to-long reshape
			stats.RejectedRows++
			c.metrics.RecordRejectedRow(string(SourceDrugs), rejectReason(err))
			continue
		}
		records = append(records, *record)
	}
	stats.LoadedRows = len(records)
	return records
}

func (c rowConverter) finish(ctx context.Context, stats *LoadStats, start time.Time) {
	stats.Duration = time.Since(start)
	c.metrics.SourceLoadDuration.WithLabelValues(string(stats.Source)).Observe(stats.Duration.Seconds())
	c.metrics.RecordSourceRows(string(stats.Source), stats.LoadedRows)

	fields := logging.Fields{
		"source":        string(stats.Source),
		"total_rows":    stats.TotalRows,
		"loaded_rows":   stats.LoadedRows,
		"rejected_rows": stats.RejectedRows,
		"flagged_rows":  stats.FlaggedRows,
		"duration_ms":   stats.Duration.Milliseconds(),
	}
	if stats.FlaggedRows > 0 {
		c.logger.Warn(ctx, "[LOAD_FLAGGED] Source loaded with invalid values", fields)
		return
	}
	c.logger.Info(ctx, "[LOAD_COMPLETE] Source loaded", fields)
}

func rejectReason(err error) string {
	if vErr, ok := err.(*models.ValidationError); ok {
		return "invalid_" + vErr.Field
	}
	return "conversion_error"
}

// NotFoundError represents a source that is not configured or does not exist
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

func (e *NotFoundError) IsTransient() bool {
	return false
}
