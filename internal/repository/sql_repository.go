package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"overdose-pipeline/internal/models"
	"overdose-pipeline/pkg/database"
	"overdose-pipeline/pkg/logging"
	"overdose-pipeline/pkg/metrics"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// caseRow mirrors a case table row; every column may be NULL
type caseRow struct {
	CaseYear         sql.NullString `db:"case_year"`
	DeathDateAndTime sql.NullString `db:"death_date_and_time"`
	IncidentZip      sql.NullString `db:"incident_zip"`
	Race             sql.NullString `db:"race"`
	Sex              sql.NullString `db:"sex"`
	Age              sql.NullString `db:"age"`
	DrugCaseType     sql.NullString `db:"drug_case_type"`
}

func (r caseRow) raw() models.RawCaseRecord {
	return models.RawCaseRecord{
		CaseYear:         r.CaseYear.String,
		DeathDateAndTime: r.DeathDateAndTime.String,
		IncidentZip:      r.IncidentZip.String,
		Race:             r.Race.String,
		Sex:              r.Sex.String,
		Age:              r.Age.String,
		DrugCaseType:     r.DrugCaseType.String,
	}
}

type drugRow struct {
	Drug sql.NullString `db:"drug"`
}

// sqlRepository implements CaseRepository over SQL tables
type sqlRepository struct {
	db     *database.DB
	tables map[SourceKind]string
	logger *logging.StructuredLogger
	rows   rowConverter
}

// NewSQLRepository creates a repository reading source tables from db.
// tables maps each source to a table name, optionally schema qualified.
func NewSQLRepository(db *database.DB, tables map[SourceKind]string, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (CaseRepository, error) {
	for kind, table := range tables {
		if table == "" {
			continue
		}
		if !identifierPattern.MatchString(table) {
			return nil, fmt.Errorf("invalid table name %q for source %s", table, kind)
		}
	}

	return &sqlRepository{
		db:     db,
		tables: tables,
		logger: logger,
		rows:   rowConverter{logger: logger, metrics: metricsCollector},
	}, nil
}

func (r *sqlRepository) table(kind SourceKind) (string, error) {
	table, ok := r.tables[kind]
	if !ok || table == "" {
		return "", &NotFoundError{Resource: "sql source", ID: string(kind)}
	}
	return table, nil
}

// LoadCases reads a case-shaped table
func (r *sqlRepository) LoadCases(ctx context.Context, kind SourceKind) ([]models.CaseRecord, *LoadStats, error) {
	if kind == SourceDrugs {
		return nil, nil, fmt.Errorf("source %s is not a case table", kind)
	}
	table, err := r.table(kind)
	if err != nil {
		return nil, nil, err
	}
	start := time.Now()

	columns := []string{"case_year", "death_date_and_time", "incident_zip", "race", "sex", "age"}
	if kind == SourceDrugTypes {
		columns = []string{"drug_case_type"}
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(columns, ", "), table)

	var rows []caseRow
	if err := r.db.SelectContext(ctx, "load_"+string(kind), &rows, query); err != nil {
		return nil, nil, fmt.Errorf("failed to load %s from %s: %w", kind, table, err)
	}

	raws := make([]models.RawCaseRecord, len(rows))
	for i, row := range rows {
		raws[i] = row.raw()
	}

	stats := newLoadStats(kind)
	records := r.rows.cases(ctx, kind, raws, stats)
	r.rows.finish(ctx, stats, start)
	return records, stats, nil
}

// LoadDrugInvolvements reads the long-format drug table. NULL drugs are
// filtered in the query.
func (r *sqlRepository) LoadDrugInvolvements(ctx context.Context) ([]models.DrugInvolvementRecord, *LoadStats, error) {
	table, err := r.table(SourceDrugs)
	if err != nil {
		return nil, nil, err
	}
	start := time.Now()

	query := fmt.Sprintf("SELECT drug FROM %s WHERE drug IS NOT NULL", table)

	var rows []drugRow
	if err := r.db.SelectContext(ctx, "load_drugs", &rows, query); err != nil {
		return nil, nil, fmt.Errorf("failed to load drugs from %s: %w", table, err)
	}

	raws := make([]models.RawDrugRecord, len(rows))
	for i, row := range rows {
		raws[i] = models.RawDrugRecord{Drug: row.Drug.String}
	}

	stats := newLoadStats(SourceDrugs)
	records := r.rows.drugs(raws, stats)
	r.rows.finish(ctx, stats, start)
	return records, stats, nil
}

// HealthCheck pings the database and verifies each given source table can
// be queried, or every configured table when none are given
func (r *sqlRepository) HealthCheck(ctx context.Context, kinds ...SourceKind) error {
	if err := r.db.HealthCheck(ctx); err != nil {
		return err
	}
	if len(kinds) == 0 {
		for _, k := range SourceKinds {
			if r.tables[k] != "" {
				kinds = append(kinds, k)
			}
		}
	}

	for _, kind := range kinds {
		table, err := r.table(kind)
		if err != nil {
			return err
		}
		var n int
		query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
		if err := r.db.GetContext(ctx, "check_"+string(kind), &n, query); err != nil {
			return fmt.Errorf("sql source %s unavailable: %w", kind, err)
		}
		r.logger.Debug(ctx, "[HEALTH_CHECK] Source table reachable", logging.Fields{
			"source": string(kind),
			"table":  table,
			"rows":   n,
		})
	}
	return nil
}

// Close closes the underlying database
func (r *sqlRepository) Close() error {
	return r.db.Close()
}
