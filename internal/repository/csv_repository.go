package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"overdose-pipeline/internal/models"
	"overdose-pipeline/pkg/logging"
	"overdose-pipeline/pkg/metrics"
)

// requiredColumns lists the header columns each table must carry
var requiredColumns = map[SourceKind][]string{
	SourceCases:        {"case_year", "death_date_and_time", "incident_zip", "race", "sex", "age"},
	SourceJurisdiction: {"case_year", "death_date_and_time", "incident_zip", "race", "sex", "age"},
	SourceDrugTypes:    {"drug_case_type"},
	SourceDrugs:        {"drug"},
}

// LookupEncoding resolves a charset name to a decoder. UTF-8 input may
// carry a byte order mark.
func LookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return unicode.UTF8BOM, nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252, nil
	case "iso-8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}

// csvRepository implements CaseRepository over CSV files
type csvRepository struct {
	paths    map[SourceKind]string
	encoding encoding.Encoding
	logger   *logging.StructuredLogger
	rows     rowConverter
}

// NewCSVRepository creates a repository reading one CSV file per source table
func NewCSVRepository(paths map[SourceKind]string, charset string, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (CaseRepository, error) {
	enc, err := LookupEncoding(charset)
	if err != nil {
		return nil, err
	}

	return &csvRepository{
		paths:    paths,
		encoding: enc,
		logger:   logger,
		rows:     rowConverter{logger: logger, metrics: metricsCollector},
	}, nil
}

// LoadCases reads a case-shaped CSV table
func (r *csvRepository) LoadCases(ctx context.Context, kind SourceKind) ([]models.CaseRecord, *LoadStats, error) {
	if kind == SourceDrugs {
		return nil, nil, fmt.Errorf("source %s is not a case table", kind)
	}
	start := time.Now()

	var raws []models.RawCaseRecord
	if err := r.decodeFile(ctx, kind, func(dec *csvutil.Decoder) error {
		var raw models.RawCaseRecord
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		raws = append(raws, raw)
		return nil
	}); err != nil {
		return nil, nil, err
	}

	stats := newLoadStats(kind)
	records := r.rows.cases(ctx, kind, raws, stats)
	r.rows.finish(ctx, stats, start)
	return records, stats, nil
}

// LoadDrugInvolvements reads the long-format drug CSV table
func (r *csvRepository) LoadDrugInvolvements(ctx context.Context) ([]models.DrugInvolvementRecord, *LoadStats, error) {
	start := time.Now()

	var raws []models.RawDrugRecord
	if err := r.decodeFile(ctx, SourceDrugs, func(dec *csvutil.Decoder) error {
		var raw models.RawDrugRecord
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		raws = append(raws, raw)
		return nil
	}); err != nil {
		return nil, nil, err
	}

	stats := newLoadStats(SourceDrugs)
	records := r.rows.drugs(raws, stats)
	r.rows.finish(ctx, stats, start)
	return records, stats, nil
}

// decodeFile opens the table's file and calls next until the decoder is
// exhausted. A file with no header is an empty table.
func (r *csvRepository) decodeFile(ctx context.Context, kind SourceKind, next func(*csvutil.Decoder) error) error {
	path, ok := r.paths[kind]
	if !ok || path == "" {
		return &NotFoundError{Resource: "csv source", ID: string(kind)}
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &NotFoundError{Resource: "csv file", ID: path}
		}
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(transform.NewReader(file, r.encoding.NewDecoder()))
	reader.ReuseRecord = true

	dec, err := csvutil.NewDecoder(reader)
	if err == io.EOF {
		r.logger.Warn(ctx, "[LOAD_EMPTY] CSV file has no header", logging.Fields{
			"source": string(kind),
			"path":   path,
		})
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create CSV decoder for %s: %w", path, err)
	}

	if err := checkHeader(dec.Header(), requiredColumns[kind]); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	for line := 2; ; line++ {
		if line%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		err := next(dec)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to decode %s line %d: %w", path, line, err)
		}
	}
}

func checkHeader(header, required []string) error {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}

	var missing []string
	for _, col := range required {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}

// HealthCheck verifies the files of the given sources exist, or of every
// configured source when none are given
func (r *csvRepository) HealthCheck(ctx context.Context, kinds ...SourceKind) error {
	if len(kinds) == 0 {
		for _, k := range SourceKinds {
			if r.paths[k] != "" {
				kinds = append(kinds, k)
			}
		}
	}
	for _, kind := range kinds {
		path := r.paths[kind]
		if path == "" {
			return &NotFoundError{Resource: "csv source", ID: string(kind)}
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("csv source %s unavailable: %w", kind, err)
		}
	}
	return nil
}

// Close is a no-op; files are closed after each load
func (r *csvRepository) Close() error {
	return nil
}
