package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"overdose-pipeline/internal/models"
	"overdose-pipeline/internal/repository"
	"overdose-pipeline/pkg/logging"
)

// Tables holds the labeled source tables for one run. It is filled before
// any chart runs and is only read afterwards.
type Tables struct {
	cases  map[repository.SourceKind][]models.LabeledCase
	drugs  []models.DrugInvolvementRecord
	failed map[repository.SourceKind]error
}

// NewTables creates an empty table set
func NewTables() *Tables {
	return &Tables{
		cases:  make(map[repository.SourceKind][]models.LabeledCase),
		failed: make(map[repository.SourceKind]error),
	}
}

// Cases returns the labeled rows of a case-shaped table
func (t *Tables) Cases(kind repository.SourceKind) []models.LabeledCase {
	return t.cases[kind]
}

// Drugs returns the drug involvement rows
func (t *Tables) Drugs() []models.DrugInvolvementRecord {
	return t.drugs
}

// Err reports why a source could not be loaded, or nil
func (t *Tables) Err(kind repository.SourceKind) error {
	return t.failed[kind]
}

// SetCases stores already loaded case records, labeling them
func (t *Tables) SetCases(kind repository.SourceKind, records []models.CaseRecord) {
	t.cases[kind] = models.LabelAll(records)
}

// SetDrugs stores drug involvement records
func (t *Tables) SetDrugs(records []models.DrugInvolvementRecord) {
	t.drugs = records
}

// LoadTables loads the given sources concurrently. A source that fails is
// recorded on the returned Tables; only the charts reading it fail later.
func LoadTables(ctx context.Context, repo repository.CaseRepository, kinds []repository.SourceKind, logger *logging.StructuredLogger) (*Tables, []*repository.LoadStats) {
	tables := NewTables()

	var (
		mu    sync.Mutex
		stats []*repository.LoadStats
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range kinds {
		g.Go(func() error {
			start := time.Now()

			var (
				cases []models.LabeledCase
				drugs []models.DrugInvolvementRecord
				st    *repository.LoadStats
				err   error
			)
			if kind == repository.SourceDrugs {
				drugs, st, err = repo.LoadDrugInvolvements(gctx)
			} else {
				var records []models.CaseRecord
				records, st, err = repo.LoadCases(gctx, kind)
				cases = models.LabelAll(records)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				tables.failed[kind] = fmt.Errorf("load %s: %w", kind, err)
				logger.Error(ctx, "[LOAD_ERROR] Source could not be loaded", logging.Fields{
					"source":      string(kind),
					"duration_ms": time.Since(start).Milliseconds(),
				}, err)
				return nil
			}
			if kind == repository.SourceDrugs {
				tables.drugs = drugs
			} else {
				tables.cases[kind] = cases
			}
			stats = append(stats, st)
			return nil
		})
	}
	_ = g.Wait()

	return tables, orderStats(stats)
}

func orderStats(stats []*repository.LoadStats) []*repository.LoadStats {
	out := make([]*repository.LoadStats, 0, len(stats))
	for _, k := range repository.SourceKinds {
		for _, s := range stats {
			if s.Source == k {
				out = append(out, s)
			}
		}
	}
	return out
}
