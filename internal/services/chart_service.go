package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"overdose-pipeline/internal/export"
	"overdose-pipeline/internal/repository"
	"overdose-pipeline/pkg/logging"
	"overdose-pipeline/pkg/metrics"
)

// Chart outcome statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Stages at which a chart can fail
const (
	StageLoad    = "load"
	StageCompute = "compute"
	StageExport  = "export"
)

// Exporter hands a computed chart table to the renderer
type Exporter interface {
	Write(ctx context.Context, t *export.Table) ([]string, error)
}

// ChartService computes chart tables from the source repository
type ChartService struct {
	repo     repository.CaseRepository
	exporter Exporter
	logger   *logging.StructuredLogger
	metrics  *metrics.Collector
	params   Params
	workers  int
	now      func() time.Time
}

// ChartOutcome is the result of one chart
type ChartOutcome struct {
	Chart    string
	Status   string
	Rows     int
	Files    []string
	Duration time.Duration
	Err      error
}

// RunResult contains run statistics
type RunResult struct {
	RunID           string
	TotalCharts     int
	SucceededCharts int
	FailedCharts    int
	Sources         []*repository.LoadStats
	Outcomes        []ChartOutcome
	Duration        time.Duration
	Errors          []string
}

// ChartError represents a failure of a single chart
type ChartError struct {
	Chart string
	Stage string
	Err   error
}

func (e *ChartError) Error() string {
	return fmt.Sprintf("chart %s failed during %s: %v", e.Chart, e.Stage, e.Err)
}

func (e *ChartError) Unwrap() error {
	return e.Err
}

// IsTransient returns false as chart failures are not retried
func (e *ChartError) IsTransient() bool {
	return false
}

// NewChartService creates a new chart service
func NewChartService(repo repository.CaseRepository, exporter Exporter, logger *logging.StructuredLogger, metricsCollector *metrics.Collector, params Params, workers int) *ChartService {
	if workers <= 0 {
		workers = 1
	}
	return &ChartService{
		repo:     repo,
		exporter: exporter,
		logger:   logger,
		metrics:  metricsCollector,
		params:   params,
		workers:  workers,
		now:      time.Now,
	}
}

// Run loads the sources the selected charts need, then computes and exports
// every chart concurrently. A failing chart never stops the others; the
// returned error is reserved for invalid selections.
func (s *ChartService) Run(ctx context.Context, names []string) (*RunResult, error) {
	charts, err := SelectCharts(names)
	if err != nil {
		return nil, err
	}

	runID := logging.RunIDFromContext(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = logging.WithRunID(ctx, runID)
	}
	runTimer := s.metrics.NewTimer(s.metrics.RunDuration)

	s.logger.Info(ctx, "[RUN_START] Starting chart computation", logging.Fields{
		"charts":  len(charts),
		"workers": s.workers,
		"stage":   "INITIALIZATION",
	})

	sources := sourcesFor(charts)
	tables, stats := LoadTables(ctx, s.repo, sources, s.logger)

	result := &RunResult{
		RunID:       runID,
		TotalCharts: len(charts),
		Sources:     stats,
		Outcomes:    make([]ChartOutcome, len(charts)),
		Errors:      make([]string, 0),
	}

	generatedAt := s.now().UTC()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, chart := range charts {
		g.Go(func() error {
			result.Outcomes[i] = s.runChart(gctx, chart, tables, runID, generatedAt)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range result.Outcomes {
		if o.Status == StatusSuccess {
			result.SucceededCharts++
			continue
		}
		result.FailedCharts++
		result.Errors = append(result.Errors, o.Err.Error())
	}

	result.Duration = runTimer.ObserveDuration()
	s.metrics.LastRunTimestamp.SetToCurrentTime()

	s.logger.Info(ctx, "[RUN_COMPLETE] Chart computation completed", logging.Fields{
		"total_charts":     result.TotalCharts,
		"succeeded_charts": result.SucceededCharts,
		"failed_charts":    result.FailedCharts,
		"duration_seconds": result.Duration.Seconds(),
		"error_count":      len(result.Errors),
		"stage":            "COMPLETE",
	})

	return result, nil
}

// runChart computes and exports one chart, converting any failure,
// including a panic, into a ChartOutcome
func (s *ChartService) runChart(ctx context.Context, chart Chart, tables *Tables, runID string, generatedAt time.Time) (outcome ChartOutcome) {
	timer := s.metrics.NewTimer(s.metrics.ChartDuration.WithLabelValues(chart.Name))
	outcome = ChartOutcome{Chart: chart.Name, Status: StatusError}
	logger := s.logger.WithFields(logging.Fields{
		"chart":  chart.Name,
		"source": string(chart.Source),
	})

	defer func() {
		if r := recover(); r != nil {
			outcome.Status = StatusError
			outcome.Err = &ChartError{Chart: chart.Name, Stage: StageCompute, Err: fmt.Errorf("panic: %v", r)}
			logger.Error(ctx, "[CHART_PANIC] Chart computation panicked", logging.Fields{
				"stack": string(debug.Stack()),
			}, outcome.Err)
		}
		outcome.Duration = timer.ObserveDuration()
		s.metrics.RecordChart(chart.Name, outcome.Status, outcome.Rows)
	}()

	if err := tables.Err(chart.Source); err != nil {
		outcome.Err = &ChartError{Chart: chart.Name, Stage: StageLoad, Err: err}
		logger.Error(ctx, "[CHART_ERROR] Chart source unavailable", nil, err)
		return outcome
	}
	if err := ctx.Err(); err != nil {
		outcome.Err = &ChartError{Chart: chart.Name, Stage: StageCompute, Err: err}
		return outcome
	}

	res := chart.build(tables, s.params)
	logger.Debug(ctx, "[CHART_COMPUTED] Chart table built", logging.Fields{"rows": res.n})

	files, err := s.exporter.Write(ctx, &export.Table{
		Name:        chart.Name,
		Title:       chart.Title,
		Source:      string(chart.Source),
		RunID:       runID,
		GeneratedAt: generatedAt,
		Rows:        res.rows,
		RowCount:    res.n,
	})
	if err != nil {
		outcome.Err = &ChartError{Chart: chart.Name, Stage: StageExport, Err: err}
		logger.Error(ctx, "[CHART_ERROR] Chart export failed", logging.Fields{"rows": res.n}, err)
		return outcome
	}

	outcome.Status = StatusSuccess
	outcome.Rows = res.n
	outcome.Files = files

	logger.Info(ctx, "[CHART_SUCCESS] Chart computed", logging.Fields{
		"rows":  res.n,
		"files": files,
	})
	return outcome
}

// CheckSources loads every requested source and reports its statistics
// without computing charts. An empty list checks every source.
func (s *ChartService) CheckSources(ctx context.Context, kinds []repository.SourceKind) ([]*repository.LoadStats, error) {
	if len(kinds) == 0 {
		kinds = repository.SourceKinds
	}
	if err := s.repo.HealthCheck(ctx, kinds...); err != nil {
		return nil, err
	}

	tables, stats := LoadTables(ctx, s.repo, kinds, s.logger)
	for _, k := range kinds {
		if err := tables.Err(k); err != nil {
			return stats, err
		}
	}
	return stats, nil
}
