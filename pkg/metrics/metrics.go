package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector provides pipeline metrics collection
type Collector struct {
	registry *prometheus.Registry

	// Source Metrics
	SourceRowsTotal     *prometheus.CounterVec
	SourceRejectedTotal *prometheus.CounterVec
	SourceInvalidTotal  *prometheus.CounterVec
	SourceLoadDuration  *prometheus.HistogramVec

	// Database Metrics
	DBQueryDuration  *prometheus.HistogramVec
	DBConnectionPool *prometheus.GaugeVec
	DBErrorsTotal    *prometheus.CounterVec

	// Chart Metrics
	ChartComputationsTotal *prometheus.CounterVec
	ChartDuration          *prometheus.HistogramVec
	ChartRows              *prometheus.GaugeVec

	// Run Metrics
	RunDuration      prometheus.Histogram
	LastRunTimestamp prometheus.Gauge
}

// NewCollector creates a new metrics collector on a private registry
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		SourceRowsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_rows_loaded_total",
				Help:      "Total number of rows loaded by source table",
			},
			[]string{"source"},
		),

		SourceRejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_rows_rejected_total",
				Help:      "Total number of rows rejected during load by source and reason",
			},
			[]string{"source", "reason"},
		),

		SourceInvalidTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_values_invalid_total",
				Help:      "Total number of unparseable values in loaded rows by source and field",
			},
			[]string{"source", "field"},
		),

		SourceLoadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "source_load_duration_seconds",
				Help:      "Duration of source table loads in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"source"},
		),

		DBQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Database query duration in seconds by query type",
				Buckets:   []float64{0.001, 0.002, 0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1, 5},
			},
			[]string{"query_type"},
		),

		DBConnectionPool: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connection_pool",
				Help:      "Database connection pool statistics",
			},
			[]string{"state"}, // "in_use", "idle", "total"
		),

		DBErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_errors_total",
				Help:      "Total number of database errors by type",
			},
			[]string{"error_type"},
		),

		ChartComputationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chart_computations_total",
				Help:      "Total number of chart table computations by chart and status",
			},
			[]string{"chart", "status"},
		),

		ChartDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "chart_duration_seconds",
				Help:      "Duration of a chart computation and export in seconds",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
			},
			[]string{"chart"},
		),

		ChartRows: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "chart_rows",
				Help:      "Number of rows in the last computed chart table",
			},
			[]string{"chart"},
		),

		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of a full pipeline run in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
		),

		LastRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the last completed pipeline run",
			},
		),
	}
}

// Timer provides timing functionality for operations
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// NewTimer creates a new timer
func (c *Collector) NewTimer(histogram prometheus.Observer) *Timer {
	return &Timer{
		start:    time.Now(),
		observer: histogram,
	}
}

// ObserveDuration records the elapsed time since timer creation
func (t *Timer) ObserveDuration() time.Duration {
	duration := time.Since(t.start)
	if t.observer != nil {
		t.observer.Observe(duration.Seconds())
	}
	return duration
}

// RecordSourceRows adds loaded rows for a source table
func (c *Collector) RecordSourceRows(source string, n int) {
	c.SourceRowsTotal.WithLabelValues(source).Add(float64(n))
}

// RecordRejectedRow increments the rejected row counter
func (c *Collector) RecordRejectedRow(source, reason string) {
	c.SourceRejectedTotal.WithLabelValues(source, reason).Inc()
}

// RecordInvalidValue counts a value kept on a loaded row but not parseable
func (c *Collector) RecordInvalidValue(source, field string) {
	c.SourceInvalidTotal.WithLabelValues(source, field).Inc()
}

// RecordChart records the outcome of one chart computation
func (c *Collector) RecordChart(chart, status string, rows int) {
	c.ChartComputationsTotal.WithLabelValues(chart, status).Inc()
	if status == "success" {
		c.ChartRows.WithLabelValues(chart).Set(float64(rows))
	}
}

// RecordDBError increments database error counter
func (c *Collector) RecordDBError(errorType string) {
	c.DBErrorsTotal.WithLabelValues(errorType).Inc()
}

// UpdateDBConnectionPool updates database connection pool metrics
func (c *Collector) UpdateDBConnectionPool(inUse, idle, total int) {
	c.DBConnectionPool.WithLabelValues("in_use").Set(float64(inUse))
	c.DBConnectionPool.WithLabelValues("idle").Set(float64(idle))
	c.DBConnectionPool.WithLabelValues("total").Set(float64(total))
}

// WriteTextfile writes the registry in the node_exporter textfile format.
// The file is written atomically by the prometheus helper.
func (c *Collector) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
