package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"overdose-pipeline/internal/config"
	"overdose-pipeline/internal/repository"
	"overdose-pipeline/pkg/database"
	"overdose-pipeline/pkg/logging"
	"overdose-pipeline/pkg/metrics"
)

const (
	serviceName = "overdose-aggregator"
	version     = "1.0.0"
)

// app carries the state shared by every subcommand
type app struct {
	configPath string
	verbose    bool

	cfg     *config.Config
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "aggregator",
		Short: "Compute overdose chart tables from case records",
		Long: `aggregator reads fatal overdose case tables from CSV files or a SQL
database and writes one aggregated table per chart for the renderer.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to config YAML (default config.yaml when present)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newRunCmd(a), newChartsCmd(), newCheckCmd(a))
	return root
}

func (a *app) init() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	a.cfg = cfg

	a.logger = logging.NewStructuredLogger(serviceName, version, cfg.LogLevel())
	if a.verbose {
		a.logger.SetLevel(logging.DebugLevel)
	}
	a.metrics = metrics.NewCollector(cfg.Metrics.Namespace)
	return nil
}

// runContext returns a context tagged with a fresh run ID
func runContext(ctx context.Context) context.Context {
	return logging.WithRunID(ctx, uuid.NewString())
}

// openRepository builds the configured source repository
func (a *app) openRepository(ctx context.Context) (repository.CaseRepository, error) {
	switch a.cfg.Source.Kind {
	case config.SourceSQL:
		db, err := database.NewDB(ctx, a.cfg.DatabaseConfig(), a.logger, a.metrics)
		if err != nil {
			return nil, err
		}
		repo, err := repository.NewSQLRepository(db, a.cfg.SQLTables(), a.logger, a.metrics)
		if err != nil {
			db.Close()
			return nil, err
		}
		return repo, nil
	default:
		return repository.NewCSVRepository(a.cfg.CSVPaths(), a.cfg.Source.Encoding, a.logger, a.metrics)
	}
}

// flushMetrics writes the metrics textfile when one is configured
func (a *app) flushMetrics(ctx context.Context) {
	path := a.cfg.Metrics.Textfile
	if path == "" {
		return
	}
	if err := a.metrics.WriteTextfile(path); err != nil {
		a.logger.Error(ctx, "[METRICS_ERROR] Failed to write metrics textfile", logging.Fields{
			"path": path,
		}, err)
		return
	}
	a.logger.Debug(ctx, "[METRICS_WRITE] Metrics textfile written", logging.Fields{"path": path})
}
