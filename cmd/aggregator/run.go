package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"overdose-pipeline/internal/export"
	"overdose-pipeline/internal/services"
	"overdose-pipeline/pkg/logging"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		charts  []string
		outDir  string
		formats []string
		workers int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compute and export chart tables",
		Long: `Load the source tables the selected charts need, compute every chart
concurrently and write <chart>.json and/or <chart>.csv into the output
directory. A failing chart does not stop the others; the command exits
non-zero when any chart failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("charts") {
				a.cfg.Pipeline.Charts = charts
			}
			if cmd.Flags().Changed("out") {
				a.cfg.Output.Dir = outDir
			}
			if cmd.Flags().Changed("format") {
				a.cfg.Output.Formats = formats
			}
			if cmd.Flags().Changed("workers") {
				a.cfg.Pipeline.Workers = workers
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			return a.run(cmd)
		},
	}

	cmd.Flags().StringSliceVar(&charts, "charts", nil, "charts to compute (default all)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory")
	cmd.Flags().StringSliceVar(&formats, "format", nil, "output formats: json, csv")
	cmd.Flags().IntVar(&workers, "workers", 0, "number of charts computed in parallel")
	return cmd
}

func (a *app) run(cmd *cobra.Command) error {
	ctx := runContext(cmd.Context())
	defer a.logger.Sync()
	defer a.flushMetrics(ctx)

	a.logger.Info(ctx, "[AGGREGATOR_START] Starting chart aggregation", logging.Fields{
		"version":     version,
		"source_kind": a.cfg.Source.Kind,
		"output_dir":  a.cfg.Output.Dir,
		"formats":     a.cfg.Output.Formats,
		"workers":     a.cfg.Pipeline.Workers,
	})

	repo, err := a.openRepository(ctx)
	if err != nil {
		a.logger.Error(ctx, "[AGGREGATOR_ERROR] Failed to open source", logging.Fields{}, err)
		return err
	}
	defer repo.Close()

	writer, err := export.NewWriter(a.cfg.Output.Dir, a.cfg.Output.Formats, a.logger)
	if err != nil {
		return err
	}

	svc := services.NewChartService(repo, writer, a.logger, a.metrics, a.cfg.Params(), a.cfg.Pipeline.Workers)
	result, err := svc.Run(ctx, a.cfg.Pipeline.Charts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, strings.Repeat("=", 80))
	fmt.Fprintln(out, "AGGREGATION COMPLETE")
	fmt.Fprintln(out, strings.Repeat("=", 80))
	fmt.Fprintf(out, "Run ID:             %s\n", result.RunID)
	for _, s := range result.Sources {
		fmt.Fprintf(out, "Source %-12s loaded %d of %d rows (%d rejected, %d flagged)\n",
			s.Source+":", s.LoadedRows, s.TotalRows, s.RejectedRows, s.FlaggedRows)
	}
	fmt.Fprintf(out, "Charts:             %d\n", result.TotalCharts)
	fmt.Fprintf(out, "Succeeded:          %d\n", result.SucceededCharts)
	fmt.Fprintf(out, "Failed:             %d\n", result.FailedCharts)
	fmt.Fprintf(out, "Duration:           %v\n", result.Duration)

	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "\nErrors (%d):\n", len(result.Errors))
		for _, errMsg := range result.Errors {
			fmt.Fprintf(out, "  - %s\n", errMsg)
		}
		return fmt.Errorf("%d of %d charts failed", result.FailedCharts, result.TotalCharts)
	}
	return nil
}
