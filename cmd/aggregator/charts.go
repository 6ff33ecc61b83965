package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"overdose-pipeline/internal/services"
)

func newChartsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "charts",
		Short: "List the chart catalog",
		Args:  cobra.NoArgs,
		// the catalog needs no configuration
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, c := range services.Catalog() {
				fmt.Fprintf(out, "%-25s %-13s %s\n", c.Name, c.Source, c.Title)
			}
			return nil
		},
	}
}
