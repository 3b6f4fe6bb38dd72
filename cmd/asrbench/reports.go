package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/obiente/voiceinput/internal/benchmark"
)

func newReportsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect saved benchmark reports",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openReports()
			if err != nil {
				return err
			}
			defer store.Close()
			reports, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tMODEL\tTIME\tAVG ms\tWER")
			for _, r := range reports {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t%.3f\n", r.RunID, r.ModelID,
					r.Time().UTC().Format("2006-01-02 15:04:05"),
					r.Metrics.AverageLatencyMs, r.Metrics.AverageWordErrorRate)
			}
			return tw.Flush()
		},
	}

	latest := &cobra.Command{
		Use:   "latest [model]",
		Short: "Print the most recent report, optionally for one model",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openReports()
			if err != nil {
				return err
			}
			defer store.Close()
			var modelID string
			if len(args) == 1 {
				modelID = args[0]
			}
			r, err := store.Latest(cmd.Context(), modelID)
			if err != nil {
				return err
			}
			return a.printJSON(r)
		},
	}

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print one report by run id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openReports()
			if err != nil {
				return err
			}
			defer store.Close()
			reports, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range reports {
				if r.RunID == args[0] {
					return a.printJSON(r)
				}
			}
			return fmt.Errorf("%w: run %s", benchmark.ErrNoReports, args[0])
		},
	}

	cmd.AddCommand(list, latest, show)
	return cmd
}
