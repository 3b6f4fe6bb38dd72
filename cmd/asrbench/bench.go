package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/obiente/voiceinput/internal/benchmark"
)

func newBenchCmd(a *app) *cobra.Command {
	var (
		clipNames []string
		noSave    bool
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "bench <model>...",
		Short: "Benchmark one or more models against the test clips",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			clips, err := benchmark.NewClipManager(a.cfg.Benchmark.ClipsDir)
			if err != nil {
				return err
			}
			selected, err := selectClips(clips, clipNames)
			if err != nil {
				return err
			}

			opts := benchmark.Options{Capture: a.captureOptions()}
			if !noSave {
				reports, err := a.openReports()
				if err != nil {
					return err
				}
				defer reports.Close()
				opts.Reports = reports
			}
			h := benchmark.NewHarness(a.store, a.factory, clips, opts)

			var out []*benchmark.Report
			for _, id := range args {
				r, err := h.Run(cmd.Context(), id, selected)
				if err != nil {
					return fmt.Errorf("%s: %w", id, err)
				}
				out = append(out, r)
			}
			if asJSON {
				return a.printJSON(out)
			}
			return printSummary(a, out)
		},
	}
	cmd.Flags().StringSliceVar(&clipNames, "clip", nil, "clip names to run (default: every available clip)")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not persist the reports")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print full reports as JSON")
	return cmd
}

// selectClips returns nil, meaning every available clip, when names is empty.
func selectClips(m *benchmark.ClipManager, names []string) ([]benchmark.Clip, error) {
	if len(names) == 0 {
		return nil, nil
	}
	all, err := m.Clips()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]benchmark.Clip, len(all))
	for _, c := range all {
		byName[c.Name] = c
	}
	out := make([]benchmark.Clip, 0, len(names))
	for _, n := range names {
		c, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("%w: unknown clip %q", benchmark.ErrInvalidClip, n)
		}
		out = append(out, c)
	}
	return out, nil
}

func printSummary(a *app, reports []*benchmark.Report) error {
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tENGINE\tLOAD ms\tAVG ms\tMEDIAN ms\tPEAK MB\tWER\tWORDS/s\tCHUNKS\tPARTIALS")
	for _, r := range reports {
		m := r.Metrics
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.1f\t%.1f\t%.1f\t%.3f\t%.2f\t%d\t%d\n",
			r.ModelID, r.Engine, r.LoadTimeMs, m.AverageLatencyMs, m.MedianLatencyMs,
			m.PeakMemoryUsageMB, m.AverageWordErrorRate, m.WordsPerSecond,
			m.TotalChunksProcessed, m.PartialResultCount)
	}
	return tw.Flush()
}
