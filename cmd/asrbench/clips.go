package main

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/obiente/voiceinput/internal/benchmark"
)

func newClipsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clips",
		Short: "Manage the benchmark test clips",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List clips and whether their audio is present",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := benchmark.NewClipManager(a.cfg.Benchmark.ClipsDir)
			if err != nil {
				return err
			}
			clips, err := m.Clips()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tFILE\tLANG\tPRESENT\tEXPECTED")
			for _, c := range clips {
				_, present := m.ClipPath(c)
				expected := "-"
				if c.ExpectedText != nil {
					expected = *c.ExpectedText
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", c.Name, c.Filename, c.Language, present, expected)
			}
			return tw.Flush()
		},
	}

	var clip benchmark.Clip
	var text string
	add := &cobra.Command{
		Use:   "add <file.wav>",
		Short: "Copy a WAV file into the clip set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := benchmark.NewClipManager(a.cfg.Benchmark.ClipsDir)
			if err != nil {
				return err
			}
			wav, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			c := clip
			c.Filename = filepath.Base(args[0])
			if c.Name == "" {
				c.Name = c.Filename
			}
			if cmd.Flags().Changed("text") {
				c.ExpectedText = &text
			}
			return m.AddClip(c, wav)
		},
	}
	add.Flags().StringVar(&clip.Name, "name", "", "clip name (default: file name)")
	add.Flags().StringVar(&clip.Description, "description", "", "free-form description")
	add.Flags().StringVar(&clip.Language, "language", "", "language code (default: en)")
	add.Flags().StringVar(&text, "text", "", "reference transcript used for word error rate")

	cmd.AddCommand(list, add)
	return cmd
}
