package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/obiente/voiceinput/internal/engine"
	"github.com/obiente/voiceinput/internal/engine/backends"
)

func newModelsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List, install, validate and delete installed models",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List installed models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			models, err := a.store.List()
			if err != nil {
				return err
			}
			available := backends.Available()
			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tENGINE\tREADY\tAVAILABLE\tNAME")
			for _, m := range models {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\n",
					m.ID, m.Engine, m.Ready, available[engine.Type(m.Engine)], m.DisplayName)
			}
			return tw.Flush()
		},
	}

	var id string
	install := &cobra.Command{
		Use:   "install <file>",
		Short: "Copy a model file into the models directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id is required")
			}
			dst, err := a.store.Install(args[0], id)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, dst)
			return nil
		},
	}
	install.Flags().StringVar(&id, "id", "", "model id (directory name)")

	validate := &cobra.Command{
		Use:   "validate <id>",
		Short: "Check a model's files against its manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.Validate(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s: ok\n", args[0])
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Remove an installed model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.store.Delete(args[0])
		},
	}

	cmd.AddCommand(list, install, validate, del)
	return cmd
}
