package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/obiente/voiceinput/internal/engine"
	"github.com/obiente/voiceinput/internal/transcription"
)

func newTranscribeCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "transcribe <model> <file.wav>",
		Short: "Transcribe a WAV file with an installed model",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			inst, err := a.store.Get(args[0])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			eng, err := a.factory.ForManifest(inst.Manifest)
			if err != nil {
				return err
			}
			if err := eng.LoadModel(cmd.Context(), inst.Dir); err != nil {
				return err
			}
			defer eng.UnloadModel()

			opts := a.captureOptions()
			opts.SampleRate = eng.SampleRate()
			opts.FileChunkDelay = 0
			res := transcription.TranscribeFile(cmd.Context(), eng, data, opts)
			if asJSON {
				if err := a.printJSON(res); err != nil {
					return err
				}
			} else if res.Kind == engine.KindSuccess {
				fmt.Fprintln(a.out, res.Text)
			}
			if res.Kind == engine.KindError {
				return errors.New(res.Message)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}
