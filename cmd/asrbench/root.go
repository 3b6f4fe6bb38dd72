package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/obiente/voiceinput/internal/benchmark"
	"github.com/obiente/voiceinput/internal/capture"
	"github.com/obiente/voiceinput/internal/config"
	"github.com/obiente/voiceinput/internal/engine"
	"github.com/obiente/voiceinput/internal/engine/backends"
	"github.com/obiente/voiceinput/internal/model"
)

// app is the state shared by every subcommand, built once the flags are parsed.
type app struct {
	cfg     *config.Config
	store   *model.Store
	factory *engine.Factory
	out     io.Writer

	// newFactory is swapped in tests.
	newFactory func(*config.Config) *engine.Factory
}

func newRootCmd() *cobra.Command {
	return newRootCmdWith(&app{})
}

func newRootCmdWith(a *app) *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "asrbench",
		Short:         "Manage, run and benchmark offline speech recognition models",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			if configPath == "" {
				configPath = os.Getenv("CONFIG_FILE")
			}
			return a.init(configPath, cmd.OutOrStdout())
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (yaml, toml or json)")

	root.AddCommand(
		newModelsCmd(a),
		newTranscribeCmd(a),
		newBenchCmd(a),
		newReportsCmd(a),
		newClipsCmd(a),
	)
	return root
}

func (a *app) init(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	cfg.Logging.Install()

	store, err := model.NewStore(cfg.Models.Dir)
	if err != nil {
		return fmt.Errorf("open models dir: %w", err)
	}
	newFactory := a.newFactory
	if newFactory == nil {
		newFactory = func(c *config.Config) *engine.Factory { return backends.NewFactory(c, nil) }
	}
	a.cfg, a.store, a.factory, a.out = cfg, store, newFactory(cfg), out
	return nil
}

func (a *app) captureOptions() capture.Options {
	return capture.Options{
		SampleRate:        a.cfg.Audio.SampleRate,
		LiveBufferSamples: a.cfg.Audio.LiveBufferSamples,
		QueueSize:         a.cfg.Audio.QueueSize,
		FileChunkDelay:    a.cfg.Audio.FileChunkDelayDuration(),
	}
}

// openReports opens the report store selected by benchmark.report_store.
func (a *app) openReports() (benchmark.ReportStore, error) {
	if a.cfg.Benchmark.ReportStore == "sqlite" {
		s, err := benchmark.OpenSQLite(a.cfg.Benchmark.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := benchmark.NewFileStore(a.cfg.Benchmark.ReportsDir)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
