// Package benchmark measures how a model performs on a set of test clips:
// load and warm-up time, per-chunk latency, memory growth, word error rate
// and throughput.
package benchmark

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obiente/voiceinput/internal/audio"
	"github.com/obiente/voiceinput/internal/capture"
	"github.com/obiente/voiceinput/internal/engine"
	"github.com/obiente/voiceinput/internal/model"
	"github.com/obiente/voiceinput/internal/transcription"
)

// Options configure a Harness.
type Options struct {
	Capture capture.Options
	// Reports, when set, receives every report the harness produces.
	Reports ReportStore
	Sampler Sampler
	// Device overrides CollectDeviceInfo.
	Device func() DeviceInfo
}

// Harness benchmarks installed models one at a time.
type Harness struct {
	store   *model.Store
	factory *engine.Factory
	clips   *ClipManager
	opts    Options
}

func NewHarness(store *model.Store, factory *engine.Factory, clips *ClipManager, opts Options) *Harness {
	if opts.Sampler == nil {
		opts.Sampler = ProcessSampler()
	}
	if opts.Device == nil {
		opts.Device = CollectDeviceInfo
	}
	return &Harness{store: store, factory: factory, clips: clips, opts: opts}
}

// Run loads modelID, warms it up, transcribes every clip in file mode and
// returns the report. When clips is nil every available clip is used.
func (h *Harness) Run(ctx context.Context, modelID string, clips []Clip) (*Report, error) {
	inst, err := h.store.Get(modelID)
	if err != nil {
		return nil, err
	}
	if clips == nil {
		if clips, err = h.clips.Available(); err != nil {
			return nil, err
		}
	}

	memory := NewMemoryMonitor(h.opts.Sampler)
	memory.Start()

	// Partials are counted against the clip being run by this call only.
	var current atomic.Pointer[Run]
	onPartial := func(r engine.Result) {
		if run := current.Load(); run != nil {
			run.OnPartial(r)
		}
	}
	eng, err := h.factory.ForManifest(inst.Manifest, engine.WithPartialHandler(onPartial))
	if err != nil {
		return nil, err
	}
	loadStart := time.Now()
	if err := eng.LoadModel(ctx, inst.Dir); err != nil {
		return nil, fmt.Errorf("load %s: %w", modelID, err)
	}
	loadTime := time.Since(loadStart)
	defer eng.UnloadModel()
	memory.Sample()
	log.Info().Str("model", modelID).Dur("load", loadTime).Msg("benchmark: model loaded")

	warmupTime := h.warmUp(ctx, eng)
	memory.Sample()

	copts := h.opts.Capture
	copts.SampleRate = eng.SampleRate()

	latency := NewLatencyTracker()
	var (
		results  []TestResult
		partials int
		chunks   int
		words    int
		seconds  float64
	)
	for _, c := range clips {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, run, dur, err := h.runClip(ctx, eng, inst.ID, c, copts, &current)
		if err != nil {
			log.Warn().Err(err).Str("clip", c.Name).Msg("benchmark: skipping clip")
			continue
		}
		results = append(results, res)
		for _, d := range run.Latency().Durations() {
			latency.Record(d)
		}
		partials += run.Partials()
		chunks += run.Chunks()
		words += len(strings.Fields(res.TranscribedText))
		seconds += dur.Seconds()
		memory.Sample()
	}

	metrics := Metrics{
		AverageLatencyMs:     latency.AverageMs(),
		MinLatencyMs:         latency.MinMs(),
		MaxLatencyMs:         latency.MaxMs(),
		MedianLatencyMs:      latency.MedianMs(),
		PeakMemoryUsageMB:    memory.PeakMB(),
		AverageMemoryUsageMB: memory.AverageMB(),
		AverageWordErrorRate: AverageWER(results),
		PartialResultCount:   partials,
		TotalChunksProcessed: chunks,
	}
	if seconds > 0 {
		metrics.WordsPerSecond = float64(words) / seconds
	}

	report := GenerateReport(ReportInput{
		ModelID:     inst.ID,
		ModelName:   inst.DisplayName,
		Engine:      inst.Engine,
		ModelSizeMB: float64(inst.Manifest.SizeBytes) / bytesPerMB,
		LoadTime:    loadTime,
		WarmupTime:  warmupTime,
		Metrics:     metrics,
		Results:     results,
		Device:      h.opts.Device(),
	})
	log.Info().
		Str("model", inst.ID).
		Int("clips", len(results)).
		Float64("avgLatencyMs", metrics.AverageLatencyMs).
		Float64("wer", metrics.AverageWordErrorRate).
		Msg("benchmark: run complete")

	if h.opts.Reports != nil {
		if err := h.opts.Reports.Save(ctx, report); err != nil {
			return report, fmt.Errorf("save report: %w", err)
		}
	}
	return report, nil
}

// warmUp runs one pass over half a second of silence.
func (h *Harness) warmUp(ctx context.Context, eng *engine.StreamingEngine) time.Duration {
	start := time.Now()
	if err := eng.StartCapture(); err != nil {
		return 0
	}
	eng.ProcessAudioChunk(ctx, make([]int16, eng.SampleRate()/2))
	if res := eng.StopCapture(ctx); res.Kind == engine.KindError {
		log.Debug().Str("message", res.Message).Msg("benchmark: warm-up pass failed")
	}
	return time.Since(start)
}

func (h *Harness) runClip(ctx context.Context, eng engine.Engine, modelID string, c Clip, copts capture.Options, current *atomic.Pointer[Run]) (TestResult, *Run, time.Duration, error) {
	data, err := h.clips.Read(c)
	if err != nil {
		return TestResult{}, nil, 0, err
	}
	info, err := audio.Inspect(data)
	if err != nil {
		return TestResult{}, nil, 0, err
	}

	run := NewRun(eng, h.opts.Sampler)
	run.Begin()
	current.Store(run)
	defer current.Store(nil)

	start := time.Now()
	out := transcription.TranscribeFile(ctx, run, data, copts)
	elapsed := time.Since(start)

	res := TestResult{
		TestName:        c.Name,
		ModelID:         modelID,
		ExpectedText:    c.ExpectedText,
		TranscribedText: out.Text,
		LatencyMs:       elapsed.Milliseconds(),
		MemoryUsageMB:   run.Memory().PeakMB(),
		Timestamp:       time.Now().UnixMilli(),
	}
	if out.Kind == engine.KindError {
		res.Error = out.Message
	}
	if c.ExpectedText != nil {
		wer := WER(*c.ExpectedText, out.Text)
		res.WordErrorRate = &wer
	}
	log.Debug().
		Str("clip", c.Name).
		Int("chunks", run.Chunks()).
		Int64("ms", res.LatencyMs).
		Msg("benchmark: clip transcribed")
	return res, run, info.Duration, nil
}
