package benchmark

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obiente/voiceinput/internal/audio"
	"github.com/obiente/voiceinput/internal/capture"
	"github.com/obiente/voiceinput/internal/engine"
	"github.com/obiente/voiceinput/internal/engine/enginetest"
	"github.com/obiente/voiceinput/internal/model"
)

// scripted returns each value in turn, repeating the last one.
func scripted(values ...float64) Sampler {
	i := 0
	return func() (float64, error) {
		v := values[min(i, len(values)-1)]
		i++
		return v, nil
	}
}

func TestWER(t *testing.T) {
	cases := []struct {
		name     string
		ref, hyp string
		want     float64
	}{
		{"identical", "the quick brown fox", "the quick brown fox", 0},
		{"empty hypothesis", "a b c", "", 1},
		{"both empty", "", "", 0},
		{"empty reference", "", "something", 1},
		{"one substitution", "a b c", "a x c", 1.0 / 3},
		{"case and spacing", "Hello   World", "hello world", 0},
		{"insertion", "a b", "a b c", 0.5},
		{"deletion", "a b c d", "a c d", 0.25},
		{"more errors than words", "a", "x y z", 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, WER(tc.ref, tc.hyp), 1e-9)
		})
	}
}

func TestWordsPerSecond(t *testing.T) {
	assert.Equal(t, 2.0, WordsPerSecond(" one two  three four ", 2))
	assert.Equal(t, 0.0, WordsPerSecond("one", 0))
	assert.Equal(t, 0.0, WordsPerSecond("", 3))
}

func TestLatencyTrackerStatistics(t *testing.T) {
	lt := NewLatencyTracker()
	assert.Zero(t, lt.AverageMs())
	assert.Zero(t, lt.MedianMs())
	assert.Zero(t, lt.MinMs())

	for _, d := range []int{40, 10, 30, 20} {
		lt.Record(time.Duration(d) * time.Millisecond)
	}
	assert.Equal(t, 4, lt.Count())
	assert.InDelta(t, 25, lt.AverageMs(), 1e-9)
	assert.InDelta(t, 10, lt.MinMs(), 1e-9)
	assert.InDelta(t, 40, lt.MaxMs(), 1e-9)
	assert.InDelta(t, 25, lt.MedianMs(), 1e-9)

	lt.Record(100 * time.Millisecond)
	assert.InDelta(t, 30, lt.MedianMs(), 1e-9)

	lt.Clear()
	assert.Equal(t, 0, lt.Count())
}

func TestLatencyTrackerChunkTiming(t *testing.T) {
	lt := NewLatencyTracker()
	lt.EndChunk()
	assert.Equal(t, 0, lt.Count())

	lt.StartChunk()
	time.Sleep(2 * time.Millisecond)
	lt.EndChunk()
	require.Equal(t, 1, lt.Count())
	assert.GreaterOrEqual(t, lt.MinMs(), 2.0)

	lt.EndChunk()
	assert.Equal(t, 1, lt.Count())
}

func TestMemoryMonitorIsRelativeToBaseline(t *testing.T) {
	m := NewMemoryMonitor(scripted(100, 110, 130, 120, 90))
	assert.Zero(t, m.PeakMB())

	m.Start()
	m.Sample()
	m.Sample()
	m.Sample()
	assert.InDelta(t, 30, m.PeakMB(), 1e-9)
	assert.InDelta(t, 20, m.AverageMB(), 1e-9)
	assert.InDelta(t, -10, m.IncreaseMB(), 1e-9)
	assert.Equal(t, 3, m.Count())

	below := NewMemoryMonitor(scripted(100, 50))
	below.Start()
	below.Sample()
	assert.Zero(t, below.PeakMB())
	assert.Zero(t, below.AverageMB())
}

func TestProcessSamplerReportsMemory(t *testing.T) {
	v, err := ProcessSampler()()
	require.NoError(t, err)
	assert.Positive(t, v)
}

func TestRunCountsChunksAndPartials(t *testing.T) {
	ctx := context.Background()
	b := &enginetest.Backend{Fn: enginetest.Label}
	var run *Run
	eng := engine.NewStreaming(enginetest.Variant(engine.TypeONNX, true, b),
		engine.WithPartialHandler(func(r engine.Result) { run.OnPartial(r) }))
	require.NoError(t, eng.LoadModel(ctx, enginetest.WriteModel(t, t.TempDir(), "m", engine.TypeONNX)))

	run = NewRun(eng, scripted(10, 12, 15))
	run.Begin()
	require.NoError(t, run.StartCapture())
	run.ProcessAudioChunk(ctx, make([]int16, 8000))
	run.ProcessAudioChunk(ctx, make([]int16, 4000))
	assert.Equal(t, engine.Success("s0 s0"), run.StopCapture(ctx))

	m := run.Metrics()
	assert.Equal(t, 2, m.TotalChunksProcessed)
	assert.Equal(t, 1, m.PartialResultCount)
	assert.InDelta(t, 5, m.PeakMemoryUsageMB, 1e-9)
	assert.Equal(t, 0, run.Errors())
}

func TestFileStoreSavesAndSelectsLatest(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Latest(ctx, "")
	assert.ErrorIs(t, err, ErrNoReports)

	base := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)
	older := GenerateReport(ReportInput{ModelID: "parakeet", Now: base})
	newer := GenerateReport(ReportInput{ModelID: "parakeet", Now: base.Add(time.Minute)})
	other := GenerateReport(ReportInput{ModelID: "whisper-base", Now: base.Add(time.Hour)})

	path, err := s.SaveFile(older)
	require.NoError(t, err)
	assert.Equal(t, "benchmark_parakeet_20240309_140506.json", filepath.Base(path))
	require.NoError(t, s.Save(ctx, newer))
	require.NoError(t, s.Save(ctx, other))

	// Order is by modification time, so make it unambiguous.
	for i, r := range []*Report{older, newer, other} {
		mod := base.Add(time.Duration(i) * time.Second)
		require.NoError(t, os.Chtimes(filepath.Join(s.Dir(), ReportFileName(r)), mod, mod))
	}
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "benchmark_broken_x.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("x"), 0o644))

	got, err := s.Latest(ctx, "parakeet")
	require.NoError(t, err)
	assert.Equal(t, newer.RunID, got.RunID)

	got, err = s.Latest(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, other.RunID, got.RunID)

	_, err = s.Latest(ctx, "vosk")
	assert.ErrorIs(t, err, ErrNoReports)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{other.RunID, newer.RunID, older.RunID},
		[]string{all[0].RunID, all[1].RunID, all[2].RunID})
	assert.NotNil(t, all[2].TestResults)
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "reports.db"))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Latest(ctx, "parakeet")
	assert.ErrorIs(t, err, ErrNoReports)

	base := time.UnixMilli(1_700_000_000_000)
	wer := 0.25
	first := GenerateReport(ReportInput{
		ModelID: "parakeet", Engine: "onnx", Now: base,
		Results: []TestResult{{TestName: "clip", WordErrorRate: &wer}},
		Metrics: Metrics{AverageWordErrorRate: wer, TotalChunksProcessed: 4},
	})
	second := GenerateReport(ReportInput{ModelID: "parakeet", Engine: "onnx", Now: base.Add(time.Second)})
	third := GenerateReport(ReportInput{ModelID: "whisper-base", Engine: "whisper", Now: base.Add(2 * time.Second)})
	for _, r := range []*Report{first, second, third} {
		require.NoError(t, s.Save(ctx, r))
	}

	got, err := s.Latest(ctx, "parakeet")
	require.NoError(t, err)
	assert.Equal(t, second.RunID, got.RunID)

	got, err = s.Get(ctx, first.RunID)
	require.NoError(t, err)
	assert.Equal(t, first, got)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, third.RunID, all[0].RunID)

	// Saving an existing run id replaces it.
	first.ModelName = "Parakeet"
	require.NoError(t, s.Save(ctx, first))
	all, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// The caller's report is never modified.
	noID := &Report{ModelID: "x", Timestamp: base.UnixMilli()}
	assert.ErrorIs(t, s.Save(ctx, noID), ErrMissingRunID)
	assert.Empty(t, noID.RunID)
	all, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func silence(t *testing.T, seconds float64) []byte {
	t.Helper()
	wav, err := audio.Encode(make([]int16, int(16000*seconds)), 16000, 1)
	require.NoError(t, err)
	return wav
}

func TestClipManager(t *testing.T) {
	dir := t.TempDir()
	m, err := NewClipManager(dir)
	require.NoError(t, err)

	clips, err := m.Clips()
	require.NoError(t, err)
	require.Len(t, clips, 6)
	assert.Equal(t, "clean_male_en.wav", clips[0].Filename)
	assert.Nil(t, clips[5].ExpectedText)
	assert.Equal(t, "bn", clips[5].Language)

	available, err := m.Available()
	require.NoError(t, err)
	assert.Empty(t, available)

	c := Clip{Name: "Silence", Filename: "silence.wav", ExpectedText: text("")}
	require.NoError(t, m.AddClip(c, silence(t, 1)))
	available, err = m.Available()
	require.NoError(t, err)
	require.Len(t, available, 1)
	assert.Equal(t, "en", available[0].Language)
	assert.Equal(t, 16000, available[0].SampleRate)
	assert.Equal(t, 1, available[0].Channels)

	d, err := m.Duration(available[0])
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)

	// Re-adding replaces the entry rather than duplicating it.
	require.NoError(t, m.AddClip(c, silence(t, 0.5)))
	clips, err = m.Clips()
	require.NoError(t, err)
	assert.Len(t, clips, 7)

	assert.ErrorIs(t, m.AddClip(Clip{Filename: "../escape.wav"}, silence(t, 1)), ErrInvalidClip)
	assert.ErrorIs(t, m.AddClip(Clip{Filename: "junk.wav"}, []byte("nope")), ErrInvalidClip)

	// An existing manifest is left alone.
	again, err := NewClipManager(dir)
	require.NoError(t, err)
	clips, err = again.Clips()
	require.NoError(t, err)
	assert.Len(t, clips, 7)
}

func newHarness(t *testing.T, b *enginetest.Backend, reports ReportStore) (*Harness, *ClipManager) {
	t.Helper()
	store, err := model.NewStore(t.TempDir())
	require.NoError(t, err)
	enginetest.WriteModel(t, store.Dir(), "parakeet", engine.TypeONNX)

	clips, err := NewClipManager(t.TempDir())
	require.NoError(t, err)
	h := NewHarness(store, enginetest.Factory(enginetest.Variant(engine.TypeONNX, true, b)), clips, Options{
		Capture: capture.Options{FileChunkDelay: time.Millisecond},
		Reports: reports,
		Sampler: scripted(100, 120, 110),
		Device:  func() DeviceInfo { return DeviceInfo{Hostname: "bench", OS: "linux"} },
	})
	return h, clips
}

func TestHarnessOneSecondOfSilence(t *testing.T) {
	ctx := context.Background()
	reports, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	b := &enginetest.Backend{Fn: enginetest.Label}
	h, clips := newHarness(t, b, reports)
	require.NoError(t, clips.AddClip(Clip{Name: "Silence", Filename: "silence.wav", ExpectedText: text("s0 s0")}, silence(t, 1)))

	report, err := h.Run(ctx, "parakeet", nil)
	require.NoError(t, err)

	assert.Equal(t, "parakeet", report.ModelID)
	assert.Equal(t, "Test parakeet", report.ModelName)
	assert.Equal(t, "onnx", report.Engine)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "bench", report.DeviceInfo.Hostname)
	assert.Equal(t, 2, report.Metrics.TotalChunksProcessed)
	assert.Equal(t, 2, report.Metrics.PartialResultCount)
	assert.InDelta(t, 2.0, report.Metrics.WordsPerSecond, 1e-9)
	assert.Zero(t, report.Metrics.AverageWordErrorRate)
	assert.InDelta(t, 20, report.Metrics.PeakMemoryUsageMB, 1e-9)

	require.Len(t, report.TestResults, 1)
	res := report.TestResults[0]
	assert.Equal(t, "Silence", res.TestName)
	assert.Equal(t, "s0 s0", res.TranscribedText)
	require.NotNil(t, res.WordErrorRate)
	assert.Zero(t, *res.WordErrorRate)
	assert.Empty(t, res.Error)

	// Warm-up plus two clip chunks.
	assert.Equal(t, []int{8000, 8000, 8000}, b.Calls())
	assert.True(t, b.Closed())

	saved, err := reports.Latest(ctx, "parakeet")
	require.NoError(t, err)
	assert.Equal(t, report.RunID, saved.RunID)
}

func TestConcurrentRunsKeepTheirOwnPartials(t *testing.T) {
	store, err := model.NewStore(t.TempDir())
	require.NoError(t, err)
	enginetest.WriteModel(t, store.Dir(), "parakeet", engine.TypeONNX)
	clips, err := NewClipManager(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, clips.AddClip(Clip{Name: "Silence", Filename: "silence.wav"}, silence(t, 1)))

	b := &enginetest.Backend{Fn: enginetest.Label}
	h := NewHarness(store, enginetest.Factory(enginetest.Variant(engine.TypeONNX, true, b)), clips, Options{
		Capture: capture.Options{FileChunkDelay: 5 * time.Millisecond},
		Sampler: func() (float64, error) { return 100, nil },
		Device:  func() DeviceInfo { return DeviceInfo{Hostname: "bench"} },
	})

	const runs = 4
	reports := make([]*Report, runs)
	errs := make([]error, runs)
	var wg sync.WaitGroup
	for i := range runs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reports[i], errs[i] = h.Run(context.Background(), "parakeet", nil)
		}()
	}
	wg.Wait()

	for i := range runs {
		require.NoError(t, errs[i])
		assert.Equal(t, 2, reports[i].Metrics.PartialResultCount, "run %d", i)
		assert.Equal(t, 2, reports[i].Metrics.TotalChunksProcessed, "run %d", i)
	}
}

func TestHarnessScoresEmptyTranscript(t *testing.T) {
	b := &enginetest.Backend{Fn: func(context.Context, []int16) (string, error) { return "", nil }}
	h, clips := newHarness(t, b, nil)
	require.NoError(t, clips.AddClip(Clip{Name: "Short", Filename: "short.wav", ExpectedText: text("hello")}, silence(t, 0.25)))

	report, err := h.Run(context.Background(), "parakeet", nil)
	require.NoError(t, err)
	require.Len(t, report.TestResults, 1)
	res := report.TestResults[0]
	assert.Empty(t, res.TranscribedText)
	require.NotNil(t, res.WordErrorRate)
	assert.Equal(t, 1.0, *res.WordErrorRate)
	assert.Equal(t, 1.0, report.Metrics.AverageWordErrorRate)
	assert.Equal(t, 1, report.Metrics.TotalChunksProcessed)
	assert.Zero(t, report.Metrics.PartialResultCount)
}

func TestHarnessUnknownModel(t *testing.T) {
	h, _ := newHarness(t, &enginetest.Backend{}, nil)
	_, err := h.Run(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
