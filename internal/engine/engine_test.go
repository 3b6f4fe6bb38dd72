package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obiente/voiceinput/internal/engine"
	"github.com/obiente/voiceinput/internal/engine/enginetest"
	"github.com/obiente/voiceinput/internal/model"
)

type collector struct {
	mu      sync.Mutex
	results []engine.Result
}

func (c *collector) add(r engine.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, r)
}

func (c *collector) all() []engine.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]engine.Result(nil), c.results...)
}

func loaded(t *testing.T, partial bool, fn enginetest.TranscribeFunc, opts ...engine.Option) (*engine.StreamingEngine, *enginetest.Backend) {
	t.Helper()
	b := &enginetest.Backend{Fn: fn}
	e := engine.NewStreaming(enginetest.Variant(engine.TypeONNX, partial, b), opts...)
	dir := enginetest.WriteModel(t, t.TempDir(), "m", engine.TypeONNX)
	require.NoError(t, e.LoadModel(context.Background(), dir))
	return e, b
}

func TestChunkingDoesNotChangeTranscript(t *testing.T) {
	ctx := context.Background()
	input := enginetest.Samples(0, 20000)

	var want engine.Result
	for _, size := range []int{len(input), 1, 7, 333, 8000, 12345} {
		e, b := loaded(t, true, enginetest.Label)
		require.NoError(t, e.StartCapture())
		for off := 0; off < len(input); off += size {
			end := min(off+size, len(input))
			e.ProcessAudioChunk(ctx, input[off:end])
		}
		got := e.StopCapture(ctx)
		require.Equal(t, engine.KindSuccess, got.Kind, "size %d", size)
		assert.Equal(t, len(input), e.Stats().Processed, "size %d", size)
		assert.Equal(t, []int{8000, 8000, 4000}, b.Calls(), "size %d", size)
		if size == len(input) {
			want = got
			assert.Equal(t, "s0 s8000 s16000", got.Text)
			continue
		}
		assert.Equal(t, want, got, "size %d", size)
	}
}

func TestStopWithoutAudio(t *testing.T) {
	e, _ := loaded(t, true, enginetest.Label)
	require.NoError(t, e.StartCapture())
	got := e.StopCapture(context.Background())
	assert.Equal(t, engine.Failure("No audio captured"), got)

	// A second stop has no capture to finish.
	assert.Equal(t, engine.KindError, e.StopCapture(context.Background()).Kind)
}

func TestStartCaptureRequiresModel(t *testing.T) {
	e := engine.NewStreaming(enginetest.Variant(engine.TypeONNX, true, &enginetest.Backend{}))
	assert.ErrorIs(t, e.StartCapture(), engine.ErrNotLoaded)
	assert.False(t, e.IsLoaded())
	assert.Equal(t, engine.Failure("No model loaded"), e.StopCapture(context.Background()))
}

func TestChunksOutsideCaptureAreIgnored(t *testing.T) {
	e, b := loaded(t, true, enginetest.Label)
	e.ProcessAudioChunk(context.Background(), enginetest.Samples(0, 16000))
	assert.Empty(t, b.Calls())
	assert.Zero(t, e.Stats().Captured)
}

func TestPartialsAccumulate(t *testing.T) {
	var c collector
	e, _ := loaded(t, true, enginetest.Words("hello", "world", "again"), engine.WithPartialHandler(c.add))
	ctx := context.Background()
	require.NoError(t, e.StartCapture())

	e.ProcessAudioChunk(ctx, make([]int16, 16000))
	e.ProcessAudioChunk(ctx, make([]int16, 100))

	assert.Equal(t, []engine.Result{engine.Partial("hello"), engine.Partial("hello world")}, c.all())
	assert.Equal(t, engine.Success("hello world again"), e.StopCapture(ctx))
	assert.Equal(t, 2, e.Stats().Partials)
}

func TestInferenceErrorBecomesResult(t *testing.T) {
	var c collector
	calls := 0
	fn := func(context.Context, []int16) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("boom")
		}
		return "ok", nil
	}
	e, _ := loaded(t, true, fn, engine.WithPartialHandler(c.add))
	ctx := context.Background()
	require.NoError(t, e.StartCapture())
	e.ProcessAudioChunk(ctx, make([]int16, 16000))

	got := c.all()
	require.Len(t, got, 2)
	assert.Equal(t, engine.KindError, got[0].Kind)
	assert.Contains(t, got[0].Message, "boom")
	assert.Equal(t, engine.Partial("ok"), got[1])
	assert.Equal(t, 1, e.Stats().Errors)
	assert.Equal(t, engine.Success("ok"), e.StopCapture(ctx))
}

func TestBackendPanicIsRecovered(t *testing.T) {
	var c collector
	e, _ := loaded(t, true, func(context.Context, []int16) (string, error) { panic("native crash") },
		engine.WithPartialHandler(c.add))
	ctx := context.Background()
	require.NoError(t, e.StartCapture())
	e.ProcessAudioChunk(ctx, make([]int16, 8000))

	got := c.all()
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Message, "native crash")
}

func TestFinalPassFailure(t *testing.T) {
	ctx := context.Background()
	fn := func(_ context.Context, s []int16) (string, error) {
		if len(s) < 8000 {
			return "", errors.New("flush failed")
		}
		return "word", nil
	}

	t.Run("keeps earlier text", func(t *testing.T) {
		e, _ := loaded(t, true, fn)
		require.NoError(t, e.StartCapture())
		e.ProcessAudioChunk(ctx, make([]int16, 10000))
		assert.Equal(t, engine.Success("word"), e.StopCapture(ctx))
	})

	t.Run("fails with nothing else", func(t *testing.T) {
		e, _ := loaded(t, true, fn)
		require.NoError(t, e.StartCapture())
		e.ProcessAudioChunk(ctx, make([]int16, 100))
		got := e.StopCapture(ctx)
		assert.Equal(t, engine.KindError, got.Kind)
		assert.Contains(t, got.Message, "flush failed")
	})
}

func TestInferenceTimeout(t *testing.T) {
	var c collector
	block := func(ctx context.Context, _ []int16) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	e, _ := loaded(t, true, block,
		engine.WithInferenceTimeout(20*time.Millisecond),
		engine.WithPartialHandler(c.add))
	require.NoError(t, e.StartCapture())
	e.ProcessAudioChunk(context.Background(), make([]int16, 8000))

	got := c.all()
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Message, "timed out")
}

func TestWholeCaptureVariantRunsOncePerStop(t *testing.T) {
	var c collector
	e, b := loaded(t, false, enginetest.Words("all of it"), engine.WithPartialHandler(c.add))
	ctx := context.Background()
	require.NoError(t, e.StartCapture())
	for i := 0; i < 5; i++ {
		e.ProcessAudioChunk(ctx, make([]int16, 8000))
	}
	assert.Empty(t, b.Calls())
	assert.Equal(t, engine.Success("all of it"), e.StopCapture(ctx))
	assert.Equal(t, []int{40000}, b.Calls())
	assert.Empty(t, c.all())
	assert.False(t, e.SupportsPartial())
}

func TestManifestSampleRateSetsChunkSize(t *testing.T) {
	b := &enginetest.Backend{Fn: enginetest.Label}
	e := engine.NewStreaming(enginetest.Variant(engine.TypeONNX, true, b))
	dir := t.TempDir()
	require.NoError(t, model.WriteManifest(dir, &model.Manifest{
		ID: "narrow", DisplayName: "Narrow", Engine: "onnx", File: "m.onnx", SampleRate: 8000,
	}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "m.onnx"), []byte("w"), 0o644))
	require.NoError(t, e.LoadModel(context.Background(), dir))
	assert.Equal(t, 8000, e.SampleRate())

	require.NoError(t, e.StartCapture())
	e.ProcessAudioChunk(context.Background(), make([]int16, 8000))
	assert.Equal(t, []int{4000, 4000}, b.Calls())
}

func TestLoadModelErrors(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	e := engine.NewStreaming(enginetest.Variant(engine.TypeONNX, true, &enginetest.Backend{}))
	err := e.LoadModel(ctx, filepath.Join(root, "absent"))
	assert.ErrorIs(t, err, model.ErrManifestNotFound)
	assert.EqualError(t, err, "manifest.json not found")

	dir := enginetest.WriteModel(t, root, "noartifact", engine.TypeONNX)
	require.NoError(t, os.Remove(filepath.Join(dir, "model.bin")))
	assert.EqualError(t, e.LoadModel(ctx, dir), "model.bin not found")

	vosk := enginetest.WriteModel(t, root, "vosk-small", engine.TypeVosk)
	assert.Error(t, e.LoadModel(ctx, vosk))
	assert.False(t, e.IsLoaded())
}

func TestLoadModelUnavailableBackend(t *testing.T) {
	v := engine.Variant{
		Type:            engine.TypeONNX,
		SupportsPartial: true,
		Open: func(context.Context, *model.Manifest, string) (engine.Backend, error) {
			return nil, engine.Unavailable("onnx", errors.New("built without onnxruntime"))
		},
	}
	e := engine.NewStreaming(v)
	dir := enginetest.WriteModel(t, t.TempDir(), "m", engine.TypeONNX)
	err := e.LoadModel(context.Background(), dir)
	assert.EqualError(t, err, "onnx not available")
	assert.ErrorIs(t, err, engine.ErrUnavailable)
}

func TestLoadReplacesAndUnloadCloses(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	b := &enginetest.Backend{}
	e := engine.NewStreaming(enginetest.Variant(engine.TypeONNX, true, b))

	require.NoError(t, e.LoadModel(ctx, enginetest.WriteModel(t, root, "first", engine.TypeONNX)))
	require.NoError(t, e.LoadModel(ctx, enginetest.WriteModel(t, root, "second", engine.TypeONNX)))
	assert.Equal(t, 2, b.Opens())
	assert.Equal(t, "second", e.Manifest().ID)

	e.UnloadModel()
	assert.True(t, b.Closed())
	assert.False(t, e.IsLoaded())
	e.UnloadModel()
}

func TestFactory(t *testing.T) {
	f := engine.NewFactory()
	f.Register(enginetest.Variant(engine.TypeWhisper, false, &enginetest.Backend{}))
	f.Register(enginetest.Variant(engine.TypeONNX, true, &enginetest.Backend{}))
	assert.Equal(t, []engine.Type{engine.TypeONNX, engine.TypeWhisper}, f.Types())

	e, err := f.ForManifest(&model.Manifest{Engine: "ONNX"})
	require.NoError(t, err)
	assert.Equal(t, engine.TypeONNX, e.Type())
	assert.True(t, e.SupportsPartial())

	_, err = f.New(engine.TypeVosk)
	assert.ErrorIs(t, err, engine.ErrUnknownEngine)
}

func TestResultText(t *testing.T) {
	assert.True(t, engine.Success("hi").OK())
	assert.NoError(t, engine.Partial("h").Err())
	assert.EqualError(t, engine.Failure("bad").Err(), "bad")
	assert.Equal(t, "error: bad", engine.Failure("bad").String())

	var k engine.ResultKind
	require.NoError(t, k.UnmarshalText([]byte("partial")))
	assert.Equal(t, engine.KindPartial, k)
	assert.Error(t, k.UnmarshalText([]byte("other")))
}
