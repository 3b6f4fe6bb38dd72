package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obiente/voiceinput/internal/audio"
	"github.com/obiente/voiceinput/internal/metrics"
	"github.com/obiente/voiceinput/internal/model"
)

// DefaultSampleRate is used when neither the manifest nor an option sets one.
const DefaultSampleRate = 16000

type options struct {
	sampleRate int
	timeout    time.Duration
	onPartial  func(Result)
	metrics    *metrics.Metrics
}

// Option configures a StreamingEngine.
type Option func(*options)

// WithSampleRate sets the rate audio arrives at. A manifest sample_rate takes precedence.
func WithSampleRate(rate int) Option {
	return func(o *options) {
		if rate > 0 {
			o.sampleRate = rate
		}
	}
}

// WithInferenceTimeout bounds each inference pass. Zero disables the bound.
func WithInferenceTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithPartialHandler receives partial and per-chunk error results in capture
// order. It runs on the goroutine calling ProcessAudioChunk, after the engine
// lock is released.
func WithPartialHandler(fn func(Result)) Option {
	return func(o *options) { o.onPartial = fn }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// StreamingEngine implements Engine on top of a Backend variant.
type StreamingEngine struct {
	variant Variant
	opts    options

	mu         sync.Mutex
	backend    Backend
	manifest   *model.Manifest
	sampleRate int
	capturing  bool
	ring       *audio.Ring
	scratch    []int16
	segments   []string
	stats      Stats
}

// NewStreaming returns an unloaded engine for variant v.
func NewStreaming(v Variant, opts ...Option) *StreamingEngine {
	o := options{sampleRate: DefaultSampleRate}
	for _, fn := range opts {
		fn(&o)
	}
	return &StreamingEngine{variant: v, opts: o, sampleRate: o.sampleRate}
}

func (e *StreamingEngine) Type() Type { return e.variant.Type }

func (e *StreamingEngine) SupportsPartial() bool { return e.variant.SupportsPartial }

func (e *StreamingEngine) IsLoaded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend != nil
}

// SampleRate is the rate of the loaded model, or the configured default.
func (e *StreamingEngine) SampleRate() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sampleRate
}

// Manifest returns the loaded model's manifest, or nil.
func (e *StreamingEngine) Manifest() *model.Manifest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manifest
}

func (e *StreamingEngine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

func (e *StreamingEngine) LoadModel(ctx context.Context, dir string) error {
	start := time.Now()
	err := e.load(ctx, dir)
	e.opts.metrics.RecordModelLoad(string(e.variant.Type), time.Since(start), err)
	if err != nil {
		log.Warn().Err(err).Str("engine", string(e.variant.Type)).Str("dir", dir).Msg("engine: model load failed")
		return err
	}
	log.Info().
		Str("engine", string(e.variant.Type)).
		Str("dir", dir).
		Int("sampleRate", e.SampleRate()).
		Dur("took", time.Since(start)).
		Msg("engine: model loaded")
	return nil
}

func (e *StreamingEngine) load(ctx context.Context, dir string) error {
	e.UnloadModel()

	if !model.ManifestExists(dir) {
		return model.ErrManifestNotFound
	}
	m, err := model.ReadManifest(dir)
	if err != nil {
		return err
	}
	if !strings.EqualFold(m.Engine, string(e.variant.Type)) {
		return fmt.Errorf("manifest engine %q cannot be loaded by %s", m.Engine, e.variant.Type)
	}
	if !m.ModelFileExists(dir) {
		return fmt.Errorf("%s not found", m.File)
	}

	b, err := openBackend(ctx, e.variant.Open, m, dir)
	if err != nil {
		return err
	}

	rate := e.opts.sampleRate
	if m.SampleRate > 0 {
		rate = m.SampleRate
	}
	e.mu.Lock()
	e.backend = b
	e.manifest = m
	e.sampleRate = rate
	e.ring = audio.NewRing(rate)
	e.scratch = make([]int16, rate/2)
	e.capturing = false
	e.mu.Unlock()
	return nil
}

func openBackend(ctx context.Context, open Opener, m *model.Manifest, dir string) (b Backend, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend init panicked: %v", r)
		}
	}()
	b, err = open(ctx, m, dir)
	if err != nil {
		if _, ok := err.(*UnavailableError); ok {
			return nil, err
		}
		return nil, fmt.Errorf("load model: %w", err)
	}
	return b, nil
}

func (e *StreamingEngine) UnloadModel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.backend == nil {
		return
	}
	if err := e.backend.Close(); err != nil {
		log.Warn().Err(err).Str("engine", string(e.variant.Type)).Msg("engine: close backend")
	}
	e.backend = nil
	e.manifest = nil
	e.capturing = false
	e.ring.Reset()
	e.segments = nil
	log.Info().Str("engine", string(e.variant.Type)).Msg("engine: model unloaded")
}

func (e *StreamingEngine) StartCapture() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.backend == nil {
		return ErrNotLoaded
	}
	e.capturing = true
	e.ring.Reset()
	e.segments = nil
	e.stats = Stats{}
	return nil
}

func (e *StreamingEngine) ProcessAudioChunk(ctx context.Context, samples []int16) {
	e.mu.Lock()
	if !e.capturing || e.backend == nil {
		e.mu.Unlock()
		log.Debug().Int("samples", len(samples)).Msg("engine: chunk ignored outside capture")
		return
	}
	e.ring.Write(samples)
	e.stats.Captured += len(samples)

	var emit []Result
	if e.variant.SupportsPartial {
		threshold := len(e.scratch)
		for e.ring.Len() >= threshold {
			chunk := e.scratch[:threshold]
			e.ring.Read(chunk)
			text, err := e.infer(ctx, chunk)
			if err != nil {
				emit = append(emit, Failure(fmt.Sprintf("inference failed: %v", err)))
				continue
			}
			if text == "" {
				continue
			}
			e.segments = append(e.segments, text)
			e.stats.Partials++
			e.opts.metrics.RecordPartial(string(e.variant.Type))
			emit = append(emit, Partial(e.transcript()))
		}
	}
	handler := e.opts.onPartial
	e.mu.Unlock()

	if handler == nil {
		return
	}
	for _, r := range emit {
		handler(r)
	}
}

func (e *StreamingEngine) StopCapture(ctx context.Context) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	wasCapturing := e.capturing
	e.capturing = false
	if e.backend == nil {
		return Failure("No model loaded")
	}
	if !wasCapturing || e.stats.Captured == 0 {
		return Failure("No audio captured")
	}

	var flushErr error
	if e.ring.Len() > 0 {
		rest := e.ring.Drain()
		text, err := e.infer(ctx, rest)
		switch {
		case err != nil:
			flushErr = err
		case text != "":
			e.segments = append(e.segments, text)
		}
	}

	text := e.transcript()
	if flushErr != nil {
		log.Warn().Err(flushErr).Str("engine", string(e.variant.Type)).Msg("engine: final pass failed")
		if text == "" {
			return Failure(fmt.Sprintf("inference failed: %v", flushErr))
		}
	}
	log.Debug().
		Str("engine", string(e.variant.Type)).
		Int("captured", e.stats.Captured).
		Int("passes", e.stats.Passes).
		Msg("engine: capture stopped")
	return Success(text)
}

// infer runs one pass. Callers hold e.mu.
func (e *StreamingEngine) infer(ctx context.Context, samples []int16) (string, error) {
	start := time.Now()
	var (
		text string
		err  error
	)
	if e.opts.timeout > 0 {
		text, err = e.transcribeWithTimeout(ctx, samples)
	} else {
		text, err = transcribe(ctx, e.backend, samples)
	}
	e.stats.Passes++
	e.stats.Processed += len(samples)
	if err != nil {
		e.stats.Errors++
		log.Warn().Err(err).Str("engine", string(e.variant.Type)).Int("samples", len(samples)).Msg("engine: inference failed")
	}
	e.opts.metrics.RecordInference(string(e.variant.Type), time.Since(start), err)
	return strings.TrimSpace(text), err
}

// transcribeWithTimeout gives the backend its own copy of samples so a pass
// abandoned on timeout cannot observe the reused scratch buffer.
func (e *StreamingEngine) transcribeWithTimeout(ctx context.Context, samples []int16) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.timeout)
	defer cancel()

	type outcome struct {
		text string
		err  error
	}
	own := append([]int16(nil), samples...)
	done := make(chan outcome, 1)
	b := e.backend
	go func() {
		text, err := transcribe(ctx, b, own)
		done <- outcome{text, err}
	}()
	select {
	case o := <-done:
		if o.err != nil && ctx.Err() != nil {
			return "", fmt.Errorf("inference timed out after %s: %w", e.opts.timeout, ctx.Err())
		}
		return o.text, o.err
	case <-ctx.Done():
		return "", fmt.Errorf("inference timed out after %s: %w", e.opts.timeout, ctx.Err())
	}
}

func transcribe(ctx context.Context, b Backend, samples []int16) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend panicked: %v", r)
		}
	}()
	return b.Transcribe(ctx, samples)
}

func (e *StreamingEngine) transcript() string {
	return strings.Join(e.segments, " ")
}
