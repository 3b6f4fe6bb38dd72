package benchmark

import (
	"context"
	"sync"
	"time"

	"github.com/obiente/voiceinput/internal/engine"
)

// Run instruments a single transcription session. It wraps an engine and
// stands in for it as the capture sink, timing every chunk it forwards.
type Run struct {
	engine.Engine

	latency *LatencyTracker
	memory  *MemoryMonitor

	mu       sync.Mutex
	chunks   int
	partials int
	errors   int
}

// NewRun wraps eng. Memory is sampled with s, or ProcessSampler when nil.
func NewRun(eng engine.Engine, s Sampler) *Run {
	return &Run{
		Engine:  eng,
		latency: NewLatencyTracker(),
		memory:  NewMemoryMonitor(s),
	}
}

// Begin clears the counters and takes the memory baseline.
func (r *Run) Begin() {
	r.latency.Clear()
	r.memory.Start()
	r.mu.Lock()
	r.chunks, r.partials, r.errors = 0, 0, 0
	r.mu.Unlock()
}

func (r *Run) ProcessAudioChunk(ctx context.Context, samples []int16) {
	start := time.Now()
	r.Engine.ProcessAudioChunk(ctx, samples)
	r.latency.Record(time.Since(start))
	r.memory.Sample()
	r.mu.Lock()
	r.chunks++
	r.mu.Unlock()
}

// OnPartial counts results delivered to the engine's partial handler.
func (r *Run) OnPartial(res engine.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res.Kind == engine.KindPartial {
		r.partials++
		return
	}
	r.errors++
}

func (r *Run) Latency() *LatencyTracker { return r.latency }

func (r *Run) Memory() *MemoryMonitor { return r.memory }

func (r *Run) Chunks() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chunks
}

func (r *Run) Partials() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.partials
}

// Errors counts inference failures reported during the run.
func (r *Run) Errors() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors
}

// Metrics snapshots the run. Word rates are left for the caller, who knows
// the audio duration and reference text.
func (r *Run) Metrics() Metrics {
	return Metrics{
		AverageLatencyMs:     r.latency.AverageMs(),
		MinLatencyMs:         r.latency.MinMs(),
		MaxLatencyMs:         r.latency.MaxMs(),
		MedianLatencyMs:      r.latency.MedianMs(),
		PeakMemoryUsageMB:    r.memory.PeakMB(),
		AverageMemoryUsageMB: r.memory.AverageMB(),
		PartialResultCount:   r.Partials(),
		TotalChunksProcessed: r.Chunks(),
	}
}
