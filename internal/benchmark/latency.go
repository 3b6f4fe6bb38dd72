package benchmark

import (
	"slices"
	"sync"
	"time"
)

// LatencyTracker collects one duration per processed chunk.
type LatencyTracker struct {
	mu      sync.Mutex
	samples []time.Duration
	started time.Time
}

func NewLatencyTracker() *LatencyTracker { return &LatencyTracker{} }

// StartChunk marks the beginning of a chunk. A second call before EndChunk
// restarts the measurement.
func (t *LatencyTracker) StartChunk() {
	t.mu.Lock()
	t.started = time.Now()
	t.mu.Unlock()
}

// EndChunk records the time since StartChunk. It does nothing without a
// pending StartChunk.
func (t *LatencyTracker) EndChunk() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started.IsZero() {
		return
	}
	t.samples = append(t.samples, time.Since(t.started))
	t.started = time.Time{}
}

func (t *LatencyTracker) Record(d time.Duration) {
	t.mu.Lock()
	t.samples = append(t.samples, d)
	t.mu.Unlock()
}

func (t *LatencyTracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.samples)
}

func (t *LatencyTracker) Clear() {
	t.mu.Lock()
	t.samples = nil
	t.started = time.Time{}
	t.mu.Unlock()
}

// Durations returns a copy of the recorded samples in order.
func (t *LatencyTracker) Durations() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.samples)
}

func (t *LatencyTracker) AverageMs() float64 {
	s := t.Durations()
	if len(s) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range s {
		sum += d
	}
	return ms(sum) / float64(len(s))
}

func (t *LatencyTracker) MinMs() float64 {
	s := t.Durations()
	if len(s) == 0 {
		return 0
	}
	return ms(slices.Min(s))
}

func (t *LatencyTracker) MaxMs() float64 {
	s := t.Durations()
	if len(s) == 0 {
		return 0
	}
	return ms(slices.Max(s))
}

// MedianMs averages the two central samples when the count is even.
func (t *LatencyTracker) MedianMs() float64 {
	s := t.Durations()
	if len(s) == 0 {
		return 0
	}
	slices.Sort(s)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (ms(s[mid-1]) + ms(s[mid])) / 2
	}
	return ms(s[mid])
}

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
