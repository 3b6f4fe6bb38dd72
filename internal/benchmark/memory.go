package benchmark

import (
	"os"
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/process"
)

const bytesPerMB = 1024 * 1024

// Sampler reports current memory use in MB.
type Sampler func() (float64, error)

// ProcessSampler measures the Go heap plus native memory held outside the Go
// runtime, which is where inference backends allocate. Native memory is the
// process resident set minus what the Go runtime has mapped, floored at zero.
func ProcessSampler() Sampler {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Debug().Err(err).Msg("benchmark: process handle unavailable, sampling Go heap only")
	}
	return func() (float64, error) {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)
		total := float64(stats.HeapAlloc)
		if proc != nil {
			info, err := proc.MemoryInfo()
			if err != nil {
				return total / bytesPerMB, nil
			}
			if info.RSS > stats.Sys {
				total += float64(info.RSS - stats.Sys)
			}
		}
		return total / bytesPerMB, nil
	}
}

// MemoryMonitor samples memory during a run. Peak and average are reported
// relative to the baseline taken by Start.
type MemoryMonitor struct {
	sampler Sampler

	mu       sync.Mutex
	baseline float64
	samples  []float64
}

// NewMemoryMonitor uses ProcessSampler when s is nil.
func NewMemoryMonitor(s Sampler) *MemoryMonitor {
	if s == nil {
		s = ProcessSampler()
	}
	return &MemoryMonitor{sampler: s}
}

// Start takes the baseline and discards earlier samples.
func (m *MemoryMonitor) Start() {
	v, _ := m.read()
	m.mu.Lock()
	m.baseline = v
	m.samples = nil
	m.mu.Unlock()
}

func (m *MemoryMonitor) Sample() {
	v, ok := m.read()
	if !ok {
		return
	}
	m.mu.Lock()
	m.samples = append(m.samples, v)
	m.mu.Unlock()
}

func (m *MemoryMonitor) read() (float64, bool) {
	v, err := m.sampler()
	if err != nil {
		log.Debug().Err(err).Msg("benchmark: memory sample failed")
		return 0, false
	}
	return v, true
}

func (m *MemoryMonitor) BaselineMB() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.baseline
}

// PeakMB is the largest sample above the baseline.
func (m *MemoryMonitor) PeakMB() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.samples) == 0 {
		return 0
	}
	peak := m.samples[0]
	for _, v := range m.samples[1:] {
		peak = max(peak, v)
	}
	return max(peak-m.baseline, 0)
}

// AverageMB is the mean sample above the baseline.
func (m *MemoryMonitor) AverageMB() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range m.samples {
		sum += v
	}
	return max(sum/float64(len(m.samples))-m.baseline, 0)
}

// IncreaseMB takes a fresh reading and returns its distance from the baseline.
// It can be negative.
func (m *MemoryMonitor) IncreaseMB() float64 {
	v, ok := m.read()
	if !ok {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return v - m.baseline
}

func (m *MemoryMonitor) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.samples)
}
