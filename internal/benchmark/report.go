package benchmark

import (
	"time"

	"github.com/google/uuid"
)

// TestResult is the outcome of transcribing one clip.
type TestResult struct {
	TestName        string   `json:"testName"`
	ModelID         string   `json:"modelId"`
	ExpectedText    *string  `json:"expectedText,omitempty"`
	TranscribedText string   `json:"transcribedText"`
	LatencyMs       int64    `json:"latencyMs"`
	MemoryUsageMB   float64  `json:"memoryUsageMB"`
	WordErrorRate   *float64 `json:"wordErrorRate,omitempty"`
	ConfidenceScore *float64 `json:"confidenceScore,omitempty"`
	// Error is set when the engine returned a failure for the clip.
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Metrics aggregates one benchmark run.
type Metrics struct {
	AverageLatencyMs     float64  `json:"averageLatencyMs"`
	MinLatencyMs         float64  `json:"minLatencyMs"`
	MaxLatencyMs         float64  `json:"maxLatencyMs"`
	MedianLatencyMs      float64  `json:"medianLatencyMs"`
	PeakMemoryUsageMB    float64  `json:"peakMemoryUsageMB"`
	AverageMemoryUsageMB float64  `json:"averageMemoryUsageMB"`
	WordsPerSecond       float64  `json:"wordsPerSecond"`
	AverageWordErrorRate float64  `json:"averageWordErrorRate"`
	PartialResultCount   int      `json:"partialResultCount"`
	TotalChunksProcessed int      `json:"totalChunksProcessed"`
	ConfidenceScore      *float64 `json:"confidenceScore,omitempty"`
}

// Report is the immutable record of benchmarking one model.
type Report struct {
	RunID        string       `json:"runId"`
	ModelID      string       `json:"modelId"`
	ModelName    string       `json:"modelName"`
	Engine       string       `json:"engine"`
	ModelSizeMB  float64      `json:"modelSizeMB"`
	Timestamp    int64        `json:"timestamp"`
	DeviceInfo   DeviceInfo   `json:"deviceInfo"`
	LoadTimeMs   int64        `json:"loadTimeMs"`
	WarmupTimeMs int64        `json:"warmupTimeMs"`
	Metrics      Metrics      `json:"metrics"`
	TestResults  []TestResult `json:"testResults"`
}

// Time returns the report timestamp.
func (r *Report) Time() time.Time { return time.UnixMilli(r.Timestamp) }

// ReportInput is everything GenerateReport needs.
type ReportInput struct {
	ModelID     string
	ModelName   string
	Engine      string
	ModelSizeMB float64
	LoadTime    time.Duration
	WarmupTime  time.Duration
	Metrics     Metrics
	Results     []TestResult
	Device      DeviceInfo
	// Now defaults to time.Now.
	Now time.Time
}

// GenerateReport assembles a report with a fresh run id.
func GenerateReport(in ReportInput) *Report {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	results := in.Results
	if results == nil {
		results = []TestResult{}
	}
	return &Report{
		RunID:        uuid.NewString(),
		ModelID:      in.ModelID,
		ModelName:    in.ModelName,
		Engine:       in.Engine,
		ModelSizeMB:  in.ModelSizeMB,
		Timestamp:    now.UnixMilli(),
		DeviceInfo:   in.Device,
		LoadTimeMs:   in.LoadTime.Milliseconds(),
		WarmupTimeMs: in.WarmupTime.Milliseconds(),
		Metrics:      in.Metrics,
		TestResults:  results,
	}
}

// AverageWER is the mean word error rate over results that have one.
func AverageWER(results []TestResult) float64 {
	var (
		sum float64
		n   int
	)
	for _, r := range results {
		if r.WordErrorRate != nil {
			sum += *r.WordErrorRate
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
