package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the prometheus collectors for the transcription pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Model lifecycle
	ModelLoads        *prometheus.CounterVec
	ModelLoadDuration *prometheus.HistogramVec

	// Inference
	ChunksProcessed   *prometheus.CounterVec
	InferenceDuration *prometheus.HistogramVec
	InferenceErrors   *prometheus.CounterVec
	PartialResults    *prometheus.CounterVec

	// Capture
	ActiveCaptures      prometheus.Gauge
	CaptureBackpressure prometheus.Counter
	Transcriptions      *prometheus.CounterVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ModelLoads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_model_loads_total",
			Help: "Model load attempts by engine and outcome",
		}, []string{"engine", "result"}),
		ModelLoadDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_model_load_duration_seconds",
			Help:    "Time spent loading a model",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"engine"}),
		ChunksProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_chunks_processed_total",
			Help: "Inference passes run over buffered audio",
		}, []string{"engine"}),
		InferenceDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_inference_duration_seconds",
			Help:    "Duration of a single inference pass",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"engine"}),
		InferenceErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_inference_errors_total",
			Help: "Inference passes that failed or timed out",
		}, []string{"engine"}),
		PartialResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_partial_results_total",
			Help: "Partial transcriptions emitted during capture",
		}, []string{"engine"}),
		ActiveCaptures: f.NewGauge(prometheus.GaugeOpts{
			Name: "voice_active_captures",
			Help: "Capture sessions currently running",
		}),
		CaptureBackpressure: f.NewCounter(prometheus.CounterOpts{
			Name: "voice_capture_backpressure_total",
			Help: "Times the capture pump blocked on a full chunk queue",
		}),
		Transcriptions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_transcriptions_total",
			Help: "Completed captures by result kind",
		}, []string{"result"}),
	}
}

// Handler serves the collectors gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordModelLoad(engine string, d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.ModelLoads.WithLabelValues(engine, result).Inc()
	m.ModelLoadDuration.WithLabelValues(engine).Observe(d.Seconds())
}

func (m *Metrics) RecordInference(engine string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.ChunksProcessed.WithLabelValues(engine).Inc()
	m.InferenceDuration.WithLabelValues(engine).Observe(d.Seconds())
	if err != nil {
		m.InferenceErrors.WithLabelValues(engine).Inc()
	}
}

func (m *Metrics) RecordPartial(engine string) {
	if m == nil {
		return
	}
	m.PartialResults.WithLabelValues(engine).Inc()
}

func (m *Metrics) CaptureStarted() {
	if m == nil {
		return
	}
	m.ActiveCaptures.Inc()
}

func (m *Metrics) CaptureStopped(result string) {
	if m == nil {
		return
	}
	m.ActiveCaptures.Dec()
	m.Transcriptions.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordBackpressure() {
	if m == nil {
		return
	}
	m.CaptureBackpressure.Inc()
}
