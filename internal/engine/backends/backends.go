// Package backends wires every engine variant into one factory.
package backends

import (
	"github.com/obiente/voiceinput/internal/config"
	"github.com/obiente/voiceinput/internal/engine"
	"github.com/obiente/voiceinput/internal/engine/onnx"
	"github.com/obiente/voiceinput/internal/engine/vosk"
	"github.com/obiente/voiceinput/internal/engine/whisper"
	"github.com/obiente/voiceinput/internal/metrics"
)

// NewFactory registers the ONNX, Vosk and whisper variants with engine
// defaults taken from cfg. m may be nil.
func NewFactory(cfg *config.Config, m *metrics.Metrics) *engine.Factory {
	f := engine.NewFactory(
		engine.WithSampleRate(cfg.Audio.SampleRate),
		engine.WithInferenceTimeout(cfg.Engine.InferenceTimeoutDuration()),
		engine.WithMetrics(m),
	)
	f.Register(onnx.Variant(onnx.Options{
		SharedLibrary: cfg.Engine.ONNXRuntimeLib,
		Threads:       cfg.Engine.Threads,
	}))
	f.Register(vosk.Variant())
	f.Register(whisper.Variant(whisper.Options{
		Threads:  cfg.Engine.Threads,
		Language: cfg.Engine.Language,
	}))
	return f
}

// Available reports which variants can actually load a model in this build.
func Available() map[engine.Type]bool {
	return map[engine.Type]bool{
		engine.TypeONNX:    onnx.Available,
		engine.TypeVosk:    false,
		engine.TypeWhisper: whisper.Available,
	}
}
