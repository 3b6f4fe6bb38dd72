// Package engine defines the speech-recognition engine contract and the
// streaming implementation shared by every backend.
//
// A backend only knows how to turn a slice of PCM16 samples into text. The
// streaming engine owns model loading, the capture buffer, the 0.5s chunk
// cadence and the conversion of backend failures into results.
package engine

import (
	"context"
	"errors"

	"github.com/obiente/voiceinput/internal/model"
)

// Type names an engine variant as it appears in a model manifest.
type Type string

const (
	TypeONNX    Type = "onnx"
	TypeVosk    Type = "vosk"
	TypeWhisper Type = "whisper"
)

var (
	// ErrNotLoaded is returned when capture is requested without a model.
	ErrNotLoaded = errors.New("no model loaded")
	// ErrUnknownEngine is returned by the factory for an unregistered engine type.
	ErrUnknownEngine = errors.New("unknown engine type")
	// ErrUnavailable matches any UnavailableError.
	ErrUnavailable = errors.New("backend not available")
)

// UnavailableError reports a backend whose native dependency is missing from this build.
type UnavailableError struct {
	Backend string
	Err     error
}

func (e *UnavailableError) Error() string { return e.Backend + " not available" }

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// Unavailable builds the error a stub backend returns from its opener.
func Unavailable(backend string, cause error) error {
	return &UnavailableError{Backend: backend, Err: cause}
}

// Engine is the capability every recognition backend exposes to capture and orchestration.
//
// An engine is unloaded, loaded, or capturing. ProcessAudioChunk is ignored
// unless the engine is capturing. Only one capture may run at a time.
type Engine interface {
	Type() Type
	// LoadModel loads the model in dir, unloading any current model first.
	// A nil error is a successful load.
	LoadModel(ctx context.Context, dir string) error
	// UnloadModel releases backend resources. It is a no-op when nothing is loaded.
	UnloadModel()
	// StartCapture resets accumulated audio and transcript.
	StartCapture() error
	// ProcessAudioChunk buffers samples and runs an inference pass for every
	// full chunk. It never drops samples.
	ProcessAudioChunk(ctx context.Context, samples []int16)
	// StopCapture flushes buffered audio and returns the final transcription.
	StopCapture(ctx context.Context) Result
	SupportsPartial() bool
	IsLoaded() bool
	Stats() Stats
}

// Backend runs inference for one loaded model. Implementations must be safe
// for sequential calls from different goroutines.
type Backend interface {
	// Transcribe recognizes samples at the engine sample rate.
	Transcribe(ctx context.Context, samples []int16) (string, error)
	Close() error
}

// Opener constructs a Backend for the manifest in dir.
type Opener func(ctx context.Context, m *model.Manifest, dir string) (Backend, error)

// Variant describes one engine type the factory can build.
type Variant struct {
	Type Type
	// SupportsPartial variants run inference every chunk and emit partial
	// text. Others accumulate the whole capture and run once at stop.
	SupportsPartial bool
	Open            Opener
}

// Stats counts samples through the current or last capture.
type Stats struct {
	Captured  int // samples accepted since StartCapture
	Processed int // samples passed through inference
	Passes    int
	Partials  int
	Errors    int
}
