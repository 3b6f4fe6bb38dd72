// Package whisper runs ggml whisper models through whisper.cpp.
//
// The real backend needs cgo and the whisper_cpp build tag. Without it the
// variant still registers but every load fails with "whisper not available".
// Whisper decodes a whole capture at once, so the variant does not emit
// partial results.
package whisper

import (
	"github.com/obiente/voiceinput/internal/engine"
)

// Options tune the whisper.cpp decoder.
type Options struct {
	// Threads is the decoder thread count. Zero means one per CPU.
	Threads int
	// Language is an ISO code or "auto".
	Language string
}

// Variant returns the whisper engine variant.
func Variant(opts Options) engine.Variant {
	if opts.Language == "" {
		opts.Language = "auto"
	}
	return engine.Variant{
		Type:            engine.TypeWhisper,
		SupportsPartial: false,
		Open:            opener(opts),
	}
}
