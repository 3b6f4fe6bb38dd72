// Package vosk registers the Vosk (Kaldi) engine variant.
//
// No Vosk binding is linked into this build, so loading a Vosk model always
// fails with "vosk not available". The variant stays registered so Vosk
// models are listed and reported consistently.
package vosk

import (
	"context"
	"errors"

	"github.com/obiente/voiceinput/internal/engine"
	"github.com/obiente/voiceinput/internal/model"
)

// Variant returns the Vosk engine variant. Vosk recognizers stream, so it
// emits partial results.
func Variant() engine.Variant {
	return engine.Variant{
		Type:            engine.TypeVosk,
		SupportsPartial: true,
		Open:            open,
	}
}

func open(context.Context, *model.Manifest, string) (engine.Backend, error) {
	return nil, engine.Unavailable("vosk", errors.New("no vosk binding in this build"))
}
