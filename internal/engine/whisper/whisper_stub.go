//go:build !whisper_cpp

package whisper

import (
	"context"
	"errors"

	"github.com/obiente/voiceinput/internal/engine"
	"github.com/obiente/voiceinput/internal/model"
)

// Available reports whether this build links whisper.cpp.
const Available = false

func opener(Options) engine.Opener {
	return func(context.Context, *model.Manifest, string) (engine.Backend, error) {
		return nil, engine.Unavailable("whisper", errors.New("built without the whisper_cpp tag"))
	}
}
