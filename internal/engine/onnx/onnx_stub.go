//go:build !onnxruntime

package onnx

import (
	"context"
	"errors"

	"github.com/obiente/voiceinput/internal/engine"
	"github.com/obiente/voiceinput/internal/model"
)

// Available reports whether this build links onnxruntime.
const Available = false

func opener(Options) engine.Opener {
	return func(context.Context, *model.Manifest, string) (engine.Backend, error) {
		return nil, engine.Unavailable("onnx", errors.New("built without the onnxruntime tag"))
	}
}
