//go:build onnxruntime

package onnx

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/obiente/voiceinput/internal/audio"
	"github.com/obiente/voiceinput/internal/engine"
	"github.com/obiente/voiceinput/internal/model"
)

const Available = true

var (
	envOnce sync.Once
	envErr  error
)

// initEnvironment sets up the process-wide onnxruntime environment. It lives
// until exit.
func initEnvironment(lib string) error {
	envOnce.Do(func() {
		if lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		envErr = ort.InitializeEnvironment()
		if envErr == nil {
			log.Info().Str("lib", lib).Msg("onnx: runtime initialized")
		}
	})
	return envErr
}

type backend struct {
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	vocab   *Vocabulary
}

func opener(opts Options) engine.Opener {
	return func(_ context.Context, m *model.Manifest, dir string) (engine.Backend, error) {
		if err := initEnvironment(opts.SharedLibrary); err != nil {
			return nil, engine.Unavailable("onnx", err)
		}

		tokens := m.Tokens
		if tokens == "" {
			tokens = DefaultTokensFile
		}
		vocab, err := LoadVocabulary(filepath.Join(dir, tokens))
		if err != nil {
			return nil, err
		}

		input, output := m.InputName, m.OutputName
		if input == "" {
			input = DefaultInputName
		}
		if output == "" {
			output = DefaultOutputName
		}

		so, err := ort.NewSessionOptions()
		if err != nil {
			return nil, fmt.Errorf("session options: %w", err)
		}
		defer so.Destroy()
		if opts.Threads > 0 {
			if err := so.SetIntraOpNumThreads(opts.Threads); err != nil {
				return nil, fmt.Errorf("set threads: %w", err)
			}
		}

		s, err := ort.NewDynamicAdvancedSession(m.ModelPath(dir), []string{input}, []string{output}, so)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		log.Info().
			Str("model", m.ModelPath(dir)).
			Int("vocabulary", vocab.Size()).
			Str("input", input).
			Str("output", output).
			Msg("onnx: session created")
		return &backend{session: s, vocab: vocab}, nil
	}
}

func (b *backend) Transcribe(ctx context.Context, samples []int16) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return "", errors.New("onnx: session closed")
	}

	in, err := ort.NewTensor(ort.NewShape(1, int64(len(samples))), audio.ToFloat32(samples))
	if err != nil {
		return "", fmt.Errorf("input tensor: %w", err)
	}
	defer in.Destroy()

	outputs := []ort.Value{nil}
	if err := b.session.Run([]ort.Value{in}, outputs); err != nil {
		return "", fmt.Errorf("run session: %w", err)
	}
	defer outputs[0].Destroy()

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return "", fmt.Errorf("unexpected output type %T", outputs[0])
	}
	shape := logits.GetShape()
	if len(shape) != 3 {
		return "", fmt.Errorf("unexpected output shape %v", shape)
	}
	return b.vocab.DecodeGreedy(logits.GetData(), int(shape[1]), int(shape[2])), nil
}

func (b *backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return nil
	}
	err := b.session.Destroy()
	b.session = nil
	return err
}
