//go:build whisper_cpp

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	whisperpkg "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/rs/zerolog/log"

	"github.com/obiente/voiceinput/internal/audio"
	"github.com/obiente/voiceinput/internal/engine"
	"github.com/obiente/voiceinput/internal/model"
)

const Available = true

// shorter passes make whisper hallucinate
const minSamples = 1600

type backend struct {
	mu       sync.Mutex
	model    whisperpkg.Model
	threads  uint
	language string
}

func opener(opts Options) engine.Opener {
	return func(_ context.Context, m *model.Manifest, dir string) (engine.Backend, error) {
		threads := uint(runtime.NumCPU())
		if opts.Threads > 0 {
			threads = uint(opts.Threads)
		}
		path := m.ModelPath(dir)
		wm, err := whisperpkg.New(path)
		if err != nil {
			return nil, fmt.Errorf("whisper: load %s: %w", path, err)
		}
		log.Info().Str("model", path).Uint("threads", threads).Str("language", opts.Language).Msg("whisper: model loaded")
		return &backend{model: wm, threads: threads, language: opts.Language}, nil
	}
}

func (b *backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.model == nil {
		return nil
	}
	err := b.model.Close()
	b.model = nil
	return err
}

// Transcribe runs a full-context pass. Calls are serialized; whisper.cpp
// crashes on concurrent use of one model.
func (b *backend) Transcribe(ctx context.Context, samples []int16) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.model == nil {
		return "", errors.New("whisper: model closed")
	}
	if len(samples) < minSamples {
		log.Debug().Int("samples", len(samples)).Msg("whisper: skipping too-short audio")
		return "", nil
	}

	wctx, err := b.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("create context: %w", err)
	}
	wctx.SetThreads(b.threads)
	if err := wctx.SetLanguage(b.language); err != nil {
		return "", fmt.Errorf("set language %q: %w", b.language, err)
	}
	wctx.SetSplitOnWord(true)
	wctx.SetTokenTimestamps(true)

	keepGoing := func() bool { return ctx.Err() == nil }
	if err := wctx.Process(audio.ToFloat32(samples), keepGoing, nil, nil); err != nil {
		return "", fmt.Errorf("process audio: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var segments []string
	for {
		seg, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read segment: %w", err)
		}
		if text := strings.TrimSpace(seg.Text); text != "" {
			segments = append(segments, text)
		}
	}

	full := strings.Join(segments, " ")
	log.Debug().
		Int("segments", len(segments)).
		Int("samples", len(samples)).
		Str("lang", wctx.DetectedLanguage()).
		Msg("whisper: transcription complete")
	return full, nil
}
