// Package enginetest provides scripted backends and on-disk model fixtures
// for tests of packages built on engine.
package enginetest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/obiente/voiceinput/internal/engine"
	"github.com/obiente/voiceinput/internal/model"
)

// TranscribeFunc scripts one inference pass.
type TranscribeFunc func(ctx context.Context, samples []int16) (string, error)

// Backend is an engine.Backend driven by a TranscribeFunc. It records the
// length of every pass it sees.
type Backend struct {
	Fn TranscribeFunc

	mu     sync.Mutex
	calls  []int
	opens  int
	closed bool
}

func (b *Backend) Transcribe(ctx context.Context, samples []int16) (string, error) {
	b.mu.Lock()
	b.calls = append(b.calls, len(samples))
	fn := b.Fn
	b.mu.Unlock()
	if fn == nil {
		return "", nil
	}
	return fn(ctx, samples)
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Calls returns the sample count of every pass so far.
func (b *Backend) Calls() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.calls...)
}

func (b *Backend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Opens counts how many times the variant opened this backend.
func (b *Backend) Opens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}

// Variant returns a variant of type t that opens b.
func Variant(t engine.Type, partial bool, b *Backend) engine.Variant {
	return engine.Variant{
		Type:            t,
		SupportsPartial: partial,
		Open: func(context.Context, *model.Manifest, string) (engine.Backend, error) {
			b.mu.Lock()
			b.opens++
			b.closed = false
			b.mu.Unlock()
			return b, nil
		},
	}
}

// Factory returns a factory with v registered.
func Factory(v engine.Variant, opts ...engine.Option) *engine.Factory {
	f := engine.NewFactory(opts...)
	f.Register(v)
	return f
}

// Label answers every pass with "s<first sample>", so the transcript of a
// stream depends only on where the chunk boundaries fall.
func Label(_ context.Context, samples []int16) (string, error) {
	if len(samples) == 0 {
		return "", nil
	}
	return fmt.Sprintf("s%d", samples[0]), nil
}

// Words answers the n-th pass with words[n], and "" once they run out.
func Words(words ...string) TranscribeFunc {
	var (
		mu sync.Mutex
		i  int
	)
	return func(context.Context, []int16) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(words) {
			return "", nil
		}
		w := words[i]
		i++
		return w, nil
	}
}

// WriteModel creates root/id with a manifest for engine t and a dummy artifact.
func WriteModel(tb testing.TB, root, id string, t engine.Type) string {
	tb.Helper()
	dir := filepath.Join(root, id)
	m := &model.Manifest{
		ID:          id,
		DisplayName: "Test " + id,
		Engine:      string(t),
		File:        "model.bin",
		Languages:   []string{"en"},
	}
	if err := model.WriteManifest(dir, m); err != nil {
		tb.Fatalf("write manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, m.File), []byte("weights"), 0o644); err != nil {
		tb.Fatalf("write artifact: %v", err)
	}
	return dir
}

// Samples returns n samples counting up from start.
func Samples(start, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(start + i)
	}
	return out
}
