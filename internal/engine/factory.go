package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/obiente/voiceinput/internal/model"
)

// Factory builds engines for the variants registered with it.
type Factory struct {
	mu       sync.RWMutex
	variants map[Type]Variant
	defaults []Option
}

// NewFactory returns an empty factory. defaults are applied to every engine
// it builds, before the per-call options.
func NewFactory(defaults ...Option) *Factory {
	return &Factory{variants: make(map[Type]Variant), defaults: defaults}
}

// Register adds or replaces a variant.
func (f *Factory) Register(v Variant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.variants[v.Type] = v
}

// Types lists the registered variants in name order.
func (f *Factory) Types() []Type {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Type, 0, len(f.variants))
	for t := range f.variants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// New builds an unloaded engine of type t.
func (f *Factory) New(t Type, opts ...Option) (*StreamingEngine, error) {
	f.mu.RLock()
	v, ok := f.variants[Type(strings.ToLower(string(t)))]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEngine, t)
	}
	all := make([]Option, 0, len(f.defaults)+len(opts))
	all = append(all, f.defaults...)
	all = append(all, opts...)
	return NewStreaming(v, all...), nil
}

// ForManifest builds the engine named by the manifest's engine field.
func (f *Factory) ForManifest(m *model.Manifest, opts ...Option) (*StreamingEngine, error) {
	return f.New(Type(m.Engine), opts...)
}
