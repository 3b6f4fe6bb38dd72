//go:build !whisper_cpp

package whisper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obiente/voiceinput/internal/engine"
	"github.com/obiente/voiceinput/internal/engine/enginetest"
)

func TestStubLoadFailsUnavailable(t *testing.T) {
	v := Variant(Options{})
	assert.Equal(t, engine.TypeWhisper, v.Type)
	assert.False(t, v.SupportsPartial)

	e := engine.NewStreaming(v)
	dir := enginetest.WriteModel(t, t.TempDir(), "whisper-base", engine.TypeWhisper)
	err := e.LoadModel(context.Background(), dir)
	require.Error(t, err)
	assert.EqualError(t, err, "whisper not available")
	assert.ErrorIs(t, err, engine.ErrUnavailable)
	assert.False(t, e.IsLoaded())
}
