package onnx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frames builds one-hot logits for the given class per frame.
func frames(classes int, best ...int) []float32 {
	out := make([]float32, len(best)*classes)
	for f, c := range best {
		out[f*classes+c] = 1
	}
	return out
}

func TestDecodeGreedyCollapsesAndDropsBlank(t *testing.T) {
	v, err := ParseVocabulary([]string{"▁the", "▁cat", "s", "<blk>"})
	require.NoError(t, err)
	assert.Equal(t, 3, v.Blank())

	logits := frames(4, 0, 0, 3, 1, 1, 2, 3, 3)
	assert.Equal(t, "the cats", v.DecodeGreedy(logits, 8, 4))
}

func TestDecodeGreedyRepeatAcrossBlank(t *testing.T) {
	v, err := ParseVocabulary([]string{"▁a", "<blank>"})
	require.NoError(t, err)
	assert.Equal(t, "a a", v.DecodeGreedy(frames(2, 0, 1, 0), 3, 2))
}

func TestParseVocabularyWithIDs(t *testing.T) {
	v, err := ParseVocabulary([]string{"<unk> 0", "▁hi 2", "▁yo 1", ""})
	require.NoError(t, err)
	assert.Equal(t, 3, v.Size())
	// No named blank: the last id is blank.
	assert.Equal(t, 2, v.Blank())
	assert.Equal(t, "yo", v.DecodeGreedy(frames(3, 0, 1, 2), 3, 3))
}

func TestParseVocabularyEmpty(t *testing.T) {
	_, err := ParseVocabulary([]string{"", "  "})
	assert.Error(t, err)
}

func TestLoadVocabulary(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultTokensFile)
	require.NoError(t, os.WriteFile(path, []byte("▁go\n▁on\n<blk>\n"), 0o644))
	v, err := LoadVocabulary(path)
	require.NoError(t, err)
	assert.Equal(t, "go on", v.DecodeGreedy(frames(3, 0, 2, 1), 3, 3))

	_, err = LoadVocabulary(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
