package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownmixTruncates(t *testing.T) {
	assert.Equal(t, []int16{1, -2, 0}, Downmix([]int16{1, 2, -2, -3, 5, -5}))
	assert.Equal(t, []int16{3}, Downmix([]int16{3, 4, 99}))
	assert.Empty(t, Downmix(nil))
}

func TestResampleSameRateReturnsInput(t *testing.T) {
	in := []int16{1, 2, 3}
	out := Resample(in, 16000, 16000)
	assert.Equal(t, in, out)
	assert.Same(t, &in[0], &out[0])
}

func TestResampleOutputLength(t *testing.T) {
	in := make([]int16, 44100)
	assert.Len(t, Resample(in, 44100, 16000), 16000)
	assert.Len(t, Resample(in[:441], 44100, 16000), 160)
	assert.Len(t, Resample(in[:3], 48000, 16000), 1)
}

func TestPCM16ByteConversion(t *testing.T) {
	samples := []int16{0, -1, 256, -32768, 32767}
	b := PCM16ToBytes(samples)
	assert.Equal(t, []byte{0, 0, 0xff, 0xff, 0, 1, 0, 0x80, 0xff, 0x7f}, b)
	assert.Equal(t, samples, BytesToPCM16(b))

	_, err := DecodePCM16LE([]byte{1, 2, 3})
	require.Error(t, err)
	got, err := DecodePCM16LE(b)
	require.NoError(t, err)
	assert.Equal(t, samples, got)
}

func TestToFloat32(t *testing.T) {
	f := ToFloat32([]int16{0, -32768, 16384})
	assert.Equal(t, []float32{0, -1, 0.5}, f)
}
