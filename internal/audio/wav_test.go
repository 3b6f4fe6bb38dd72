package audio

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildWAV assembles a WAV file by hand so tests control every header field.
func buildWAV(channels, sampleRate, bits int, extra []byte, pcm []byte) []byte {
	b := make([]byte, 36)
	copy(b[0:], "RIFF")
	copy(b[8:], "WAVE")
	copy(b[12:], "fmt ")
	binary.LittleEndian.PutUint32(b[16:], 16)
	binary.LittleEndian.PutUint16(b[20:], 1)
	binary.LittleEndian.PutUint16(b[22:], uint16(channels))
	binary.LittleEndian.PutUint32(b[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(b[28:], uint32(sampleRate*channels*bits/8))
	binary.LittleEndian.PutUint16(b[32:], uint16(channels*bits/8))
	binary.LittleEndian.PutUint16(b[34:], uint16(bits))
	b = append(b, extra...)
	hdr := make([]byte, 8)
	copy(hdr, "data")
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(pcm)))
	b = append(b, hdr...)
	b = append(b, pcm...)
	binary.LittleEndian.PutUint32(b[4:], uint32(len(b)-8))
	return b
}

func TestDecodeMonoAtTargetRateIsUnchanged(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 1234}
	clip, err := Decode(buildWAV(1, 16000, 16, nil, PCM16ToBytes(samples)), 16000)
	require.NoError(t, err)
	assert.Equal(t, samples, clip.Samples)
	assert.Equal(t, 16000, clip.SampleRate)
}

func TestDecodeDownmixesStereo(t *testing.T) {
	interleaved := []int16{100, 201, -3, 0, 32767, 32767}
	clip, err := Decode(buildWAV(2, 16000, 16, nil, PCM16ToBytes(interleaved)), 16000)
	require.NoError(t, err)
	assert.Equal(t, []int16{150, -1, 32767}, clip.Samples)
}

func TestDecodeSkipsUnknownChunks(t *testing.T) {
	list := make([]byte, 8+6)
	copy(list, "LIST")
	binary.LittleEndian.PutUint32(list[4:], 6)
	samples := []int16{7, 8, 9}
	clip, err := Decode(buildWAV(1, 8000, 16, list, PCM16ToBytes(samples)), 8000)
	require.NoError(t, err)
	assert.Equal(t, samples, clip.Samples)
}

func TestDecodeResamplesNearestNeighbour(t *testing.T) {
	src := []int16{10, 20, 30, 40, 50, 60, 70, 80}
	clip, err := Decode(buildWAV(1, 8000, 16, nil, PCM16ToBytes(src)), 16000)
	require.NoError(t, err)
	assert.Equal(t, []int16{10, 10, 20, 20, 30, 30, 40, 40, 50, 50, 60, 60, 70, 70, 80, 80}, clip.Samples)

	clip, err = Decode(buildWAV(1, 16000, 16, nil, PCM16ToBytes(src)), 8000)
	require.NoError(t, err)
	assert.Equal(t, []int16{10, 30, 50, 70}, clip.Samples)
}

func TestDecodeRejectsBadTags(t *testing.T) {
	good := buildWAV(1, 16000, 16, nil, PCM16ToBytes([]int16{1, 2}))

	cases := map[string][]byte{
		"empty":     nil,
		"short":     []byte("RIFF"),
		"no riff":   append([]byte("RIFX"), good[4:]...),
		"no wave":   append(append(append([]byte{}, good[:8]...), []byte("AVI ")...), good[12:]...),
		"plain pcm": PCM16ToBytes(make([]int16, 64)),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(data, 16000)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFormat), "want ErrFormat, got %v", err)
		})
	}
}

func TestDecodeRejectsMissingDataChunk(t *testing.T) {
	b := buildWAV(1, 16000, 16, nil, nil)
	copy(b[36:], "junk")
	_, err := Decode(b, 16000)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestDecodeRejectsNon16Bit(t *testing.T) {
	_, err := Decode(buildWAV(1, 16000, 8, nil, []byte{1, 2, 3, 4}), 16000)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Decode(buildWAV(1, 16000, 24, nil, make([]byte, 6)), 16000)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	samples := make([]int16, 16000)
	for i := range samples {
		samples[i] = int16(i%200 - 100)
	}
	data, err := Encode(samples, 16000, 1)
	require.NoError(t, err)

	clip, err := Decode(data, 16000)
	require.NoError(t, err)
	assert.Equal(t, samples, clip.Samples)
	assert.Equal(t, time.Second, clip.Duration())

	info, err := Inspect(data)
	require.NoError(t, err)
	assert.Equal(t, 16000, info.SampleRate)
	assert.Equal(t, 1, info.Channels)
	assert.Equal(t, 16, info.BitDepth)
	assert.Equal(t, time.Second, info.Duration)
}

func TestInspectRejectsGarbage(t *testing.T) {
	_, err := Inspect([]byte("definitely not a wav file at all"))
	assert.ErrorIs(t, err, ErrFormat)
}
