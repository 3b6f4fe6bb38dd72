package audio

import (
	"encoding/binary"
	"errors"
)

// BytesToPCM16 converts little-endian PCM16 bytes to samples. A trailing odd byte is ignored.
func BytesToPCM16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}

// PCM16ToBytes converts samples to little-endian PCM16 bytes.
func PCM16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// DecodePCM16LE is BytesToPCM16 for callers that must reject odd-length frames.
func DecodePCM16LE(b []byte) ([]int16, error) {
	if len(b)%2 != 0 {
		return nil, errors.New("pcm16 length must be even")
	}
	return BytesToPCM16(b), nil
}

// ToFloat32 normalizes PCM16 samples to [-1, 1).
func ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}

// Downmix averages interleaved stereo frames into mono with integer truncation.
// A dangling sample without its right channel is dropped.
func Downmix(interleaved []int16) []int16 {
	mono := make([]int16, len(interleaved)/2)
	for i := range mono {
		l := int32(interleaved[2*i])
		r := int32(interleaved[2*i+1])
		mono[i] = int16((l + r) / 2)
	}
	return mono
}

// Resample maps samples from sourceRate to targetRate by nearest-neighbour lookup.
// Output length is len*target/source and output index i reads source index
// floor(i*source/target). Indices past the end of the input stay zero.
// Equal rates return the input slice unchanged.
func Resample(samples []int16, sourceRate, targetRate int) []int16 {
	if sourceRate == targetRate || sourceRate <= 0 || targetRate <= 0 {
		return samples
	}
	n := int64(len(samples)) * int64(targetRate) / int64(sourceRate)
	out := make([]int16, n)
	for i := range out {
		src := int64(i) * int64(sourceRate) / int64(targetRate)
		if src < int64(len(samples)) {
			out[i] = samples[src]
		}
	}
	return out
}
