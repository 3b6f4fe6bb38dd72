package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var (
	// ErrFormat reports a malformed RIFF/WAVE container.
	ErrFormat = errors.New("invalid wav format")
	// ErrUnsupportedFormat reports a well-formed container the decoder cannot handle.
	ErrUnsupportedFormat = errors.New("unsupported wav format")
)

const (
	offsetChannels      = 22
	offsetSampleRate    = 24
	offsetBitsPerSample = 34
	offsetFirstChunk    = 36
	chunkHeaderSize     = 8
)

// Clip is a decoded mono PCM16 buffer at a known sample rate. It is not mutated after decode.
type Clip struct {
	Samples    []int16
	SampleRate int
}

// Duration returns the playback length of the clip.
func (c *Clip) Duration() time.Duration {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// Decode converts a WAV byte stream into mono PCM16 samples at targetRate.
// Only 16-bit PCM is accepted. Stereo input is downmixed and any rate mismatch is
// resolved with nearest-neighbour resampling.
func Decode(data []byte, targetRate int) (*Clip, error) {
	if len(data) < offsetFirstChunk {
		return nil, fmt.Errorf("%w: header too short (%d bytes)", ErrFormat, len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE tags", ErrFormat)
	}

	channels := int(binary.LittleEndian.Uint16(data[offsetChannels:]))
	sampleRate := int(binary.LittleEndian.Uint32(data[offsetSampleRate:]))
	bitsPerSample := int(binary.LittleEndian.Uint16(data[offsetBitsPerSample:]))

	pcm, err := findDataChunk(data)
	if err != nil {
		return nil, err
	}
	if bitsPerSample != 16 {
		return nil, fmt.Errorf("%w: %d bits per sample", ErrUnsupportedFormat, bitsPerSample)
	}
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("%w: %d channels", ErrUnsupportedFormat, channels)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d", ErrFormat, sampleRate)
	}

	samples := BytesToPCM16(pcm)
	if channels == 2 {
		samples = Downmix(samples)
	}
	if targetRate <= 0 {
		targetRate = sampleRate
	}
	return &Clip{Samples: Resample(samples, sampleRate, targetRate), SampleRate: targetRate}, nil
}

// findDataChunk walks chunk headers from offset 36 until it finds "data".
// Chunks are skipped by their declared size. A data chunk whose size runs past
// the buffer is truncated to what is present.
func findDataChunk(data []byte) ([]byte, error) {
	off := offsetFirstChunk
	for off+chunkHeaderSize <= len(data) {
		id := string(data[off : off+4])
		size := int64(binary.LittleEndian.Uint32(data[off+4:]))
		body := off + chunkHeaderSize
		if id == "data" {
			end := int64(body) + size
			if end > int64(len(data)) {
				end = int64(len(data))
			}
			return data[body:end], nil
		}
		next := int64(body) + size
		if next > int64(len(data)) {
			break
		}
		off = int(next)
	}
	return nil, fmt.Errorf("%w: no data chunk", ErrFormat)
}

// Encode writes PCM16 samples as a canonical WAV file. Interleaved input is
// expected when channels is 2.
func Encode(samples []int16, sampleRate, channels int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("encode wav: invalid sample rate %d", sampleRate)
	}
	if channels <= 0 {
		channels = 1
	}
	ws := &writeSeeker{}
	enc := wav.NewEncoder(ws, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		buf.Data[i] = int(s)
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	return ws.Bytes(), nil
}

// Info describes a WAV file without decoding its samples.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
}

// Inspect reads the container metadata of a WAV blob.
func Inspect(data []byte) (Info, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Info{}, fmt.Errorf("%w: not a valid wav file", ErrFormat)
	}
	d, err := dec.Duration()
	if err != nil {
		return Info{}, fmt.Errorf("wav duration: %w", err)
	}
	return Info{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		Duration:   d,
	}, nil
}

// writeSeeker is the in-memory io.WriteSeeker the go-audio encoder needs to
// patch its header sizes on Close.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		w.buf = append(w.buf, make([]byte, end-len(w.buf))...)
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = int64(w.pos)
	case io.SeekEnd:
		base = int64(len(w.buf))
	default:
		return 0, errors.New("seek: invalid whence")
	}
	next := base + offset
	if next < 0 {
		return 0, errors.New("seek: negative position")
	}
	w.pos = int(next)
	return next, nil
}

func (w *writeSeeker) Bytes() []byte { return w.buf }
