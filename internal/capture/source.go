package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
)

// ErrSourceClosed is returned when pushing to a closed QueueSource.
var ErrSourceClosed = errors.New("capture source closed")

// Source is a blocking producer of mono PCM16 audio at the session sample
// rate. Read fills p with up to len(p) samples and returns io.EOF once the
// source is exhausted. Close unblocks a pending Read.
type Source interface {
	Read(p []int16) (int, error)
	Close() error
}

// ReaderSource reads little-endian PCM16 from a byte stream, such as a pipe
// from arecord or a raw capture device.
type ReaderSource struct {
	r   io.ReadCloser
	buf []byte
}

func NewReaderSource(r io.ReadCloser) *ReaderSource {
	return &ReaderSource{r: r}
}

// Read blocks until p is full or the stream ends. A trailing odd byte is dropped.
func (s *ReaderSource) Read(p []int16) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	need := len(p) * 2
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	buf := s.buf[:need]
	n, err := io.ReadFull(s.r, buf)
	got := n / 2
	for i := 0; i < got; i++ {
		p[i] = int16(binary.LittleEndian.Uint16(buf[2*i:]))
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return got, err
}

func (s *ReaderSource) Close() error { return s.r.Close() }

// QueueSource is a Source fed by Push. It lets callers that receive audio
// over the network drive a live session. Chunks pushed before Close are
// still returned by Read; after they are consumed Read returns io.EOF.
type QueueSource struct {
	ch      chan []int16
	done    chan struct{}
	once    sync.Once
	pending []int16
}

// NewQueueSource buffers up to size pushed chunks before Push blocks.
func NewQueueSource(size int) *QueueSource {
	if size < 1 {
		size = 1
	}
	return &QueueSource{ch: make(chan []int16, size), done: make(chan struct{})}
}

// Push queues a copy of samples. It blocks while the queue is full.
func (q *QueueSource) Push(ctx context.Context, samples []int16) error {
	if len(samples) == 0 {
		return nil
	}
	select {
	case <-q.done:
		return ErrSourceClosed
	default:
	}
	own := append([]int16(nil), samples...)
	select {
	case q.ch <- own:
		return nil
	case <-q.done:
		return ErrSourceClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *QueueSource) Read(p []int16) (int, error) {
	if len(q.pending) == 0 {
		chunk, ok := q.next()
		if !ok {
			return 0, io.EOF
		}
		q.pending = chunk
	}
	n := copy(p, q.pending)
	q.pending = q.pending[n:]
	return n, nil
}

func (q *QueueSource) next() ([]int16, bool) {
	select {
	case c := <-q.ch:
		return c, true
	default:
	}
	select {
	case c := <-q.ch:
		return c, true
	case <-q.done:
	}
	// Closed: hand out whatever was pushed before Close.
	select {
	case c := <-q.ch:
		return c, true
	default:
		return nil, false
	}
}

func (q *QueueSource) Close() error {
	q.once.Do(func() { close(q.done) })
	return nil
}
