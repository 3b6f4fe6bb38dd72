// Package capture moves audio from a source to an engine.
//
// A session runs two goroutines: a pump that reads fixed-size buffers from
// the source (or slices a decoded file) and a consumer that hands each chunk
// to the sink. They are joined by a bounded channel. When the channel is full
// the pump blocks rather than dropping audio; every blocked send is counted.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obiente/voiceinput/internal/metrics"
)

// ErrBusy is returned when starting a session that is not idle.
var ErrBusy = errors.New("capture already running")

// Sink consumes captured chunks in order. engine.Engine satisfies it.
type Sink interface {
	ProcessAudioChunk(ctx context.Context, samples []int16)
}

// Options shape the pump cadence and queue.
type Options struct {
	SampleRate int
	// LiveBufferSamples is the read size for live sources.
	LiveBufferSamples int
	// QueueSize bounds the chunks in flight between pump and consumer.
	QueueSize int
	// FileChunkDelay paces file replay between chunks.
	FileChunkDelay time.Duration
	Metrics        *metrics.Metrics
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.SampleRate <= 0 {
		out.SampleRate = 16000
	}
	if out.LiveBufferSamples <= 0 {
		out.LiveBufferSamples = out.SampleRate / 10
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 8
	}
	return out
}

// Stats counts what the current or last capture delivered.
type Stats struct {
	Chunks       int64 `json:"chunks"`
	Samples      int64 `json:"samples"`
	Backpressure int64 `json:"backpressure"`
}

// run is one capture from start to stop.
type run struct {
	cancel context.CancelFunc
	src    Source
	queue  chan []int16
	done   chan struct{}

	closeOnce sync.Once
	closed    atomic.Bool
	err       error

	chunks       atomic.Int64
	samples      atomic.Int64
	backpressure atomic.Int64
}

// closeSource closes the source exactly once.
func (r *run) closeSource() {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		if r.src == nil {
			return
		}
		if err := r.src.Close(); err != nil {
			log.Debug().Err(err).Msg("capture: close source")
		}
	})
}

func (r *run) send(chunk []int16, m *metrics.Metrics) {
	select {
	case r.queue <- chunk:
		return
	default:
	}
	r.backpressure.Add(1)
	m.RecordBackpressure()
	r.queue <- chunk
}

// Session runs at most one capture at a time.
type Session struct {
	sink Sink
	opts Options

	mu    sync.Mutex
	state State
	cur   *run
	last  *run
}

func NewSession(sink Sink, opts Options) *Session {
	return &Session{sink: sink, opts: opts.withDefaults()}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ChunkSize is the file-mode chunk length: half a second of audio.
func (s *Session) ChunkSize() int { return s.opts.SampleRate / 2 }

// StartLive pumps src until it ends, ctx is cancelled or Stop is called.
// Cancelling ctx closes the source, which unblocks a pending Read.
func (s *Session) StartLive(ctx context.Context, src Source) error {
	if src == nil {
		return errors.New("capture: nil source")
	}
	r, pctx, err := s.begin(ctx, src)
	if err != nil {
		return err
	}
	context.AfterFunc(pctx, r.closeSource)
	log.Info().Int("bufferSamples", s.opts.LiveBufferSamples).Int("queue", s.opts.QueueSize).Msg("capture: live capture started")
	go s.pumpLive(pctx, r)
	return nil
}

// StartFile replays samples in half-second chunks, pausing FileChunkDelay
// between them, the way a file would stream from a device.
func (s *Session) StartFile(ctx context.Context, samples []int16) error {
	r, pctx, err := s.begin(ctx, nil)
	if err != nil {
		return err
	}
	log.Info().Int("samples", len(samples)).Int("chunk", s.ChunkSize()).Msg("capture: file capture started")
	go s.pumpFile(pctx, r, samples)
	return nil
}

func (s *Session) begin(ctx context.Context, src Source) (*run, context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return nil, nil, ErrBusy
	}
	pctx, cancel := context.WithCancel(ctx)
	r := &run{
		cancel: cancel,
		src:    src,
		queue:  make(chan []int16, s.opts.QueueSize),
		done:   make(chan struct{}),
	}
	s.state = Capturing
	s.cur = r
	s.last = r
	// Inference keeps running for chunks already queued when capture is cancelled.
	go s.consume(context.WithoutCancel(ctx), r)
	return r, pctx, nil
}

func (s *Session) pumpLive(ctx context.Context, r *run) {
	defer close(r.queue)
	size := s.opts.LiveBufferSamples
	for ctx.Err() == nil {
		buf := make([]int16, size)
		n, err := r.src.Read(buf)
		if n > 0 {
			r.send(buf[:n], s.opts.Metrics)
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) && !r.closed.Load() {
			r.err = fmt.Errorf("read source: %w", err)
			log.Warn().Err(err).Msg("capture: source read failed")
		}
		r.closeSource()
		return
	}
}

func (s *Session) pumpFile(ctx context.Context, r *run, samples []int16) {
	defer close(r.queue)
	chunk := s.ChunkSize()
	for off := 0; off < len(samples); off += chunk {
		if ctx.Err() != nil {
			return
		}
		end := min(off+chunk, len(samples))
		r.send(samples[off:end], s.opts.Metrics)
		if end < len(samples) && s.opts.FileChunkDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.opts.FileChunkDelay):
			}
		}
	}
}

func (s *Session) consume(ctx context.Context, r *run) {
	defer close(r.done)
	for chunk := range r.queue {
		s.sink.ProcessAudioChunk(ctx, chunk)
		r.chunks.Add(1)
		r.samples.Add(int64(len(chunk)))
	}
}

// Done is closed once the current capture has delivered everything its pump
// produced, either because the source or file ran out or because of Stop.
// It returns a closed channel when idle.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return s.cur.done
}

// Stop cancels the pump, closes the source and waits until every chunk
// already read has reached the sink. It returns the source read error, if
// any. Stop on an idle session does nothing.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state != Capturing {
		s.mu.Unlock()
		return nil
	}
	s.state = Stopping
	r := s.cur
	s.mu.Unlock()

	r.cancel()
	r.closeSource()
	<-r.done

	s.mu.Lock()
	s.state = Idle
	s.cur = nil
	s.mu.Unlock()

	log.Info().
		Int64("chunks", r.chunks.Load()).
		Int64("samples", r.samples.Load()).
		Int64("backpressure", r.backpressure.Load()).
		Msg("capture: stopped")
	return r.err
}

// Stats reports the current capture, or the last one once stopped.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	r := s.last
	s.mu.Unlock()
	if r == nil {
		return Stats{}
	}
	return Stats{
		Chunks:       r.chunks.Load(),
		Samples:      r.samples.Load(),
		Backpressure: r.backpressure.Load(),
	}
}
