// Package transcription coordinates model selection, capture and result
// delivery for one active engine at a time.
package transcription

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/obiente/voiceinput/internal/capture"
	"github.com/obiente/voiceinput/internal/engine"
	"github.com/obiente/voiceinput/internal/metrics"
	"github.com/obiente/voiceinput/internal/model"
)

var (
	ErrNoModelLoaded = errors.New("No model loaded")
	ErrCaptureActive = errors.New("capture already active")
	ErrNotCapturing  = errors.New("not capturing")
)

// Phase is the orchestrator's externally visible state.
type Phase string

const (
	PhaseIdle      Phase = "idle" // no model loaded
	PhaseLoading   Phase = "loading"
	PhaseReady     Phase = "ready"
	PhaseCapturing Phase = "capturing"
	PhaseStopping  Phase = "stopping"
)

type EventType string

const (
	EventState   EventType = "state"
	EventModel   EventType = "model"
	EventPartial EventType = "partial"
	EventFinal   EventType = "final"
	EventError   EventType = "error"
)

// Event is published to every subscriber.
type Event struct {
	Type    EventType      `json:"type"`
	Phase   Phase          `json:"phase,omitempty"`
	ModelID string         `json:"modelId,omitempty"`
	Result  *engine.Result `json:"result,omitempty"`
	Time    time.Time      `json:"time"`
}

// Snapshot is a consistent view of the orchestrator.
type Snapshot struct {
	Phase           Phase       `json:"phase"`
	ModelID         string      `json:"modelId,omitempty"`
	Engine          engine.Type `json:"engine,omitempty"`
	SupportsPartial bool        `json:"supportsPartial"`
	LastPartial     string      `json:"lastPartial,omitempty"`
	LastError       string      `json:"lastError,omitempty"`
}

// Options configure capture for every engine the orchestrator loads.
type Options struct {
	Capture capture.Options
	Metrics *metrics.Metrics
}

// Orchestrator owns at most one loaded engine and its capture session.
type Orchestrator struct {
	store   *model.Store
	factory *engine.Factory
	opts    Options
	events  *Broadcaster[Event]

	// op serializes load, start, stop and cleanup.
	op sync.Mutex

	mu          sync.RWMutex
	eng         *engine.StreamingEngine
	modelID     string
	session     *capture.Session
	queue       *capture.QueueSource
	phase       Phase
	lastPartial string
	lastErr     string
}

func New(store *model.Store, factory *engine.Factory, opts Options) *Orchestrator {
	return &Orchestrator{
		store:   store,
		factory: factory,
		opts:    opts,
		events:  NewBroadcaster[Event](),
		phase:   PhaseIdle,
	}
}

// Subscribe registers an observer. Slow observers lose their oldest events.
func (o *Orchestrator) Subscribe(buffer int) (<-chan Event, func()) {
	return o.events.Subscribe(buffer)
}

func (o *Orchestrator) State() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s := Snapshot{
		Phase:       o.phase,
		ModelID:     o.modelID,
		LastPartial: o.lastPartial,
		LastError:   o.lastErr,
	}
	if o.eng != nil {
		s.Engine = o.eng.Type()
		s.SupportsPartial = o.eng.SupportsPartial()
	}
	return s
}

// Engine returns the active engine, or nil.
func (o *Orchestrator) Engine() *engine.StreamingEngine {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.eng
}

// LoadModel switches to the model id from the store. The current engine
// keeps running until the new one has loaded; a failed load leaves it in place.
func (o *Orchestrator) LoadModel(ctx context.Context, id string) error {
	o.op.Lock()
	defer o.op.Unlock()

	o.mu.RLock()
	prev := o.phase
	o.mu.RUnlock()
	if prev == PhaseCapturing || prev == PhaseStopping {
		o.fail(ErrCaptureActive.Error())
		return ErrCaptureActive
	}

	inst, err := o.store.Get(id)
	if err != nil {
		o.fail(err.Error())
		return err
	}
	eng, err := o.factory.ForManifest(inst.Manifest, engine.WithPartialHandler(o.onPartial))
	if err != nil {
		o.fail(err.Error())
		return err
	}

	o.setPhase(PhaseLoading)
	if err := eng.LoadModel(ctx, inst.Dir); err != nil {
		o.setPhase(prev)
		o.fail(err.Error())
		return err
	}

	copts := o.opts.Capture
	copts.SampleRate = eng.SampleRate()
	if copts.Metrics == nil {
		copts.Metrics = o.opts.Metrics
	}

	o.mu.Lock()
	old := o.eng
	o.eng = eng
	o.modelID = inst.ID
	o.session = capture.NewSession(eng, copts)
	o.lastPartial = ""
	o.lastErr = ""
	o.mu.Unlock()

	if old != nil {
		old.UnloadModel()
	}
	log.Info().Str("model", inst.ID).Str("engine", string(eng.Type())).Msg("transcription: model active")
	o.publish(Event{Type: EventModel, ModelID: inst.ID})
	o.setPhase(PhaseReady)
	return nil
}

// StartCapture begins a live capture from src. src is closed when the
// capture stops.
func (o *Orchestrator) StartCapture(ctx context.Context, src capture.Source) error {
	o.op.Lock()
	defer o.op.Unlock()
	return o.start(ctx, src, nil)
}

// StartStream begins a capture fed through ProcessAudioChunk.
func (o *Orchestrator) StartStream(ctx context.Context) error {
	o.op.Lock()
	defer o.op.Unlock()
	size := o.opts.Capture.QueueSize
	if size <= 0 {
		size = 8
	}
	q := capture.NewQueueSource(size)
	return o.start(ctx, q, q)
}

func (o *Orchestrator) start(ctx context.Context, src capture.Source, q *capture.QueueSource) error {
	o.mu.RLock()
	eng, session, phase := o.eng, o.session, o.phase
	o.mu.RUnlock()

	if eng == nil {
		return ErrNoModelLoaded
	}
	if phase == PhaseCapturing || phase == PhaseStopping {
		return ErrCaptureActive
	}
	if err := eng.StartCapture(); err != nil {
		return err
	}
	if err := session.StartLive(ctx, src); err != nil {
		_ = eng.StopCapture(ctx)
		return err
	}

	o.mu.Lock()
	o.queue = q
	o.lastPartial = ""
	o.mu.Unlock()
	o.opts.Metrics.CaptureStarted()
	o.setPhase(PhaseCapturing)
	return nil
}

// ProcessAudioChunk pushes samples into a capture started with StartStream.
func (o *Orchestrator) ProcessAudioChunk(ctx context.Context, samples []int16) error {
	o.mu.RLock()
	q, loaded := o.queue, o.eng != nil
	o.mu.RUnlock()
	if !loaded {
		return ErrNoModelLoaded
	}
	if q == nil {
		return ErrNotCapturing
	}
	return q.Push(ctx, samples)
}

// StopCapture ends the capture and returns the final result. Every chunk
// accepted before the call reaches the engine. The orchestrator is Ready
// again afterwards whatever the outcome.
func (o *Orchestrator) StopCapture(ctx context.Context) engine.Result {
	o.op.Lock()
	defer o.op.Unlock()

	o.mu.RLock()
	eng, session, q, phase := o.eng, o.session, o.queue, o.phase
	o.mu.RUnlock()

	if eng == nil {
		return engine.Failure(ErrNoModelLoaded.Error())
	}
	if phase != PhaseCapturing {
		return engine.Failure(ErrNotCapturing.Error())
	}

	o.setPhase(PhaseStopping)
	defer o.setPhase(PhaseReady)

	if q != nil {
		_ = q.Close()
		select {
		case <-session.Done():
		case <-ctx.Done():
			log.Warn().Err(ctx.Err()).Msg("transcription: stop before queued audio drained")
		}
	}
	if err := session.Stop(); err != nil {
		log.Warn().Err(err).Msg("transcription: capture ended with error")
	}

	o.mu.Lock()
	o.queue = nil
	o.mu.Unlock()

	res := o.finish(ctx, eng)
	o.opts.Metrics.CaptureStopped(res.Kind.String())
	return res
}

// finish flushes the engine and publishes the final result or its error.
func (o *Orchestrator) finish(ctx context.Context, eng *engine.StreamingEngine) engine.Result {
	res := eng.StopCapture(ctx)
	if res.Kind == engine.KindError {
		o.fail(res.Message)
	} else {
		o.publish(Event{Type: EventFinal, Result: &res})
	}
	log.Info().Str("result", res.Kind.String()).Int("chars", len(res.Text)).Msg("transcription: capture stopped")
	return res
}

// Cleanup cancels any capture and unloads the engine. A cancelled capture
// is still flushed, and its final result or error is published. It is safe
// to call repeatedly, and the orchestrator can load a model again afterwards.
func (o *Orchestrator) Cleanup() {
	o.op.Lock()
	defer o.op.Unlock()

	o.mu.Lock()
	eng, session, q, phase := o.eng, o.session, o.queue, o.phase
	o.eng, o.session, o.queue = nil, nil, nil
	o.modelID = ""
	o.lastPartial = ""
	o.mu.Unlock()

	if q != nil {
		_ = q.Close()
	}
	if session != nil && session.State() != capture.Idle {
		_ = session.Stop()
		o.opts.Metrics.CaptureStopped("cancelled")
	}
	if eng != nil && phase == PhaseCapturing {
		o.setPhase(PhaseStopping)
		o.finish(context.Background(), eng)
	}
	if eng != nil {
		eng.UnloadModel()
		log.Info().Msg("transcription: engine released")
	}
	o.setPhase(PhaseIdle)
}

func (o *Orchestrator) onPartial(r engine.Result) {
	o.mu.Lock()
	if r.Kind == engine.KindPartial {
		o.lastPartial = r.Text
	} else {
		o.lastErr = r.Message
	}
	o.mu.Unlock()

	if r.Kind == engine.KindPartial {
		o.publish(Event{Type: EventPartial, Result: &r})
		return
	}
	o.publish(Event{Type: EventError, Result: &r})
}

func (o *Orchestrator) fail(msg string) {
	o.mu.Lock()
	o.lastErr = msg
	o.mu.Unlock()
	r := engine.Failure(msg)
	o.publish(Event{Type: EventError, Result: &r})
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	changed := o.phase != p
	o.phase = p
	o.mu.Unlock()
	if changed {
		o.publish(Event{Type: EventState, Phase: p})
	}
}

func (o *Orchestrator) publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	o.events.Publish(e)
}
