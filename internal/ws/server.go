// Package ws streams audio from WebSocket clients into a per-connection
// transcription orchestrator and relays partial and final transcripts back.
package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/obiente/voiceinput/internal/audio"
	"github.com/obiente/voiceinput/internal/capture"
	"github.com/obiente/voiceinput/internal/engine"
	"github.com/obiente/voiceinput/internal/metrics"
	"github.com/obiente/voiceinput/internal/model"
	"github.com/obiente/voiceinput/internal/transcription"
)

const (
	pongWait     = 60 * time.Second
	eventBuffer  = 256
	defaultInput = 16000
)

// Options configure every connection the server accepts.
type Options struct {
	Capture capture.Options
	Metrics *metrics.Metrics
	// DefaultModel is loaded when a start message names no model.
	DefaultModel string
}

type Server struct {
	store    *model.Store
	factory  *engine.Factory
	opts     Options
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	rooms map[string]map[*peer]struct{}
}

// peer is one connection. gorilla allows a single concurrent writer, so
// every write goes through send.
type peer struct {
	conn    *websocket.Conn
	session string
	writeMu sync.Mutex

	// meta is guarded by Server.mu.
	meta meta
}

type meta struct {
	peerID    string
	peerLabel string
	channelID string
	roomID    string
}

type member struct {
	p    *peer
	meta meta
}

func (p *peer) send(v any) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if err := p.conn.WriteJSON(v); err != nil {
		log.Debug().Err(err).Str("session", p.session).Msg("ws: write failed")
	}
}

func (p *peer) fail(detail string) {
	p.send(map[string]any{"type": "error", "detail": detail})
}

func NewServer(store *model.Store, factory *engine.Factory, opts Options) *Server {
	return &Server{
		store:   store,
		factory: factory,
		opts:    opts,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024 * 16,
			WriteBufferSize: 1024 * 16,
		},
		rooms: make(map[string]map[*peer]struct{}),
	}
}

func (s *Server) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws: upgrade failed")
		return
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	p := &peer{conn: conn, session: uuid.NewString()}
	orch := transcription.New(s.store, s.factory, transcription.Options{Capture: s.opts.Capture, Metrics: s.opts.Metrics})
	events, unsubscribe := orch.Subscribe(eventBuffer)

	var (
		seqMu sync.Mutex
		seq   int
	)
	sequence := func() int {
		seqMu.Lock()
		defer seqMu.Unlock()
		return seq
	}

	relayed := make(chan struct{})
	go func() {
		defer close(relayed)
		s.relay(p, events, sequence)
	}()

	log.Info().Str("session", p.session).Str("remote", r.RemoteAddr).Msg("ws: client connected")
	defer func() {
		s.leaveRoom(p)
		orch.Cleanup()
		unsubscribe()
		<-relayed
		log.Info().Str("session", p.session).Msg("ws: client disconnected")
	}()

	ctx := r.Context()
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("session", p.session).Msg("ws: read error")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if mt != websocket.TextMessage {
			continue
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			p.fail("invalid json")
			continue
		}

		switch msg["type"] {
		case "ping":
			p.send(map[string]any{"type": "pong", "ts": msg["ts"]})
		case "load_model":
			id, _ := msg["model_id"].(string)
			s.load(ctx, p, orch, id)
		case "start":
			if v, ok := msg["channel_id"].(string); ok {
				s.update(p, func(m *meta) { m.channelID = v })
			}
			id, _ := msg["model_id"].(string)
			if !s.load(ctx, p, orch, id) {
				continue
			}
			if err := orch.StartStream(context.WithoutCancel(ctx)); err != nil {
				p.fail(err.Error())
				continue
			}
			st := orch.State()
			log.Info().
				Str("session", p.session).
				Str("model", st.ModelID).
				Str("channel", s.metaOf(p).channelID).
				Msg("ws: stream started")
			p.send(map[string]any{
				"type":             "started",
				"session_id":       p.session,
				"model_id":         st.ModelID,
				"engine":           st.Engine,
				"supports_partial": st.SupportsPartial,
			})
		case "chunk":
			b64, _ := msg["data"].(string)
			if b64 == "" {
				continue
			}
			raw, err := base64.StdEncoding.DecodeString(b64)
			if err != nil {
				p.fail("invalid base64 audio")
				continue
			}
			eng := orch.Engine()
			if eng == nil {
				p.fail(transcription.ErrNoModelLoaded.Error())
				continue
			}
			samples, err := decodeChunk(raw, msg, eng.SampleRate())
			if err != nil {
				log.Warn().Err(err).Str("session", p.session).Msg("ws: audio decode failed")
				p.fail("decode audio failed")
				continue
			}
			if f, ok := msg["sequence"].(float64); ok {
				seqMu.Lock()
				seq = int(f)
				seqMu.Unlock()
			}
			if err := orch.ProcessAudioChunk(ctx, samples); err != nil {
				p.fail(err.Error())
			}
		case "stop":
			// The relay reports the result and then "stopped".
			capturing := orch.State().Phase == transcription.PhaseCapturing
			res := orch.StopCapture(ctx)
			if !capturing {
				p.fail(res.Message)
				continue
			}
			log.Info().Str("session", p.session).Str("result", res.Kind.String()).Msg("ws: stream stopped")
		case "join_room":
			rid, _ := msg["room_id"].(string)
			if rid == "" {
				break
			}
			s.update(p, func(m *meta) {
				if v, ok := msg["peer_id"].(string); ok {
					m.peerID = v
				}
				if v, ok := msg["peer_label"].(string); ok {
					m.peerLabel = v
				}
			})
			s.joinRoom(rid, p)
			m := s.metaOf(p)
			p.send(map[string]any{"type": "room_joined", "room_id": rid, "peer_id": m.peerID, "peer_label": m.peerLabel})
		case "leave_room":
			s.leaveRoom(p)
			p.send(map[string]any{"type": "room_left"})
		default:
			p.fail("unknown message type")
		}
	}
}

// load switches the orchestrator to id, or to the default model when id is
// empty. The current model is kept when it already matches. A failed load
// reaches the client as an orchestrator error event.
func (s *Server) load(ctx context.Context, p *peer, orch *transcription.Orchestrator, id string) bool {
	st := orch.State()
	if id == "" && st.ModelID != "" {
		return true
	}
	if id == "" {
		id = s.opts.DefaultModel
	}
	if id == "" {
		p.fail(transcription.ErrNoModelLoaded.Error())
		return false
	}
	if id == st.ModelID {
		return true
	}
	if err := orch.LoadModel(ctx, id); err != nil {
		log.Warn().Err(err).Str("session", p.session).Str("model", id).Msg("ws: model load failed")
		return false
	}
	return true
}

// relay turns orchestrator events into client messages until events closes.
func (s *Server) relay(p *peer, events <-chan transcription.Event, sequence func() int) {
	var prev transcription.Phase
	for e := range events {
		switch e.Type {
		case transcription.EventPartial, transcription.EventFinal:
			final := e.Type == transcription.EventFinal
			payload := map[string]any{
				"type":     "transcript",
				"text":     e.Result.Text,
				"fullText": e.Result.Text,
				"isFinal":  final,
				"sequence": sequence(),
			}
			p.send(payload)
			if m := s.metaOf(p); m.roomID != "" {
				s.broadcast(p, map[string]any{
					"type":       "room_transcript",
					"room_id":    m.roomID,
					"peer_id":    m.peerID,
					"peer_label": m.peerLabel,
					"channel_id": m.channelID,
					"text":       e.Result.Text,
					"fullText":   e.Result.Text,
					"isFinal":    final,
					"sequence":   payload["sequence"],
				})
			}
		case transcription.EventError:
			p.fail(e.Result.Message)
		case transcription.EventModel:
			p.send(map[string]any{"type": "model_loaded", "model_id": e.ModelID})
		case transcription.EventState:
			p.send(map[string]any{"type": "state", "phase": e.Phase})
			if prev == transcription.PhaseStopping && e.Phase == transcription.PhaseReady {
				p.send(map[string]any{"type": "stopped"})
			}
			prev = e.Phase
		}
	}
}

// decodeChunk reads raw PCM16LE (mime_type audio/pcm, audio/L16 or
// audio/pcm16, with sample_rate) or a WAV file, at the engine rate.
func decodeChunk(raw []byte, msg map[string]any, rate int) ([]int16, error) {
	mt, _ := msg["mime_type"].(string)
	switch mt {
	case "audio/pcm", "audio/L16", "audio/pcm16":
		samples, err := audio.DecodePCM16LE(raw)
		if err != nil {
			return nil, err
		}
		sr := int(asFloat(msg["sample_rate"]))
		if sr <= 0 {
			sr = defaultInput
		}
		if sr != rate {
			samples = audio.Resample(samples, sr, rate)
		}
		return samples, nil
	default:
		clip, err := audio.Decode(raw, rate)
		if err != nil {
			return nil, err
		}
		return clip.Samples, nil
	}
}

func (s *Server) metaOf(p *peer) meta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return p.meta
}

func (s *Server) update(p *peer, fn func(*meta)) {
	s.mu.Lock()
	fn(&p.meta)
	s.mu.Unlock()
}

func (s *Server) joinRoom(room string, p *peer) {
	s.mu.Lock()
	prev := p.meta.roomID
	if prev != "" && prev != room {
		s.removeLocked(p)
	}
	m := s.rooms[room]
	if m == nil {
		m = make(map[*peer]struct{})
		s.rooms[room] = m
	}
	m[p] = struct{}{}
	p.meta.roomID = room
	s.mu.Unlock()
	if prev != "" && prev != room {
		s.broadcastRoster(prev)
	}
	s.broadcastRoster(room)
}

func (s *Server) leaveRoom(p *peer) {
	s.mu.Lock()
	room := p.meta.roomID
	if room == "" {
		s.mu.Unlock()
		return
	}
	s.removeLocked(p)
	s.mu.Unlock()
	s.broadcastRoster(room)
}

func (s *Server) removeLocked(p *peer) {
	room := p.meta.roomID
	if m := s.rooms[room]; m != nil {
		delete(m, p)
		if len(m) == 0 {
			delete(s.rooms, room)
		}
	}
	p.meta.roomID = ""
}

// members snapshots a room so writes happen without holding s.mu.
func (s *Server) members(room string) []member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]member, 0, len(s.rooms[room]))
	for p := range s.rooms[room] {
		out = append(out, member{p: p, meta: p.meta})
	}
	return out
}

// broadcast sends payload to everyone in the sender's room except the
// sender and other connections sharing its peer id.
func (s *Server) broadcast(sender *peer, payload map[string]any) {
	from := s.metaOf(sender)
	for _, m := range s.members(from.roomID) {
		if m.p == sender {
			continue
		}
		if from.peerID != "" && m.meta.peerID == from.peerID {
			continue
		}
		m.p.send(payload)
	}
}

func (s *Server) broadcastRoster(room string) {
	members := s.members(room)
	list := make([]map[string]any, 0, len(members))
	for _, m := range members {
		list = append(list, map[string]any{
			"peer_id":    m.meta.peerID,
			"peer_label": m.meta.peerLabel,
			"channel_id": m.meta.channelID,
		})
	}
	payload := map[string]any{"type": "room_roster", "room_id": room, "members": list}
	for _, m := range members {
		m.p.send(payload)
	}
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f
	default:
		return 0
	}
}
