package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/obiente/voiceinput/internal/capture"
	"github.com/obiente/voiceinput/internal/engine"
	"github.com/obiente/voiceinput/internal/metrics"
	"github.com/obiente/voiceinput/internal/model"
	"github.com/obiente/voiceinput/internal/transcription"
	"github.com/obiente/voiceinput/internal/ws"
)

// maxUpload bounds WAV bodies posted to /transcribe.
const maxUpload = 64 << 20

// Deps are the services the router exposes.
type Deps struct {
	Store *model.Store
	// Models, when set, serves the model listing instead of rescanning Store.
	Models  *model.Cache
	Factory *engine.Factory
	// Available marks the engine types this build can load.
	Available map[engine.Type]bool
	Capture   capture.Options
	Gatherer  prometheus.Gatherer
	WS        *ws.Server
}

type modelView struct {
	ID          string        `json:"id"`
	DisplayName string        `json:"display_name"`
	Engine      string        `json:"engine"`
	Ready       bool          `json:"ready"`
	Available   bool          `json:"available"`
	Languages   []string      `json:"languages,omitempty"`
	SizeBytes   int64         `json:"size_bytes,omitempty"`
	License     model.License `json:"license"`
}

func viewOf(inst model.Installed, available map[engine.Type]bool) modelView {
	return modelView{
		ID:          inst.ID,
		DisplayName: inst.DisplayName,
		Engine:      inst.Engine,
		Ready:       inst.Ready,
		Available:   available[engine.Type(inst.Engine)],
		Languages:   inst.Manifest.Languages,
		SizeBytes:   inst.Manifest.SizeBytes,
		License:     inst.Manifest.License(),
	}
}

func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	if d.Gatherer != nil {
		mux.Handle("GET /metrics", metrics.Handler(d.Gatherer))
	}

	mux.HandleFunc("GET /models", func(w http.ResponseWriter, r *http.Request) {
		list, err := d.listModels()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		out := make([]modelView, 0, len(list))
		for _, inst := range list {
			out = append(out, viewOf(inst, d.Available))
		}
		writeJSON(w, http.StatusOK, out)
	})
	mux.HandleFunc("GET /models/{id}", func(w http.ResponseWriter, r *http.Request) {
		inst, err := d.Store.Get(r.PathValue("id"))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"model":    viewOf(*inst, d.Available),
			"manifest": inst.Manifest,
		})
	})
	mux.HandleFunc("POST /models/{id}/validate", func(w http.ResponseWriter, r *http.Request) {
		if err := d.Store.Validate(r.PathValue("id")); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	mux.HandleFunc("DELETE /models/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := d.Store.Delete(r.PathValue("id")); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		if d.Models != nil {
			d.Models.Invalidate()
		}
		w.WriteHeader(http.StatusNoContent)
	})

	// One-shot file transcription: POST a WAV body with ?model=<id>.
	mux.HandleFunc("POST /transcribe", func(w http.ResponseWriter, r *http.Request) {
		inst, err := d.Store.Get(r.URL.Query().Get("model"))
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		data, err := io.ReadAll(io.LimitReader(r.Body, maxUpload))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		eng, err := d.Factory.ForManifest(inst.Manifest)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		if err := eng.LoadModel(r.Context(), inst.Dir); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		defer eng.UnloadModel()

		opts := d.Capture
		opts.SampleRate = eng.SampleRate()
		opts.FileChunkDelay = 0
		res := transcription.TranscribeFile(r.Context(), eng, data, opts)
		log.Info().Str("model", inst.ID).Str("result", res.Kind.String()).Msg("http: file transcribed")
		status := http.StatusOK
		if res.Kind == engine.KindError {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, res)
	})

	if d.WS != nil {
		mux.HandleFunc("/ws/transcribe", d.WS.Handle)
	}
	return mux
}

func (d *Deps) listModels() ([]model.Installed, error) {
	if d.Models != nil {
		return d.Models.List()
	}
	return d.Store.List()
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrManifestNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrUnknownEngine), errors.Is(err, engine.ErrUnavailable),
		errors.Is(err, model.ErrChecksumMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("http: encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
