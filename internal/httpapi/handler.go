// Package httpapi is the control surface a UI layer talks to: a
// read-only snapshot of tracked layers plus the mutation entry points of
// the engine's funnel.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/opengeos/maplibre-gl-layer-control/internal/engine"
	"github.com/opengeos/maplibre-gl-layer-control/internal/metrics"
	"github.com/opengeos/maplibre-gl-layer-control/internal/state"
)

// Engine is the subset of the layer engine the API needs.
type Engine interface {
	Snapshot() []state.Entry
	SetVisibility(id string, visible bool) error
	SetOpacity(id string, opacity float64) error
	SetName(id, name string) error
	RemoveCustomLayer(id string)
	Reconcile()
}

type Handler struct {
	log     zerolog.Logger
	engine  Engine
	metrics *metrics.Metrics
}

func NewHandler(log zerolog.Logger, eng Engine, m *metrics.Metrics) *Handler {
	return &Handler{log: log, engine: eng, metrics: m}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(h.accessLog)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)

	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	// API
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Route("/layers", func(r chi.Router) {
				r.Get("/", h.handleListLayers)
				r.Route("/{id}", func(r chi.Router) {
					r.Put("/visibility", h.handleSetVisibility)
					r.Put("/opacity", h.handleSetOpacity)
					r.Put("/name", h.handleSetName)
					r.Delete("/", h.handleRemoveCustomLayer)
				})
			})
			r.Post("/reconcile", h.handleReconcile)
		})
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.Status(), time.Since(start))
		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, _ *http.Request) {
	if h.engine == nil {
		h.writeError(w, http.StatusServiceUnavailable, "not_ready", "engine not attached", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type layerResponse struct {
	ID            string  `json:"id"`
	Kind          string  `json:"kind"`
	Visible       bool    `json:"visible"`
	Indeterminate bool    `json:"indeterminate,omitempty"`
	Opacity       float64 `json:"opacity"`
	Name          string  `json:"name"`
	Background    bool    `json:"background_member"`
	CustomType    string  `json:"custom_type,omitempty"`
}

func toLayerResponse(e state.Entry) layerResponse {
	return layerResponse{
		ID:            e.ID,
		Kind:          e.Kind.String(),
		Visible:       e.Visible,
		Indeterminate: e.Indeterminate,
		Opacity:       e.Opacity,
		Name:          e.Name,
		Background:    e.Membership == state.BackgroundMember,
		CustomType:    e.CustomType,
	}
}

func (h *Handler) handleListLayers(w http.ResponseWriter, _ *http.Request) {
	entries := h.engine.Snapshot()
	out := make([]layerResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toLayerResponse(e))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"layers": out})
}

func (h *Handler) handleSetVisibility(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Visible *bool `json:"visible"`
	}
	if err := decodeJSONStrict(r, &body); err != nil || body.Visible == nil {
		h.writeError(w, http.StatusBadRequest, "bad_request", "body must be {\"visible\": bool}", nil)
		return
	}
	if err := h.engine.SetVisibility(id, *body.Visible); err != nil {
		h.writeLayerError(w, id, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"id": id, "visible": *body.Visible})
}

func (h *Handler) handleSetOpacity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Opacity *float64 `json:"opacity"`
	}
	if err := decodeJSONStrict(r, &body); err != nil || body.Opacity == nil {
		h.writeError(w, http.StatusBadRequest, "bad_request", "body must be {\"opacity\": number}", nil)
		return
	}
	if err := h.engine.SetOpacity(id, *body.Opacity); err != nil {
		h.writeLayerError(w, id, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"id": id, "opacity": *body.Opacity})
}

func (h *Handler) handleSetName(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		Name *string `json:"name"`
	}
	if err := decodeJSONStrict(r, &body); err != nil || body.Name == nil || *body.Name == "" {
		h.writeError(w, http.StatusBadRequest, "bad_request", "body must be {\"name\": string}", nil)
		return
	}
	if err := h.engine.SetName(id, *body.Name); err != nil {
		h.writeLayerError(w, id, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"id": id, "name": *body.Name})
}

func (h *Handler) handleRemoveCustomLayer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.engine.RemoveCustomLayer(id)
	h.writeJSON(w, http.StatusOK, map[string]any{"id": id, "removed": true})
}

func (h *Handler) handleReconcile(w http.ResponseWriter, _ *http.Request) {
	h.engine.Reconcile()
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
}

func (h *Handler) writeLayerError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, engine.ErrUnknownLayer) {
		h.writeError(w, http.StatusNotFound, "not_found", "unknown layer", map[string]any{"id": id})
		return
	}
	h.writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}
