package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/chroma/tonelight/internal/app"
	"github.com/chroma/tonelight/internal/store"
	"github.com/chroma/tonelight/internal/tone"
)

// errInvalidRequestBody is the message for undecodable JSON bodies.
const errInvalidRequestBody = "invalid request body"

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

type pipelineHandler struct {
	app    *app.App
	logger *slog.Logger
}

// Status handles GET /api/status.
func (h *pipelineHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.app.Status())
}

// Reset handles POST /api/reset.
func (h *pipelineHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.app.Reset()
	respondJSON(w, http.StatusOK, map[string]string{"reset": "all"})
}

// Stop handles POST /api/stop. The pipeline stops after the current frame.
func (h *pipelineHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if !h.app.IsRunning() {
		respondError(w, http.StatusConflict, "pipeline is not running")
		return
	}
	h.app.Stop()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

// ResetSlot handles POST /api/slots/{key}/reset.
func (h *pipelineHandler) ResetSlot(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	h.app.ResetSlot(key)
	respondJSON(w, http.StatusOK, map[string]string{"reset": key})
}

// SetEnabled handles PUT /api/enabled with {"enabled": bool}.
func (h *pipelineHandler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	h.app.SetEnabled(*req.Enabled)
	respondJSON(w, http.StatusOK, map[string]bool{"enabled": h.app.IsEnabled()})
}

type paletteEntry struct {
	Label   string             `json:"label"`
	Samples []tone.ColorSample `json:"samples"`
}

// Palette handles GET /api/palette.
func (h *pipelineHandler) Palette(w http.ResponseWriter, r *http.Request) {
	p := h.app.Classifier().Palette()
	entries := make([]paletteEntry, 0, len(p.Labels()))
	for _, label := range p.Labels() {
		entries = append(entries, paletteEntry{Label: label, Samples: p.Samples(label)})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"shape":  p.Shape(),
		"labels": entries,
	})
}

// Commands handles GET /api/commands.
func (h *pipelineHandler) Commands(w http.ResponseWriter, r *http.Request) {
	policy := h.app.Policy()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"mode":     policy.Mode(),
		"commands": policy.Commands(),
	})
}

type classifyRequest struct {
	R *int `json:"r"`
	G *int `json:"g"`
	B *int `json:"b"`
}

func (c classifyRequest) sample() (tone.ColorSample, bool) {
	var out [3]uint8
	for i, v := range []*int{c.R, c.G, c.B} {
		if v == nil || *v < 0 || *v > 255 {
			return tone.ColorSample{}, false
		}
		out[i] = uint8(*v)
	}
	return tone.ColorSample{R: out[0], G: out[1], B: out[2]}, true
}

// Classify handles POST /api/classify with {"r":..,"g":..,"b":..}. It
// classifies without touching any slot.
func (h *pipelineHandler) Classify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	sample, ok := req.sample()
	if !ok {
		respondError(w, http.StatusBadRequest, "r, g and b must be integers in [0,255]")
		return
	}

	ev, err := h.app.Classifier().Classify(sample)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	cmd, _ := h.app.Policy().Command(ev.Label)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"label":    ev.Label,
		"distance": ev.Distance,
		"sample":   ev.Sample,
		"command":  cmd,
	})
}

// Send handles POST /api/send with {"command": "..."}.
func (h *pipelineHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Command == "" {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if err := h.app.Send(req.Command); err != nil {
		h.logger.Warn("manual command rejected", "command", req.Command, "error", err)
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"queued": req.Command})
}

// Preview handles GET /api/preview.jpg.
func (h *pipelineHandler) Preview(w http.ResponseWriter, r *http.Request) {
	data, ok := h.app.Preview()
	if !ok {
		respondError(w, http.StatusNotFound, "no frame processed yet")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(data)
}

type historyHandler struct {
	store *store.Store
}

// List handles GET /api/dispatches?limit=N.
func (h *historyHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := h.store.Dispatches().List(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []*store.DispatchRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"dispatches": records})
}

// LastImport handles GET /api/palette/import.
func (h *historyHandler) LastImport(w http.ResponseWriter, r *http.Request) {
	imp, err := h.store.References().LastImport()
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "no palette imported")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, imp)
}
