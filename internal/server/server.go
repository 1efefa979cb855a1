// Package server exposes the generation pipeline over HTTP: a start
// endpoint, a polling status endpoint and a websocket progress stream.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"threatforge/internal/orchestrator"
	"threatforge/internal/repository/modelstore"
)

type Handler struct {
	svc *orchestrator.Service
	hub *ProgressHub
}

func New(svc *orchestrator.Service, hub *ProgressHub) *Handler {
	return &Handler{svc: svc, hub: hub}
}

// Register mounts all routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /threat-models/{id}/generate", h.handleStartGeneration)
	mux.HandleFunc("GET /threat-models/{id}/generation", h.handleGenerationStatus)
	mux.HandleFunc("/ws/generation", h.HandleGenerationWS)
}

func (h *Handler) handleStartGeneration(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		http.Error(w, "threat model id is required", http.StatusBadRequest)
		return
	}
	if err := h.svc.StartGeneration(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, modelstore.ErrNotFound):
			http.Error(w, "threat model not found", http.StatusNotFound)
		case errors.Is(err, modelstore.ErrConflict):
			http.Error(w, "generation already in progress", http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"threat_model_id": id,
		"status":          "generating",
	})
}

func (h *Handler) handleGenerationStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		http.Error(w, "threat model id is required", http.StatusBadRequest)
		return
	}
	st, err := h.svc.GetGenerationStatus(r.Context(), id)
	if err != nil {
		if errors.Is(err, modelstore.ErrNotFound) {
			http.Error(w, "threat model not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
