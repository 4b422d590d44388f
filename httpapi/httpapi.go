// Package httpapi exposes the session lifecycle over HTTP. Error kinds map
// to distinct status codes so callers can tell "not found", "still
// processing" and "not interruptible" apart.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/logging"
	"github.com/hupe1980/researchmesh/session"
)

// Options configure the Handler.
type Options struct {
	Logger logging.Logger
}

// Handler serves the research session lifecycle API.
type Handler struct {
	manager *session.Manager
	logger  logging.Logger
	mux     *http.ServeMux
}

// NewHandler creates the API handler over a session manager.
func NewHandler(manager *session.Manager, optFns ...func(o *Options)) *Handler {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &Handler{
		manager: manager,
		logger:  opts.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /research", h.createSession)
	mux.HandleFunc("GET /research", h.listSessions)
	mux.HandleFunc("GET /research/{id}", h.getResult)
	mux.HandleFunc("GET /research/{id}/status", h.getStatus)
	mux.HandleFunc("POST /research/{id}/resume", h.resumeSession)
	mux.HandleFunc("DELETE /research/{id}", h.deleteSession)
	h.mux = mux

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type createRequest struct {
	Theme            string `json:"theme"`
	MaxIterations    int    `json:"max_iterations"`
	HumanLoopEnabled bool   `json:"human_loop_enabled"`
}

type createResponse struct {
	SessionID string `json:"session_id"`
}

type resumeRequest struct {
	HumanInput string `json:"human_input"`
	Action     string `json:"action"` // "resume" (default) | "replan"
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if req.Theme == "" {
		writeError(w, http.StatusBadRequest, errors.New("theme must not be empty"))
		return
	}

	id, err := h.manager.Create(req.Theme, req.MaxIterations, req.HumanLoopEnabled)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	h.logger.Info("session created via api", "session_id", id)
	writeJSON(w, http.StatusCreated, createResponse{SessionID: id})
}

func (h *Handler) getResult(w http.ResponseWriter, r *http.Request) {
	result, err := h.manager.GetResult(r.PathValue("id"))
	if err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.manager.GetStatus(r.PathValue("id"))
	if err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) resumeSession(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	id := r.PathValue("id")
	err := h.manager.Resume(r.Context(), id, req.HumanInput, session.ResumeAction(req.Action))
	if err != nil {
		h.writeLifecycleError(w, err)
		return
	}

	snapshot, err := h.manager.GetStatus(id)
	if err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, snapshot)
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Delete(r.PathValue("id")); err != nil {
		h.writeLifecycleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listSessions(w http.ResponseWriter, _ *http.Request) {
	snapshots, err := h.manager.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": snapshots,
		"total":    len(snapshots),
	})
}

// writeLifecycleError maps the manager's sentinel errors onto distinct
// status codes.
func (h *Handler) writeLifecycleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, core.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, core.ErrSessionRunning):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, core.ErrNotInterrupted):
		writeError(w, http.StatusConflict, err)
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
