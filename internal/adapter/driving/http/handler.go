package http

import (
	"encoding/json"
	"net/http"

	"github.com/Wyydra/callbridge/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/callbridge/internal/core/domain"
	"github.com/Wyydra/callbridge/internal/core/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	Bridge   *service.Bridge
	Registry *service.Registry
	Hub      *ws.Hub
	Metrics  http.Handler
}

// NewHandler wires the transport to one bridge. metrics may be nil.
func NewHandler(bridge *service.Bridge, registry *service.Registry, hub *ws.Hub, metrics http.Handler) *Handler {
	return &Handler{
		Bridge:   bridge,
		Registry: registry,
		Hub:      hub,
		Metrics:  metrics,
	}
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Route("/calls/{handle}", func(r chi.Router) {
		r.Get("/", h.getCall)
		r.Post("/resume", h.resumeCall)
	})
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	r.Get("/ws", h.ServeWS)

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*service.Bridge, bool) {
	handle := domain.SessionHandle(chi.URLParam(r, "handle"))
	b, ok := h.Registry.Lookup(handle)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorDTO{Code: "NOT_FOUND", Message: "unknown or stale session handle"})
	}
	return b, ok
}

func (h *Handler) getCall(w http.ResponseWriter, r *http.Request) {
	b, ok := h.lookup(w, r)
	if !ok {
		return
	}
	snap, err := b.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSnapshotDTO(snap))
}

func (h *Handler) resumeCall(w http.ResponseWriter, r *http.Request) {
	b, ok := h.lookup(w, r)
	if !ok {
		return
	}
	changes, err := b.AppResumed(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resumeDTO{Changes: newChangeDTOs(changes)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Error writing response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch domain.CodeOf(err) {
	case domain.CodeValidation:
		status = http.StatusBadRequest
	case domain.CodeNotInitialized, domain.CodeCallInProgress, domain.CodeJoinAborted:
		status = http.StatusConflict
	case domain.CodePermission:
		status = http.StatusForbidden
	case domain.CodeEngine:
		status = http.StatusBadGateway
	case domain.CodeClosed:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, newErrorDTO(err))
}
