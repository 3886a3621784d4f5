package api

import (
	"log/slog"
	"net/http"

	"github.com/libris-ai/libris/internal/store"
)

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	store  store.Store
	logger *slog.Logger
}

// NewHealthHandler creates a health handler. The store is probed for
// readiness.
func NewHealthHandler(st store.Store, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{store: st, logger: logger}
}

// RegisterRoutes registers health routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.liveness)
	mux.HandleFunc("GET /ready", h.readiness)
}

func (h *HealthHandler) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readiness returns 200 once the vector store answers queries.
func (h *HealthHandler) readiness(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		http.Error(w, "store not configured", http.StatusServiceUnavailable)
		return
	}
	if _, err := h.store.Count(r.Context()); err != nil {
		h.logger.Error("readiness check failed", "error", err)
		http.Error(w, "store not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
