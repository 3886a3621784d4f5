package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/libris-ai/libris/internal/ingest"
	"github.com/libris-ai/libris/internal/rag"
	"github.com/libris-ai/libris/internal/store"
)

// SourcesHandler serves source management endpoints.
type SourcesHandler struct {
	ingest *ingest.Service
	store  store.Store
	logger *slog.Logger
}

// NewSourcesHandler creates a sources handler.
func NewSourcesHandler(svc *ingest.Service, st store.Store, logger *slog.Logger) *SourcesHandler {
	return &SourcesHandler{ingest: svc, store: st, logger: logger}
}

// RegisterRoutes registers source routes on the given mux.
func (h *SourcesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sources", h.handleList)
	mux.HandleFunc("POST /api/sources", h.handleIngest)
	mux.HandleFunc("DELETE /api/sources/{id}", h.handleDelete)
}

func (h *SourcesHandler) handleList(w http.ResponseWriter, r *http.Request) {
	sources, err := h.store.Sources(r.Context())
	if err != nil {
		h.logger.Error("listing sources failed", "error", err)
		status, code := classifyError(err)
		writeError(w, status, code, err.Error())
		return
	}
	if sources == nil {
		sources = []rag.SourceMetadata{}
	}
	writeJSON(w, http.StatusOK, sources)
}

// IngestRequest is the request body for POST /api/sources.
type IngestRequest struct {
	SourceID      string `json:"source_id"`
	DisplayName   string `json:"display_name"`
	SourceType    string `json:"source_type"`
	ReferenceLink string `json:"reference_link"`
	Text          string `json:"text"`
}

func (h *SourcesHandler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.SourceID == "" || req.Text == "" {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "source_id and text are required")
		return
	}
	if req.SourceType != "" && !rag.SourceType(req.SourceType).Valid() {
		writeError(w, http.StatusBadRequest, "INVALID_SOURCE_TYPE",
			fmt.Sprintf("unknown source type %q", req.SourceType))
		return
	}

	result, err := h.ingest.Ingest(r.Context(), ingest.Source{
		ID:            req.SourceID,
		DisplayName:   req.DisplayName,
		Type:          rag.SourceType(req.SourceType),
		ReferenceLink: req.ReferenceLink,
		Text:          req.Text,
	})
	if err != nil {
		h.logger.Error("ingest failed", "source_id", req.SourceID, "error", err)
		status, code := classifyError(err)
		writeError(w, status, code, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (h *SourcesHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.ingest.Delete(r.Context(), id); err != nil {
		if errors.Is(err, rag.ErrSourceNotFound) {
			writeError(w, http.StatusNotFound, "SOURCE_NOT_FOUND", err.Error())
			return
		}
		h.logger.Error("delete failed", "source_id", id, "error", err)
		status, code := classifyError(err)
		writeError(w, status, code, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
