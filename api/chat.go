package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/libris-ai/libris/internal/chat"
	"github.com/libris-ai/libris/internal/rag"
)

// ChatHandler serves the question-answering endpoints.
//
// Endpoints:
//   - POST /api/chat        - synchronous (JSON request/response)
//   - POST /api/chat/stream - streaming (Server-Sent Events)
type ChatHandler struct {
	chat   *chat.Service
	logger *slog.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(svc *chat.Service, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{chat: svc, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.handleChat)
	mux.HandleFunc("POST /api/chat/stream", h.handleStream)
}

// ChatRequest is the request body for both chat endpoints. All fields
// except Query are optional: QueryType overrides the heuristic
// classification, Sources restricts retrieval to the given source IDs,
// MinRelevance overrides the pipeline's relevance floor.
type ChatRequest struct {
	Query        string   `json:"query"`
	QueryType    string   `json:"query_type,omitempty"`
	Sources      []string `json:"sources,omitempty"`
	MinRelevance *float64 `json:"min_relevance,omitempty"`
}

// validate checks request fields, returning a code and message on
// failure.
func (req *ChatRequest) validate() (code, message string, ok bool) {
	if req.Query == "" {
		return "MISSING_QUERY", "query is required", false
	}
	if req.QueryType != "" && !rag.QueryType(req.QueryType).Valid() {
		return "INVALID_QUERY_TYPE",
			fmt.Sprintf("unknown query_type %q (want factual, explanatory, advisory, or analytical)", req.QueryType),
			false
	}
	if req.MinRelevance != nil && (*req.MinRelevance < 0 || *req.MinRelevance > 1) {
		return "INVALID_MIN_RELEVANCE",
			fmt.Sprintf("min_relevance must be in [0,1], got %g", *req.MinRelevance),
			false
	}
	return "", "", true
}

// options converts request fields to chat options.
func (req *ChatRequest) options() []chat.Option {
	var opts []chat.Option
	if req.QueryType != "" {
		opts = append(opts, chat.WithQueryType(rag.QueryType(req.QueryType)))
	}
	if len(req.Sources) > 0 {
		opts = append(opts, chat.WithSources(req.Sources...))
	}
	if req.MinRelevance != nil {
		opts = append(opts, chat.WithMinRelevance(*req.MinRelevance))
	}
	return opts
}

func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if code, message, ok := req.validate(); !ok {
		writeError(w, http.StatusBadRequest, code, message)
		return
	}

	answer, err := h.chat.Ask(r.Context(), req.Query, req.options()...)
	if err != nil {
		status, code := classifyError(err)
		h.logger.Error("chat request failed", "error", err, "code", code)
		writeError(w, status, code, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

// classifyError maps service errors to HTTP status and a stable code.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, rag.ErrNoRelevantContext):
		return http.StatusNotFound, "NO_RELEVANT_CONTEXT"
	case errors.Is(err, rag.ErrEmbeddingProvider), errors.Is(err, rag.ErrGenerationProvider):
		return http.StatusBadGateway, "PROVIDER_ERROR"
	case errors.Is(err, rag.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "STORE_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// SSE data payloads. Event names follow the delta/done/error contract.
type (
	// SSEDeltaData is the payload of "delta" events.
	SSEDeltaData struct {
		Text string `json:"text"`
	}

	// SSEErrorData is the payload of "error" events.
	SSEErrorData struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
)

// handleStream answers over Server-Sent Events.
//
// Event types:
//   - delta: partial answer text {"text": "..."}
//   - done:  the complete Answer object
//   - error: {"code": "...", "message": "..."}
func (h *ChatHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeSSEError(w, flusher, "INVALID_REQUEST", fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if code, message, ok := req.validate(); !ok {
		h.writeSSEError(w, flusher, code, message)
		return
	}

	ctx := r.Context()
	for ev := range h.chat.AskStream(ctx, req.Query, req.options()...) {
		switch {
		case ev.Err != nil:
			_, code := classifyError(ev.Err)
			h.logger.Error("stream failed", "error", ev.Err, "code", code)
			h.writeSSEError(w, flusher, code, ev.Err.Error())
			return
		case ev.Answer != nil:
			h.writeSSE(w, flusher, "done", ev.Answer)
		default:
			h.writeSSE(w, flusher, "delta", SSEDeltaData{Text: ev.Delta})
		}
	}
}

func (h *ChatHandler) writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("encoding SSE payload", "event", event, "error", err)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}

func (h *ChatHandler) writeSSEError(w http.ResponseWriter, flusher http.Flusher, code, message string) {
	h.writeSSE(w, flusher, "error", SSEErrorData{Code: code, Message: message})
}
