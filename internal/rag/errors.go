package rag

import "errors"

// Sentinel errors for the retrieval core. Callers classify failures with
// errors.Is; no error is retried automatically inside the core — retry
// policy belongs to the caller, which Retryable helps implement.
var (
	// ErrInvalidChunkConfig indicates an invalid chunk size/overlap
	// combination. Fatal caller input error.
	ErrInvalidChunkConfig = errors.New("invalid chunk config")

	// ErrEmbeddingProvider indicates the embedding provider failed
	// (rate limited, transient network, or content rejected). Retryable.
	ErrEmbeddingProvider = errors.New("embedding provider error")

	// ErrStoreUnavailable indicates the vector store backend is
	// temporarily unreachable. Retryable.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrDimensionMismatch indicates an embedding vector does not match
	// the store's fixed dimension. Fatal; the store must be re-ingested
	// with a consistent embedder before it can be used again.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrSourceNotFound indicates an operation referenced an unknown
	// source_id. A caller error on delete; searches with unknown source
	// filters return empty results instead.
	ErrSourceNotFound = errors.New("source not found")

	// ErrNoRelevantContext is a valid pipeline outcome, not a failure:
	// every candidate fell below the relevance threshold. The orchestrator
	// falls back to a context-free prompt.
	ErrNoRelevantContext = errors.New("no relevant context")

	// ErrGenerationProvider indicates the generation provider failed.
	// May surface mid-stream; tokens already emitted are not retracted.
	ErrGenerationProvider = errors.New("generation provider error")
)

// Retryable reports whether err is a transient failure worth retrying.
// Invalid input, dimension mismatches, and unknown sources are not.
func Retryable(err error) bool {
	return errors.Is(err, ErrEmbeddingProvider) ||
		errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrGenerationProvider)
}
