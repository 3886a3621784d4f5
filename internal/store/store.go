// Package store provides the vector store adapter: registration of
// sources, atomic per-source chunk replacement, and similarity search
// over a pluggable backend.
//
// Two interchangeable backends implement the Store contract: an
// embedded chromem-go store (Chromem) and a PostgreSQL + pgvector store
// (Postgres), selected by configuration at construction time. Both
// produce identical observable ranking semantics: descending normalized
// similarity, ties broken by ascending ordinal then lexical source id.
// Callers depend on this equivalence when switching backends.
package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/libris-ai/libris/internal/rag"
)

// SearchOptions parameterizes a similarity search.
type SearchOptions struct {
	// K is the maximum number of candidates to return.
	K int

	// Sources restricts results to the given source ids. Nil or empty
	// means no restriction. Unknown ids simply match nothing — a search
	// filtered to an unknown source returns an empty result, not an
	// error.
	Sources []string

	// MinSimilarity is the inclusive lower bound on normalized
	// similarity.
	MinSimilarity float64
}

// Store is the backend-agnostic vector store contract.
//
// UpsertChunks replaces all chunks for a source as a logical unit:
// readers observe either the old set or the new set, never a mix.
// Concurrent upserts of different sources proceed independently.
type Store interface {
	// RegisterSource creates or updates source metadata. CreatedAt is
	// preserved across updates; UpdatedAt is refreshed.
	RegisterSource(ctx context.Context, meta rag.SourceMetadata) error

	// Source returns metadata for one source, or rag.ErrSourceNotFound.
	Source(ctx context.Context, sourceID string) (rag.SourceMetadata, error)

	// Sources lists all registered sources ordered by source id.
	Sources(ctx context.Context) ([]rag.SourceMetadata, error)

	// UpsertChunks atomically replaces the chunk set of a registered
	// source. An empty chunk slice clears the source's chunks. Returns
	// rag.ErrSourceNotFound for unregistered sources and
	// rag.ErrDimensionMismatch when an embedding does not match the
	// store's dimension.
	UpsertChunks(ctx context.Context, sourceID string, chunks []rag.Chunk) error

	// DeleteSource removes a source and cascades deletion of its
	// chunks. Returns rag.ErrSourceNotFound for unknown sources.
	DeleteSource(ctx context.Context, sourceID string) error

	// Search returns up to K candidates ordered by the ranking
	// contract. The query embedding must match the store's dimension.
	Search(ctx context.Context, embedding []float32, opts SearchOptions) ([]rag.Candidate, error)

	// Count returns the total number of stored chunks.
	Count(ctx context.Context) (int, error)
}

// clampSimilarity normalizes a raw cosine similarity into [0,1].
// Anti-correlated content is treated as irrelevant, not negatively
// relevant.
func clampSimilarity(sim float64) float64 {
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// sortCandidates establishes the ranking contract shared by all
// backends: similarity descending, then ordinal ascending, then lexical
// source id. Stable so equal keys keep their relative order.
func sortCandidates(candidates []rag.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.Ordinal != b.Ordinal {
			return a.Ordinal < b.Ordinal
		}
		return a.SourceID < b.SourceID
	})
}

// checkDimension validates an embedding against the store's fixed
// dimension before it reaches the backend.
func checkDimension(embedding []float32, dim int) error {
	if len(embedding) != dim {
		return fmt.Errorf("%w: got %d dimensions, store expects %d",
			rag.ErrDimensionMismatch, len(embedding), dim)
	}
	return nil
}

// validateMeta rejects source metadata the backends cannot represent.
func validateMeta(meta rag.SourceMetadata) error {
	if meta.SourceID == "" {
		return fmt.Errorf("source id cannot be empty")
	}
	if meta.DisplayName == "" {
		return fmt.Errorf("display name cannot be empty")
	}
	if !meta.Type.Valid() {
		return fmt.Errorf("unknown source type %q", meta.Type)
	}
	return nil
}
