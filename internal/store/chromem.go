package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"
	chromem "github.com/philippgille/chromem-go"

	"github.com/libris-ai/libris/internal/rag"
)

// chunkCollection is the chromem collection holding all chunks.
const chunkCollection = "chunks"

// catalogFile holds the source metadata catalog next to the chromem
// persistence directory.
const catalogFile = "sources.json"

// Chromem is the embedded vector store backend, backed by chromem-go.
// Chunks live in a single chromem collection; source metadata lives in
// an in-memory catalog mirrored to a JSON file when persistence is
// enabled.
//
// All mutations take the write lock, so readers observe a source's old
// chunk set or its new one, never a mix.
type Chromem struct {
	col    *chromem.Collection
	dim    int
	logger *slog.Logger

	mu      sync.RWMutex
	sources map[string]rag.SourceMetadata

	catalogPath string // empty = in-memory only
	catalogLock *flock.Flock
}

// NewChromem opens the embedded backend. An empty path keeps everything
// in memory (tests); otherwise path is the persistence directory.
// dim is the fixed embedding dimension for the whole store.
func NewChromem(path string, dim int, logger *slog.Logger) (*Chromem, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dim <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}

	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("opening chromem store at %q: %w", path, err)
		}
	}

	// Embeddings are always supplied precomputed; the embedding func
	// must never be reached.
	col, err := db.GetOrCreateCollection(chunkCollection, nil, rejectEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("opening collection %q: %w", chunkCollection, err)
	}

	s := &Chromem{
		col:     col,
		dim:     dim,
		logger:  logger,
		sources: make(map[string]rag.SourceMetadata),
	}

	if path != "" {
		s.catalogPath = filepath.Join(path, catalogFile)
		s.catalogLock = flock.New(s.catalogPath + ".lock")
		if err := s.loadCatalog(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// rejectEmbeddingFunc guards against accidental text-query paths: this
// store only accepts precomputed embeddings.
func rejectEmbeddingFunc(context.Context, string) ([]float32, error) {
	return nil, errors.New("embeddings must be precomputed")
}

// RegisterSource creates or updates source metadata.
func (s *Chromem) RegisterSource(_ context.Context, meta rag.SourceMetadata) error {
	if err := validateMeta(meta); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.sources[meta.SourceID]; ok {
		meta.CreatedAt = existing.CreatedAt
	} else {
		meta.CreatedAt = now
	}
	meta.UpdatedAt = now
	s.sources[meta.SourceID] = meta

	return s.saveCatalogLocked()
}

// Source returns metadata for one source.
func (s *Chromem) Source(_ context.Context, sourceID string) (rag.SourceMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.sources[sourceID]
	if !ok {
		return rag.SourceMetadata{}, fmt.Errorf("%w: %q", rag.ErrSourceNotFound, sourceID)
	}
	return meta, nil
}

// Sources lists all registered sources ordered by source id.
func (s *Chromem) Sources(_ context.Context) ([]rag.SourceMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]rag.SourceMetadata, 0, len(s.sources))
	for _, meta := range s.sources {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out, nil
}

// UpsertChunks atomically replaces a source's chunk set.
func (s *Chromem) UpsertChunks(ctx context.Context, sourceID string, chunks []rag.Chunk) error {
	for _, c := range chunks {
		if err := checkDimension(c.Embedding, s.dim); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sources[sourceID]; !ok {
		return fmt.Errorf("%w: %q", rag.ErrSourceNotFound, sourceID)
	}

	if err := s.deleteChunksLocked(ctx, sourceID); err != nil {
		return err
	}

	if len(chunks) == 0 {
		return nil
	}

	docs := make([]chromem.Document, 0, len(chunks))
	for _, c := range chunks {
		docs = append(docs, chromem.Document{
			ID: c.ID,
			Metadata: map[string]string{
				"source_id": c.SourceID,
				"ordinal":   strconv.Itoa(c.Ordinal),
			},
			Embedding: c.Embedding,
			Content:   c.Content,
		})
	}

	if err := s.col.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding %d chunks for source %q: %w", len(docs), sourceID, err)
	}

	meta := s.sources[sourceID]
	meta.UpdatedAt = time.Now().UTC()
	s.sources[sourceID] = meta

	s.logger.Debug("upserted chunks", "source_id", sourceID, "chunks", len(docs))
	return s.saveCatalogLocked()
}

// DeleteSource removes a source and all of its chunks.
func (s *Chromem) DeleteSource(ctx context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sources[sourceID]; !ok {
		return fmt.Errorf("%w: %q", rag.ErrSourceNotFound, sourceID)
	}

	if err := s.deleteChunksLocked(ctx, sourceID); err != nil {
		return err
	}
	delete(s.sources, sourceID)

	s.logger.Debug("deleted source", "source_id", sourceID)
	return s.saveCatalogLocked()
}

// deleteChunksLocked removes all chunks of a source. Caller holds mu.
func (s *Chromem) deleteChunksLocked(ctx context.Context, sourceID string) error {
	if s.col.Count() == 0 {
		return nil
	}
	if err := s.col.Delete(ctx, map[string]string{"source_id": sourceID}, nil); err != nil {
		return fmt.Errorf("deleting chunks for source %q: %w", sourceID, err)
	}
	return nil
}

// Search performs nearest-neighbor search over all stored chunks.
//
// chromem has no multi-value metadata filter, so the source filter is
// applied after retrieval: the collection is small in embedded mode and
// the post-filter keeps ranking semantics identical to the Postgres
// backend.
func (s *Chromem) Search(ctx context.Context, embedding []float32, opts SearchOptions) ([]rag.Candidate, error) {
	if err := checkDimension(embedding, s.dim); err != nil {
		return nil, err
	}
	if opts.K <= 0 {
		return nil, fmt.Errorf("search k must be positive, got %d", opts.K)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	total := s.col.Count()
	if total == 0 {
		return nil, nil
	}

	results, err := s.col.QueryEmbedding(ctx, embedding, total, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying chromem: %w", err)
	}

	var filter map[string]struct{}
	if len(opts.Sources) > 0 {
		filter = make(map[string]struct{}, len(opts.Sources))
		for _, id := range opts.Sources {
			filter[id] = struct{}{}
		}
	}

	candidates := make([]rag.Candidate, 0, len(results))
	for _, res := range results {
		sourceID := res.Metadata["source_id"]
		if filter != nil {
			if _, ok := filter[sourceID]; !ok {
				continue
			}
		}

		sim := clampSimilarity(float64(res.Similarity))
		if sim < opts.MinSimilarity {
			continue
		}

		ordinal, err := strconv.Atoi(res.Metadata["ordinal"])
		if err != nil {
			return nil, fmt.Errorf("corrupt ordinal metadata on chunk %q: %w", res.ID, err)
		}

		meta := s.sources[sourceID]
		candidates = append(candidates, rag.Candidate{
			ChunkID:    res.ID,
			SourceID:   sourceID,
			SourceName: meta.DisplayName,
			SourceType: meta.Type,
			Ordinal:    ordinal,
			Content:    res.Content,
			Similarity: sim,
		})
	}

	sortCandidates(candidates)
	if len(candidates) > opts.K {
		candidates = candidates[:opts.K]
	}
	return candidates, nil
}

// Count returns the number of stored chunks.
func (s *Chromem) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.col.Count(), nil
}

// loadCatalog reads the source catalog from disk. A missing file means
// a fresh store.
func (s *Chromem) loadCatalog() error {
	data, err := os.ReadFile(s.catalogPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading source catalog: %w", err)
	}

	var sources []rag.SourceMetadata
	if err := json.Unmarshal(data, &sources); err != nil {
		return fmt.Errorf("parsing source catalog %q: %w", s.catalogPath, err)
	}
	for _, meta := range sources {
		s.sources[meta.SourceID] = meta
	}
	return nil
}

// saveCatalogLocked mirrors the in-memory catalog to disk. Caller holds
// mu. A file lock guards against a second libris process writing the
// catalog concurrently.
func (s *Chromem) saveCatalogLocked() error {
	if s.catalogPath == "" {
		return nil
	}

	sources := make([]rag.SourceMetadata, 0, len(s.sources))
	for _, meta := range s.sources {
		sources = append(sources, meta)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].SourceID < sources[j].SourceID })

	data, err := json.MarshalIndent(sources, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding source catalog: %w", err)
	}

	if err := s.catalogLock.Lock(); err != nil {
		return fmt.Errorf("locking source catalog: %w", err)
	}
	defer func() {
		if err := s.catalogLock.Unlock(); err != nil {
			s.logger.Warn("unlocking source catalog", "error", err)
		}
	}()

	tmp := s.catalogPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing source catalog: %w", err)
	}
	if err := os.Rename(tmp, s.catalogPath); err != nil {
		return fmt.Errorf("replacing source catalog: %w", err)
	}
	return nil
}
