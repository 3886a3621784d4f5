// Package ingest turns raw source text into embedded, stored chunks.
//
// Ingestion is replace-based: re-ingesting a source swaps its entire
// chunk set in one atomic store operation, so a source is never
// half-updated.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/libris-ai/libris/internal/chunk"
	"github.com/libris-ai/libris/internal/rag"
	"github.com/libris-ai/libris/internal/store"
)

// Source is one document to ingest.
type Source struct {
	ID            string
	DisplayName   string
	Type          rag.SourceType
	ReferenceLink string
	Text          string
}

// Result summarizes one completed ingestion.
type Result struct {
	SourceID string
	Chunks   int
	Tokens   int
}

// Service coordinates chunking, embedding, and storage.
type Service struct {
	store    store.Store
	embedder chunk.Embedder
	splitter *chunk.Splitter
	workers  int
	logger   *slog.Logger
}

// New builds an ingestion service. workers bounds batch concurrency;
// values below 1 are treated as 1.
func New(st store.Store, embedder chunk.Embedder, splitter *chunk.Splitter, workers int, logger *slog.Logger) *Service {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		embedder: embedder,
		splitter: splitter,
		workers:  workers,
		logger:   logger,
	}
}

// Ingest registers the source and replaces its chunk set. Safe to call
// repeatedly with the same source ID: the previous chunks are replaced,
// never duplicated.
func (s *Service) Ingest(ctx context.Context, src Source) (Result, error) {
	if strings.TrimSpace(src.ID) == "" {
		return Result{}, errors.New("source id is required")
	}
	if strings.TrimSpace(src.Text) == "" {
		return Result{}, fmt.Errorf("source %q has no text", src.ID)
	}

	meta := rag.SourceMetadata{
		SourceID:      src.ID,
		DisplayName:   src.DisplayName,
		Type:          src.Type,
		ReferenceLink: src.ReferenceLink,
	}
	if meta.DisplayName == "" {
		meta.DisplayName = src.ID
	}
	if meta.Type == "" {
		meta.Type = rag.SourceTypeOther
	}

	if err := s.store.RegisterSource(ctx, meta); err != nil {
		return Result{}, fmt.Errorf("registering source %q: %w", src.ID, err)
	}

	chunks, err := chunk.ChunkAndEmbed(ctx, s.embedder, s.splitter, src.ID, src.Text)
	if err != nil {
		return Result{}, fmt.Errorf("chunking source %q: %w", src.ID, err)
	}

	if err := s.store.UpsertChunks(ctx, src.ID, chunks); err != nil {
		return Result{}, fmt.Errorf("storing chunks for source %q: %w", src.ID, err)
	}

	result := Result{SourceID: src.ID, Chunks: len(chunks)}
	for _, c := range chunks {
		result.Tokens += c.TokenCount
	}

	s.logger.Info("ingested source",
		"source_id", src.ID, "type", meta.Type,
		"chunks", result.Chunks, "tokens", result.Tokens)
	return result, nil
}

// IngestBatch ingests sources concurrently, at most `workers` at a
// time. The first failure cancels the remaining work; results of
// sources that completed before the failure are still returned.
func (s *Service) IngestBatch(ctx context.Context, sources []Source) ([]Result, error) {
	results := make([]Result, len(sources))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.workers)
	for i, src := range sources {
		eg.Go(func() error {
			res, err := s.Ingest(egCtx, src)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		// Keep only the completed entries.
		done := results[:0]
		for _, r := range results {
			if r.SourceID != "" {
				done = append(done, r)
			}
		}
		return done, err
	}
	return results, nil
}

// Delete removes a source and its chunks.
func (s *Service) Delete(ctx context.Context, sourceID string) error {
	if err := s.store.DeleteSource(ctx, sourceID); err != nil {
		return err
	}
	s.logger.Info("deleted source", "source_id", sourceID)
	return nil
}
