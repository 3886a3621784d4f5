// Package chunk implements the chunking and embedding stage of ingestion.
//
// Source text is split into fixed-size character windows with a
// configurable overlap, and each window is embedded through the
// configured embedding provider. The stage is a pure transform plus
// external embedding calls; persistence belongs to the vector store.
package chunk

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/libris-ai/libris/internal/rag"
)

// Embedder is the embedding provider boundary as this package needs it.
// Implementations must return one fixed-dimension vector per input text,
// in input order.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Splitter splits text into overlapping character windows.
type Splitter struct {
	Size    int // window size in characters
	Overlap int // characters shared between consecutive windows
}

// NewSplitter validates the window configuration.
// Requires 0 <= overlap < size.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", rag.ErrInvalidChunkConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must satisfy 0 <= overlap < size, got overlap=%d size=%d",
			rag.ErrInvalidChunkConfig, overlap, size)
	}
	return &Splitter{Size: size, Overlap: overlap}, nil
}

// Split returns the character windows of text. Windows advance by
// Size-Overlap; the final window may be shorter. Empty text yields no
// windows.
func (s *Splitter) Split(text string) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	step := s.Size - s.Overlap

	var windows []string
	for start := 0; start < len(runes); start += step {
		end := start + s.Size
		if end > len(runes) {
			end = len(runes)
		}
		windows = append(windows, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return windows
}

// ChunkAndEmbed splits text and embeds every window, returning chunks
// ready for upsert. A single window's embedding failure fails the whole
// call — no partial silent drops; the caller decides retry policy.
func ChunkAndEmbed(ctx context.Context, embedder Embedder, splitter *Splitter, sourceID, text string) ([]rag.Chunk, error) {
	windows := splitter.Split(text)
	if len(windows) == 0 {
		return nil, fmt.Errorf("%w: source %q has no content to chunk", rag.ErrInvalidChunkConfig, sourceID)
	}

	vectors, err := embedder.EmbedTexts(ctx, windows)
	if err != nil {
		return nil, fmt.Errorf("embedding %d chunks for source %q: %w", len(windows), sourceID, err)
	}
	if len(vectors) != len(windows) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d chunks",
			rag.ErrEmbeddingProvider, len(vectors), len(windows))
	}

	chunks := make([]rag.Chunk, 0, len(windows))
	for i, content := range windows {
		chunks = append(chunks, rag.Chunk{
			ID:         uuid.NewString(),
			SourceID:   sourceID,
			Ordinal:    i,
			Content:    content,
			Embedding:  vectors[i],
			TokenCount: rag.EstimateTokens(content),
		})
	}
	return chunks, nil
}
