package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/libris-ai/libris/internal/config"
	"github.com/libris-ai/libris/internal/rag"
)

// Provider API limits embedding calls more aggressively than chat
// calls; a modest client-side limiter keeps batch ingestion from
// tripping 429s.
const (
	embedRequestsPerSecond = 5
	embedBurst             = 5
)

// StreamFunc receives one generated text delta. Returning an error
// aborts the generation. Declared as an alias so consumer-side
// interfaces can name their own equivalent.
type StreamFunc = func(ctx context.Context, delta string) error

// Client is the application's gateway to the configured AI provider.
// It owns embedding and text generation; everything else talks to the
// provider through it.
type Client struct {
	g        *genkit.Genkit
	embedder ai.Embedder
	logger   *slog.Logger

	modelName   string
	temperature float32
	maxTokens   int

	embedDim        int
	embedTimeout    time.Duration
	generateTimeout time.Duration
	embedLimiter    *rate.Limiter
}

// New builds a Client from the loaded configuration.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	g, embedder, err := Init(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Client{
		g:               g,
		embedder:        embedder,
		logger:          logger,
		modelName:       cfg.FullModelName(),
		temperature:     cfg.Temperature,
		maxTokens:       cfg.MaxTokens,
		embedDim:        cfg.EmbedderDim,
		embedTimeout:    cfg.EmbedTimeout(),
		generateTimeout: cfg.GenerateTimeout(),
		embedLimiter:    rate.NewLimiter(embedRequestsPerSecond, embedBurst),
	}, nil
}

// EmbedTexts embeds a batch of texts in one provider call. The result
// has one vector per input, in input order; any provider failure fails
// the whole batch.
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	if err := c.embedLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for embed rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.embedTimeout)
	defer cancel()

	docs := make([]*ai.Document, len(texts))
	for i, text := range texts {
		docs[i] = ai.DocumentFromText(text, nil)
	}

	resp, err := c.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rag.ErrEmbeddingProvider, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
			rag.ErrEmbeddingProvider, len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if c.embedDim > 0 && len(emb.Embedding) != c.embedDim {
			return nil, fmt.Errorf("%w: provider returned %d dimensions, store expects %d",
				rag.ErrDimensionMismatch, len(emb.Embedding), c.embedDim)
		}
		out[i] = emb.Embedding
	}
	return out, nil
}

// EmbedQuery embeds a single query string.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	embs, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embs[0], nil
}

// Generate produces a complete response for the prompt. A nil stream
// disables streaming; otherwise stream receives each text delta before
// the full text is returned.
func (c *Client) Generate(ctx context.Context, system, prompt string, stream StreamFunc) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.generateTimeout)
	defer cancel()

	opts := []ai.GenerateOption{
		ai.WithModelName(c.modelName),
		ai.WithPrompt(prompt),
		ai.WithConfig(&ai.GenerationCommonConfig{
			Temperature:     float64(c.temperature),
			MaxOutputTokens: c.maxTokens,
		}),
	}
	if system != "" {
		opts = append(opts, ai.WithSystem(system))
	}
	if stream != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			return stream(ctx, chunk.Text())
		}))
	}

	resp, err := genkit.Generate(ctx, c.g, opts...)
	if err != nil {
		// Caller-initiated cancellation is not a provider failure.
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", rag.ErrGenerationProvider, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: empty response", rag.ErrGenerationProvider)
	}
	return text, nil
}
