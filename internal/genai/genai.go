// Package genai wraps Genkit behind the narrow embedding and generation
// surface the rest of the application needs. Provider selection, model
// registration, rate limiting, and timeouts all live here.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/compat_oai/openai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"

	"github.com/libris-ai/libris/internal/config"
)

// Init initializes Genkit with the configured provider and returns the
// instance plus the provider's embedder.
//
// Provider API keys (GEMINI_API_KEY, OPENAI_API_KEY) are read by the
// plugins themselves; config validation has already checked they are
// present for the selected provider.
func Init(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*genkit.Genkit, ai.Embedder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		g        *genkit.Genkit
		embedder ai.Embedder
	)

	switch cfg.Provider {
	case config.ProviderOllama:
		ollamaPlugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g = genkit.Init(ctx, genkit.WithPlugins(ollamaPlugin))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama has no auto-discovery; the model and embedder must be
		// registered explicitly.
		ollamaPlugin.DefineModel(g, ollama.ModelDefinition{
			Name: cfg.ModelName,
			Type: "chat",
		}, nil)
		ollamaPlugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		embedder = ollama.Embedder(g, cfg.OllamaHost)
		logger.Info("initialized genkit", "provider", "ollama",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

	case config.ProviderOpenAI:
		g = genkit.Init(ctx, genkit.WithPlugins(&openai.OpenAI{}))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with openai provider")
		}
		embedder = genkit.LookupEmbedder(g, api.NewName("openai", cfg.EmbedderModel))
		logger.Info("initialized genkit", "provider", "openai", "model", cfg.ModelName)

	case config.ProviderGemini, "":
		g = genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with gemini provider")
		}
		embedder = googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
		logger.Info("initialized genkit", "provider", "gemini", "model", cfg.ModelName)

	default:
		return nil, nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}

	if embedder == nil {
		return nil, nil, fmt.Errorf("provider %q has no embedder named %q", cfg.Provider, cfg.EmbedderModel)
	}
	return g, embedder, nil
}
