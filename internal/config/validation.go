package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/libris-ai/libris/internal/rag"
)

// Sentinel validation errors, checked with errors.Is.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required provider API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedder indicates the embedder model or dimension is invalid.
	ErrInvalidEmbedder = errors.New("invalid embedder")

	// ErrInvalidBackend indicates the vector store backend is unknown.
	ErrInvalidBackend = errors.New("invalid backend")

	// ErrInvalidPostgres indicates the PostgreSQL settings are invalid.
	ErrInvalidPostgres = errors.New("invalid PostgreSQL config")

	// ErrInvalidChunking indicates chunk size/overlap is out of range.
	ErrInvalidChunking = errors.New("invalid chunking config")

	// ErrInvalidRetrieval indicates the retrieval tuning is out of range.
	ErrInvalidRetrieval = errors.New("invalid retrieval config")
)

// Validate checks configuration consistency. Called by Load; also useful
// for configs constructed directly in tests.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderGemini:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required", ErrMissingAPIKey)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required", ErrMissingAPIKey)
		}
	case ProviderOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("%w: ollama_host cannot be empty", ErrInvalidProvider)
		}
	default:
		return fmt.Errorf("%w: %q (want gemini, ollama, or openai)", ErrInvalidProvider, c.Provider)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedder)
	}
	if c.EmbedderDim <= 0 {
		return fmt.Errorf("%w: embedder_dimension must be positive, got %d", ErrInvalidEmbedder, c.EmbedderDim)
	}

	switch c.Backend {
	case BackendChromem:
		// Empty ChromemPath falls back to ~/.libris/chromem at wiring time.
	case BackendPostgres:
		if c.PostgresHost == "" {
			return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgres)
		}
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			return fmt.Errorf("%w: port must be between 1 and 65535, got %d", ErrInvalidPostgres, c.PostgresPort)
		}
		if c.PostgresDBName == "" {
			return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgres)
		}
		if c.PostgresPassword == "" {
			return fmt.Errorf("%w: postgres_password must be set", ErrInvalidPostgres)
		}
	default:
		return fmt.Errorf("%w: %q (want chromem or postgres)", ErrInvalidBackend, c.Backend)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must satisfy 0 <= overlap < chunk_size, got %d",
			ErrInvalidChunking, c.ChunkOverlap)
	}
	if c.IngestWorkers <= 0 {
		return fmt.Errorf("%w: ingest_workers must be positive, got %d", ErrInvalidChunking, c.IngestWorkers)
	}

	return c.Retrieval.validate()
}

// validate enforces structural rules on retrieval tuning.
func (r *Retrieval) validate() error {
	if r.SearchK <= 0 {
		return fmt.Errorf("%w: search_k must be positive, got %d", ErrInvalidRetrieval, r.SearchK)
	}
	if r.MinRelevance < 0 || r.MinRelevance > 1 {
		return fmt.Errorf("%w: min_relevance must be in [0,1], got %g", ErrInvalidRetrieval, r.MinRelevance)
	}
	if r.DedupThreshold <= 0 || r.DedupThreshold > 1 {
		return fmt.Errorf("%w: dedup_threshold must be in (0,1], got %g", ErrInvalidRetrieval, r.DedupThreshold)
	}
	if r.MaxAuthorityBonus < 0 || r.MaxAuthorityBonus > 1 {
		return fmt.Errorf("%w: max_authority_bonus must be in [0,1], got %g", ErrInvalidRetrieval, r.MaxAuthorityBonus)
	}
	for typ, w := range r.AuthorityWeights {
		if !rag.SourceType(typ).Valid() {
			return fmt.Errorf("%w: unknown source type %q in authority_weights", ErrInvalidRetrieval, typ)
		}
		if w < 0 {
			return fmt.Errorf("%w: authority weight for %q must be non-negative, got %g", ErrInvalidRetrieval, typ, w)
		}
	}

	caps := make(map[rag.QueryType]int, len(r.DocCaps))
	for typ, n := range r.DocCaps {
		qt := rag.QueryType(typ)
		if !qt.Valid() {
			return fmt.Errorf("%w: unknown query type %q in doc_caps", ErrInvalidRetrieval, typ)
		}
		if n <= 0 {
			return fmt.Errorf("%w: doc cap for %q must be positive, got %d", ErrInvalidRetrieval, typ, n)
		}
		caps[qt] = n
	}
	for _, qt := range []rag.QueryType{rag.QueryFactual, rag.QueryExplanatory, rag.QueryAdvisory, rag.QueryAnalytical} {
		if _, ok := caps[qt]; !ok {
			return fmt.Errorf("%w: doc_caps missing entry for %q", ErrInvalidRetrieval, qt)
		}
	}
	// Caps must be monotone with breadth need: factual asks for precision
	// and always gets the smallest cap; analytical needs coverage.
	if caps[rag.QueryFactual] >= caps[rag.QueryAdvisory] ||
		caps[rag.QueryAdvisory] > caps[rag.QueryExplanatory] ||
		caps[rag.QueryExplanatory] > caps[rag.QueryAnalytical] {
		return fmt.Errorf("%w: doc_caps must satisfy factual < advisory <= explanatory <= analytical", ErrInvalidRetrieval)
	}

	if r.MaxContextTokens <= 0 {
		return fmt.Errorf("%w: max_context_tokens must be positive, got %d", ErrInvalidRetrieval, r.MaxContextTokens)
	}
	if r.MaxDocTokens <= 0 || r.MaxDocTokens > r.MaxContextTokens {
		return fmt.Errorf("%w: max_doc_tokens must be in (0, max_context_tokens], got %d", ErrInvalidRetrieval, r.MaxDocTokens)
	}
	if r.MinDocTokens <= 0 || r.MinDocTokens > r.MaxDocTokens {
		return fmt.Errorf("%w: min_doc_tokens must be in (0, max_doc_tokens], got %d", ErrInvalidRetrieval, r.MinDocTokens)
	}

	return nil
}
