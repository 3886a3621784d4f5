// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.libris/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: provider, model, embedder selection
//   - Store: vector store backend selection (see storage.go)
//   - Retrieval: context pipeline tuning (see retrieval.go)
//
// Validation: range checks in validation.go with sentinel errors; wrap
// with fmt.Errorf("%w: details", ErrXxx) and check with errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Vector store backend identifiers used in Config.Backend.
const (
	BackendChromem  = "chromem"
	BackendPostgres = "postgres"
)

// DefaultEmbedderModel is the default Gemini embedder model.
// text-embedding-004 outputs 768 dimensions; the pgvector schema in
// db/migrations matches (vector(768)).
const DefaultEmbedderModel = "text-embedding-004"

// DefaultEmbedderDimension is the vector dimension the store is
// provisioned for. All embeddings across the store share this dimension.
const DefaultEmbedderDimension = 768

// Config stores application configuration.
type Config struct {
	// AI provider and model configuration
	Provider      string  `mapstructure:"provider"`       // "gemini" (default), "ollama", "openai"
	ModelName     string  `mapstructure:"model_name"`     // e.g. "gemini-2.5-flash", "llama3.3", "gpt-4o"
	EmbedderModel string  `mapstructure:"embedder_model"` // e.g. "text-embedding-004"
	EmbedderDim   int     `mapstructure:"embedder_dimension"`
	Temperature   float32 `mapstructure:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens"`
	OllamaHost    string  `mapstructure:"ollama_host"`

	// Vector store backend selection
	Backend     string `mapstructure:"backend"`      // "chromem" (embedded) or "postgres"
	ChromemPath string `mapstructure:"chromem_path"` // persistence directory for the embedded backend

	// PostgreSQL connection (postgres backend)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// Ingestion
	ChunkSize     int `mapstructure:"chunk_size"`
	ChunkOverlap  int `mapstructure:"chunk_overlap"`
	IngestWorkers int `mapstructure:"ingest_workers"`

	// Provider call timeouts, in seconds
	EmbedTimeoutSec    int `mapstructure:"embed_timeout_sec"`
	GenerateTimeoutSec int `mapstructure:"generate_timeout_sec"`

	// Retrieval and context engineering tuning
	Retrieval Retrieval `mapstructure:"retrieval"`

	// HTTP server (serve mode)
	ServeAddr string `mapstructure:"serve_addr"`
}

// EmbedTimeout returns the embedding call timeout as a duration.
func (c *Config) EmbedTimeout() time.Duration {
	return time.Duration(c.EmbedTimeoutSec) * time.Second
}

// GenerateTimeout returns the generation call timeout as a duration.
func (c *Config) GenerateTimeout() time.Duration {
	return time.Duration(c.GenerateTimeoutSec) * time.Second
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "googleai/gemini-2.5-flash", "ollama/llama3.3",
// "openai/gpt-4o". A ModelName already containing "/" is returned
// as-is.
func (c *Config) FullModelName() string {
	if strings.Contains(c.ModelName, "/") {
		return c.ModelName
	}
	switch c.Provider {
	case ProviderOllama:
		return "ollama/" + c.ModelName
	case ProviderOpenAI:
		return "openai/" + c.ModelName
	default:
		return "googleai/" + c.ModelName
	}
}

// Load reads configuration from file, environment, and defaults,
// validates it, and returns the result. Fail-fast: an invalid
// configuration never leaves this function.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".libris")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine: defaults + env cover everything.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all settings.
func setDefaults() {
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("embedder_dimension", DefaultEmbedderDimension)
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_tokens", 2048)
	viper.SetDefault("ollama_host", "http://localhost:11434")

	viper.SetDefault("backend", BackendChromem)
	viper.SetDefault("chromem_path", "") // empty = ~/.libris/chromem

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "libris")
	viper.SetDefault("postgres_password", "")
	viper.SetDefault("postgres_db_name", "libris")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("chunk_size", 500)
	viper.SetDefault("chunk_overlap", 100)
	viper.SetDefault("ingest_workers", 4)

	viper.SetDefault("embed_timeout_sec", 30)
	viper.SetDefault("generate_timeout_sec", 120)

	setRetrievalDefaults()

	viper.SetDefault("serve_addr", "127.0.0.1:3500")
}

// bindEnvVariables binds environment variable overrides.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "LIBRIS_PROVIDER")
	mustBind("model_name", "LIBRIS_MODEL_NAME")
	mustBind("embedder_model", "LIBRIS_EMBEDDER_MODEL")
	mustBind("ollama_host", "LIBRIS_OLLAMA_HOST")
	mustBind("backend", "LIBRIS_BACKEND")
	mustBind("chromem_path", "LIBRIS_CHROMEM_PATH")
	mustBind("serve_addr", "LIBRIS_SERVE_ADDR")

	// NOTE: GEMINI_API_KEY / OPENAI_API_KEY are read directly by the
	// Genkit provider plugins, not via Viper. Validation checks their
	// presence based on the selected provider.
}
