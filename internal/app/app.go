// Package app assembles the application from configuration: logger,
// vector store backend, AI client, and the services on top of them.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/libris-ai/libris/db"
	"github.com/libris-ai/libris/internal/chat"
	"github.com/libris-ai/libris/internal/chunk"
	"github.com/libris-ai/libris/internal/config"
	"github.com/libris-ai/libris/internal/engineer"
	"github.com/libris-ai/libris/internal/genai"
	"github.com/libris-ai/libris/internal/ingest"
	"github.com/libris-ai/libris/internal/log"
	"github.com/libris-ai/libris/internal/store"
)

// App holds the wired application.
type App struct {
	Config *config.Config
	Logger log.Logger

	Store  store.Store
	Client *genai.Client
	Chat   *chat.Service
	Ingest *ingest.Service

	pool *pgxpool.Pool // nil for the embedded backend
}

// Setup wires the application. On error, everything already opened is
// released before returning.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.New(log.Config{})
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	client, err := genai.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing AI client: %w", err)
	}
	a.Client = client

	splitter, err := chunk.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("configuring splitter: %w", err)
	}
	a.Ingest = ingest.New(a.Store, client, splitter, cfg.IngestWorkers, logger)

	pipeline := engineer.New(engineer.FromRetrieval(cfg.Retrieval), logger)
	a.Chat = chat.New(a.Store, client, client, pipeline, cfg.Retrieval.SearchK, logger)

	return a, nil
}

// openStore opens the configured vector store backend. The postgres
// backend runs migrations first; the embedded backend defaults its
// persistence directory to ~/.libris/chromem.
func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config

	switch cfg.Backend {
	case config.BackendPostgres:
		if err := db.Migrate(cfg.PostgresURL(), a.Logger); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}

		pool, err := store.NewPool(ctx, cfg.PostgresConnectionString())
		if err != nil {
			return fmt.Errorf("opening postgres: %w", err)
		}
		a.pool = pool

		st, err := store.NewPostgres(pool, cfg.EmbedderDim, a.Logger)
		if err != nil {
			return err
		}
		a.Store = st
		return nil

	case config.BackendChromem, "":
		path := cfg.ChromemPath
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("getting user home directory: %w", err)
			}
			path = filepath.Join(home, ".libris", "chromem")
		}

		st, err := store.NewChromem(path, cfg.EmbedderDim, a.Logger)
		if err != nil {
			return fmt.Errorf("opening embedded store: %w", err)
		}
		a.Store = st
		return nil

	default:
		return errors.New("unknown backend " + cfg.Backend)
	}
}

// Close releases held resources. Safe to call on a partially
// constructed App.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}
