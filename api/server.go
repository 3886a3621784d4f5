// Package api exposes the chat and source-management surface over HTTP.
//
// Endpoints:
//
//	POST   /api/chat              - answer a question (JSON)
//	POST   /api/chat/stream       - answer a question (SSE)
//	GET    /api/sources           - list registered sources
//	POST   /api/sources           - ingest a source
//	DELETE /api/sources/{id}      - delete a source and its chunks
//	GET    /health                - liveness probe
//	GET    /ready                 - readiness probe
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/libris-ai/libris/internal/chat"
	"github.com/libris-ai/libris/internal/ingest"
	"github.com/libris-ai/libris/internal/store"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:3500"

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout guards against Slowloris-style slow clients.
	ReadHeaderTimeout = 10 * time.Second

	ReadTimeout = 30 * time.Second
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger

	health  *HealthHandler
	chat    *ChatHandler
	sources *SourcesHandler
}

// NewServer creates a server with all routes registered.
func NewServer(chatSvc *chat.Service, ingestSvc *ingest.Service, st store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	s := &Server{
		mux:     mux,
		logger:  logger,
		health:  NewHealthHandler(st, logger),
		chat:    NewChatHandler(chatSvc, logger),
		sources: NewSourcesHandler(ingestSvc, st, logger),
	}

	s.health.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)
	s.sources.RegisterRoutes(mux)
	return s
}

// Handler returns the handler with middleware applied.
// Middleware order: recovery, then logging, then routes.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger),
	)
}

// Run starts the server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		IdleTimeout:       IdleTimeout,
		// No WriteTimeout: SSE responses stay open for the duration of
		// a generation.
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
