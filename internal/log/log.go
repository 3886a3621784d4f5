// Package log provides the logging infrastructure for libris.
//
// Loggers are plain *slog.Logger values injected via constructors; there
// is no package-level global. Components add context with logger.With().
//
// Usage:
//
//	logger := log.New(log.Config{Level: slog.LevelDebug})
//	st := store.NewChromem(path, dim, logger.With("component", "store"))
//
//	// In tests:
//	logger := log.NewNop()
package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger aliases *slog.Logger so components depend on the standard
// library type directly and keep full access to With(), WithGroup(), etc.
type Logger = *slog.Logger

// Config defines logger construction options.
type Config struct {
	// Level is the minimum log level. Default: slog.LevelInfo.
	Level slog.Level

	// JSON switches output to JSON format. Default: text.
	JSON bool

	// AddSource includes source file:line in entries. Default: off.
	AddSource bool
}

// New creates a logger writing to os.Stderr.
// Stderr keeps stdout free for command output and streamed answers.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter creates a logger writing to w.
// Useful in tests for capturing output to a buffer.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewNop returns a logger that discards everything. Tests only —
// production code should always construct a real logger.
func NewNop() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
