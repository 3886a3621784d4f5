// Package chat answers questions grounded in the ingested sources.
//
// The flow per question: classify the query, embed it, retrieve
// candidates, run them through the context engineering pipeline, and
// generate an answer with citations from the surviving documents.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/libris-ai/libris/internal/engineer"
	"github.com/libris-ai/libris/internal/rag"
	"github.com/libris-ai/libris/internal/store"
)

// excerptMaxBytes bounds citation excerpts.
const excerptMaxBytes = 200

// Embedder embeds a query string.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// StreamFunc receives one generated text delta.
type StreamFunc = func(ctx context.Context, delta string) error

// Generator produces an answer from a system and user prompt. A nil
// stream disables streaming.
type Generator interface {
	Generate(ctx context.Context, system, prompt string, stream StreamFunc) (string, error)
}

// Citation points an answer back at the source material it used.
type Citation struct {
	SourceID      string  `json:"source_id"`
	DisplayName   string  `json:"display_name"`
	SourceType    string  `json:"source_type"`
	ReferenceLink string  `json:"reference_link,omitempty"`
	Excerpt       string  `json:"excerpt"`
	Similarity    float64 `json:"similarity"`
}

// Answer is a complete response to one question.
type Answer struct {
	Text      string         `json:"text"`
	Citations []Citation     `json:"citations"`
	QueryType rag.QueryType  `json:"query_type"`
	Stats     engineer.Stats `json:"context_stats"`
}

// Event is one element of a streaming answer. One terminal event is
// sent, either Answer (success) or Err (failure), and then the channel
// closes. If the caller's context is cancelled the channel may close
// without a terminal event.
type Event struct {
	Delta  string
	Answer *Answer
	Err    error
}

// Option tunes a single question.
type Option func(*options)

type options struct {
	queryType    rag.QueryType
	sources      []string
	minRelevance *float64
}

// WithQueryType bypasses heuristic classification for this question.
// Invalid values fall back to the heuristic.
func WithQueryType(qt rag.QueryType) Option {
	return func(o *options) { o.queryType = qt }
}

// WithSources restricts retrieval to the given source IDs.
func WithSources(ids ...string) Option {
	return func(o *options) { o.sources = ids }
}

// WithMinRelevance overrides the pipeline's relevance floor for this
// question.
func WithMinRelevance(v float64) Option {
	return func(o *options) { o.minRelevance = &v }
}

// Service wires retrieval, context engineering, and generation.
type Service struct {
	store     store.Store
	embedder  Embedder
	generator Generator
	pipeline  *engineer.Pipeline
	searchK   int
	logger    *slog.Logger
}

// New builds a chat service. searchK is how many candidates retrieval
// fetches before the pipeline filters them down.
func New(st store.Store, embedder Embedder, generator Generator, pipeline *engineer.Pipeline, searchK int, logger *slog.Logger) *Service {
	if searchK < 1 {
		searchK = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     st,
		embedder:  embedder,
		generator: generator,
		pipeline:  pipeline,
		searchK:   searchK,
		logger:    logger,
	}
}

// Ask answers a question in one shot.
//
// When no stored content clears the relevance floor, the error wraps
// rag.ErrNoRelevantContext; callers should present that as "nothing on
// this topic" rather than a failure.
func (s *Service) Ask(ctx context.Context, query string, opts ...Option) (Answer, error) {
	return s.ask(ctx, query, nil, opts)
}

// AskStream answers a question, delivering text deltas as they arrive.
// The returned channel is closed after the terminal event. Cancelling
// ctx aborts generation and surfaces the context error as the terminal
// event.
func (s *Service) AskStream(ctx context.Context, query string, opts ...Option) <-chan Event {
	events := make(chan Event)

	go func() {
		defer close(events)

		send := func(ev Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		answer, err := s.ask(ctx, query, func(ctx context.Context, delta string) error {
			if delta == "" {
				return nil
			}
			if !send(Event{Delta: delta}) {
				return ctx.Err()
			}
			return nil
		}, opts)
		if err != nil {
			send(Event{Err: err})
			return
		}
		send(Event{Answer: &answer})
	}()

	return events
}

func (s *Service) ask(ctx context.Context, query string, stream StreamFunc, opts []Option) (Answer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Answer{}, errors.New("query is empty")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	queryType := o.queryType
	if !queryType.Valid() {
		queryType = Classify(query)
	}

	embedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return Answer{}, fmt.Errorf("embedding query: %w", err)
	}

	// The pipeline applies the relevance floor itself so its stats
	// count everything retrieval returned.
	candidates, err := s.store.Search(ctx, embedding, store.SearchOptions{K: s.searchK, Sources: o.sources})
	if err != nil {
		return Answer{}, fmt.Errorf("searching chunks: %w", err)
	}

	var engOpts []engineer.Option
	if o.minRelevance != nil {
		engOpts = append(engOpts, engineer.WithMinRelevance(*o.minRelevance))
	}
	engineered, stats, err := s.pipeline.Engineer(query, candidates, queryType, engOpts...)
	if err != nil {
		return Answer{}, err
	}

	s.logger.Debug("engineered context",
		"query_type", queryType,
		"retrieved", stats.Retrieved,
		"final", stats.Final,
		"tokens", engineered.TokenEstimate)

	text, err := s.generator.Generate(ctx, systemPrompt, buildUserPrompt(query, engineered), stream)
	if err != nil {
		return Answer{}, fmt.Errorf("generating answer: %w", err)
	}

	citations, err := s.citations(ctx, engineered.Documents)
	if err != nil {
		return Answer{}, err
	}

	return Answer{
		Text:      text,
		Citations: citations,
		QueryType: queryType,
		Stats:     stats,
	}, nil
}

// citations builds one citation per context document, in context order,
// enriched with the source's reference link.
func (s *Service) citations(ctx context.Context, docs []rag.Candidate) ([]Citation, error) {
	links := make(map[string]string)
	citations := make([]Citation, 0, len(docs))

	for _, doc := range docs {
		link, ok := links[doc.SourceID]
		if !ok {
			meta, err := s.store.Source(ctx, doc.SourceID)
			if err != nil {
				// The source vanished between search and citation: cite
				// without the link rather than failing the answer.
				if !errors.Is(err, rag.ErrSourceNotFound) {
					return nil, fmt.Errorf("loading source %q: %w", doc.SourceID, err)
				}
			} else {
				link = meta.ReferenceLink
			}
			links[doc.SourceID] = link
		}

		citations = append(citations, Citation{
			SourceID:      doc.SourceID,
			DisplayName:   doc.SourceName,
			SourceType:    string(doc.SourceType),
			ReferenceLink: link,
			Excerpt:       excerpt(doc.Content),
			Similarity:    doc.Similarity,
		})
	}
	return citations, nil
}

// excerpt shortens content for display, cutting on a rune boundary.
func excerpt(content string) string {
	if len(content) <= excerptMaxBytes {
		return content
	}
	cut := content[:excerptMaxBytes]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut + "..."
}
