// Package engineer implements the context engineering pipeline: the
// stage between raw vector-search candidates and the prompt handed to
// the model.
//
// The pipeline applies, strictly in order:
//
//	filter → deduplicate → rank → cap-by-query-type → budget fit
//
// Determinism is a hard requirement: for identical inputs the pipeline
// produces byte-identical ordering every run. All sorts are stable with
// explicit tie-break comparators, and no ordering path iterates a map.
package engineer

import (
	"fmt"
	"log/slog"
	"sort"
	"unicode/utf8"

	"github.com/libris-ai/libris/internal/config"
	"github.com/libris-ai/libris/internal/rag"
)

// Config tunes the pipeline. Zero values are not usable; construct with
// FromRetrieval or fill every field. All knobs are operator-tunable.
type Config struct {
	MinRelevance      float64                    // inclusive filter threshold
	DedupThreshold    float64                    // content similarity at/above which candidates are duplicates
	MaxAuthorityBonus float64                    // cap on the authority contribution to composite score
	AuthorityWeights  map[rag.SourceType]float64 // relative trust per source type
	DocCaps           map[rag.QueryType]int      // documents per query type
	MaxContextTokens  int                        // global context budget
	MaxDocTokens      int                        // per-document budget
	MinDocTokens      int                        // below this a truncated document is dropped instead
}

// FromRetrieval converts the application retrieval settings into a
// pipeline Config. Settings are assumed validated by config.Load.
func FromRetrieval(r config.Retrieval) Config {
	weights := make(map[rag.SourceType]float64, len(r.AuthorityWeights))
	for typ, w := range r.AuthorityWeights {
		weights[rag.SourceType(typ)] = w
	}
	caps := make(map[rag.QueryType]int, len(r.DocCaps))
	for typ, n := range r.DocCaps {
		caps[rag.QueryType(typ)] = n
	}
	return Config{
		MinRelevance:      r.MinRelevance,
		DedupThreshold:    r.DedupThreshold,
		MaxAuthorityBonus: r.MaxAuthorityBonus,
		AuthorityWeights:  weights,
		DocCaps:           caps,
		MaxContextTokens:  r.MaxContextTokens,
		MaxDocTokens:      r.MaxDocTokens,
		MinDocTokens:      r.MinDocTokens,
	}
}

// Stats reports diagnostic counts for one pipeline run.
type Stats struct {
	Retrieved    int `json:"retrieved"`    // raw candidates in
	Filtered     int `json:"filtered"`     // survivors of the relevance filter
	Deduplicated int `json:"deduplicated"` // survivors of dedup
	Final        int `json:"final"`        // documents in the engineered context
}

// Pipeline turns raw retrieval candidates into an ordered, budgeted
// document list. Safe for concurrent use; it holds no per-request state.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Pipeline. A nil logger falls back to slog.Default().
func New(cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, logger: logger}
}

// Option adjusts a single pipeline run.
type Option func(*runConfig)

type runConfig struct {
	minRelevance float64
}

// WithMinRelevance overrides the relevance floor for one run. Values
// outside [0,1] are ignored.
func WithMinRelevance(v float64) Option {
	return func(r *runConfig) {
		if v >= 0 && v <= 1 {
			r.minRelevance = v
		}
	}
}

// scored pairs a candidate with its pipeline-internal scores.
type scored struct {
	rag.Candidate
	authority float64 // normalized authority bonus in [0, MaxAuthorityBonus]
	composite float64 // similarity * (1 + authority)
}

// Engineer runs the full pipeline. candidates are expected already
// similarity-ranked by the store, but the pipeline re-establishes its own
// deterministic order and does not depend on input order beyond the
// candidate fields themselves.
//
// Returns rag.ErrNoRelevantContext when nothing survives the relevance
// filter; the orchestrator falls back to a context-free prompt.
func (p *Pipeline) Engineer(query string, candidates []rag.Candidate, queryType rag.QueryType, opts ...Option) (rag.EngineeredContext, Stats, error) {
	run := runConfig{minRelevance: p.cfg.MinRelevance}
	for _, opt := range opts {
		opt(&run)
	}

	stats := Stats{Retrieved: len(candidates)}

	filtered := p.filter(candidates, run.minRelevance)
	stats.Filtered = len(filtered)
	if len(filtered) == 0 {
		return rag.EngineeredContext{}, stats, fmt.Errorf(
			"%w: %d candidates below threshold %g", rag.ErrNoRelevantContext, len(candidates), run.minRelevance)
	}

	deduped := p.deduplicate(filtered)
	stats.Deduplicated = len(deduped)

	ranked := p.rank(deduped)

	capped := p.capByQueryType(ranked, queryType)

	docs, total := p.fitBudget(capped)
	stats.Final = len(docs)

	p.logger.Debug("context engineered",
		"query_type", queryType,
		"retrieved", stats.Retrieved,
		"filtered", stats.Filtered,
		"deduplicated", stats.Deduplicated,
		"final", stats.Final,
		"token_estimate", total,
	)

	return rag.EngineeredContext{
		Documents:     docs,
		TokenEstimate: total,
		QueryType:     queryType,
	}, stats, nil
}

// filter drops candidates below the relevance threshold. The threshold
// is inclusive: a candidate exactly at the threshold is kept.
func (p *Pipeline) filter(candidates []rag.Candidate, minRelevance float64) []scored {
	kept := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		if c.Similarity >= minRelevance {
			a := p.authorityBonus(c.SourceType)
			kept = append(kept, scored{
				Candidate: c,
				authority: a,
				composite: c.Similarity * (1 + a),
			})
		}
	}
	return kept
}

// authorityBonus maps a source type's configured weight to a bonus in
// [0, MaxAuthorityBonus], normalized against the largest weight so that
// similarity remains the dominant ranking signal.
func (p *Pipeline) authorityBonus(t rag.SourceType) float64 {
	var maxWeight float64
	for _, w := range p.cfg.AuthorityWeights {
		if w > maxWeight {
			maxWeight = w
		}
	}
	if maxWeight == 0 {
		return 0
	}
	return p.cfg.AuthorityWeights[t] / maxWeight * p.cfg.MaxAuthorityBonus
}

// deduplicate removes near-duplicate content with a greedy pass: process
// candidates in keep-preference order, comparing each against already
// kept survivors only. O(n²) on the filtered set, which is small
// (typically ≤ 20).
//
// Keep preference among duplicates: highest similarity, then higher
// source authority, then earlier ordinal, then lexical source id.
func (p *Pipeline) deduplicate(candidates []scored) []scored {
	ordered := make([]scored, len(candidates))
	copy(ordered, candidates)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.authority != b.authority {
			return a.authority > b.authority
		}
		if a.Ordinal != b.Ordinal {
			return a.Ordinal < b.Ordinal
		}
		return a.SourceID < b.SourceID
	})

	kept := make([]scored, 0, len(ordered))
	for _, c := range ordered {
		dup := false
		for _, k := range kept {
			if ContentSimilarity(c.Content, k.Content) >= p.cfg.DedupThreshold {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, c)
		}
	}
	return kept
}

// rank orders by composite score: similarity * (1 + authority bonus).
// Ties break by original similarity, then ordinal, then source id.
func (p *Pipeline) rank(candidates []scored) []scored {
	ranked := make([]scored, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.composite != b.composite {
			return a.composite > b.composite
		}
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if a.Ordinal != b.Ordinal {
			return a.Ordinal < b.Ordinal
		}
		return a.SourceID < b.SourceID
	})
	return ranked
}

// capByQueryType truncates the ranked list to the query type's document
// cap. Fewer survivors than the cap is fine — no padding.
func (p *Pipeline) capByQueryType(ranked []scored, queryType rag.QueryType) []scored {
	limit, ok := p.cfg.DocCaps[queryType]
	if !ok {
		// Unknown type: treat as explanatory, the safest middle ground.
		limit = p.cfg.DocCaps[rag.QueryExplanatory]
	}
	if limit > 0 && len(ranked) > limit {
		return ranked[:limit]
	}
	return ranked
}

// fitBudget assembles the final document list under the global token
// budget. Each document is truncated tail-first (the leading portion of
// a chunk is assumed most information-dense) to the per-document budget
// and to the remaining global budget. If a document cannot get at least
// MinDocTokens, the lowest-composite document is dropped and the fit is
// retried from scratch.
func (p *Pipeline) fitBudget(ranked []scored) ([]rag.Candidate, int) {
	docs := make([]scored, len(ranked))
	copy(docs, ranked)

	for len(docs) > 0 {
		fitted, total, ok := p.tryFit(docs)
		if ok {
			return fitted, total
		}
		// Ranked order makes the last document the lowest-composite one.
		docs = docs[:len(docs)-1]
	}
	return []rag.Candidate{}, 0
}

// tryFit attempts to fit every document under the budget, truncating as
// needed. Reports ok=false when some document cannot receive its minimal
// allocation.
func (p *Pipeline) tryFit(docs []scored) ([]rag.Candidate, int, bool) {
	out := make([]rag.Candidate, 0, len(docs))
	total := 0

	for _, d := range docs {
		remaining := p.cfg.MaxContextTokens - total
		allowance := p.cfg.MaxDocTokens
		if remaining < allowance {
			allowance = remaining
		}
		if allowance < p.cfg.MinDocTokens {
			return nil, 0, false
		}

		c := d.Candidate
		tokens := rag.EstimateTokens(c.Content)
		if tokens > allowance {
			c.Content = truncate(c.Content, allowance)
			tokens = allowance
		}
		out = append(out, c)
		total += tokens
	}
	return out, total, true
}

// truncate keeps the leading maxTokens worth of content, never cutting
// through a multi-byte rune.
func truncate(content string, maxTokens int) string {
	maxChars := maxTokens * 4
	if len(content) <= maxChars {
		return content
	}
	cut := content[:maxChars]
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
