package config

import "github.com/spf13/viper"

// Retrieval tunes the search and context engineering pipeline.
//
// The numeric defaults (0.3 relevance, 0.9 dedup, per-type caps) are
// operator-tunable knobs, not hard invariants. Validation only enforces
// structural rules: caps must be monotone with breadth need, with
// "factual" strictly smallest.
type Retrieval struct {
	// SearchK is how many raw candidates to request from the vector
	// store. Set generously above the largest document cap so the
	// pipeline has enough material to filter, dedupe, and rank.
	SearchK int `mapstructure:"search_k"`

	// MinRelevance is the inclusive similarity threshold below which
	// candidates are dropped.
	MinRelevance float64 `mapstructure:"min_relevance"`

	// DedupThreshold is the content-similarity threshold at or above
	// which two candidates are considered duplicates.
	DedupThreshold float64 `mapstructure:"dedup_threshold"`

	// MaxAuthorityBonus caps the authority contribution to the composite
	// score. Kept small so similarity stays the dominant signal and
	// authority only reorders near-ties.
	MaxAuthorityBonus float64 `mapstructure:"max_authority_bonus"`

	// AuthorityWeights maps source types to trust weights.
	// Weights are relative; they are normalized against the largest
	// weight before scaling by MaxAuthorityBonus.
	AuthorityWeights map[string]float64 `mapstructure:"authority_weights"`

	// DocCaps maps query types to the maximum number of documents
	// included in the engineered context.
	DocCaps map[string]int `mapstructure:"doc_caps"`

	// Token budgeting for context assembly.
	MaxContextTokens int `mapstructure:"max_context_tokens"`
	MaxDocTokens     int `mapstructure:"max_doc_tokens"`
	MinDocTokens     int `mapstructure:"min_doc_tokens"`
}

func setRetrievalDefaults() {
	viper.SetDefault("retrieval.search_k", 20)
	viper.SetDefault("retrieval.min_relevance", 0.3)
	viper.SetDefault("retrieval.dedup_threshold", 0.9)
	viper.SetDefault("retrieval.max_authority_bonus", 0.3)
	viper.SetDefault("retrieval.authority_weights", map[string]float64{
		"book":    1.0,
		"article": 0.5,
		"other":   0.25,
		"forum":   0.15,
	})
	viper.SetDefault("retrieval.doc_caps", map[string]int{
		"factual":     3,
		"advisory":    4,
		"explanatory": 5,
		"analytical":  6,
	})
	viper.SetDefault("retrieval.max_context_tokens", 3000)
	viper.SetDefault("retrieval.max_doc_tokens", 1200)
	viper.SetDefault("retrieval.min_doc_tokens", 100)
}
