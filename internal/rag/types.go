package rag

import "time"

// SourceType categorizes a knowledge source for authority weighting.
// Curated books carry the most weight; forum text the least.
type SourceType string

// Known source types.
const (
	SourceTypeBook    SourceType = "book"
	SourceTypeArticle SourceType = "article"
	SourceTypeForum   SourceType = "forum"
	SourceTypeOther   SourceType = "other"
)

// Valid reports whether t is one of the known source types.
func (t SourceType) Valid() bool {
	switch t {
	case SourceTypeBook, SourceTypeArticle, SourceTypeForum, SourceTypeOther:
		return true
	}
	return false
}

// QueryType classifies user intent. It drives how many documents the
// context pipeline includes: factual queries get the fewest (precision
// over coverage), analytical queries the most.
type QueryType string

// Known query types.
const (
	QueryFactual     QueryType = "factual"
	QueryExplanatory QueryType = "explanatory"
	QueryAdvisory    QueryType = "advisory"
	QueryAnalytical  QueryType = "analytical"
)

// Valid reports whether q is one of the known query types.
func (q QueryType) Valid() bool {
	switch q {
	case QueryFactual, QueryExplanatory, QueryAdvisory, QueryAnalytical:
		return true
	}
	return false
}

// Chunk is a bounded slice of source text plus its embedding vector.
// Chunks are immutable once created; re-ingesting a source replaces its
// entire chunk set rather than mutating individual chunks.
type Chunk struct {
	ID         string    // Unique identifier (UUID)
	SourceID   string    // Owning source; must reference a registered source
	Ordinal    int       // Position of the chunk within the source text
	Content    string    // Chunk text
	Embedding  []float32 // Fixed-dimension embedding vector
	TokenCount int       // Estimated token count of Content
}

// SourceMetadata describes a registered knowledge source.
// Chunks reference (not own) a source via SourceID; deleting a source
// cascades deletion of its chunks.
type SourceMetadata struct {
	SourceID      string     `json:"source_id"`
	DisplayName   string     `json:"display_name"`
	Type          SourceType `json:"source_type"`
	ReferenceLink string     `json:"reference_link,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Candidate is a single retrieval result, produced per query and never
// persisted. Similarity is normalized to [0,1] regardless of the distance
// metric used by the underlying backend.
type Candidate struct {
	ChunkID    string
	SourceID   string
	SourceName string
	SourceType SourceType
	Ordinal    int
	Content    string
	Similarity float64
}

// EngineeredContext is the result of the context engineering pipeline:
// an ordered, token-budgeted document list ready for prompt assembly.
// It is consumed once and discarded.
type EngineeredContext struct {
	Documents     []Candidate
	TokenEstimate int
	QueryType     QueryType
}

// EstimateTokens returns a rough token estimate for text.
// Uses the 4-characters-per-token heuristic; good enough for budgeting.
func EstimateTokens(text string) int {
	return len(text) / 4
}
