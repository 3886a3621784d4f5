package chat

import (
	"strings"

	"github.com/libris-ai/libris/internal/rag"
)

// Keyword groups checked in priority order. A question like "what
// should I do" is factual, not advisory: interrogatives outrank the
// softer cues, matching how the document cap is tuned.
var (
	factualWords     = []string{"what", "which", "who", "when", "where"}
	explanatoryWords = []string{"how", "why"}
	analyticalWords  = []string{"compare", "comparison", "difference", "differences", "versus", "vs"}
	advisoryWords    = []string{"should", "recommend", "recommendation", "suggest", "advice"}
)

// Classify maps a question to a query type using surface keyword cues.
// Unmatched questions default to explanatory, the middle of the
// document-cap range.
func Classify(query string) rag.QueryType {
	words := strings.Fields(strings.ToLower(query))
	tokens := make(map[string]bool, len(words))
	for _, w := range words {
		tokens[strings.Trim(w, ".,!?;:'\"()")] = true
	}

	switch {
	case containsAny(tokens, factualWords):
		return rag.QueryFactual
	case containsAny(tokens, explanatoryWords):
		return rag.QueryExplanatory
	case containsAny(tokens, analyticalWords):
		return rag.QueryAnalytical
	case containsAny(tokens, advisoryWords):
		return rag.QueryAdvisory
	default:
		return rag.QueryExplanatory
	}
}

func containsAny(tokens map[string]bool, words []string) bool {
	for _, w := range words {
		if tokens[w] {
			return true
		}
	}
	return false
}
