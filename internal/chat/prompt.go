package chat

import (
	"fmt"
	"strings"

	"github.com/libris-ai/libris/internal/rag"
)

const systemPrompt = `You are a knowledgeable assistant that answers questions using only the provided source material.

Rules:
- Base every claim on the numbered sources in the context. Do not invent facts.
- When you use a source, mention it by its number, e.g. "According to Source 2".
- If the sources do not contain the answer, say so plainly instead of guessing.
- Prefer the most authoritative sources when they disagree.`

// buildUserPrompt renders the engineered context block followed by the
// question. Source numbering matches the citation order returned to the
// caller.
func buildUserPrompt(query string, ec rag.EngineeredContext) string {
	var b strings.Builder

	b.WriteString("Context:\n\n")
	for i, doc := range ec.Documents {
		fmt.Fprintf(&b, "Source %d: %s (%s, relevance %.2f)\n%s\n\n",
			i+1, doc.SourceName, doc.SourceType, doc.Similarity, doc.Content)
	}

	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}
