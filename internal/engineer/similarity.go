package engineer

import "strings"

// ContentSimilarity measures lexical overlap between two texts in [0,1]
// using the Dice coefficient over word bigrams of the normalized text.
// It operates on content, not on the original embeddings: two chunks can
// embed differently yet still be near-duplicates worth collapsing.
//
// Texts shorter than two words fall back to comparing normalized word
// sets, so trivial inputs still dedupe sensibly.
func ContentSimilarity(a, b string) float64 {
	wa := normalizeWords(a)
	wb := normalizeWords(b)

	if len(wa) == 0 || len(wb) == 0 {
		if len(wa) == 0 && len(wb) == 0 {
			return 1
		}
		return 0
	}

	if len(wa) < 2 || len(wb) < 2 {
		return wordSetOverlap(wa, wb)
	}

	ba := bigrams(wa)
	bb := bigrams(wb)

	common := 0
	for g, n := range ba {
		if m, ok := bb[g]; ok {
			common += min(n, m)
		}
	}

	totalA := len(wa) - 1
	totalB := len(wb) - 1
	return 2 * float64(common) / float64(totalA+totalB)
}

// normalizeWords lowercases and splits text into words, collapsing all
// whitespace runs.
func normalizeWords(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// bigrams counts adjacent word pairs.
func bigrams(words []string) map[string]int {
	grams := make(map[string]int, len(words)-1)
	for i := 0; i+1 < len(words); i++ {
		grams[words[i]+" "+words[i+1]]++
	}
	return grams
}

// wordSetOverlap is the Dice coefficient over word sets, used for texts
// too short to form bigrams.
func wordSetOverlap(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, w := range a {
		setA[w] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, w := range b {
		setB[w] = struct{}{}
	}

	common := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			common++
		}
	}
	return 2 * float64(common) / float64(len(setA)+len(setB))
}
