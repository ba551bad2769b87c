package receipt

import (
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

// defaultStoreMatchThreshold is deliberately loose: receipt headers for the
// same chain vary wildly ("WHOLE FOODS MKT" vs "Whole Foods Market") and a
// wrong merge is recoverable while a missed merge fragments the analytics.
const defaultStoreMatchThreshold = 0.51

// NormalizeStoreName matches a raw store name against the normalized names
// already in the database and returns the canonical form. With no match
// above the threshold the cleaned-up input becomes a new canonical name.
func NormalizeStoreName(raw string, known []string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	var (
		best      string
		bestScore float64
	)
	params := levenshtein.NewParams()
	needle := tokenSort(raw)
	for _, candidate := range known {
		score := levenshtein.Similarity(needle, tokenSort(candidate), params)
		if score > bestScore {
			best, bestScore = candidate, score
		}
	}
	if bestScore >= defaultStoreMatchThreshold {
		return best
	}
	return titleCase(raw)
}

// tokenSort lowercases and alphabetizes the words of a name so that word
// order does not affect the similarity score.
func tokenSort(s string) string {
	tokens := strings.Fields(strings.ToLower(s))
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		if len(r) > 0 {
			r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
