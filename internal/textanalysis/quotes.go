package textanalysis

import (
	"slices"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/survey-analytics/engine/pkg/utils"
)

const (
	minQuoteLength   = 20
	maxQuoteLength   = 300
	idealQuoteLength = 100
	// leadingPhraseWords is how many leading words make two quotes near-duplicates.
	leadingPhraseWords = 4
)

// SelectTopQuotes picks up to n quotes of 20 to 300 characters, preferring
// lengths close to 100 and skipping quotes that open with the same phrase as
// one already picked.
func SelectTopQuotes(responses []string, n int) []string {
	if n <= 0 {
		return []string{}
	}

	candidates := make([]string, 0, len(responses))
	for _, r := range responses {
		r = strings.TrimSpace(r)
		l := utf8.RuneCountInString(r)
		if l >= minQuoteLength && l <= maxQuoteLength {
			candidates = append(candidates, r)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return lengthDistance(candidates[i]) < lengthDistance(candidates[j])
	})

	selected := make([]string, 0, n)
	var seen [][]string
	for _, c := range candidates {
		if len(selected) == n {
			break
		}
		words := leadingWords(c)
		if slices.ContainsFunc(seen, func(prev []string) bool { return samePhrase(prev, words) }) {
			continue
		}
		seen = append(seen, words)
		selected = append(selected, c)
	}
	return selected
}

func lengthDistance(s string) int {
	d := utf8.RuneCountInString(s) - idealQuoteLength
	if d < 0 {
		return -d
	}
	return d
}

// leadingWords is the canonical form of the first few words.
func leadingWords(s string) []string {
	words := strings.Fields(utils.CanonicalKey(s))
	if len(words) > leadingPhraseWords {
		words = words[:leadingPhraseWords]
	}
	return words
}

// samePhrase reports whether the shorter word list is a prefix of the other.
// A prefix of fewer than two words only matches an identical list.
func samePhrase(a, b []string) bool {
	n := min(len(a), len(b))
	if n < 2 {
		return slices.Equal(a, b)
	}
	return slices.Equal(a[:n], b[:n])
}
