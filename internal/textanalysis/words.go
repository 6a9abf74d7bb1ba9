package textanalysis

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var stopWords = map[string]struct{}{
	"și": {}, "de": {}, "la": {}, "în": {}, "cu": {}, "pentru": {}, "pe": {}, "sa": {},
	"că": {}, "este": {}, "sunt": {}, "un": {}, "o": {}, "ai": {}, "au": {}, "din": {},
	"ce": {}, "nu": {}, "se": {}, "a": {}, "am": {}, "mă": {}, "te": {}, "le": {},
	"lor": {}, "mai": {}, "dar": {}, "sau": {}, "foarte": {}, "daca": {}, "dacă": {},
	"fi": {}, "fost": {}, "avea": {}, "ar": {}, "poate": {}, "către": {}, "despre": {},
	"fără": {}, "fara": {}, "prin": {}, "ca": {}, "care": {}, "acest": {}, "această": {},
	"aceasta": {}, "acesta": {},
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.Is(unicode.Mn, r)
}

// CalculateWordFrequency counts words longer than three letters that are not
// stop words. Text is NFC-normalized first, so composed and decomposed
// diacritics count as one word. Ties keep first-seen order.
func CalculateWordFrequency(texts []string, topN int) []WordCount {
	counts := make(map[string]int)
	var order []string

	for _, text := range texts {
		words := strings.FieldsFunc(strings.ToLower(norm.NFC.String(text)), func(r rune) bool {
			return !isWordRune(r)
		})
		for _, w := range words {
			if len([]rune(w)) <= 3 {
				continue
			}
			if _, stop := stopWords[w]; stop {
				continue
			}
			if counts[w] == 0 {
				order = append(order, w)
			}
			counts[w]++
		}
	}

	out := make([]WordCount, 0, len(order))
	for _, w := range order {
		out = append(out, WordCount{Word: w, Count: counts[w]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})

	if topN >= 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

// cleanResponses trims answers and drops blank ones.
func cleanResponses(responses []string) []string {
	out := make([]string, 0, len(responses))
	for _, r := range responses {
		if t := strings.TrimSpace(r); t != "" {
			out = append(out, t)
		}
	}
	return out
}
