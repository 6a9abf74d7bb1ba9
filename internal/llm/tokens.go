package llm

import (
	"math"
	"unicode/utf8"
)

// charsPerToken is a conservative ratio for Romanian text, which tokenizes
// worse than English.
const charsPerToken = 2.5

func EstimateTokens(text string) int {
	return int(math.Ceil(float64(utf8.RuneCountInString(text)) / charsPerToken))
}

// TruncateToTokenLimit cuts text so that its estimate fits maxTokens.
func TruncateToTokenLimit(text string, maxTokens int) string {
	if EstimateTokens(text) <= maxTokens {
		return text
	}
	limit := int(float64(maxTokens) * charsPerToken)
	if limit <= 3 {
		return ""
	}
	runes := []rune(text)
	return string(runes[:limit-3]) + "..."
}
