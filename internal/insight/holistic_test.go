package insight

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/survey-analytics/engine/internal/features"
	"github.com/survey-analytics/engine/internal/llm"
	"github.com/survey-analytics/engine/internal/llm/llmtest"
	"github.com/survey-analytics/engine/internal/textanalysis"
)

func TestConfidenceFor(t *testing.T) {
	tests := []struct {
		n    int
		want float64
	}{
		{0, 0.5},
		{14, 0.5},
		{15, 0.6},
		{29, 0.6},
		{30, 0.75},
		{50, 0.85},
		{99, 0.85},
		{100, 0.95},
		{5000, 0.95},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ConfidenceFor(tt.n), "n=%d", tt.n)
	}
}

func TestMergeThemes_CombinesByCanonicalName(t *testing.T) {
	outputs := []textanalysis.Output{
		{Themes: []textanalysis.Theme{
			{Name: "Plăți online", Score: 0.6, Mentions: 3, Keywords: []string{"plată"}, Sentiment: 0.5},
			{Name: "Cozi lungi", Score: 0.9, Mentions: 2, Sentiment: -0.8},
		}},
		{Themes: []textanalysis.Theme{
			{Name: "plati ONLINE", Score: 0.8, Mentions: 1, Keywords: []string{"Plată", "card"}, Sentiment: -0.5},
			{Name: "  ", Mentions: 50},
		}},
	}

	themes := MergeThemes(outputs, 10)

	require.Len(t, themes, 2)
	assert.Equal(t, "Plăți online", themes[0].Name)
	assert.Equal(t, 4, themes[0].Mentions)
	assert.Equal(t, 0.8, themes[0].Score)
	assert.Equal(t, 0.25, themes[0].Sentiment)
	assert.Equal(t, []string{"plată", "card"}, themes[0].Keywords)
	assert.Equal(t, "Cozi lungi", themes[1].Name)
}

func TestMergeThemes_KeepsTopN(t *testing.T) {
	var themes []textanalysis.Theme
	for i := range 15 {
		themes = append(themes, textanalysis.Theme{Name: strings.Repeat("x", i+1), Mentions: i})
	}

	merged := MergeThemes([]textanalysis.Output{{Themes: themes}}, 10)

	require.Len(t, merged, 10)
	assert.Equal(t, 14, merged[0].Mentions)
	assert.Equal(t, 5, merged[9].Mentions)
}

func TestWeightedSentiment(t *testing.T) {
	outputs := []textanalysis.Output{
		{Sentiment: textanalysis.SentimentAnalysis{Overall: 0.8}, ResponseCount: 3},
		{Sentiment: textanalysis.SentimentAnalysis{Overall: -0.4}, ResponseCount: 1},
		{Sentiment: textanalysis.SentimentAnalysis{Overall: -1}, ResponseCount: 0},
	}

	assert.Equal(t, 0.5, WeightedSentiment(outputs))
	assert.Equal(t, 0.2, MeanSentiment(outputs))
	assert.Zero(t, WeightedSentiment(nil))
	assert.Zero(t, MeanSentiment(nil))
}

func TestPrioritizeRecommendations_DedupsAndOrders(t *testing.T) {
	long := strings.Repeat("Digitalizați fluxul de documente în primărie ", 3)
	recs := PrioritizeRecommendations([]Recommendation{
		{Action: "Campanie de informare", Priority: "low", Timeline: "long-term", Effort: "high"},
		{Action: long + "A", Priority: "medium", Timeline: "short-term", Effort: "medium"},
		{Action: strings.ToUpper(long) + "B", Priority: "high", Timeline: "quick-win", Effort: "low"},
		{Action: "Plata online", Priority: "high", Timeline: "quick-win", Effort: "low"},
	})

	require.Len(t, recs, 3)
	assert.Equal(t, "Plata online", recs[0].Action)
	assert.Equal(t, long+"A", recs[1].Action)
	assert.Equal(t, "Campanie de informare", recs[2].Action)
}

func TestNormalizeRecommendations_DefaultsUnknownValues(t *testing.T) {
	recs := normalizeRecommendations([]rawRecommendation{
		{Action: "  Ghișeu unic online ", Priority: "URGENT", Timeline: "", Effort: "Low"},
		{Action: ""},
		{Action: "a"}, {Action: "b"}, {Action: "c"},
	})

	require.Len(t, recs, 3)
	assert.Equal(t, Recommendation{Action: "Ghișeu unic online", Priority: "medium", Timeline: "short-term", Effort: "low"}, recs[0])
}

func TestFallbackRecommendations(t *testing.T) {
	out := features.Output{PriorityMatrix: []features.PriorityMatrixEntry{
		{Feature: "Plată online", Popularity: 100, Priority: features.PriorityHigh},
		{Feature: "Chat", Popularity: 20, Priority: features.PriorityLow},
	}}
	themes := []textanalysis.Theme{
		{Name: "Cozi lungi", Mentions: 7, Sentiment: -0.6},
		{Name: "Personal amabil", Mentions: 3, Sentiment: 0.7},
	}

	recs := FallbackRecommendations(out, themes)

	require.Len(t, recs, 2)
	assert.Equal(t, "Implementați funcționalitatea „Plată online”", recs[0].Action)
	assert.Equal(t, "Investigați nemulțumirile legate de „Cozi lungi”", recs[1].Action)

	generic := FallbackRecommendations(features.Output{}, nil)
	require.Len(t, generic, 1)
	assert.Equal(t, "low", generic[0].Priority)
}

func TestFallbackSummary_FlagsSmallSamples(t *testing.T) {
	assert.Equal(t, "Analiză pentru funcționari publici cu 40 răspunsuri. Sentiment general: positive.",
		FallbackSummary("official", 40, textanalysis.SentimentPositive))
	assert.Contains(t, FallbackSummary("citizen", 5, textanalysis.SentimentNeutral), "sub pragul de 15")
}

func TestNarrate_UsesInsightsProfile(t *testing.T) {
	gateway := &llmtest.Scripted{Rules: []llmtest.Rule{{Content: `{"summary": "", "recommendations": []}`}}}

	summary, recs := narrate(context.Background(), gateway, holisticInput{
		surveyType:  "citizen",
		respondents: 20,
		label:       textanalysis.SentimentNeutral,
		themes:      []textanalysis.Theme{{Name: "Cozi lungi", Mentions: 4, Sentiment: -0.9}},
	})

	requests := gateway.Requests()
	require.Len(t, requests, 1)
	assert.Equal(t, llm.ProfileInsights, requests[0].Profile)
	assert.True(t, requests[0].JSONMode)
	assert.Contains(t, requests[0].UserPrompt, "Cozi lungi")
	assert.Equal(t, "Analiză pentru cetățeni cu 20 răspunsuri. Sentiment general: neutral.", summary)
	require.Len(t, recs, 1)
	assert.Equal(t, "Investigați nemulțumirile legate de „Cozi lungi”", recs[0].Action)
}

func TestNarrate_MalformedOutputFallsBack(t *testing.T) {
	gateway := &llmtest.Scripted{Rules: []llmtest.Rule{{Content: "nu este JSON"}}}

	summary, recs := narrate(context.Background(), gateway, holisticInput{surveyType: "citizen", respondents: 50, label: textanalysis.SentimentNeutral})

	assert.Equal(t, "Analiză pentru cetățeni cu 50 răspunsuri. Sentiment general: neutral.", summary)
	assert.NotEmpty(t, recs)
}
