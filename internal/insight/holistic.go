package insight

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/survey-analytics/engine/internal/features"
	"github.com/survey-analytics/engine/internal/llm"
	"github.com/survey-analytics/engine/internal/metrics"
	"github.com/survey-analytics/engine/internal/textanalysis"
	"github.com/survey-analytics/engine/pkg/logger"
	"github.com/survey-analytics/engine/pkg/utils"
)

const (
	maxKeyThemes         = 10
	maxFeatureRequests   = 10
	maxModelRecommends   = 4
	maxRecommendations   = 10
	maxFallbackRecommend = 5
	dedupPrefixLength    = 50

	// MinValidSample is the smallest sample treated as research-grade.
	MinValidSample = 15
)

// ConfidenceFor maps a sample size to a confidence score.
func ConfidenceFor(sampleSize int) float64 {
	switch {
	case sampleSize >= 100:
		return 0.95
	case sampleSize >= 50:
		return 0.85
	case sampleSize >= 30:
		return 0.75
	case sampleSize >= MinValidSample:
		return 0.6
	default:
		return 0.5
	}
}

// MergeThemes combines themes from several questions by canonical name:
// mentions are summed, the highest score is kept and sentiment is averaged
// weighted by mentions. The n most mentioned themes are returned.
func MergeThemes(outputs []textanalysis.Output, n int) []textanalysis.Theme {
	type acc struct {
		theme    textanalysis.Theme
		weighted float64
		weight   float64
	}

	var order []string
	merged := make(map[string]*acc)
	for _, out := range outputs {
		for _, t := range out.Themes {
			key := utils.CanonicalKey(t.Name)
			if key == "" {
				continue
			}
			weight := float64(max(t.Mentions, 1))

			a, ok := merged[key]
			if !ok {
				a = &acc{theme: textanalysis.Theme{Name: t.Name, Keywords: []string{}}}
				merged[key] = a
				order = append(order, key)
			}
			a.theme.Mentions += t.Mentions
			a.theme.Score = max(a.theme.Score, t.Score)
			a.theme.Keywords = appendKeywords(a.theme.Keywords, t.Keywords)
			a.weighted += t.Sentiment * weight
			a.weight += weight
		}
	}

	themes := make([]textanalysis.Theme, 0, len(order))
	for _, key := range order {
		a := merged[key]
		if a.weight > 0 {
			a.theme.Sentiment = utils.Round(utils.Clamp(a.weighted/a.weight, -1, 1), 2)
		}
		themes = append(themes, a.theme)
	}

	slices.SortStableFunc(themes, func(a, b textanalysis.Theme) int {
		if a.Mentions != b.Mentions {
			return b.Mentions - a.Mentions
		}
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})

	if len(themes) > n {
		themes = themes[:n]
	}
	return themes
}

func appendKeywords(base, add []string) []string {
	for _, k := range add {
		if !slices.ContainsFunc(base, func(existing string) bool { return strings.EqualFold(existing, k) }) {
			base = append(base, k)
		}
	}
	return base
}

// WeightedSentiment averages question sentiments weighted by the number of
// responses behind each. Questions without responses do not count.
func WeightedSentiment(outputs []textanalysis.Output) float64 {
	var sum, weight float64
	for _, out := range outputs {
		if out.ResponseCount == 0 {
			continue
		}
		sum += out.Sentiment.Overall * float64(out.ResponseCount)
		weight += float64(out.ResponseCount)
	}
	if weight == 0 {
		return 0
	}
	return utils.Round(utils.Clamp(sum/weight, -1, 1), 2)
}

// MeanSentiment is the unweighted mean over questions that had responses.
func MeanSentiment(outputs []textanalysis.Output) float64 {
	var sum float64
	n := 0
	for _, out := range outputs {
		if out.ResponseCount == 0 {
			continue
		}
		sum += out.Sentiment.Overall
		n++
	}
	if n == 0 {
		return 0
	}
	return utils.Round(sum/float64(n), 2)
}

// featureNames lists the top n features by priority tier, then count.
func featureNames(fs []features.FeatureRequest, n int) []string {
	top := features.TopFeatures(fs, n)
	names := make([]string, len(top))
	for i, f := range top {
		names[i] = f.Feature
	}
	return names
}

type holisticInput struct {
	surveyType  string
	respondents int
	questions   int
	themes      []textanalysis.Theme
	sentiment   float64
	label       textanalysis.SentimentLabel
	features    features.Output
}

type rawRecommendation struct {
	Action    string `json:"action"`
	Priority  string `json:"priority"`
	Impact    string `json:"impact"`
	Timeline  string `json:"timeline"`
	Effort    string `json:"effort"`
	Reasoning string `json:"reasoning"`
}

type rawHolistic struct {
	Summary         string              `json:"summary"`
	Recommendations []rawRecommendation `json:"recommendations"`
}

// narrate asks the insights profile for the summary and recommendations.
// Either part falls back to a deterministic value when missing.
func narrate(ctx context.Context, gateway llm.Completer, in holisticInput) (string, []Recommendation) {
	resp, err := gateway.Complete(ctx, llm.CompletionRequest{
		Profile:      llm.ProfileInsights,
		SystemPrompt: holisticSystemPrompt,
		UserPrompt:   holisticUserPrompt(in.surveyType, in.respondents, in.questions, in.themes, in.sentiment, in.label, in.features.PriorityMatrix),
		JSONMode:     true,
	})
	if err != nil {
		metrics.FallbacksUsed.WithLabelValues("holistic_insight").Inc()
		logger.Warn("Holistic narrative failed, using fallback",
			zap.String("survey_type", in.surveyType),
			zap.Error(err),
		)
		return FallbackSummary(in.surveyType, in.respondents, in.label), PrioritizeRecommendations(FallbackRecommendations(in.features, in.themes))
	}

	var raw rawHolistic
	if err := llm.DecodeJSON(resp.Content, &raw); err != nil {
		metrics.FallbacksUsed.WithLabelValues("holistic_insight").Inc()
		logger.Warn("Holistic narrative returned malformed JSON", zap.Error(err))
		return FallbackSummary(in.surveyType, in.respondents, in.label), PrioritizeRecommendations(FallbackRecommendations(in.features, in.themes))
	}

	summary := strings.TrimSpace(raw.Summary)
	if summary == "" {
		summary = FallbackSummary(in.surveyType, in.respondents, in.label)
	}

	recs := normalizeRecommendations(raw.Recommendations)
	if len(recs) == 0 {
		recs = FallbackRecommendations(in.features, in.themes)
	}
	return summary, PrioritizeRecommendations(recs)
}

func normalizeRecommendations(raw []rawRecommendation) []Recommendation {
	if len(raw) > maxModelRecommends {
		raw = raw[:maxModelRecommends]
	}
	out := make([]Recommendation, 0, len(raw))
	for _, r := range raw {
		action := strings.TrimSpace(r.Action)
		if action == "" {
			continue
		}
		out = append(out, Recommendation{
			Action:    action,
			Priority:  oneOf(r.Priority, "medium", "high", "medium", "low"),
			Impact:    strings.TrimSpace(r.Impact),
			Timeline:  oneOf(r.Timeline, "short-term", "quick-win", "short-term", "long-term"),
			Effort:    oneOf(r.Effort, "medium", "low", "medium", "high"),
			Reasoning: strings.TrimSpace(r.Reasoning),
		})
	}
	return out
}

func oneOf(value, fallback string, allowed ...string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if slices.Contains(allowed, value) {
		return value
	}
	return fallback
}

func recommendationScore(r Recommendation) int {
	score := 0
	switch r.Priority {
	case "high":
		score += 30
	case "medium":
		score += 20
	default:
		score += 10
	}
	switch r.Timeline {
	case "quick-win":
		score += 20
	case "short-term":
		score += 15
	default:
		score += 10
	}
	switch r.Effort {
	case "low":
		score += 20
	case "medium":
		score += 10
	default:
		score += 5
	}
	return score
}

// PrioritizeRecommendations drops near-duplicate actions and orders the rest
// by priority, timeline and effort.
func PrioritizeRecommendations(recs []Recommendation) []Recommendation {
	seen := make(map[string]struct{}, len(recs))
	unique := make([]Recommendation, 0, len(recs))
	for _, r := range recs {
		key := strings.ToLower(r.Action)
		if runes := []rune(key); len(runes) > dedupPrefixLength {
			key = string(runes[:dedupPrefixLength])
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, r)
	}

	slices.SortStableFunc(unique, func(a, b Recommendation) int {
		return recommendationScore(b) - recommendationScore(a)
	})
	if len(unique) > maxRecommendations {
		unique = unique[:maxRecommendations]
	}
	return unique
}

// FallbackRecommendations derives actions from high-priority features and
// negative themes.
func FallbackRecommendations(out features.Output, themes []textanalysis.Theme) []Recommendation {
	var recs []Recommendation
	for _, f := range out.PriorityMatrix {
		if f.Priority != features.PriorityHigh {
			continue
		}
		recs = append(recs, Recommendation{
			Action:    fmt.Sprintf("Implementați funcționalitatea „%s”", f.Feature),
			Priority:  "high",
			Impact:    fmt.Sprintf("Răspunde cererii cu popularitate %.0f%%.", f.Popularity),
			Timeline:  "short-term",
			Effort:    "medium",
			Reasoning: "Funcționalitate cu prioritate ridicată în matricea de prioritizare.",
		})
	}
	for _, t := range themes {
		if t.Sentiment >= -0.3 {
			continue
		}
		recs = append(recs, Recommendation{
			Action:    fmt.Sprintf("Investigați nemulțumirile legate de „%s”", t.Name),
			Priority:  "medium",
			Impact:    fmt.Sprintf("Tema apare de %d ori cu sentiment negativ.", t.Mentions),
			Timeline:  "quick-win",
			Effort:    "low",
			Reasoning: "Temele negative recurente indică probleme de serviciu.",
		})
	}
	if len(recs) == 0 {
		recs = append(recs, Recommendation{
			Action:    "Continuați colectarea de feedback pentru a identifica priorități clare",
			Priority:  "low",
			Timeline:  "short-term",
			Effort:    "low",
			Reasoning: "Datele actuale nu evidențiază o prioritate dominantă.",
		})
	}
	if len(recs) > maxFallbackRecommend {
		recs = recs[:maxFallbackRecommend]
	}
	return recs
}

func FallbackSummary(surveyType string, respondents int, label textanalysis.SentimentLabel) string {
	summary := fmt.Sprintf("Analiză pentru %s cu %d răspunsuri. Sentiment general: %s.", populationLabel(surveyType), respondents, label)
	if respondents < MinValidSample {
		summary += fmt.Sprintf(" Eșantion sub pragul de %d răspunsuri, rezultatele sunt orientative.", MinValidSample)
	}
	return summary
}

func populationLabel(surveyType string) string {
	switch surveyType {
	case "citizen":
		return "cetățeni"
	case "official":
		return "funcționari publici"
	default:
		return surveyType
	}
}

func actions(recs []Recommendation) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Action
	}
	return out
}
