package features

import (
	"context"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/survey-analytics/engine/internal/llm"
	"github.com/survey-analytics/engine/internal/metrics"
	"github.com/survey-analytics/engine/pkg/logger"
	"github.com/survey-analytics/engine/pkg/utils"
)

var tierScores = map[Priority]float64{
	PriorityHigh:   80,
	PriorityMedium: 50,
	PriorityLow:    30,
}

// CalculatePriorityMatrix scores every feature. Popularity is relative to
// the most requested feature. Effort is not modelled separately; ROI divides
// popularity by an effort estimate derived from importance.
func CalculatePriorityMatrix(features []FeatureRequest) []PriorityMatrixEntry {
	if len(features) == 0 {
		return []PriorityMatrixEntry{}
	}

	maxCount := 0
	for _, f := range features {
		if f.Count > maxCount {
			maxCount = f.Count
		}
	}

	out := make([]PriorityMatrixEntry, len(features))
	for i, f := range features {
		popularity := 0.0
		if maxCount > 0 {
			popularity = utils.Clamp(100*float64(f.Count)/float64(maxCount), 0, 100)
		}
		sentiment := utils.Clamp(f.Sentiment, -1, 1)
		importance := aiImportance(f.Priority, sentiment, popularity)

		out[i] = PriorityMatrixEntry{
			Feature:      f.Feature,
			Popularity:   utils.Round(popularity, 1),
			AIImportance: utils.Round(importance, 1),
			Sentiment:    utils.Round(sentiment, 2),
			Priority:     finalPriority(popularity, importance, sentiment),
			ROI:          utils.Round(roi(popularity, sentiment, importance), 2),
		}
	}
	return out
}

func aiImportance(p Priority, sentiment, popularity float64) float64 {
	base, ok := tierScores[p]
	if !ok {
		base = tierScores[PriorityMedium]
	}
	return utils.Clamp(base+sentiment*20+math.Min(popularity*0.3, 30), 0, 100)
}

// finalPriority demotes strongly disliked features by at least one tier.
func finalPriority(popularity, importance, sentiment float64) Priority {
	score := (popularity + importance) / 2
	if sentiment < -0.3 {
		if score > 60 {
			return PriorityMedium
		}
		return PriorityLow
	}
	switch {
	case score >= 60:
		return PriorityHigh
	case score >= 30:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

func roi(popularity, sentiment, importance float64) float64 {
	effort := 1 + 9*importance/100
	multiplier := 1 + 0.5*sentiment
	if sentiment < 0 {
		multiplier = 0.5 + 0.5*sentiment
	}
	return utils.Clamp(popularity*multiplier/effort/10, 0, 10)
}

// TopFeatures returns the first n features by tier, then count. The input
// is not reordered.
func TopFeatures(features []FeatureRequest, n int) []FeatureRequest {
	sorted := make([]FeatureRequest, len(features))
	copy(sorted, features)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := sorted[i].Priority.Rank(), sorted[j].Priority.Rank()
		if ri != rj {
			return ri > rj
		}
		return sorted[i].Count > sorted[j].Count
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// CategorizeFeatures groups feature names with one model call. Empty
// buckets are dropped and features the model left out land in "Altele". On
// failure every feature goes into a single bucket.
func (e *Extractor) CategorizeFeatures(ctx context.Context, features []FeatureRequest) []Category {
	if len(features) == 0 {
		return []Category{}
	}

	names := make([]string, len(features))
	for i, f := range features {
		names[i] = f.Feature
	}

	resp, err := e.gateway.Complete(ctx, llm.CompletionRequest{
		Profile:      llm.ProfileSummarization,
		SystemPrompt: categorizeSystemPrompt,
		UserPrompt:   categorizeUserPrompt(names),
		JSONMode:     true,
	})
	if err == nil {
		var raw []Category
		if err = llm.DecodeList(resp.Content, "categories", &raw); err == nil {
			return assignCategories(raw, names)
		}
	}

	metrics.FallbacksUsed.WithLabelValues("feature_categorization").Inc()
	logger.Warn("Feature categorization failed, using single bucket", zap.Error(err))
	return []Category{{Name: fallbackCategory, Features: names}}
}

// assignCategories maps model buckets back to known names. Each feature is
// placed in the first bucket naming it.
func assignCategories(raw []Category, names []string) []Category {
	byKey := make(map[string]string, len(names))
	for _, n := range names {
		byKey[utils.CanonicalKey(n)] = n
	}

	placed := make(map[string]bool, len(names))
	out := make([]Category, 0, len(raw)+1)
	for _, c := range raw {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			name = otherCategory
		}
		var members []string
		for _, f := range c.Features {
			known, ok := byKey[utils.CanonicalKey(f)]
			if !ok || placed[known] {
				continue
			}
			placed[known] = true
			members = append(members, known)
		}
		if len(members) > 0 {
			out = append(out, Category{Name: name, Features: members})
		}
	}

	var rest []string
	for _, n := range names {
		if !placed[n] {
			rest = append(rest, n)
		}
	}
	if len(rest) > 0 {
		out = appendToCategory(out, otherCategory, rest)
	}
	return out
}

func appendToCategory(categories []Category, name string, features []string) []Category {
	for i := range categories {
		if categories[i].Name == name {
			categories[i].Features = append(categories[i].Features, features...)
			return categories
		}
	}
	return append(categories, Category{Name: name, Features: features})
}
