package features

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/survey-analytics/engine/internal/llm"
	"github.com/survey-analytics/engine/internal/metrics"
	"github.com/survey-analytics/engine/pkg/logger"
	"github.com/survey-analytics/engine/pkg/utils"
)

const (
	maxImplicitFeatures = 15
	fallbackCategory    = "Toate funcționalitățile"
	otherCategory       = "Altele"
)

type Extractor struct {
	gateway     llm.Completer
	concurrency int
}

func NewExtractor(gateway llm.Completer, concurrency int) *Extractor {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Extractor{
		gateway:     gateway,
		concurrency: concurrency,
	}
}

// candidate is one source's view of a feature before merging.
type candidate struct {
	FeatureRequest
	implicit bool
}

// Extract tallies explicit selections, mines implicit requests from free
// text and merges both by canonical name. Questions whose implicit
// extraction fails are skipped.
func (e *Extractor) Extract(ctx context.Context, in Input) Output {
	logger.Info("Extracting features",
		zap.String("respondent_type", in.RespondentType),
		zap.Int("choice_questions", len(in.MultipleChoice)),
		zap.Int("text_questions", len(in.TextResponses)),
	)

	candidates := explicitCandidates(in.RespondentType, in.MultipleChoice)
	candidates = append(candidates, e.implicitCandidates(ctx, in.RespondentType, in.TextResponses)...)

	merged := merge(candidates)
	out := Output{
		Features:       merged,
		PriorityMatrix: CalculatePriorityMatrix(merged),
	}

	logger.Info("Feature extraction complete",
		zap.String("respondent_type", in.RespondentType),
		zap.Int("features", len(out.Features)),
	)
	return out
}

func explicitCandidates(respondentType string, questions []ChoiceData) []candidate {
	var out []candidate
	for _, q := range questions {
		counts := make(map[string]int)
		var order []string
		for _, option := range q.SelectedOptions {
			option = strings.TrimSpace(option)
			if option == "" {
				continue
			}
			if _, ok := counts[option]; !ok {
				order = append(order, option)
			}
			counts[option]++
		}

		for _, option := range order {
			out = append(out, candidate{FeatureRequest: FeatureRequest{
				Feature:          option,
				Description:      fmt.Sprintf("Funcționalitate selectată de %s: %s", selectorName(respondentType), option),
				Priority:         shareTier(counts[option], q.RespondentCount),
				Count:            counts[option],
				RelatedQuestions: []string{q.QuestionID},
			}})
		}
	}
	return out
}

func selectorName(respondentType string) string {
	if respondentType == "official" {
		return "funcționari"
	}
	return "cetățeni"
}

func shareTier(count, respondents int) Priority {
	if respondents <= 0 {
		return PriorityMedium
	}
	share := 100 * float64(count) / float64(respondents)
	switch {
	case share >= 50:
		return PriorityHigh
	case share >= 20:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

type rawFeature struct {
	Feature          string   `json:"feature"`
	Description      string   `json:"description"`
	Priority         string   `json:"priority"`
	Mentions         *int     `json:"mentions"`
	Sentiment        *float64 `json:"sentiment"`
	RelatedQuestions []string `json:"relatedQuestions"`
}

func (e *Extractor) implicitCandidates(ctx context.Context, respondentType string, questions []TextData) []candidate {
	results := make([][]candidate, len(questions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, q := range questions {
		responses := nonBlank(q.Responses)
		if len(responses) == 0 {
			continue
		}
		g.Go(func() error {
			results[i] = e.implicitForQuestion(gctx, respondentType, q.QuestionID, responses)
			return nil
		})
	}
	_ = g.Wait()

	var out []candidate
	for _, r := range results {
		out = append(out, r...)
	}
	return out
}

func (e *Extractor) implicitForQuestion(ctx context.Context, respondentType, questionID string, responses []string) []candidate {
	resp, err := e.gateway.Complete(ctx, llm.CompletionRequest{
		Profile:      llm.ProfileAnalysis,
		SystemPrompt: fmt.Sprintf(implicitSystemPrompt, populationName(respondentType), maxImplicitFeatures),
		UserPrompt:   implicitUserPrompt(questionID, responses),
		JSONMode:     true,
	})
	if err == nil {
		var raw []rawFeature
		if err = llm.DecodeList(resp.Content, "features", &raw); err == nil {
			return normalizeImplicit(raw, questionID)
		}
	}

	metrics.FallbacksUsed.WithLabelValues("implicit_features").Inc()
	logger.Warn("Implicit feature extraction failed, skipping question",
		zap.String("question_id", questionID),
		zap.Error(err),
	)
	return nil
}

func normalizeImplicit(raw []rawFeature, questionID string) []candidate {
	out := make([]candidate, 0, len(raw))
	for _, f := range raw {
		name := strings.TrimSpace(f.Feature)
		if name == "" {
			continue
		}

		mentions := 1
		if f.Mentions != nil && *f.Mentions > 0 {
			mentions = *f.Mentions
		}
		sentiment := 0.0
		if f.Sentiment != nil {
			sentiment = utils.Clamp(*f.Sentiment, -1, 1)
		}
		related := nonBlank(f.RelatedQuestions)
		if len(related) == 0 {
			related = []string{questionID}
		}

		out = append(out, candidate{
			FeatureRequest: FeatureRequest{
				Feature:          name,
				Description:      strings.TrimSpace(f.Description),
				Priority:         ParsePriority(f.Priority),
				Count:            mentions,
				Sentiment:        sentiment,
				RelatedQuestions: related,
			},
			implicit: true,
		})
		if len(out) == maxImplicitFeatures {
			break
		}
	}
	return out
}

// merge folds candidates sharing a canonical name into one feature: counts
// are summed, related questions unioned in first-seen order, the higher
// priority kept and sentiment averaged over implicit sources. The first
// spelling wins. Output is sorted by count desc, then name.
func merge(candidates []candidate) []FeatureRequest {
	type acc struct {
		req          FeatureRequest
		implicitDesc bool
		sentimentSum float64
		sentimentN   int
	}

	byKey := make(map[string]*acc)
	var order []string
	for _, c := range candidates {
		key := utils.CanonicalKey(c.Feature)
		if key == "" {
			continue
		}

		a, ok := byKey[key]
		if !ok {
			a = &acc{req: c.FeatureRequest, implicitDesc: c.implicit}
			a.req.RelatedQuestions = unionStrings(nil, c.RelatedQuestions)
			if c.implicit {
				a.sentimentSum, a.sentimentN = c.Sentiment, 1
			}
			byKey[key] = a
			order = append(order, key)
			continue
		}

		a.req.Count += c.Count
		a.req.Priority = higher(a.req.Priority, c.Priority)
		a.req.RelatedQuestions = unionStrings(a.req.RelatedQuestions, c.RelatedQuestions)
		if preferDescription(a.req.Description, a.implicitDesc, c.Description, c.implicit) {
			a.req.Description = c.Description
			a.implicitDesc = c.implicit
		}
		if c.implicit {
			a.sentimentSum += c.Sentiment
			a.sentimentN++
		}
	}

	out := make([]FeatureRequest, 0, len(order))
	for _, key := range order {
		a := byKey[key]
		if a.sentimentN > 0 {
			a.req.Sentiment = utils.Clamp(a.sentimentSum/float64(a.sentimentN), -1, 1)
		}
		out = append(out, a.req)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Feature < out[j].Feature
	})
	return out
}

func preferDescription(current string, currentImplicit bool, next string, nextImplicit bool) bool {
	if next == "" {
		return false
	}
	if currentImplicit != nextImplicit {
		return nextImplicit
	}
	return len([]rune(next)) > len([]rune(current))
}

func unionStrings(base, add []string) []string {
	seen := make(map[string]struct{}, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, list := range [][]string{base, add} {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
