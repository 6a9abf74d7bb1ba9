package demographics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/survey-analytics/engine/internal/llm"
	"github.com/survey-analytics/engine/internal/metrics"
	"github.com/survey-analytics/engine/internal/storage/models"
	"github.com/survey-analytics/engine/pkg/logger"
	"github.com/survey-analytics/engine/pkg/utils"
)

const (
	maxAgeFeaturePairs = 50
	minJointSample     = 3
)

// CandidatePairs are the variable pairs tested for correlation.
var CandidatePairs = [][2]Variable{
	{VarAgeCategory, VarDigitalReadiness},
	{VarFrequency, VarUsefulness},
	{VarCounty, VarDigitalReadiness},
	{VarAgeCategory, VarSecurity},
}

type Analyzer struct {
	gateway   llm.Completer
	questions QuestionMap
}

func NewAnalyzer(gateway llm.Completer, questions QuestionMap) *Analyzer {
	return &Analyzer{
		gateway:   gateway,
		questions: questions,
	}
}

// Analyze computes distributions, cross tabulations and correlations. Only
// the correlation interpretations use the gateway, and their failures fall
// back to templates.
func (a *Analyzer) Analyze(ctx context.Context, respondents []models.Respondent, responses []models.Response) Output {
	enc := NewEncoder(a.questions, respondents, responses)

	out := Output{
		AgeDistribution:  AgeDistribution(respondents),
		GeographicSpread: GeographicSpread(respondents, responses),
		CrossTabs: CrossTabs{
			AgeXFeatures:         a.ageXFeatures(enc),
			LocationXReadiness:   a.locationXReadiness(enc),
			FrequencyXUsefulness: a.frequencyXUsefulness(enc),
		},
	}
	out.Correlations = a.correlations(ctx, enc)

	logger.Info("Demographic analysis complete",
		zap.Int("respondents", len(respondents)),
		zap.Int("age_buckets", len(out.AgeDistribution)),
		zap.Int("counties", len(out.GeographicSpread)),
		zap.Int("correlations", len(out.Correlations)),
	)

	return out
}

// AgeDistribution buckets respondents by age category. Known categories
// follow AgeOrder, other categories follow alphabetically and the unknown
// bucket comes last.
func AgeDistribution(respondents []models.Respondent) []AgeBucket {
	counts := make(map[string]int)
	for _, r := range respondents {
		category := strings.TrimSpace(r.AgeCategory)
		if category == "" {
			category = models.UnknownAgeCategory
		}
		counts[category]++
	}

	categories := make([]string, 0, len(counts))
	for c := range counts {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool {
		return ageLess(categories[i], categories[j])
	})

	values := make([]int, len(categories))
	for i, c := range categories {
		values[i] = counts[c]
	}
	percentages := utils.Percentages(values)

	buckets := make([]AgeBucket, len(categories))
	for i, c := range categories {
		buckets[i] = AgeBucket{Category: c, Count: values[i], Percentage: percentages[i]}
	}
	return buckets
}

func ageLess(a, b string) bool {
	ra, aKnown := AgeRank(a)
	rb, bKnown := AgeRank(b)
	switch {
	case aKnown && bKnown:
		return ra < rb
	case aKnown != bKnown:
		return aKnown
	}
	aUnknown := a == models.UnknownAgeCategory
	bUnknown := b == models.UnknownAgeCategory
	if aUnknown != bUnknown {
		return bUnknown
	}
	return a < b
}

// GeographicSpread summarizes respondents per county, with a sentiment
// proxy of (rating-3)/2 averaged over the county's rating answers.
func GeographicSpread(respondents []models.Respondent, responses []models.Response) []CountySpread {
	type acc struct {
		respondents map[string]struct{}
		localities  map[string]struct{}
		sentiments  []float64
	}

	countyOf := make(map[string]string, len(respondents))
	byCounty := make(map[string]*acc)
	for _, r := range respondents {
		county := strings.TrimSpace(r.County)
		if county == "" {
			county = models.Unknown
		}
		countyOf[r.ID] = county

		a, ok := byCounty[county]
		if !ok {
			a = &acc{respondents: map[string]struct{}{}, localities: map[string]struct{}{}}
			byCounty[county] = a
		}
		a.respondents[r.ID] = struct{}{}
		if locality := strings.TrimSpace(r.Locality); locality != "" {
			a.localities[locality] = struct{}{}
		}
	}

	for _, resp := range responses {
		if !resp.HasRating() {
			continue
		}
		county, ok := countyOf[resp.RespondentID]
		if !ok {
			continue
		}
		proxy := utils.Clamp((float64(*resp.AnswerRating)-3)/2, -1, 1)
		byCounty[county].sentiments = append(byCounty[county].sentiments, proxy)
	}

	spread := make([]CountySpread, 0, len(byCounty))
	for county, a := range byCounty {
		entry := CountySpread{
			County:     county,
			Localities: len(a.localities),
			Responses:  len(a.respondents),
		}
		if len(a.sentiments) > 0 {
			s := utils.Clamp(utils.Round(mean(a.sentiments), 2), -1, 1)
			entry.Sentiment = &s
		}
		spread = append(spread, entry)
	}

	sort.Slice(spread, func(i, j int) bool {
		if spread[i].Responses != spread[j].Responses {
			return spread[i].Responses > spread[j].Responses
		}
		return spread[i].County < spread[j].County
	})
	return spread
}

func (a *Analyzer) ageXFeatures(enc *Encoder) []AgeFeature {
	type key struct{ age, feature string }
	counts := make(map[key]int)

	for _, r := range enc.Respondents() {
		age := strings.TrimSpace(r.AgeCategory)
		if age == "" {
			continue
		}
		for _, qid := range a.questions.Features {
			resp, ok := enc.Answer(r.ID, qid)
			if !ok {
				continue
			}
			for _, choice := range resp.AnswerChoices {
				choice = strings.TrimSpace(choice)
				if choice == "" {
					continue
				}
				counts[key{age, choice}]++
			}
		}
	}

	pairs := make([]AgeFeature, 0, len(counts))
	for k, c := range counts {
		pairs = append(pairs, AgeFeature{Age: k.age, Feature: k.feature, Count: c})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Count != pairs[j].Count {
			return pairs[i].Count > pairs[j].Count
		}
		if pairs[i].Age != pairs[j].Age {
			return ageLess(pairs[i].Age, pairs[j].Age)
		}
		return pairs[i].Feature < pairs[j].Feature
	})

	if len(pairs) > maxAgeFeaturePairs {
		pairs = pairs[:maxAgeFeaturePairs]
	}
	return pairs
}

func (a *Analyzer) locationXReadiness(enc *Encoder) []LocationReadiness {
	type key struct{ county, locality string }
	ratings := make(map[key][]float64)

	for _, r := range enc.Respondents() {
		locality := strings.TrimSpace(r.Locality)
		if locality == "" {
			continue
		}
		rating, ok := enc.Rating(r.ID, a.questions.Readiness...)
		if !ok {
			continue
		}
		k := key{strings.TrimSpace(r.County), locality}
		ratings[k] = append(ratings[k], float64(rating))
	}

	out := make([]LocationReadiness, 0, len(ratings))
	for k, values := range ratings {
		out = append(out, LocationReadiness{
			County:         k.county,
			Locality:       k.locality,
			ReadinessScore: utils.Round(utils.Clamp(mean(values), 1, 5), 2),
			Responses:      len(values),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReadinessScore != out[j].ReadinessScore {
			return out[i].ReadinessScore > out[j].ReadinessScore
		}
		if out[i].Locality != out[j].Locality {
			return out[i].Locality < out[j].Locality
		}
		return out[i].County < out[j].County
	})
	return out
}

func (a *Analyzer) frequencyXUsefulness(enc *Encoder) []FrequencyUsefulness {
	ratings := make(map[string][]float64)
	for _, r := range enc.Respondents() {
		answer, ok := enc.FrequencyAnswer(r.ID)
		if !ok {
			continue
		}
		label, ok := FrequencyLabel(answer)
		if !ok {
			continue
		}
		rating, ok := enc.Rating(r.ID, a.questions.Usefulness)
		if !ok {
			continue
		}
		ratings[label] = append(ratings[label], float64(rating))
	}

	out := make([]FrequencyUsefulness, 0, len(ratings))
	for _, label := range FrequencyOrder {
		values, ok := ratings[label]
		if !ok {
			continue
		}
		out = append(out, FrequencyUsefulness{
			Frequency: label,
			AvgRating: utils.Round(mean(values), 1),
			Responses: len(values),
		})
	}
	return out
}

func (a *Analyzer) correlations(ctx context.Context, enc *Encoder) []Correlation {
	out := make([]Correlation, 0, len(CandidatePairs))
	for _, pair := range CandidatePairs {
		c, ok := Correlate(enc, pair[0], pair[1])
		if !ok {
			continue
		}
		c.Interpretation = a.interpret(ctx, c)
		out = append(out, c)
	}
	return out
}

// Correlate computes the Pearson coefficient and approximate p-value of v1
// and v2. It reports false when fewer than three joint observations exist.
func Correlate(enc *Encoder, v1, v2 Variable) (Correlation, bool) {
	xs, ys := enc.Pairs(v1, v2)
	if len(xs) < minJointSample {
		return Correlation{}, false
	}

	r := utils.Round(Pearson(xs, ys), 2)
	p := utils.Round(ApproximatePValue(r, len(xs)), 3)
	return Correlation{
		Variable1:   string(v1),
		Variable2:   string(v2),
		Coefficient: r,
		PValue:      p,
		Significant: p < SignificanceLevel,
		SampleSize:  len(xs),
	}, true
}

func (a *Analyzer) interpret(ctx context.Context, c Correlation) string {
	if a.gateway == nil {
		return FallbackInterpretation(c)
	}

	resp, err := a.gateway.Complete(ctx, llm.CompletionRequest{
		Profile:      llm.ProfileSummarization,
		SystemPrompt: interpretationSystemPrompt,
		UserPrompt:   interpretationUserPrompt(c),
		JSONMode:     true,
	})
	if err == nil {
		var text string
		if text, err = decodeInterpretation(resp.Content); err == nil {
			return text
		}
	}

	metrics.FallbacksUsed.WithLabelValues("correlation_interpretation").Inc()
	logger.Warn("Correlation interpretation failed, using template",
		zap.String("variable1", c.Variable1),
		zap.String("variable2", c.Variable2),
		zap.Error(err),
	)
	return FallbackInterpretation(c)
}

func decodeInterpretation(content string) (string, error) {
	var parsed struct {
		Interpretation string `json:"interpretation"`
	}
	if err := llm.DecodeJSON(content, &parsed); err != nil {
		return "", err
	}
	text := strings.TrimSpace(parsed.Interpretation)
	if text == "" {
		return "", errors.New("empty interpretation")
	}
	return text, nil
}

// FallbackInterpretation describes c from its sign and magnitude.
func FallbackInterpretation(c Correlation) string {
	strength := "slabă"
	switch abs := math.Abs(c.Coefficient); {
	case abs > 0.7:
		strength = "puternică"
	case abs > 0.4:
		strength = "moderată"
	}

	direction := "negativă"
	if c.Coefficient > 0 {
		direction = "pozitivă"
	}

	text := fmt.Sprintf("Corelație %s %s între %s și %s",
		strength, direction, Variable(c.Variable1).Label(), Variable(c.Variable2).Label())
	if c.Significant {
		text += " (semnificativ statistic)"
	}
	return text + "."
}
