package textanalysis

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/survey-analytics/engine/internal/llm"
	"github.com/survey-analytics/engine/internal/metrics"
	"github.com/survey-analytics/engine/pkg/logger"
	"github.com/survey-analytics/engine/pkg/utils"
)

const (
	maxKeyPhrases     = 15
	maxTopQuotes      = 5
	maxWordFrequency  = 20
	defaultMaxThemes  = 10
	defaultConfidence = 0.7

	// maxResponseTokens bounds the response block embedded in one prompt.
	maxResponseTokens = 12000

	emptySummary    = "Nu există răspunsuri text pentru această întrebare."
	fallbackSummary = "Analiza AI a eșuat. Verificați răspunsurile manual."
)

type Analyzer struct {
	gateway     llm.Completer
	concurrency int
}

func NewAnalyzer(gateway llm.Completer, concurrency int) *Analyzer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Analyzer{
		gateway:     gateway,
		concurrency: concurrency,
	}
}

// Analyze never fails: model errors produce a deterministic fallback.
func (a *Analyzer) Analyze(ctx context.Context, in Input) Output {
	responses := cleanResponses(in.Responses)
	if len(responses) == 0 {
		logger.Debug("No text responses to analyze", zap.String("question_id", in.QuestionID))
		return emptyOutput()
	}

	logger.Info("Analyzing text responses",
		zap.String("question_id", in.QuestionID),
		zap.Int("responses", len(responses)),
	)

	resp, err := a.gateway.Complete(ctx, llm.CompletionRequest{
		Profile:      llm.ProfileAnalysis,
		SystemPrompt: analysisSystemPrompt,
		UserPrompt:   analysisUserPrompt(in.QuestionText, in.RespondentType, responses),
		JSONMode:     true,
	})
	if err != nil {
		return a.fallback(in.QuestionID, responses, err)
	}

	var raw rawAnalysis
	if err := llm.DecodeJSON(resp.Content, &raw); err != nil {
		return a.fallback(in.QuestionID, responses, err)
	}

	out := raw.normalize()
	out.ResponseCount = len(responses)

	logger.Info("Text analysis complete",
		zap.String("question_id", in.QuestionID),
		zap.Int("themes", len(out.Themes)),
		zap.String("sentiment", string(out.Sentiment.Label)),
	)

	return out
}

// AnalyzeAll runs Analyze for every input concurrently. Results keep the
// order of inputs.
func (a *Analyzer) AnalyzeAll(ctx context.Context, inputs []Input) []Output {
	results := make([]Output, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, in := range inputs {
		g.Go(func() error {
			results[i] = a.Analyze(gctx, in)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (a *Analyzer) fallback(questionID string, responses []string, err error) Output {
	metrics.FallbacksUsed.WithLabelValues("text_analysis").Inc()
	logger.Warn("Text analysis failed, using fallback",
		zap.String("question_id", questionID),
		zap.Error(err),
	)

	return Output{
		Themes:        []Theme{},
		Sentiment:     NeutralSentiment(),
		KeyPhrases:    []string{},
		TopQuotes:     SelectTopQuotes(responses, maxTopQuotes),
		Summary:       fallbackSummary,
		WordFrequency: CalculateWordFrequency(responses, maxWordFrequency),
		ResponseCount: len(responses),
		Fallback:      true,
	}
}

func emptyOutput() Output {
	return Output{
		Themes:        []Theme{},
		Sentiment:     NeutralSentiment(),
		KeyPhrases:    []string{},
		TopQuotes:     []string{},
		Summary:       emptySummary,
		WordFrequency: []WordCount{},
	}
}

// DetectSentiment measures the combined sentiment of texts. Failures yield
// a neutral result with zero confidence.
func (a *Analyzer) DetectSentiment(ctx context.Context, texts ...string) SentimentAnalysis {
	cleaned := cleanResponses(texts)
	if len(cleaned) == 0 {
		return NeutralSentiment()
	}

	resp, err := a.gateway.Complete(ctx, llm.CompletionRequest{
		Profile:      llm.ProfileSummarization,
		SystemPrompt: sentimentSystemPrompt,
		UserPrompt:   "Text:\n" + llm.TruncateToTokenLimit(strings.Join(cleaned, "\n"), maxResponseTokens),
		JSONMode:     true,
	})
	if err != nil {
		logger.Warn("Sentiment detection failed", zap.Error(err))
		return NeutralSentiment()
	}

	var raw rawSentiment
	if err := llm.DecodeJSON(resp.Content, &raw); err != nil {
		logger.Warn("Sentiment detection returned malformed JSON", zap.Error(err))
		return NeutralSentiment()
	}
	return raw.normalize()
}

// CategorizeThemes groups texts into at most maxThemes themes. Failures
// yield an empty slice.
func (a *Analyzer) CategorizeThemes(ctx context.Context, texts []string, maxThemes int) []Theme {
	if maxThemes <= 0 {
		maxThemes = defaultMaxThemes
	}
	cleaned := cleanResponses(texts)
	if len(cleaned) == 0 {
		return []Theme{}
	}

	resp, err := a.gateway.Complete(ctx, llm.CompletionRequest{
		Profile:      llm.ProfileAnalysis,
		SystemPrompt: fmt.Sprintf(themesSystemPrompt, maxThemes),
		UserPrompt:   "Răspunsuri:\n" + llm.TruncateToTokenLimit(numbered(cleaned), maxResponseTokens),
		JSONMode:     true,
	})
	if err != nil {
		logger.Warn("Theme extraction failed", zap.Error(err))
		return []Theme{}
	}

	var raw []rawTheme
	if err := llm.DecodeList(resp.Content, "themes", &raw); err != nil {
		logger.Warn("Theme extraction returned malformed JSON", zap.Error(err))
		return []Theme{}
	}

	themes := normalizeThemes(raw)
	if len(themes) > maxThemes {
		themes = themes[:maxThemes]
	}
	return themes
}

// ExtractKeyPhrases returns at most maxPhrases verbatim phrases. Failures
// yield an empty slice.
func (a *Analyzer) ExtractKeyPhrases(ctx context.Context, texts []string, maxPhrases int) []string {
	if maxPhrases <= 0 {
		maxPhrases = maxKeyPhrases
	}
	cleaned := cleanResponses(texts)
	if len(cleaned) == 0 {
		return []string{}
	}

	resp, err := a.gateway.Complete(ctx, llm.CompletionRequest{
		Profile:      llm.ProfileSummarization,
		SystemPrompt: fmt.Sprintf(keyPhrasesSystemPrompt, maxPhrases),
		UserPrompt:   "Răspunsuri:\n" + llm.TruncateToTokenLimit(strings.Join(cleaned, "\n"), maxResponseTokens),
		JSONMode:     true,
	})
	if err != nil {
		logger.Warn("Key phrase extraction failed", zap.Error(err))
		return []string{}
	}

	var phrases []string
	if err := llm.DecodeList(resp.Content, "phrases", &phrases); err != nil {
		logger.Warn("Key phrase extraction returned malformed JSON", zap.Error(err))
		return []string{}
	}
	return truncateStrings(nonBlank(phrases), maxPhrases)
}

type rawTheme struct {
	Name      string   `json:"name"`
	Score     float64  `json:"score"`
	Mentions  int      `json:"mentions"`
	Keywords  []string `json:"keywords"`
	Sentiment float64  `json:"sentiment"`
}

type rawSentiment struct {
	Overall      *float64      `json:"overall"`
	Label        *string       `json:"label"`
	Distribution *Distribution `json:"distribution"`
	Confidence   *float64      `json:"confidence"`
}

type rawAnalysis struct {
	Themes        []rawTheme    `json:"themes"`
	Sentiment     *rawSentiment `json:"sentiment"`
	KeyPhrases    []string      `json:"keyPhrases"`
	TopQuotes     []string      `json:"topQuotes"`
	Summary       string        `json:"summary"`
	WordFrequency []WordCount   `json:"wordFrequency"`
}

func (r rawAnalysis) normalize() Output {
	sentiment := SentimentAnalysis{
		Label:        SentimentNeutral,
		Distribution: Distribution{Neutral: 100},
		Confidence:   defaultConfidence,
	}
	if r.Sentiment != nil {
		sentiment = r.Sentiment.normalize()
	}

	summary := strings.TrimSpace(r.Summary)
	if summary == "" {
		summary = "Analiză indisponibilă."
	}

	words := make([]WordCount, 0, len(r.WordFrequency))
	for _, w := range r.WordFrequency {
		if strings.TrimSpace(w.Word) == "" || w.Count < 0 {
			continue
		}
		words = append(words, w)
	}

	return Output{
		Themes:        normalizeThemes(r.Themes),
		Sentiment:     sentiment,
		KeyPhrases:    truncateStrings(nonBlank(r.KeyPhrases), maxKeyPhrases),
		TopQuotes:     truncateStrings(nonBlank(r.TopQuotes), maxTopQuotes),
		Summary:       summary,
		WordFrequency: truncateWords(words, maxWordFrequency),
	}
}

func (r rawSentiment) normalize() SentimentAnalysis {
	out := SentimentAnalysis{
		Label:      SentimentNeutral,
		Confidence: defaultConfidence,
	}
	if r.Overall != nil {
		out.Overall = utils.Clamp(*r.Overall, -1, 1)
	}
	if r.Label != nil {
		switch label := SentimentLabel(strings.ToLower(strings.TrimSpace(*r.Label))); label {
		case SentimentPositive, SentimentNegative, SentimentNeutral:
			out.Label = label
		}
	}
	if r.Confidence != nil {
		out.Confidence = utils.Clamp(*r.Confidence, 0, 1)
	}
	if r.Distribution != nil {
		out.Distribution = normalizeDistribution(*r.Distribution)
	} else {
		out.Distribution = Distribution{Neutral: 100}
	}
	return out
}

// normalizeDistribution rescales model percentages to sum to 100.
func normalizeDistribution(d Distribution) Distribution {
	p := math.Max(d.Positive, 0)
	n := math.Max(d.Neutral, 0)
	g := math.Max(d.Negative, 0)
	sum := p + n + g
	if sum == 0 {
		return Distribution{Neutral: 100}
	}
	if math.Abs(sum-100) <= 0.5 {
		return Distribution{Positive: p, Neutral: n, Negative: g}
	}

	p = utils.Round(p*100/sum, 1)
	g = utils.Round(g*100/sum, 1)
	n = utils.Round(100-p-g, 1)
	return Distribution{Positive: p, Neutral: n, Negative: g}
}

func normalizeThemes(raw []rawTheme) []Theme {
	themes := make([]Theme, 0, len(raw))
	for _, t := range raw {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			continue
		}
		mentions := t.Mentions
		if mentions < 0 {
			mentions = 0
		}
		themes = append(themes, Theme{
			Name:      name,
			Score:     utils.Clamp(t.Score, 0, 1),
			Mentions:  mentions,
			Keywords:  orderedSet(t.Keywords),
			Sentiment: utils.Clamp(t.Sentiment, -1, 1),
		})
	}
	return themes
}

func orderedSet(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
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

func truncateStrings(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}

func truncateWords(values []WordCount, n int) []WordCount {
	if len(values) > n {
		return values[:n]
	}
	return values
}
