package insight

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/survey-analytics/engine/internal/cohort"
	"github.com/survey-analytics/engine/internal/correlation"
	"github.com/survey-analytics/engine/internal/demographics"
	"github.com/survey-analytics/engine/internal/llm"
	"github.com/survey-analytics/engine/internal/llm/llmtest"
	"github.com/survey-analytics/engine/internal/storage/models"
	"github.com/survey-analytics/engine/internal/storage/models/modelstest"
	"github.com/survey-analytics/engine/internal/textanalysis"
	"github.com/survey-analytics/engine/pkg/retry"
)

const (
	textFixture = `{
		"themes": [{"name": "Plăți online", "score": 0.8, "mentions": 30, "keywords": ["plată"], "sentiment": 0.4}],
		"sentiment": {"overall": 0.4, "label": "positive", "distribution": {"positive": 60, "neutral": 30, "negative": 10}, "confidence": 0.8},
		"keyPhrases": ["plată online"],
		"topQuotes": [],
		"summary": "Cetățenii cer plăți online.",
		"wordFrequency": [{"word": "plată", "count": 30}]
	}`
	featureFixture  = `{"features": [{"feature": "Plată online", "description": "Plata taxelor cu cardul", "priority": "high", "mentions": 10, "sentiment": 0.5}]}`
	holisticFixture = `{
		"summary": "Cetățenii susțin digitalizarea plăților.",
		"recommendations": [
			{"action": "Campanie de informare", "priority": "low", "timeline": "long-term", "effort": "high"},
			{"action": "Lansați plata online a taxelor", "priority": "high", "impact": "Mai puține cozi", "timeline": "quick-win", "effort": "low", "reasoning": "Cerere majoritară"}
		]
	}`
)

func scriptedGateway() *llmtest.Scripted {
	return &llmtest.Scripted{Rules: []llmtest.Rule{
		{Match: "Analizează răspunsurile text", Content: textFixture},
		{Match: "Identifică funcționalitățile", Content: featureFixture},
		{Match: "statistician", Content: `{"interpretation": "Corelație descrisă."}`},
		{Match: "consultant strategic", Content: holisticFixture},
	}}
}

// citizenSurvey has 50 citizens answering three questions each.
func citizenSurvey() *models.Dataset {
	counties := []string{"Cluj", "Iași", "Timiș"}
	b := modelstest.NewBuilder("citizen").
		Question("q5_suggestions", models.QuestionText, "Ce servicii ați dori online?").
		Question("q4_features", models.QuestionMultipleChoice, "Ce funcționalități doriți?").
		Question("q3_readiness", models.QuestionRating, "Cât de pregătit sunteți?")

	for i := range 50 {
		id := b.Respondent(models.Respondent{
			AgeCategory: demographics.AgeOrder[i%len(demographics.AgeOrder)],
			County:      counties[i%len(counties)],
			Locality:    fmt.Sprintf("Localitate %d", i%4),
		})
		b.Text(id, "q5_suggestions", fmt.Sprintf("Aș vrea să plătesc taxele online, răspuns numărul %d", i))
		b.Choices(id, "q4_features", "Plată online")
		b.Rating(id, "q3_readiness", i%5+1)
	}
	return b.Dataset()
}

type fakeSource struct {
	datasets map[string]*models.Dataset
	err      error
	loads    int
}

func (s *fakeSource) LoadSurvey(_ context.Context, surveyType string) (*models.Dataset, error) {
	s.loads++
	if s.err != nil {
		return nil, s.err
	}
	return s.datasets[surveyType], nil
}

type fakeStore struct {
	mu       sync.Mutex
	insights []*models.StoredInsight
	runs     []models.AnalysisRun
	failures int
}

func (s *fakeStore) SaveHolisticInsight(_ context.Context, insight *models.StoredInsight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("database is locked")
	}
	s.insights = append(s.insights, insight)
	return nil
}

func (s *fakeStore) RecordRun(_ context.Context, run *models.AnalysisRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, *run)
	return nil
}

type failingCorrelations struct{}

func (failingCorrelations) Analyze(context.Context, *models.Dataset) (*correlation.Report, error) {
	return nil, errors.New("correlation backend exploded")
}

type panickingCohorts struct{}

func (panickingCohorts) Analyze(context.Context, *models.Dataset) (*cohort.Report, error) {
	panic("index out of range")
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (*CacheEntry, error) {
	return nil, errors.New("connection refused")
}

func (brokenCache) Set(context.Context, string, *CacheEntry, time.Duration) error {
	return errors.New("connection refused")
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = fastRetry()
	}
	engine, err := NewEngine(cfg)
	require.NoError(t, err)
	return engine
}

func TestAnalyze_EndToEndSurvivesCorrelationFailure(t *testing.T) {
	gateway := scriptedGateway()
	store := &fakeStore{}
	engine := newTestEngine(t, Config{
		Gateway:      gateway,
		Source:       &fakeSource{datasets: map[string]*models.Dataset{"citizen": citizenSurvey()}},
		Store:        store,
		Correlations: failingCorrelations{},
		Cohorts:      cohort.NewAnalyzer(cohort.Config{}),
	})

	report, err := engine.Analyze(context.Background(), Request{SurveyType: "citizen"})
	require.NoError(t, err)

	in := report.Insight
	assert.Equal(t, 50, in.TotalResponses)
	assert.Equal(t, 3, in.TotalQuestions)
	assert.Equal(t, "citizen", in.SurveyType)
	assert.Equal(t, "Cetățenii susțin digitalizarea plăților.", in.AISummary)
	assert.Equal(t, []string{"Lansați plata online a taxelor", "Campanie de informare"}, in.Recommendations)
	assert.Equal(t, []string{"Plată online"}, in.FeatureRequests)
	require.Len(t, in.KeyThemes, 1)
	assert.Equal(t, "Plăți online", in.KeyThemes[0].Name)
	assert.Equal(t, 0.4, in.SentimentScore)
	assert.Equal(t, textanalysis.SentimentPositive, in.SentimentLabel)
	assert.Equal(t, 0.85, in.ConfidenceScore)
	assert.Equal(t, "gpt-4", in.ModelVersion)

	requests := gateway.Requests()
	assert.Equal(t, 10*len(requests), in.PromptTokens)
	assert.Equal(t, 5*len(requests), in.CompletionTokens)

	assert.Regexp(t, `^analysis_\d+_[0-9a-f]{8}$`, report.AnalysisID)
	assert.Equal(t, 50, report.Metadata.Respondents)
	assert.Equal(t, 150, report.Metadata.Responses)
	assert.Equal(t, 3, report.Metadata.Counties)
	assert.Equal(t, 12, report.Metadata.Localities)
	assert.Equal(t, 1, report.Metadata.TextQuestions)
	assert.Equal(t, "all", report.Metadata.RespondentType)
	assert.Equal(t, textanalysis.SentimentPositive, report.Metadata.SentimentLabel)

	require.Len(t, report.TextAnalyses, 1)
	assert.Equal(t, "q5_suggestions", report.TextAnalyses[0].QuestionID)
	assert.Equal(t, 50, report.TextAnalyses[0].Analysis.ResponseCount)
	assert.NotEmpty(t, report.Demographics.AgeDistribution)
	require.NotEmpty(t, report.Features.Features)
	assert.Equal(t, 60, report.Features.Features[0].Count)

	assert.Nil(t, report.Correlations)
	require.NotNil(t, report.Cohorts)
	require.Len(t, report.SecondaryFailures, 1)
	assert.Equal(t, "correlation", report.SecondaryFailures[0].Analysis)
	assert.Contains(t, report.SecondaryFailures[0].Error, "exploded")

	require.Len(t, store.insights, 1)
	assert.Equal(t, report.AnalysisID, store.insights[0].AnalysisID)
	assert.Equal(t, 50, store.insights[0].TotalResponses)
	require.Len(t, store.runs, 2)
	assert.Equal(t, models.RunRunning, store.runs[0].Status)
	assert.Equal(t, models.RunCompleted, store.runs[1].Status)
	assert.Equal(t, store.runs[0].ID, store.runs[1].ID)
	assert.Contains(t, store.runs[1].ErrorMessage, "correlation")
}

func TestAnalyze_RecoversPanickingSecondaryAnalysis(t *testing.T) {
	engine := newTestEngine(t, Config{
		Gateway:      scriptedGateway(),
		Source:       &fakeSource{datasets: map[string]*models.Dataset{"citizen": citizenSurvey()}},
		Correlations: correlation.NewAnalyzer(correlation.Config{Questions: demographics.DefaultQuestionMap()}),
		Cohorts:      panickingCohorts{},
	})

	report, err := engine.Analyze(context.Background(), Request{SurveyType: "citizen"})
	require.NoError(t, err)

	assert.NotNil(t, report.Correlations)
	assert.Nil(t, report.Cohorts)
	require.Len(t, report.SecondaryFailures, 1)
	assert.Equal(t, "cohort", report.SecondaryFailures[0].Analysis)
	assert.Contains(t, report.SecondaryFailures[0].Error, "panic")
}

func TestAnalyze_FallsBackWhenGatewayIsDown(t *testing.T) {
	engine := newTestEngine(t, Config{
		Gateway: llmtest.Failing(),
		Source:  &fakeSource{datasets: map[string]*models.Dataset{"citizen": citizenSurvey()}},
	})

	report, err := engine.Analyze(context.Background(), Request{SurveyType: "citizen"})
	require.NoError(t, err)

	in := report.Insight
	assert.Equal(t, 50, in.TotalResponses)
	assert.Equal(t, "Analiză pentru cetățeni cu 50 răspunsuri. Sentiment general: neutral.", in.AISummary)
	assert.Equal(t, []string{"Implementați funcționalitatea „Plată online”"}, in.Recommendations)
	assert.Empty(t, in.KeyThemes)
	assert.Zero(t, in.PromptTokens)
	assert.True(t, report.TextAnalyses[0].Analysis.Fallback)
}

type cancelingGateway struct{ cancel context.CancelFunc }

func (g cancelingGateway) Complete(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	g.cancel()
	return nil, ctx.Err()
}

func TestAnalyze_CancelledRunIsRecordedAsFailed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &fakeStore{}
	cache := NewMemoryCache()
	engine := newTestEngine(t, Config{
		Gateway: cancelingGateway{cancel: cancel},
		Source:  &fakeSource{datasets: map[string]*models.Dataset{"citizen": citizenSurvey()}},
		Store:   store,
		Cache:   cache,
	})

	_, err := engine.Analyze(ctx, Request{SurveyType: "citizen"})
	require.ErrorIs(t, err, context.Canceled)

	require.Len(t, store.runs, 2)
	assert.Equal(t, models.RunFailed, store.runs[1].Status)
	assert.NotNil(t, store.runs[1].CompletedAt)
	assert.Empty(t, store.insights)
	assert.Zero(t, cache.Len())
}

func TestAnalyze_ServesCacheUntilForced(t *testing.T) {
	gateway := scriptedGateway()
	source := &fakeSource{datasets: map[string]*models.Dataset{"citizen": citizenSurvey()}}
	cache := NewMemoryCache()
	engine := newTestEngine(t, Config{Gateway: gateway, Source: source, Cache: cache})
	ctx := context.Background()

	first, err := engine.Analyze(ctx, Request{SurveyType: "citizen"})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	calls := len(gateway.Requests())

	second, err := engine.Analyze(ctx, Request{SurveyType: "citizen"})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.AnalysisID, second.AnalysisID)
	assert.Len(t, gateway.Requests(), calls)
	assert.Equal(t, 1, source.loads)
	assert.False(t, first.Cached, "cached copy must not alter the original report")

	entry, err := cache.Get(ctx, "holistic_citizen_all")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, AnalysisTypeHolistic, entry.AnalysisType)

	forced, err := engine.Analyze(ctx, Request{SurveyType: "citizen", ForceRefresh: true})
	require.NoError(t, err)
	assert.False(t, forced.Cached)
	assert.NotEqual(t, first.AnalysisID, forced.AnalysisID)
	assert.Equal(t, 2, source.loads)
}

func TestAnalyze_CacheErrorsAreNotFatal(t *testing.T) {
	engine := newTestEngine(t, Config{
		Gateway: scriptedGateway(),
		Source:  &fakeSource{datasets: map[string]*models.Dataset{"citizen": citizenSurvey()}},
		Cache:   brokenCache{},
	})

	report, err := engine.Analyze(context.Background(), Request{SurveyType: "citizen"})
	require.NoError(t, err)
	assert.False(t, report.Cached)
}

func TestAnalyze_RetriesInsightPersistence(t *testing.T) {
	store := &fakeStore{failures: 2}
	engine := newTestEngine(t, Config{
		Gateway: scriptedGateway(),
		Source:  &fakeSource{datasets: map[string]*models.Dataset{"citizen": citizenSurvey()}},
		Store:   store,
	})

	_, err := engine.Analyze(context.Background(), Request{SurveyType: "citizen"})
	require.NoError(t, err)
	assert.Len(t, store.insights, 1)
}

func TestAnalyze_FiltersByRespondentType(t *testing.T) {
	ds := citizenSurvey()
	ds.Respondents[0].RespondentType = models.RespondentOfficial
	ds.Respondents[1].RespondentType = models.RespondentOfficial
	gateway := scriptedGateway()
	engine := newTestEngine(t, Config{
		Gateway: gateway,
		Source:  &fakeSource{datasets: map[string]*models.Dataset{"citizen": ds}},
	})

	report, err := engine.Analyze(context.Background(), Request{SurveyType: "citizen", RespondentType: models.RespondentOfficial})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Insight.TotalResponses)
	assert.Equal(t, 6, report.Metadata.Responses)
	assert.Equal(t, "official", report.Metadata.RespondentType)
	assert.Equal(t, 0.5, report.Insight.ConfidenceScore)
}

func TestAnalyze_ValidationFailsBeforeAnyCall(t *testing.T) {
	noResponses := citizenSurvey()
	noResponses.Responses = nil
	noQuestions := citizenSurvey()
	noQuestions.Questions = nil

	tests := []struct {
		name    string
		ds      *models.Dataset
		req     Request
		wantErr error
	}{
		{"no matching respondents", citizenSurvey(), Request{SurveyType: "citizen", RespondentType: models.RespondentOfficial}, ErrNoRespondents},
		{"no responses", noResponses, Request{SurveyType: "citizen"}, ErrNoResponses},
		{"no questions", noQuestions, Request{SurveyType: "citizen"}, ErrNoQuestions},
		{"missing dataset", nil, Request{SurveyType: "citizen"}, ErrNoQuestions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gateway := scriptedGateway()
			store := &fakeStore{}
			engine := newTestEngine(t, Config{
				Gateway: gateway,
				Source:  &fakeSource{datasets: map[string]*models.Dataset{"citizen": tt.ds}},
				Store:   store,
			})

			report, err := engine.Analyze(context.Background(), tt.req)

			require.Error(t, err)
			assert.Nil(t, report)
			assert.ErrorIs(t, err, tt.wantErr)
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
			assert.Empty(t, gateway.Requests())
			assert.Empty(t, store.runs)
		})
	}
}

func TestAnalyze_RejectsBadRequests(t *testing.T) {
	source := &fakeSource{}
	engine := newTestEngine(t, Config{Gateway: scriptedGateway(), Source: source})

	_, err := engine.Analyze(context.Background(), Request{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "survey_type", verr.Field)

	_, err = engine.Analyze(context.Background(), Request{SurveyType: "citizen", RespondentType: "mayor"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "respondent_type", verr.Field)
	assert.Zero(t, source.loads)
}

func TestAnalyze_WrapsSourceErrors(t *testing.T) {
	sentinel := errors.New("no such table: respondents")
	source := &fakeSource{err: sentinel}
	engine := newTestEngine(t, Config{Gateway: scriptedGateway(), Source: source})

	_, err := engine.Analyze(context.Background(), Request{SurveyType: "citizen"})
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "failed to load survey citizen")
	assert.Equal(t, 3, source.loads, "loads are retried")
}

func TestAnalyzeAll_SkipsTypesWithoutQuestions(t *testing.T) {
	official := citizenSurvey()
	official.SurveyType = "official"
	official.Questions = nil
	engine := newTestEngine(t, Config{
		Gateway: scriptedGateway(),
		Source: &fakeSource{datasets: map[string]*models.Dataset{
			"citizen":  citizenSurvey(),
			"official": official,
		}},
	})

	reports, err := engine.AnalyzeAll(context.Background(), []string{"citizen", "official"}, Request{})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "citizen", reports[0].Insight.SurveyType)
}

func TestAnalyzeAll_ForceRefreshBypassesCache(t *testing.T) {
	source := &fakeSource{datasets: map[string]*models.Dataset{"citizen": citizenSurvey()}}
	engine := newTestEngine(t, Config{Gateway: scriptedGateway(), Source: source, Cache: NewMemoryCache()})
	ctx := context.Background()

	first, err := engine.AnalyzeAll(ctx, []string{"citizen"}, Request{})
	require.NoError(t, err)
	require.Len(t, first, 1)

	cached, err := engine.AnalyzeAll(ctx, []string{"citizen"}, Request{})
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.True(t, cached[0].Cached)
	assert.Equal(t, 1, source.loads)

	forced, err := engine.AnalyzeAll(ctx, []string{"citizen"}, Request{ForceRefresh: true})
	require.NoError(t, err)
	require.Len(t, forced, 1)
	assert.False(t, forced[0].Cached)
	assert.NotEqual(t, first[0].AnalysisID, forced[0].AnalysisID)
	assert.Equal(t, 2, source.loads)
}

func TestNewEngine_RequiresCollaborators(t *testing.T) {
	_, err := NewEngine(Config{Source: &fakeSource{}})
	assert.Error(t, err)

	_, err = NewEngine(Config{Gateway: scriptedGateway()})
	assert.Error(t, err)
}
