package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/survey-analytics/engine/internal/cohort"
	"github.com/survey-analytics/engine/internal/correlation"
	"github.com/survey-analytics/engine/internal/demographics"
	"github.com/survey-analytics/engine/internal/features"
	"github.com/survey-analytics/engine/internal/llm"
	"github.com/survey-analytics/engine/internal/metrics"
	"github.com/survey-analytics/engine/internal/storage/models"
	"github.com/survey-analytics/engine/internal/textanalysis"
	"github.com/survey-analytics/engine/pkg/logger"
	"github.com/survey-analytics/engine/pkg/retry"
	"github.com/survey-analytics/engine/pkg/utils"
)

const maxRunErrorLength = 500

// DataSource loads every record of one survey type.
type DataSource interface {
	LoadSurvey(ctx context.Context, surveyType string) (*models.Dataset, error)
}

type InsightStore interface {
	SaveHolisticInsight(ctx context.Context, insight *models.StoredInsight) error
	RecordRun(ctx context.Context, run *models.AnalysisRun) error
}

type CorrelationAnalyzer interface {
	Analyze(ctx context.Context, ds *models.Dataset) (*correlation.Report, error)
}

type CohortAnalyzer interface {
	Analyze(ctx context.Context, ds *models.Dataset) (*cohort.Report, error)
}

type Config struct {
	Gateway llm.Completer
	Source  DataSource
	// Store, Cache, Correlations and Cohorts are optional.
	Store        InsightStore
	Cache        Cache
	CacheTTL     time.Duration
	Concurrency  int
	Questions    demographics.QuestionMap
	Correlations CorrelationAnalyzer
	Cohorts      CohortAnalyzer
	// ModelVersion overrides the model recorded on insights. By default it
	// is the insights profile's model.
	ModelVersion string
	Retry        retry.Config
	// CompletionRetry wraps the gateway with llm.WithRetry when MaxAttempts
	// is above one.
	CompletionRetry retry.Config
}

type Engine struct {
	gateway      llm.Completer
	source       DataSource
	store        InsightStore
	cache        Cache
	cacheTTL     time.Duration
	concurrency  int
	questions    demographics.QuestionMap
	correlations CorrelationAnalyzer
	cohorts      CohortAnalyzer
	modelVersion string
	retry        retry.Config
	now          func() time.Time
}

type profileResolver interface {
	Profile(name llm.ProfileName) (llm.Profile, bool)
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Gateway == nil {
		return nil, errors.New("insight engine requires a gateway")
	}
	if cfg.Source == nil {
		return nil, errors.New("insight engine requires a data source")
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	concurrency := max(cfg.Concurrency, 1)

	modelVersion := cfg.ModelVersion
	if modelVersion == "" {
		modelVersion = llm.DefaultProfiles()[llm.ProfileInsights].Model
		if r, ok := cfg.Gateway.(profileResolver); ok {
			if p, ok := r.Profile(llm.ProfileInsights); ok {
				modelVersion = p.Model
			}
		}
	}

	questions := cfg.Questions
	if questions.Frequency == "" && len(questions.Features) == 0 {
		questions = demographics.DefaultQuestionMap()
	}

	retryCfg := cfg.Retry
	if retryCfg.Logger == nil {
		retryCfg.Logger = logger.GetLogger()
	}

	gateway := cfg.Gateway
	if cfg.CompletionRetry.MaxAttempts > 1 {
		completionCfg := cfg.CompletionRetry
		if completionCfg.Logger == nil {
			completionCfg.Logger = retryCfg.Logger
		}
		gateway = llm.WithRetry(gateway, completionCfg)
	}

	return &Engine{
		gateway:      gateway,
		source:       cfg.Source,
		store:        cfg.Store,
		cache:        cfg.Cache,
		cacheTTL:     ttl,
		concurrency:  concurrency,
		questions:    questions,
		correlations: cfg.Correlations,
		cohorts:      cfg.Cohorts,
		modelVersion: modelVersion,
		retry:        retryCfg,
		now:          time.Now,
	}, nil
}

// NewAnalysisID formats "analysis_<unixMillis>_<8 hex>".
func NewAnalysisID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("analysis_%d_%s", now.UnixMilli(), suffix)
}

// Analyze produces the holistic report of one survey type, serving a cached
// report unless ForceRefresh is set.
func (e *Engine) Analyze(ctx context.Context, req Request) (*Report, error) {
	if strings.TrimSpace(req.SurveyType) == "" {
		return nil, &ValidationError{Field: "survey_type", Message: "is required"}
	}
	if req.RespondentType != "" && !req.RespondentType.Valid() {
		return nil, &ValidationError{Field: "respondent_type", Message: fmt.Sprintf("unknown value %q", req.RespondentType)}
	}

	key := CacheKey(AnalysisTypeHolistic, req.SurveyType, string(req.RespondentType))
	if !req.ForceRefresh {
		if report := e.cached(ctx, key); report != nil {
			metrics.AnalysisTotal.WithLabelValues(req.SurveyType, "cached").Inc()
			return report, nil
		}
	}

	start := e.now()
	logger.Info("Starting holistic analysis",
		zap.String("survey_type", req.SurveyType),
		zap.String("respondent_type", string(req.RespondentType)),
		zap.Bool("force_refresh", req.ForceRefresh),
	)

	loadCfg := e.retry
	loadCfg.Operation = "load_survey"
	ds, err := retry.DoWithResult(ctx, loadCfg, func(ctx context.Context) (*models.Dataset, error) {
		return e.source.LoadSurvey(ctx, req.SurveyType)
	})
	if err != nil {
		metrics.AnalysisTotal.WithLabelValues(req.SurveyType, "failed").Inc()
		return nil, fmt.Errorf("failed to load survey %s: %w", req.SurveyType, err)
	}
	ds = scope(ds, req)

	if err := validate(ds); err != nil {
		metrics.AnalysisTotal.WithLabelValues(req.SurveyType, "invalid").Inc()
		logger.Warn("Survey data not analyzable",
			zap.String("survey_type", req.SurveyType),
			zap.Error(err),
		)
		return nil, err
	}

	run := &models.AnalysisRun{
		ID:                uuid.New().String(),
		SurveyType:        req.SurveyType,
		RespondentType:    string(req.RespondentType),
		QuestionsAnalyzed: len(ds.Questions),
		ResponsesAnalyzed: len(ds.Responses),
		Status:            models.RunRunning,
		StartedAt:         start,
	}
	e.recordRun(ctx, run)

	report := e.run(ctx, ds, req, start)

	completed := e.now()
	run.CompletedAt = &completed
	run.TokensUsed = report.Insight.PromptTokens + report.Insight.CompletionTokens

	if err := ctx.Err(); err != nil {
		run.Status = models.RunFailed
		run.ErrorMessage = err.Error()
		e.recordRun(context.WithoutCancel(ctx), run)
		metrics.AnalysisTotal.WithLabelValues(req.SurveyType, "failed").Inc()
		return nil, fmt.Errorf("analysis of %s interrupted: %w", req.SurveyType, err)
	}

	run.Status = models.RunCompleted
	if len(report.SecondaryFailures) > 0 {
		run.ErrorMessage = utils.Truncate(secondarySummary(report.SecondaryFailures), maxRunErrorLength)
	}

	e.persist(ctx, report)
	e.recordRun(ctx, run)
	e.cacheReport(ctx, key, report)

	duration := completed.Sub(start)
	metrics.AnalysisDuration.WithLabelValues(req.SurveyType).Observe(duration.Seconds())
	metrics.AnalysisTotal.WithLabelValues(req.SurveyType, "success").Inc()
	metrics.ConfidenceScore.Observe(report.Insight.ConfidenceScore)

	logger.Info("Holistic analysis complete",
		zap.String("analysis_id", report.AnalysisID),
		zap.String("survey_type", req.SurveyType),
		zap.Int("respondents", report.Metadata.Respondents),
		zap.Int("themes", len(report.Insight.KeyThemes)),
		zap.Int("features", len(report.Features.Features)),
		zap.Int("secondary_failures", len(report.SecondaryFailures)),
		zap.Duration("duration", duration),
	)

	return report, nil
}

// AnalyzeAll analyzes each survey type in turn. Types without questions are
// skipped.
func (e *Engine) AnalyzeAll(ctx context.Context, surveyTypes []string, base Request) ([]*Report, error) {
	reports := make([]*Report, 0, len(surveyTypes))
	for _, surveyType := range surveyTypes {
		req := base
		req.SurveyType = surveyType
		report, err := e.Analyze(ctx, req)
		if errors.Is(err, ErrNoQuestions) {
			logger.Info("Skipping survey type without questions", zap.String("survey_type", surveyType))
			continue
		}
		if err != nil {
			return reports, fmt.Errorf("failed to analyze survey type %s: %w", surveyType, err)
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// scope narrows the dataset to the requested respondent type and to the
// questions of the survey type.
func scope(ds *models.Dataset, req Request) *models.Dataset {
	if ds == nil {
		return &models.Dataset{SurveyType: req.SurveyType}
	}
	out := *ds.Filter(req.RespondentType)
	out.Questions = slices.DeleteFunc(slices.Clone(out.Questions), func(q models.Question) bool {
		return q.SurveyType != "" && q.SurveyType != req.SurveyType
	})
	slices.SortStableFunc(out.Questions, func(a, b models.Question) int {
		return a.OrderIndex - b.OrderIndex
	})
	return &out
}

// validate checks questions first so that AnalyzeAll can skip a survey type
// that has none regardless of its other records.
func validate(ds *models.Dataset) error {
	if len(ds.Questions) == 0 {
		return &ValidationError{Field: "questions", Message: "survey type has no questions", Err: ErrNoQuestions}
	}
	if len(ds.Respondents) == 0 {
		return &ValidationError{Field: "respondents", Message: "no respondents for the selected filters", Err: ErrNoRespondents}
	}
	if len(ds.Responses) == 0 {
		return &ValidationError{Field: "responses", Message: "no responses for the selected filters", Err: ErrNoResponses}
	}
	return nil
}

func (e *Engine) run(ctx context.Context, ds *models.Dataset, req Request, start time.Time) *Report {
	recorder := llm.NewRecorder(e.gateway)
	population := string(req.RespondentType)
	if population == "" {
		population = req.SurveyType
	}

	textAnalyzer := textanalysis.NewAnalyzer(recorder, e.concurrency)
	inputs := textInputs(ds, population)
	outputs := textAnalyzer.AnalyzeAll(ctx, inputs)

	analyses := make([]QuestionAnalysis, len(inputs))
	for i, in := range inputs {
		analyses[i] = QuestionAnalysis{QuestionID: in.QuestionID, QuestionText: in.QuestionText, Analysis: outputs[i]}
	}

	demo := demographics.NewAnalyzer(recorder, e.questions).Analyze(ctx, ds.Respondents, ds.Responses)
	feats := features.NewExtractor(recorder, e.concurrency).Extract(ctx, featureInput(ds, inputs, population, e.questions.Features))

	themes := MergeThemes(outputs, maxKeyThemes)
	sentiment := WeightedSentiment(outputs)
	label := textanalysis.LabelFor(sentiment)
	summary, recs := narrate(ctx, recorder, holisticInput{
		surveyType:  req.SurveyType,
		respondents: len(ds.Respondents),
		questions:   len(ds.Questions),
		themes:      themes,
		sentiment:   sentiment,
		label:       label,
		features:    feats,
	})

	usage := recorder.Usage()
	generatedAt := e.now()
	report := &Report{
		AnalysisID: NewAnalysisID(start),
		Metadata:   metadata(ds, req, outputs, len(inputs), generatedAt),
		Insight: HolisticInsight{
			SurveyType:       req.SurveyType,
			KeyThemes:        themes,
			SentimentScore:   sentiment,
			SentimentLabel:   label,
			Recommendations:  actions(recs),
			ActionPlan:       recs,
			FeatureRequests:  featureNames(feats.Features, maxFeatureRequests),
			AISummary:        summary,
			TotalQuestions:   len(ds.Questions),
			TotalResponses:   len(ds.Respondents),
			ModelVersion:     e.modelVersion,
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			ConfidenceScore:  ConfidenceFor(len(ds.Respondents)),
			GeneratedAt:      generatedAt,
		},
		TextAnalyses: analyses,
		Demographics: demo,
		Features:     feats,
	}

	if e.correlations != nil {
		out, failure := runSecondary(ctx, "correlation", ds, e.correlations.Analyze)
		report.Correlations = out
		report.addFailure(failure)
	}
	if e.cohorts != nil {
		out, failure := runSecondary(ctx, "cohort", ds, e.cohorts.Analyze)
		report.Cohorts = out
		report.addFailure(failure)
	}

	return report
}

func (r *Report) addFailure(f *SecondaryFailure) {
	if f != nil {
		r.SecondaryFailures = append(r.SecondaryFailures, *f)
	}
}

// runSecondary isolates a secondary analysis: errors and panics are logged
// and reported as a failure, never propagated.
func runSecondary[T any](ctx context.Context, name string, ds *models.Dataset, fn func(context.Context, *models.Dataset) (*T, error)) (out *T, failure *SecondaryFailure) {
	fail := func(msg string) {
		out = nil
		failure = &SecondaryFailure{Analysis: name, Error: msg}
		metrics.SecondaryFailures.WithLabelValues(name).Inc()
		logger.Warn("Secondary analysis failed, omitting output",
			zap.String("analysis", name),
			zap.String("error", msg),
		)
	}

	defer func() {
		if r := recover(); r != nil {
			fail(fmt.Sprintf("panic: %v", r))
		}
	}()

	res, err := fn(ctx, ds)
	if err != nil {
		fail(err.Error())
		return nil, failure
	}
	return res, nil
}

func secondarySummary(failures []SecondaryFailure) string {
	parts := make([]string, len(failures))
	for i, f := range failures {
		parts[i] = f.Analysis + ": " + f.Error
	}
	return strings.Join(parts, "; ")
}

func textInputs(ds *models.Dataset, population string) []textanalysis.Input {
	byQuestion := make(map[string][]string)
	for _, r := range ds.Responses {
		if r.AnswerText != "" {
			byQuestion[r.QuestionID] = append(byQuestion[r.QuestionID], r.AnswerText)
		}
	}

	var inputs []textanalysis.Input
	for _, q := range ds.Questions {
		if !q.Type.IsFreeText() {
			continue
		}
		inputs = append(inputs, textanalysis.Input{
			QuestionID:     q.ID,
			QuestionText:   q.Text,
			RespondentType: population,
			Responses:      byQuestion[q.ID],
		})
	}
	return inputs
}

// featureInput collects choice selections of the feature questions, or of
// every multiple-choice question when none is configured.
func featureInput(ds *models.Dataset, texts []textanalysis.Input, population string, featureQuestions []string) features.Input {
	in := features.Input{RespondentType: population}

	for _, q := range ds.Questions {
		if !q.Type.IsChoice() {
			continue
		}
		if len(featureQuestions) > 0 && !slices.Contains(featureQuestions, q.ID) {
			continue
		}
		if len(featureQuestions) == 0 && q.Type != models.QuestionMultipleChoice {
			continue
		}

		data := features.ChoiceData{QuestionID: q.ID}
		respondents := make(map[string]struct{})
		for _, r := range ds.Responses {
			if r.QuestionID != q.ID || len(r.AnswerChoices) == 0 {
				continue
			}
			data.SelectedOptions = append(data.SelectedOptions, r.AnswerChoices...)
			respondents[r.RespondentID] = struct{}{}
		}
		data.RespondentCount = len(respondents)
		if len(data.SelectedOptions) > 0 {
			in.MultipleChoice = append(in.MultipleChoice, data)
		}
	}

	for _, t := range texts {
		if len(t.Responses) > 0 {
			in.TextResponses = append(in.TextResponses, features.TextData{QuestionID: t.QuestionID, Responses: t.Responses})
		}
	}
	return in
}

func metadata(ds *models.Dataset, req Request, outputs []textanalysis.Output, textQuestions int, generatedAt time.Time) Metadata {
	counties := make(map[string]struct{})
	localities := make(map[string]struct{})
	for _, r := range ds.Respondents {
		if r.County != "" {
			counties[r.County] = struct{}{}
		}
		if r.Locality != "" {
			localities[r.County+"/"+r.Locality] = struct{}{}
		}
	}

	respondentType := string(req.RespondentType)
	if respondentType == "" {
		respondentType = "all"
	}

	mean := MeanSentiment(outputs)
	return Metadata{
		SurveyType:     req.SurveyType,
		RespondentType: respondentType,
		Respondents:    len(ds.Respondents),
		Responses:      len(ds.Responses),
		Questions:      len(ds.Questions),
		TextQuestions:  textQuestions,
		Counties:       len(counties),
		Localities:     len(localities),
		MeanSentiment:  mean,
		SentimentLabel: textanalysis.LabelFor(mean),
		GeneratedAt:    generatedAt,
	}
}

func (e *Engine) cached(ctx context.Context, key string) *Report {
	if e.cache == nil {
		return nil
	}

	entry, err := e.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		metrics.CacheMisses.WithLabelValues(AnalysisTypeHolistic).Inc()
		return nil
	}
	if entry == nil || entry.Result == nil || entry.Expired(e.now()) {
		metrics.CacheMisses.WithLabelValues(AnalysisTypeHolistic).Inc()
		return nil
	}

	metrics.CacheHits.WithLabelValues(AnalysisTypeHolistic).Inc()
	logger.Info("Serving cached analysis",
		zap.String("key", key),
		zap.String("analysis_id", entry.Result.AnalysisID),
	)
	report := *entry.Result
	report.Cached = true
	return &report
}

func (e *Engine) cacheReport(ctx context.Context, key string, report *Report) {
	if e.cache == nil {
		return
	}
	entry := &CacheEntry{
		Key:          key,
		Result:       report,
		ExpiresAt:    e.now().Add(e.cacheTTL),
		AnalysisType: AnalysisTypeHolistic,
	}
	if err := e.cache.Set(ctx, key, entry, e.cacheTTL); err != nil {
		logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (e *Engine) persist(ctx context.Context, report *Report) {
	if e.store == nil {
		return
	}

	stored, err := toStored(report)
	if err != nil {
		logger.Error("Failed to encode insight", zap.String("analysis_id", report.AnalysisID), zap.Error(err))
		return
	}

	cfg := e.retry
	cfg.Operation = "save_holistic_insight"
	if err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		return e.store.SaveHolisticInsight(ctx, stored)
	}); err != nil {
		logger.Error("Failed to persist holistic insight",
			zap.String("analysis_id", report.AnalysisID),
			zap.Error(err),
		)
	}
}

func (e *Engine) recordRun(ctx context.Context, run *models.AnalysisRun) {
	if e.store == nil {
		return
	}

	cfg := e.retry
	cfg.Operation = "record_analysis_run"
	if err := retry.Do(ctx, cfg, func(ctx context.Context) error {
		return e.store.RecordRun(ctx, run)
	}); err != nil {
		logger.Warn("Failed to record analysis run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func toStored(report *Report) (*models.StoredInsight, error) {
	in := report.Insight

	themes, err := json.Marshal(in.KeyThemes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal themes: %w", err)
	}
	recs, err := json.Marshal(in.ActionPlan)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal recommendations: %w", err)
	}
	feats, err := json.Marshal(in.FeatureRequests)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal feature requests: %w", err)
	}

	return &models.StoredInsight{
		ID:               uuid.New().String(),
		SurveyType:       in.SurveyType,
		AnalysisID:       report.AnalysisID,
		KeyThemes:        string(themes),
		SentimentScore:   in.SentimentScore,
		SentimentLabel:   string(in.SentimentLabel),
		Recommendations:  string(recs),
		FeatureRequests:  string(feats),
		AISummary:        in.AISummary,
		TotalQuestions:   in.TotalQuestions,
		TotalResponses:   in.TotalResponses,
		ModelVersion:     in.ModelVersion,
		PromptTokens:     in.PromptTokens,
		CompletionTokens: in.CompletionTokens,
		ConfidenceScore:  in.ConfidenceScore,
		GeneratedAt:      in.GeneratedAt,
	}, nil
}
