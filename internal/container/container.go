package container

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/survey-analytics/engine/internal/cache/redis"
	"github.com/survey-analytics/engine/internal/cohort"
	"github.com/survey-analytics/engine/internal/correlation"
	"github.com/survey-analytics/engine/internal/demographics"
	"github.com/survey-analytics/engine/internal/ingestion"
	"github.com/survey-analytics/engine/internal/insight"
	"github.com/survey-analytics/engine/internal/llm"
	"github.com/survey-analytics/engine/internal/storage/sqlite"
	"github.com/survey-analytics/engine/pkg/config"
	"github.com/survey-analytics/engine/pkg/logger"
	"github.com/survey-analytics/engine/pkg/retry"
)

// AnalysisCache is an insight cache that can also be flushed after imports.
type AnalysisCache interface {
	insight.Cache
	Invalidate(ctx context.Context, analysisType string) error
}

// Container owns the process-wide dependencies shared by the API server and
// the CLI.
type Container struct {
	Config   *config.Config
	Store    *sqlite.Client
	Cache    AnalysisCache
	Redis    *redis.Client
	Gateway  *llm.Client
	Engine   *insight.Engine
	Importer *ingestion.Processor
}

func New(cfg *config.Config) (*Container, error) {
	store, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite client: %w", err)
	}
	if err := store.InitSchema(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	c := &Container{
		Config:   cfg,
		Store:    store,
		Importer: ingestion.NewProcessor(store),
	}

	if cfg.Redis.Enabled {
		rc, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Redis = rc
		c.Cache = rc
	} else {
		logger.Info("Redis disabled, caching analyses in memory")
		c.Cache = insight.NewMemoryCache()
	}

	c.Gateway = llm.NewClient(llm.Config{
		APIKey:           cfg.LLM.APIKey,
		BaseURL:          cfg.LLM.BaseURL,
		Timeout:          cfg.LLM.Timeout(),
		Models:           cfg.LLM.Models,
		FailureThreshold: cfg.LLM.FailureThreshold,
		OpenTimeout:      time.Duration(cfg.LLM.OpenTimeoutSec) * time.Second,
	})

	questions := QuestionMap(cfg.Analysis)
	engine, err := insight.NewEngine(insight.Config{
		Gateway:     c.Gateway,
		Source:      store,
		Store:       store,
		Cache:       c.Cache,
		CacheTTL:    cfg.Analysis.CacheTTL(),
		Concurrency: cfg.Analysis.Concurrency,
		Questions:   questions,
		Correlations: correlation.NewAnalyzer(correlation.Config{
			Questions:     questions,
			IncludeMatrix: true,
		}),
		Cohorts: cohort.NewAnalyzer(cohort.Config{
			Questions:       questions,
			UrbanLocalities: cfg.Analysis.UrbanLocalities,
		}),
		Retry: retry.Config{
			MaxAttempts:  cfg.Analysis.PersistAttempts,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Logger:       logger.GetLogger(),
		},
		CompletionRetry: retry.Config{
			MaxAttempts:  cfg.LLM.MaxAttempts,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Logger:       logger.GetLogger(),
		},
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create insight engine: %w", err)
	}
	c.Engine = engine

	logger.Info("Container initialized",
		zap.String("sqlite_path", cfg.SQLite.Path),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.Int("concurrency", cfg.Analysis.Concurrency),
	)

	return c, nil
}

// QuestionMap maps configured question ids onto the analysis variables.
// Unset entries keep the standard survey ids.
func QuestionMap(cfg config.AnalysisConfig) demographics.QuestionMap {
	q := demographics.DefaultQuestionMap()
	if cfg.FrequencyQuestion != "" {
		q.Frequency = cfg.FrequencyQuestion
	}
	if cfg.UsefulnessQuestion != "" {
		q.Usefulness = cfg.UsefulnessQuestion
	}
	if len(cfg.FeatureQuestions) > 0 {
		q.Features = cfg.FeatureQuestions
	}
	if len(cfg.ReadinessQuestions) > 0 {
		q.Readiness = cfg.ReadinessQuestions
	}
	if len(cfg.SecurityQuestions) > 0 {
		q.Security = cfg.SecurityQuestions
	}
	return q
}

func (c *Container) Close() {
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			logger.Warn("Failed to close sqlite client", zap.Error(err))
		}
	}
}
