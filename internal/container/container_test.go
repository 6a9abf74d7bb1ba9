package container

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/survey-analytics/engine/internal/insight"
	"github.com/survey-analytics/engine/pkg/config"
)

func TestQuestionMap_OverridesConfiguredIDs(t *testing.T) {
	q := QuestionMap(config.AnalysisConfig{
		FrequencyQuestion: "c1_freq",
		FeatureQuestions:  []string{"c4_features"},
	})

	assert.Equal(t, "c1_freq", q.Frequency)
	assert.Equal(t, []string{"c4_features"}, q.Features)
	assert.Equal(t, "q2_usefulness", q.Usefulness)
	assert.Equal(t, []string{"q3_readiness"}, q.Readiness)
}

func TestNew_WiresInMemoryCacheWithoutRedis(t *testing.T) {
	cfg := &config.Config{
		SQLite:   config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "survey.db")},
		LLM:      config.LLMConfig{APIKey: "test", TimeoutSec: 1},
		Analysis: config.AnalysisConfig{Concurrency: 2, CacheTTLHours: 1, PersistAttempts: 1},
	}

	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	assert.IsType(t, &insight.MemoryCache{}, c.Cache)
	assert.Nil(t, c.Redis)
	assert.NotNil(t, c.Engine)
	assert.NotNil(t, c.Importer)

	p, ok := c.Gateway.Profile("insights")
	require.True(t, ok)
	assert.Equal(t, "gpt-4", p.Model)
}
