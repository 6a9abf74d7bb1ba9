package insight

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "holistic_citizen_all", CacheKey(AnalysisTypeHolistic, "citizen", ""))
	assert.Equal(t, "holistic_all_official", CacheKey(AnalysisTypeHolistic, "", "official"))
	assert.Equal(t, "holistic_official_official", CacheKey(AnalysisTypeHolistic, "official", "official"))
}

func TestMemoryCache_ExpiresEntries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := NewMemoryCache()
	cache.now = func() time.Time { return now }

	err := cache.Set(ctx, "holistic_citizen_all", &CacheEntry{Result: &Report{AnalysisID: "analysis_1_abcdef12"}, AnalysisType: AnalysisTypeHolistic}, time.Hour)
	require.NoError(t, err)

	entry, err := cache.Get(ctx, "holistic_citizen_all")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "holistic_citizen_all", entry.Key)
	assert.Equal(t, now.Add(time.Hour), entry.ExpiresAt)
	assert.Equal(t, "analysis_1_abcdef12", entry.Result.AnalysisID)

	now = now.Add(time.Hour)
	entry, err = cache.Get(ctx, "holistic_citizen_all")
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Zero(t, cache.Len())
}

func TestMemoryCache_MissReturnsNil(t *testing.T) {
	entry, err := NewMemoryCache().Get(context.Background(), "holistic_all_all")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestCacheEntry_Expired(t *testing.T) {
	now := time.Now()
	assert.False(t, (&CacheEntry{}).Expired(now))
	assert.False(t, (&CacheEntry{ExpiresAt: now.Add(time.Second)}).Expired(now))
	assert.True(t, (&CacheEntry{ExpiresAt: now}).Expired(now))
}

func TestMemoryCache_IsolatesStoredReport(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()
	report := &Report{
		AnalysisID: "analysis_1_abcdef12",
		Insight:    HolisticInsight{Recommendations: []string{"Plată online"}},
	}
	require.NoError(t, cache.Set(ctx, "holistic_citizen_all", &CacheEntry{Result: report, AnalysisType: AnalysisTypeHolistic}, time.Hour))

	report.Insight.Recommendations[0] = "changed by writer"

	first, err := cache.Get(ctx, "holistic_citizen_all")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, []string{"Plată online"}, first.Result.Insight.Recommendations)

	first.Result.Insight.Recommendations[0] = "changed by reader"

	second, err := cache.Get(ctx, "holistic_citizen_all")
	require.NoError(t, err)
	assert.Equal(t, []string{"Plată online"}, second.Result.Insight.Recommendations)
}

func TestMemoryCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	cache := NewMemoryCache()
	require.NoError(t, cache.Set(ctx, "holistic_citizen_all", &CacheEntry{AnalysisType: AnalysisTypeHolistic}, time.Hour))
	require.NoError(t, cache.Set(ctx, "other_citizen_all", &CacheEntry{AnalysisType: "other"}, time.Hour))

	require.NoError(t, cache.Invalidate(ctx, AnalysisTypeHolistic))
	assert.Equal(t, 1, cache.Len())

	require.NoError(t, cache.Invalidate(ctx, ""))
	assert.Zero(t, cache.Len())
}
