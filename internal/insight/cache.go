package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const (
	AnalysisTypeHolistic = "holistic"
	DefaultCacheTTL      = 24 * time.Hour
)

type CacheEntry struct {
	Key          string    `json:"key"`
	Result       *Report   `json:"result"`
	ExpiresAt    time.Time `json:"expires_at"`
	AnalysisType string    `json:"analysis_type"`
}

func (e *CacheEntry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Cache stores finished reports. Get returns nil, nil on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (*CacheEntry, error)
	Set(ctx context.Context, key string, entry *CacheEntry, ttl time.Duration) error
}

// CacheKey formats "<analysisType>_<surveyType|all>_<respondentType|all>".
func CacheKey(analysisType, surveyType, respondentType string) string {
	if surveyType == "" {
		surveyType = "all"
	}
	if respondentType == "" {
		respondentType = "all"
	}
	return analysisType + "_" + surveyType + "_" + respondentType
}

// MemoryCache is an in-process Cache. Reports are held as JSON, so readers
// and writers never share slices with the stored copy. Expired entries are
// dropped on read.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	analysisType string
	expiresAt    time.Time
	result       []byte
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*CacheEntry, error) {
	c.mu.RLock()
	stored, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	entry := &CacheEntry{Key: key, ExpiresAt: stored.expiresAt, AnalysisType: stored.analysisType}
	if entry.Expired(c.now()) {
		c.mu.Lock()
		if current, ok := c.entries[key]; ok && current == stored {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, nil
	}

	if stored.result != nil {
		var report Report
		if err := json.Unmarshal(stored.result, &report); err != nil {
			return nil, fmt.Errorf("failed to decode cached report: %w", err)
		}
		entry.Result = &report
	}
	return entry, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, entry *CacheEntry, ttl time.Duration) error {
	stored := &memoryEntry{analysisType: entry.AnalysisType, expiresAt: entry.ExpiresAt}
	if ttl > 0 {
		stored.expiresAt = c.now().Add(ttl)
	}
	if entry.Result != nil {
		data, err := json.Marshal(entry.Result)
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		stored.result = data
	}

	c.mu.Lock()
	c.entries[key] = stored
	c.mu.Unlock()
	return nil
}

// Invalidate drops every entry of one analysis type, or all entries when
// analysisType is empty.
func (c *MemoryCache) Invalidate(_ context.Context, analysisType string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if analysisType == "" || entry.analysisType == analysisType {
			delete(c.entries, key)
		}
	}
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
