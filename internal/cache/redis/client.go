package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/survey-analytics/engine/internal/insight"
	"github.com/survey-analytics/engine/pkg/logger"
)

const keyPrefix = "analysis:"

// Client implements insight.Cache on top of redis. Entries expire through
// the redis TTL.
type Client struct {
	client redis.UniversalClient
}

func NewClient(host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

// NewFromClient wraps an existing connection.
func NewFromClient(client redis.UniversalClient) *Client {
	return &Client{client: client}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Get(ctx context.Context, key string) (*insight.CacheEntry, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis cache: %w", err)
	}

	entry, err := decodeEntry(data)
	if err != nil {
		return nil, err
	}

	logger.Debug("Analysis cache hit", zap.String("key", key))
	return entry, nil
}

func (c *Client) Set(ctx context.Context, key string, entry *insight.CacheEntry, ttl time.Duration) error {
	data, err := encodeEntry(key, entry, ttl, time.Now())
	if err != nil {
		return err
	}

	err = c.client.Set(ctx, keyPrefix+key, data, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set analysis cache: %w", err)
	}

	logger.Debug("Analysis cached", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

// Invalidate drops every cached analysis of one type, or all when
// analysisType is empty.
func (c *Client) Invalidate(ctx context.Context, analysisType string) error {
	pattern := keyPrefix + "*"
	if analysisType != "" {
		pattern = keyPrefix + analysisType + "_*"
	}

	deleted := 0
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		deleted++
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Analysis cache invalidated",
		zap.String("analysis_type", analysisType),
		zap.Int("deleted", deleted),
	)
	return nil
}

func encodeEntry(key string, entry *insight.CacheEntry, ttl time.Duration, now time.Time) ([]byte, error) {
	stored := *entry
	stored.Key = key
	if ttl > 0 {
		stored.ExpiresAt = now.Add(ttl)
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return data, nil
}

func decodeEntry(data []byte) (*insight.CacheEntry, error) {
	var entry insight.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	return &entry, nil
}
