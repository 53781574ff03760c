package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/stitchboard/internal/observability/metrics"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "stitchboard:analytics:"

// resultCache is a read-through redis cache for dashboard results. A nil
// client or any redis error degrades to computing the result.
type resultCache struct {
	client  *redis.Client
	metrics *metrics.Metrics
	log     *zap.Logger
}

func newResultCache(client *redis.Client, m *metrics.Metrics, log *zap.Logger) *resultCache {
	return &resultCache{client: client, metrics: m, log: log}
}

func fetchCached[T any](ctx context.Context, c *resultCache, op, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	if c == nil || c.client == nil || ttl <= 0 {
		return compute(ctx)
	}

	key = cacheKeyPrefix + op + ":" + key
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached T
		if err := json.Unmarshal(raw, &cached); err == nil {
			c.metrics.RecordCacheLookup(ctx, op, true)
			return cached, nil
		}
		c.log.Warn("discarding undecodable cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("analytics cache read failed", zap.String("op", op), zap.Error(err))
	}
	c.metrics.RecordCacheLookup(ctx, op, false)

	value, err := compute(ctx)
	if err != nil {
		return value, err
	}
	if payload, err := json.Marshal(value); err == nil {
		if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
			c.log.Warn("analytics cache write failed", zap.String("op", op), zap.Error(err))
		}
	}
	return value, nil
}
