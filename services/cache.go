package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CacheService is a best-effort key/value port. Every method swallows
// downstream failures: Get reports a miss, Set/Delete report false. The
// system must work with a zero hit rate, so a nil redis client is a valid
// backing and simply misses everything.
type CacheService interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key string, value any, ttl time.Duration) bool
	Delete(ctx context.Context, key string) bool
}

func NewCacheService(client *redis.Client, log *zap.Logger) CacheService {
	if client == nil {
		log.Warn("cache disabled, operating with zero hit rate")
	}
	return &cacheService{client: client, log: log}
}

type cacheService struct {
	client *redis.Client
	log    *zap.Logger
}

func (c *cacheService) Get(ctx context.Context, key string) (string, bool) {
	if c.client == nil {
		return "", false
	}
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	return val, true
}

func (c *cacheService) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if c.client == nil {
		return false
	}
	data, ok := value.(string)
	if !ok {
		raw, err := json.Marshal(value)
		if err != nil {
			c.log.Debug("cache set skipped", zap.String("key", key), zap.Error(err))
			return false
		}
		data = string(raw)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.log.Debug("cache set failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *cacheService) Delete(ctx context.Context, key string) bool {
	if c.client == nil {
		return false
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.log.Debug("cache delete failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}
