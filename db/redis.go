package db

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/giftshift/giftshift-go/config"
)

var cacheDb *redis.Client
var cacheDBOnce = &sync.Once{}

const (
	cachePingAttempts = 3
	cachePingDelay    = 500 * time.Millisecond
	cachePingTimeout  = 2 * time.Second
)

// GetCacheDBConnection returns a redis client, or nil when the cache cannot
// be reached within a bounded number of attempts. A nil result is a normal
// operating mode: callers degrade to a zero hit rate instead of failing.
func GetCacheDBConnection(log *zap.Logger) *redis.Client {
	cacheDBOnce.Do(func() {
		client := redis.NewClient(&redis.Options{
			Addr:     config.CACHE_ADDR,
			Password: config.CACHE_PASSWORD,
		})

		delay := cachePingDelay
		for attempt := 1; attempt <= cachePingAttempts; attempt++ {
			ctx, cancel := context.WithTimeout(context.Background(), cachePingTimeout)
			err := client.Ping(ctx).Err()
			cancel()
			if err == nil {
				cacheDb = client
				return
			}
			log.Warn("cache unreachable",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if attempt < cachePingAttempts {
				time.Sleep(delay)
				delay *= 2
			}
		}

		log.Warn("disabling cache for process lifetime", zap.String("addr", config.CACHE_ADDR))
		_ = client.Close()
	})

	return cacheDb
}
