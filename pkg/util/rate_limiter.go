package util

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter enforces a fixed ceiling of operations per rolling window,
// shared across worker processes through redis. Protects the downstream
// email provider from delivery bursts.
type RateLimiter struct {
	rdb    *redis.Client
	max    int64
	window time.Duration
	logger *zap.Logger
}

func NewRateLimiter(rdb *redis.Client, max int, window time.Duration, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{rdb: rdb, max: int64(max), window: window, logger: logger}
}

// Allow reports whether one more operation fits in the current window. Fails
// open when redis is unavailable: a missing ceiling is better than a stalled
// pipeline.
func (l *RateLimiter) Allow(ctx context.Context, name string) bool {
	bucket := time.Now().Unix() / int64(l.window.Seconds())
	key := fmt.Sprintf("rate:%s:%d", name, bucket)

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		if l.logger != nil {
			l.logger.Warn("Redis rate limit check failed, allowing",
				zap.String("name", name),
				zap.Error(err),
			)
		}
		return true
	}
	if count == 1 {
		l.rdb.Expire(ctx, key, l.window*2)
	}

	return count <= l.max
}
