package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window counter shared by every instance using the
// same Redis. A window admits floor(rps*window)+burst requests per key.
type RedisLimiter struct {
	client  redis.Cmdable
	window  time.Duration
	allowed int64
	now     func() time.Time
}

func NewRedisLimiter(client redis.Cmdable, rps float64, burst int, window time.Duration) *RedisLimiter {
	if window < time.Second {
		window = time.Second
	}
	return &RedisLimiter{
		client:  client,
		window:  window,
		allowed: int64(rps*window.Seconds()) + int64(burst),
		now:     time.Now,
	}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	secs := int64(r.window.Seconds())
	bucket := r.now().Unix() / secs
	redisKey := fmt.Sprintf("rl:%s:%d", key, bucket)

	cnt, err := r.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, err
	}
	if cnt == 1 {
		_ = r.client.Expire(ctx, redisKey, r.window+time.Second).Err()
	}
	return cnt <= r.allowed, nil
}

func (r *RedisLimiter) Name() string { return "redis" }
