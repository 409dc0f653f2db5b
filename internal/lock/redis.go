package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when it still holds the caller's owner token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript resets the expiry only while the key holds the caller's owner token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisStore implements Store with SET NX PX. Keys are stored as
// "<prefix><key>" holding the owner token, with the TTL as expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-based lock store. Prefix may be empty.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "lock:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(k string) string {
	return r.prefix + k
}

func (r *RedisStore) TakeLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("take lock %s: ttl must be positive", key)
	}
	owner := newOwner()
	ok, err := r.client.SetNX(ctx, r.key(key), owner, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("take lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockTaken
	}
	return &Lock{Key: key, Owner: owner, ExpiresOn: time.Now().Add(ttl)}, nil
}

func (r *RedisStore) ReleaseLock(ctx context.Context, l *Lock) error {
	if l == nil {
		return nil
	}
	if err := releaseScript.Run(ctx, r.client, []string{r.key(l.Key)}, l.Owner).Err(); err != nil {
		return fmt.Errorf("release lock %s: %w", l.Key, err)
	}
	return nil
}

func (r *RedisStore) ExtendLock(ctx context.Context, l *Lock, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, r.client, []string{r.key(l.Key)}, l.Owner, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", l.Key, err)
	}
	if n == 0 {
		return ErrLockTaken
	}
	l.ExpiresOn = time.Now().Add(ttl)
	return nil
}
