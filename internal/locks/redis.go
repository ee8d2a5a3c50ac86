package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "launchlock:lock:"

// acquireScript sets the key when absent or extends it when the caller
// already owns it. Returns 1 on success, 0 when held by someone else.
var acquireScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if not current then
  redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
  return 1
end
if current == ARGV[1] then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
  return 1
end
return 0
`)

// releaseScript deletes the key only when the caller owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker stores locks as Redis keys with a millisecond TTL.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker wraps a Redis client.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (r *RedisLocker) key(key Key) string {
	return redisKeyPrefix + key.EntityType + ":" + key.EntityID
}

func (r *RedisLocker) Acquire(ctx context.Context, key Key, owner string, ttl time.Duration) error {
	ok, err := acquireScript.Run(ctx, r.client, []string{r.key(key)}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if ok == 1 {
		return nil
	}
	holder, err := r.client.Get(ctx, r.key(key)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("lock holder %s: %w", key, err)
	}
	return lockedFailure(key, holder)
}

func (r *RedisLocker) Release(ctx context.Context, key Key, owner string) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.key(key)}, owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}

// Sweep is a no-op: Redis expires keys itself.
func (r *RedisLocker) Sweep(context.Context) (int64, error) {
	return 0, nil
}

// Close closes the underlying client.
func (r *RedisLocker) Close() error {
	return r.client.Close()
}
