package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rl1809/stock-ledger/internal/port"
)

const (
	idempotencyKeyPrefix = "idem:"
	idempotencyKeyTTL    = 24 * time.Hour
)

// Returns the current value, or nil after storing the pending marker.
var claimKeyScript = redis.NewScript(`
local key = KEYS[1]
local current = redis.call('GET', key)
if current then
	return current
end

redis.call('SET', key, ARGV[1], 'PX', ARGV[2])
return nil
`)

// RedisAdapter implements port.IdempotencyRepository on Redis so that keys
// are shared by every replica of the service.
type RedisAdapter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAdapter(client *redis.Client, ttl time.Duration) *RedisAdapter {
	if ttl <= 0 {
		ttl = idempotencyKeyTTL
	}
	return &RedisAdapter{client: client, ttl: ttl}
}

func (r *RedisAdapter) Claim(ctx context.Context, key string) (string, bool, error) {
	existing, err := claimKeyScript.Run(ctx, r.client,
		[]string{idempotencyKeyPrefix + key}, port.PendingValue, r.ttl.Milliseconds(),
	).Text()
	if errors.Is(err, redis.Nil) {
		return "", true, nil
	}
	if err != nil {
		return "", false, err
	}
	return existing, false, nil
}

func (r *RedisAdapter) Complete(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, idempotencyKeyPrefix+key, value, r.ttl).Err()
}

func (r *RedisAdapter) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
