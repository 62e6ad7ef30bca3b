// Package lock provides the expiring job leases that keep two migration jobs from
// running against the same target version.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tracekeeper/internal/trace/ports"
	"tracekeeper/pkg/platform/sentinel"
)

const keyPrefix = "tracekeeper:lease:"

// releaseScript deletes the lease only if it still holds our token, so an expired
// lease taken over by another job is never released by the previous holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript resets the expiry only while the lease still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLock grants leases with SET NX PX.
type RedisLock struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisLock {
	return &RedisLock{client: client}
}

// Acquire takes the lease on key for ttl or fails with sentinel.ErrAlreadyUsed.
func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (ports.Lease, error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, redisKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w: %w", key, sentinel.ErrUnavailable, err)
	}
	if !ok {
		return nil, fmt.Errorf("acquire lease %s: %w", key, sentinel.ErrAlreadyUsed)
	}
	return &redisLease{client: l.client, key: key, redisKey: redisKey, token: token}, nil
}

type redisLease struct {
	client   *redis.Client
	key      string
	redisKey string
	token    string
}

func (r *redisLease) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendScript.Run(ctx, r.client, []string{r.redisKey}, r.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("extend lease %s: %w: %w", r.key, sentinel.ErrUnavailable, err)
	}
	if n == 0 {
		return fmt.Errorf("extend lease %s: %w", r.key, sentinel.ErrNotFound)
	}
	return nil
}

func (r *redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.redisKey}, r.token).Err(); err != nil {
		return fmt.Errorf("release lease %s: %w", r.key, err)
	}
	return nil
}
