package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lease is a held run guard.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker guards a sweep across replicas. TryLock never blocks: ok is false
// when another holder owns the guard.
type Locker interface {
	TryLock(ctx context.Context) (lease Lease, ok bool, err error)
}

// releaseScript deletes the key only while it still carries our token, so an
// expired lease never removes a newer holder's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a SET NX PX lease on a single key.
type RedisLocker struct {
	client redis.Cmdable
	key    string
	ttl    time.Duration
}

// NewRedisLocker builds a locker on key. The lease expires after ttl even if
// the holder dies mid-run.
func NewRedisLocker(client redis.Cmdable, key string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

// TryLock acquires the lease when the key is free.
func (l *RedisLocker) TryLock(ctx context.Context) (Lease, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire sweep lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLease{client: l.client, key: l.key, token: token}, true, nil
}

type redisLease struct {
	client redis.Cmdable
	key    string
	token  string
}

func (l *redisLease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release sweep lock %s: %w", l.key, err)
	}
	return nil
}

// LocalLocker always grants the lease. Single-replica deployments rely on the
// driver's in-process guard alone.
type LocalLocker struct{}

func (LocalLocker) TryLock(context.Context) (Lease, bool, error) {
	return nopLease{}, true, nil
}

type nopLease struct{}

func (nopLease) Release(context.Context) error { return nil }
