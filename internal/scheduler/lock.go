package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Release gives a lock back.
type Release func(context.Context) error

// Locker grants exclusive, expiring ownership of a key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (Release, bool, error)
}

// unlockScript deletes the key only while it still holds our token, so an
// expired holder cannot release a lock someone else has since taken.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker coordinates tasks across replicas with SET NX PX.
type RedisLocker struct {
	client *redis.Client
}

// NewRedisLocker returns a locker backed by client.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// TryLock attempts to take key for ttl without blocking.
func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (Release, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	return func(ctx context.Context) error {
		return unlockScript.Run(ctx, l.client, []string{key}, token).Err()
	}, true, nil
}

// LocalLocker serialises tasks within one process.
type LocalLocker struct {
	held *sync.Map
}

// NewLocalLocker returns an in-process locker.
func NewLocalLocker() LocalLocker {
	return LocalLocker{held: &sync.Map{}}
}

// TryLock takes key unless this process already holds it. The zero value
// never contends.
func (l LocalLocker) TryLock(_ context.Context, key string, _ time.Duration) (Release, bool, error) {
	if l.held == nil {
		return func(context.Context) error { return nil }, true, nil
	}
	if _, loaded := l.held.LoadOrStore(key, struct{}{}); loaded {
		return nil, false, nil
	}
	return func(context.Context) error {
		l.held.Delete(key)
		return nil
	}, true, nil
}
