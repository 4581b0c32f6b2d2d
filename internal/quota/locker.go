package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serialises the read-modify-write of a single user's record.
// Different users never contend.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LocalLocker is an in-process keyed mutex for single-instance deployments.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyLock)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
		return func() {
			<-kl.ch
			l.release(key, kl)
		}, nil
	case <-ctx.Done():
		l.release(key, kl)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
	l.mu.Unlock()
}

const (
	lockKeyPrefix = "quota:lock:"
	lockTTL       = 5 * time.Second
	lockRetry     = 20 * time.Millisecond
	lockWait      = 10 * time.Second
)

var ErrLockTimeout = errors.New("timed out waiting for quota lock")

// releaseScript deletes the lock only if it is still held by the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker shares the per-user critical section across replicas using SET NX PX.
type RedisLocker struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisLocker(rdb redis.Cmdable) *RedisLocker {
	return &RedisLocker{rdb: rdb, ttl: lockTTL}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := lockKeyPrefix + key
	token := uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, lockWait)
	defer cancel()

	ticker := time.NewTicker(lockRetry)
	defer ticker.Stop()

	for {
		ok, err := l.rdb.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("acquiring quota lock: %w", err)
		}
		if ok {
			return func() {
				// Fresh context: the caller's may already be cancelled.
				rctx, rcancel := context.WithTimeout(context.Background(), time.Second)
				defer rcancel()
				_ = releaseScript.Run(rctx, l.rdb, []string{redisKey}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ErrLockTimeout
		case <-ticker.C:
		}
	}
}
