package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const photoKeyPrefix = "bot:photo:"

// PhotoRegistry remembers the photo URL a user submitted until their invoice is paid.
type PhotoRegistry interface {
	Remember(ctx context.Context, userID, url string) error
	PhotoURL(ctx context.Context, userID string) (string, error)
}

type RedisPhotoRegistry struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisPhotoRegistry(rdb redis.Cmdable, ttl time.Duration) *RedisPhotoRegistry {
	return &RedisPhotoRegistry{rdb: rdb, ttl: ttl}
}

// Remember stores url for userID. An empty url forgets any earlier photo.
func (r *RedisPhotoRegistry) Remember(ctx context.Context, userID, url string) error {
	key := photoKeyPrefix + userID
	var err error
	if url == "" {
		err = r.rdb.Del(ctx, key).Err()
	} else {
		err = r.rdb.Set(ctx, key, url, r.ttl).Err()
	}
	if err != nil {
		return fmt.Errorf("remembering photo: %w", err)
	}
	return nil
}

func (r *RedisPhotoRegistry) PhotoURL(ctx context.Context, userID string) (string, error) {
	url, err := r.rdb.Get(ctx, photoKeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading photo: %w", err)
	}
	return url, nil
}

// MemoryPhotoRegistry is the single-instance fallback when Redis is not configured.
// Expired entries are swept on write at most once per minute.
type MemoryPhotoRegistry struct {
	mu        sync.Mutex
	ttl       time.Duration
	now       func() time.Time
	photos    map[string]photoEntry
	nextSweep time.Time
}

const photoSweepInterval = time.Minute

type photoEntry struct {
	url     string
	expires time.Time
}

func NewMemoryPhotoRegistry(ttl time.Duration) *MemoryPhotoRegistry {
	return &MemoryPhotoRegistry{ttl: ttl, now: time.Now, photos: make(map[string]photoEntry)}
}

func (r *MemoryPhotoRegistry) Remember(_ context.Context, userID, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.sweep(now)
	if url == "" {
		delete(r.photos, userID)
		return nil
	}
	r.photos[userID] = photoEntry{url: url, expires: now.Add(r.ttl)}
	return nil
}

func (r *MemoryPhotoRegistry) sweep(now time.Time) {
	if now.Before(r.nextSweep) {
		return
	}
	for id, e := range r.photos {
		if now.After(e.expires) {
			delete(r.photos, id)
		}
	}
	r.nextSweep = now.Add(photoSweepInterval)
}

func (r *MemoryPhotoRegistry) PhotoURL(_ context.Context, userID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.photos[userID]
	if !ok {
		return "", nil
	}
	if r.now().After(e.expires) {
		delete(r.photos, userID)
		return "", nil
	}
	return e.url, nil
}
