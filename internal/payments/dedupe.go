package payments

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dedupeKeyPrefix = "payments:seen:"
	dedupeTTL       = 7 * 24 * time.Hour
)

// Deduper remembers processed invoices so a retried webhook mints one certificate.
type Deduper interface {
	// Claim returns true the first time key is seen.
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets key so a later retry can claim it again.
	Release(ctx context.Context, key string) error
}

type RedisDeduper struct {
	rdb redis.Cmdable
}

func NewRedisDeduper(rdb redis.Cmdable) *RedisDeduper {
	return &RedisDeduper{rdb: rdb}
}

func (d *RedisDeduper) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, dedupeKeyPrefix+key, time.Now().UTC().Format(time.RFC3339), dedupeTTL).Result()
	if err != nil {
		return false, fmt.Errorf("claiming invoice %s: %w", key, err)
	}
	return ok, nil
}

func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	return d.rdb.Del(ctx, dedupeKeyPrefix+key).Err()
}

// MemoryDeduper is the single-instance fallback when Redis is not configured.
type MemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func NewMemoryDeduper() *MemoryDeduper {
	return &MemoryDeduper{seen: make(map[string]time.Time)}
}

func (d *MemoryDeduper) Claim(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for k, at := range d.seen {
		if now.Sub(at) > dedupeTTL {
			delete(d.seen, k)
		}
	}
	if _, ok := d.seen[key]; ok {
		return false, nil
	}
	d.seen[key] = now
	return true, nil
}

func (d *MemoryDeduper) Release(_ context.Context, key string) error {
	d.mu.Lock()
	delete(d.seen, key)
	d.mu.Unlock()
	return nil
}
