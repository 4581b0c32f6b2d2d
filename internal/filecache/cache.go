// Package filecache keeps delivered certificates downloadable for a limited time.
package filecache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/burdenmint/burdenmint/internal/api"
)

const keyPrefix = "files:"

var ErrNotFound = errors.New("file not found or expired")

type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Store holds files under random ids until they expire.
type Store interface {
	Put(ctx context.Context, f File) (id string, err error)
	Get(ctx context.Context, id string) (*File, error)
}

// RedisStore keeps each file in a hash with a TTL.
type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Put(ctx context.Context, f File) (string, error) {
	id := uuid.NewString()
	key := keyPrefix + id

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, "name", f.Name, "type", f.ContentType, "data", f.Data)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("storing file: %w", err)
	}
	return id, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*File, error) {
	vals, err := s.rdb.HGetAll(ctx, keyPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("loading file: %w", err)
	}
	if len(vals) == 0 {
		return nil, ErrNotFound
	}
	return &File{Name: vals["name"], ContentType: vals["type"], Data: []byte(vals["data"])}, nil
}

// MemoryStore is the single-instance fallback when Redis is not configured.
type MemoryStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	files map[string]memEntry
}

type memEntry struct {
	file    File
	expires time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, files: make(map[string]memEntry)}
}

func (s *MemoryStore) Put(_ context.Context, f File) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for k, e := range s.files {
		if now.After(e.expires) {
			delete(s.files, k)
		}
	}
	id := uuid.NewString()
	s.files[id] = memEntry{file: f, expires: now.Add(s.ttl)}
	return id, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.files[id]
	if !ok || time.Now().After(e.expires) {
		return nil, ErrNotFound
	}
	f := e.file
	return &f, nil
}

// Handler serves GET /api/files/{fileID}.
func Handler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "fileID")
		if _, err := uuid.Parse(id); err != nil {
			api.HandleError(w, api.NewNotFoundError("file not found"))
			return
		}

		f, err := store.Get(r.Context(), id)
		if errors.Is(err, ErrNotFound) {
			api.HandleError(w, api.NewNotFoundError("file not found or expired"))
			return
		}
		if err != nil {
			api.HandleError(w, err)
			return
		}

		contentType := f.ContentType
		if contentType == "" {
			contentType = http.DetectContentType(f.Data)
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", f.Name))
		w.Header().Set("Cache-Control", "private, max-age=3600")
		w.WriteHeader(http.StatusOK)
		w.Write(f.Data)
	}
}
