package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Claves fijas del registro de sesion persistido.
const (
	storageKeyToken = "authToken"
	storageKeyRole  = "userRole"
	storageKeyUser  = "user"
)

var sessionStorageKeys = []string{storageKeyToken, storageKeyRole, storageKeyUser}

// StateStorage es el almacen clave/valor de strings de un contexto de navegacion.
type StateStorage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

type memoryStateStorage struct {
	mu    sync.Mutex
	items map[string]memoryEntry
}

func NewMemoryStateStorage() StateStorage {
	return &memoryStateStorage{
		items: make(map[string]memoryEntry),
	}
}

func (s *memoryStateStorage) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[key]
	if !ok {
		return "", false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().UTC().After(entry.expiresAt) {
		delete(s.items, key)
		return "", false, nil
	}
	return entry.value, true, nil
}

func (s *memoryStateStorage) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(key) == "" {
		return nil
	}
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().UTC().Add(ttl)
	}
	s.items[key] = entry
	return nil
}

func (s *memoryStateStorage) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.items, key)
	}
	return nil
}

type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisStateStorage struct {
	client redisKV
	prefix string
}

// NewRedisStateStorage guarda el estado bajo el prefijo turbotalk:.
func NewRedisStateStorage(client *redis.Client) StateStorage {
	if client == nil {
		return nil
	}
	return &redisStateStorage{
		client: client,
		prefix: "turbotalk:",
	}
}

func (s *redisStateStorage) Get(ctx context.Context, key string) (string, bool, error) {
	if strings.TrimSpace(key) == "" {
		return "", false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	val, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *redisStateStorage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return s.client.Set(ctx, s.prefix+key, value, ttl).Err()
}

func (s *redisStateStorage) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, key := range keys {
		full = append(full, s.prefix+key)
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return s.client.Del(ctx, full...).Err()
}

// scopedStorage aisla las claves de un cliente dentro de un almacen compartido.
type scopedStorage struct {
	inner StateStorage
	scope string
}

func ScopeStorage(inner StateStorage, clientID string) StateStorage {
	return &scopedStorage{inner: inner, scope: "client:" + clientID + ":"}
}

func (s *scopedStorage) Get(ctx context.Context, key string) (string, bool, error) {
	return s.inner.Get(ctx, s.scope+key)
}

func (s *scopedStorage) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.inner.Set(ctx, s.scope+key, value, ttl)
}

func (s *scopedStorage) Delete(ctx context.Context, keys ...string) error {
	scoped := make([]string, 0, len(keys))
	for _, key := range keys {
		scoped = append(scoped, s.scope+key)
	}
	return s.inner.Delete(ctx, scoped...)
}
