package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a key is absent or has expired.
var ErrNotFound = errors.New("cache: key not found")

// Cache stores short-lived byte values under string keys.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisCache keeps entries in Redis under a common key prefix.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects to Redis and checks the connection with a PING.
func NewRedisCache(ctx context.Context, addr, password string, db int, prefix string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client, prefix: prefix}, nil
}

func (r *RedisCache) key(k string) string {
	return r.prefix + k
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}

// InMemoryCache is the single-process fallback used when no Redis address is configured.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
	now  func() time.Time
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
		now:  time.Now,
	}
}

// WithClock replaces the time source used for expiry checks.
func (m *InMemoryCache) WithClock(now func() time.Time) *InMemoryCache {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

func (m *InMemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !m.now().Before(entry.expiresAt) {
		delete(m.data, key)
		return nil, ErrNotFound
	}

	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

func (m *InMemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = cacheEntry{
		value:     stored,
		expiresAt: m.now().Add(ttl),
	}
	return nil
}

func (m *InMemoryCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

// GetJSON reads key and decodes it into dest.
func GetJSON(ctx context.Context, c Cache, key string, dest any) error {
	data, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// SetJSON encodes value and stores it under key for ttl.
func SetJSON(ctx context.Context, c Cache, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.Set(ctx, key, data, ttl)
}
