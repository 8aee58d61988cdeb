package utils

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// KeyValueStore is the small slice of Redis the API server depends on. The
// in-memory implementation backs tests and local runs without Redis.
type KeyValueStore interface {
	// Get returns found=false on a missing key.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Set stores value, ttl 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type RedisStore struct {
	inner     *redis.Client
	keyParser RedisKeyParser
}

// GetRedisStore connects to the Redis specified by env and pings it.
func GetRedisStore(ctx context.Context) (*RedisStore, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT")),
		Password: os.Getenv("REDIS_PASSWD"),
		DB:       0, // use default DB
	})
	_, err := redisClient.Ping(ctx).Result()
	if err != nil {
		return nil, errors.Wrap(err, "ping redis")
	}
	return NewRedisStore(redisClient), nil
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		inner:     client,
		keyParser: RedisKeyParser{delimiter: "__"},
	}
}

func (r *RedisStore) KeyParser() RedisKeyParser {
	return r.keyParser
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	res, err := r.inner.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "redis get %s", key)
	}
	return res, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return errors.Wrapf(r.inner.Set(ctx, key, value, ttl).Err(), "redis set %s", key)
}

func (r *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return errors.Wrap(r.inner.Del(ctx, keys...).Err(), "redis del")
}

func (r *RedisStore) Close() error {
	return r.inner.Close()
}

// RedisKeyParser builds namespaced keys such as "recommendations__user_1".
type RedisKeyParser struct {
	delimiter string
}

func NewRedisKeyParser() RedisKeyParser {
	return RedisKeyParser{delimiter: "__"}
}

func (r RedisKeyParser) ValidateId(id string) bool {
	return id != "" && !strings.Contains(id, r.delimiter)
}

func (r RedisKeyParser) EncodeKey(namespace string, id string) (string, error) {
	if !r.ValidateId(namespace) || !r.ValidateId(id) {
		return "", fmt.Errorf("invalid namespace or id: %s, %s", namespace, id)
	}
	return fmt.Sprintf("%s%s%s", namespace, r.delimiter, id), nil
}

func (r RedisKeyParser) DecodeKey(key string) (string, string, error) {
	splits := strings.Split(key, r.delimiter)
	if (len(splits)) != 2 {
		return "", "", fmt.Errorf("invalid key: %s", key)
	}
	return splits[0], splits[1], nil
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryKeyValueStore is a process local KeyValueStore.
type MemoryKeyValueStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryKeyValueStore() *MemoryKeyValueStore {
	return &MemoryKeyValueStore{entries: map[string]memoryEntry{}, now: time.Now}
}

func (m *MemoryKeyValueStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok || (!e.expiresAt.IsZero() && !m.now().Before(e.expiresAt)) {
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (m *MemoryKeyValueStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *MemoryKeyValueStore) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.entries, k)
	}
	return nil
}
