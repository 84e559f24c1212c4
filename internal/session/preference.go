package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// PreferenceStore remembers the last active tenant of each user across
// sessions. Get returns "" when nothing is stored.
type PreferenceStore interface {
	Get(ctx context.Context, userID string) (string, error)
	Set(ctx context.Context, userID, tenantID string) error
}

const preferenceKeyPrefix = "tenantgate:active_tenant:"

// RedisPreferenceStore keeps preferences in Redis, one key per user.
type RedisPreferenceStore struct {
	c   *redis.Client
	ttl time.Duration
}

// NewRedisPreferenceStore creates a store whose keys expire after ttl. A zero
// ttl keeps keys forever.
func NewRedisPreferenceStore(c *redis.Client, ttl time.Duration) *RedisPreferenceStore {
	return &RedisPreferenceStore{c: c, ttl: ttl}
}

func (r *RedisPreferenceStore) Get(ctx context.Context, userID string) (string, error) {
	val, err := r.c.Get(ctx, preferenceKeyPrefix+userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return val, nil
}

func (r *RedisPreferenceStore) Set(ctx context.Context, userID, tenantID string) error {
	return r.c.Set(ctx, preferenceKeyPrefix+userID, tenantID, r.ttl).Err()
}

// MemoryPreferenceStore is a process-local PreferenceStore.
type MemoryPreferenceStore struct {
	mu    sync.RWMutex
	prefs map[string]string
}

func NewMemoryPreferenceStore() *MemoryPreferenceStore {
	return &MemoryPreferenceStore{prefs: make(map[string]string)}
}

func (m *MemoryPreferenceStore) Get(ctx context.Context, userID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.prefs[userID], nil
}

func (m *MemoryPreferenceStore) Set(ctx context.Context, userID, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[userID] = tenantID
	return nil
}
