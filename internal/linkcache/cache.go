package linkcache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned for unknown or expired tokens.
var ErrNotFound = errors.New("linkcache: token not found")

// Cache maps short-lived random tokens to file bytes so a stored file can be
// exposed at a fetchable URL for one outbound send. Entries self-expire;
// there is no renewal on access. Tokens are unpredictable but this is not an
// authentication boundary.
type Cache interface {
	Publish(ctx context.Context, data []byte) (string, error)
	Resolve(ctx context.Context, token string) ([]byte, error)
}

// newToken combines a timestamp with a random component.
func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("linkcache: token entropy: %w", err)
	}
	return fmt.Sprintf("%x-%s", time.Now().UnixNano(), hex.EncodeToString(buf)), nil
}

// RedisCache keeps published bytes in Redis with a TTL.
type RedisCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if client == nil {
		panic("linkcache: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisCache{redis: client, ttl: ttl}
}

func linkKey(token string) string {
	return "ephemeral_link:" + token
}

func (c *RedisCache) Publish(ctx context.Context, data []byte) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	if err := c.redis.Set(ctx, linkKey(token), data, c.ttl).Err(); err != nil {
		return "", fmt.Errorf("linkcache: publish: %w", err)
	}
	return token, nil
}

func (c *RedisCache) Resolve(ctx context.Context, token string) ([]byte, error) {
	data, err := c.redis.Get(ctx, linkKey(token)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("linkcache: resolve: %w", err)
	}
	return data, nil
}

// MemoryCache is the single-process implementation. Every entry schedules
// its own invalidation; reads also check the deadline so a slow timer can
// never serve an expired token.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemoryCache) Publish(ctx context.Context, data []byte) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.entries[token] = memoryEntry{data: data, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()

	time.AfterFunc(c.ttl, func() {
		c.mu.Lock()
		delete(c.entries, token)
		c.mu.Unlock()
	})
	return token, nil
}

func (c *MemoryCache) Resolve(ctx context.Context, token string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[token]
	if !ok || c.now().After(entry.expires) {
		delete(c.entries, token)
		return nil, ErrNotFound
	}
	return entry.data, nil
}
