package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisSelectionStore keeps pending selections in Redis so the state
// survives restarts and can be shared across instances.
type RedisSelectionStore struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisSelectionStore(client *redis.Client, ttl time.Duration) *RedisSelectionStore {
	if client == nil {
		panic("retrieval: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisSelectionStore{redis: client, ttl: ttl}
}

func selectionKey(conversationID string) string {
	return fmt.Sprintf("pending_selection:%s", conversationID)
}

func (s *RedisSelectionStore) Get(ctx context.Context, conversationID string) (*Selection, error) {
	data, err := s.redis.Get(ctx, selectionKey(conversationID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("retrieval: load selection: %w", err)
	}
	var sel Selection
	if err := json.Unmarshal(data, &sel); err != nil {
		return nil, fmt.Errorf("retrieval: decode selection: %w", err)
	}
	return &sel, nil
}

func (s *RedisSelectionStore) Put(ctx context.Context, conversationID string, sel *Selection) error {
	data, err := json.Marshal(sel)
	if err != nil {
		return fmt.Errorf("retrieval: encode selection: %w", err)
	}
	if err := s.redis.Set(ctx, selectionKey(conversationID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("retrieval: persist selection: %w", err)
	}
	return nil
}

func (s *RedisSelectionStore) Delete(ctx context.Context, conversationID string) error {
	if err := s.redis.Del(ctx, selectionKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("retrieval: delete selection: %w", err)
	}
	return nil
}

// MemorySelectionStore is the single-process fallback used in development
// and tests. Entries expire lazily on read.
type MemorySelectionStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	sel     *Selection
	expires time.Time
}

func NewMemorySelectionStore(ttl time.Duration) *MemorySelectionStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &MemorySelectionStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemorySelectionStore) Get(ctx context.Context, conversationID string) (*Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[conversationID]
	if !ok {
		return nil, nil
	}
	if s.now().After(entry.expires) {
		delete(s.entries, conversationID)
		return nil, nil
	}
	return entry.sel, nil
}

func (s *MemorySelectionStore) Put(ctx context.Context, conversationID string, sel *Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[conversationID] = memoryEntry{sel: sel, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemorySelectionStore) Delete(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, conversationID)
	return nil
}
