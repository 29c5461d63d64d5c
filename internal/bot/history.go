package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/altiplano-labs/archivador/internal/ai"
)

// maxHistoryTurns bounds the prompt size for the conversational fallback.
const maxHistoryTurns = 20

// HistoryStore keeps the rolling chat context for one conversation.
type HistoryStore interface {
	Load(ctx context.Context, conversationID string) ([]ai.ChatMessage, error)
	Save(ctx context.Context, conversationID string, history []ai.ChatMessage) error
}

// RedisHistoryStore persists history as one JSON blob per conversation with
// a TTL, so idle conversations forget themselves.
type RedisHistoryStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func NewRedisHistoryStore(client *redis.Client, ttl time.Duration) *RedisHistoryStore {
	if client == nil {
		panic("bot: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisHistoryStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("archivador.internal.bot.history"),
	}
}

func conversationKey(id string) string {
	return fmt.Sprintf("conversation:%s", id)
}

func (s *RedisHistoryStore) Load(ctx context.Context, conversationID string) ([]ai.ChatMessage, error) {
	ctx, span := s.tracer.Start(ctx, "bot.load_history")
	defer span.End()

	data, err := s.redis.Get(ctx, conversationKey(conversationID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("bot: failed to load history: %w", err)
	}

	var history []ai.ChatMessage
	if err := json.Unmarshal(data, &history); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("bot: failed to decode history: %w", err)
	}
	return history, nil
}

func (s *RedisHistoryStore) Save(ctx context.Context, conversationID string, history []ai.ChatMessage) error {
	ctx, span := s.tracer.Start(ctx, "bot.save_history")
	defer span.End()

	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	data, err := json.Marshal(history)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("bot: failed to marshal history: %w", err)
	}
	if err := s.redis.Set(ctx, conversationKey(conversationID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("bot: failed to persist history: %w", err)
	}
	return nil
}
