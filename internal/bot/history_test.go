package bot

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altiplano-labs/archivador/internal/ai"
)

func newHistoryStore(t *testing.T) (*RedisHistoryStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisHistoryStore(client, 24*time.Hour), mr
}

func TestHistoryRoundTrip(t *testing.T) {
	store, _ := newHistoryStore(t)
	ctx := context.Background()

	history := []ai.ChatMessage{
		{Role: ai.ChatRoleUser, Content: "hola"},
		{Role: ai.ChatRoleAssistant, Content: "¡Hola! ¿En qué te ayudo?"},
	}
	require.NoError(t, store.Save(ctx, "+5215512345678", history))

	got, err := store.Load(ctx, "+5215512345678")
	require.NoError(t, err)
	assert.Equal(t, history, got)
}

func TestHistoryUnknownConversation(t *testing.T) {
	store, _ := newHistoryStore(t)

	got, err := store.Load(context.Background(), "+10000000000")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHistoryExpires(t *testing.T) {
	store, mr := newHistoryStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "+5215512345678", []ai.ChatMessage{{Role: ai.ChatRoleUser, Content: "hola"}}))
	mr.FastForward(25 * time.Hour)

	got, err := store.Load(ctx, "+5215512345678")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestHistoryTrimsToRecentTurns(t *testing.T) {
	store, _ := newHistoryStore(t)
	ctx := context.Background()

	var history []ai.ChatMessage
	for i := 0; i < 30; i++ {
		history = append(history, ai.ChatMessage{Role: ai.ChatRoleUser, Content: fmt.Sprintf("mensaje %d", i)})
	}
	require.NoError(t, store.Save(ctx, "+5215512345678", history))

	got, err := store.Load(ctx, "+5215512345678")
	require.NoError(t, err)
	require.Len(t, got, maxHistoryTurns)
	assert.Equal(t, "mensaje 29", got[len(got)-1].Content)
}
