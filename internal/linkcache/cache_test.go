package linkcache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCachePublishResolve(t *testing.T) {
	cache := NewMemoryCache(10 * time.Minute)
	ctx := context.Background()

	token, err := cache.Publish(ctx, []byte("payload"))
	require.NoError(t, err)
	require.NotEmpty(t, token)

	data, err := cache.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryCache(10 * time.Minute)
	ctx := context.Background()

	token, err := cache.Publish(ctx, []byte("payload"))
	require.NoError(t, err)

	base := time.Now()
	cache.now = func() time.Time { return base.Add(11 * time.Minute) }

	_, err = cache.Resolve(ctx, token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCacheUnknownToken(t *testing.T) {
	cache := NewMemoryCache(10 * time.Minute)

	_, err := cache.Resolve(context.Background(), "no-such-token")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTokensAreUnique(t *testing.T) {
	cache := NewMemoryCache(10 * time.Minute)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := cache.Publish(ctx, []byte("x"))
		require.NoError(t, err)
		require.False(t, seen[token], "token %q issued twice", token)
		seen[token] = true
	}
}

func TestRedisCachePublishResolve(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewRedisCache(client, 10*time.Minute)
	ctx := context.Background()

	token, err := cache.Publish(ctx, []byte("redis payload"))
	require.NoError(t, err)

	data, err := cache.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, []byte("redis payload"), data)

	mr.FastForward(11 * time.Minute)

	_, err = cache.Resolve(ctx, token)
	assert.ErrorIs(t, err, ErrNotFound)
}
