package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *RedisCache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, zerolog.Nop())
}

func TestGet_MissReturnsFalseNotError(t *testing.T) {
	c := newTestCache(t)
	val, found, err := c.Get(t.Context(), "missing")
	require.NoError(t, err)
	require.False(t, found)
	require.Empty(t, val)
}

func TestSetExThenGet_RoundTrips(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.SetEx(t.Context(), "k", time.Minute, "v"))

	val, found, err := c.Get(t.Context(), "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v", val)
}

func TestKeyBuilders_AreStableAndNamespaced(t *testing.T) {
	require.Equal(t, "baseline:mon-1:14", BaselineKey("mon-1", 14))
	require.Equal(t, "llm:response:abc123", LLMResponseKey("abc123"))
	require.Equal(t, "repo:meta:group/payments", RepoMetaKey("group/payments"))
}
