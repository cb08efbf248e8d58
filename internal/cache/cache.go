// Package cache implements the key/value-with-TTL cache used by the
// baseline engine, the source-control and code-search adapters, and
// the analysis engine's LLM-response cache, backed by Redis via
// github.com/redis/go-redis/v9.
package cache

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sentinel-ops/incident-pilot/internal/errkind"
	pilotmetrics "github.com/sentinel-ops/incident-pilot/internal/metrics"
)

// Cache is the key/value-with-TTL contract shared by every caller.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetEx(ctx context.Context, key string, ttl time.Duration, value string) error
}

// RedisCache implements Cache over a redis.UniversalClient, recording
// hit/miss counters.
type RedisCache struct {
	client redis.UniversalClient
	logger zerolog.Logger
}

// New wraps an existing redis client. Callers construct the client
// (redis.NewClient or a miniredis-backed client in tests) so that
// connection options stay in internal/config, not this package.
func New(client redis.UniversalClient, logger zerolog.Logger) *RedisCache {
	return &RedisCache{client: client, logger: logger.With().Str("component", "cache").Logger()}
}

// Get returns (value, found, error). A miss is (empty, false, nil), not an error.
func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		pilotmetrics.CacheMisses.Inc()
		return "", false, nil
	}
	if err != nil {
		pilotmetrics.CacheMisses.Inc()
		return "", false, errkind.NewDegradedExternal("cache get failed", err)
	}
	pilotmetrics.CacheHits.Inc()
	return val, true, nil
}

// SetEx stores value under key with the given TTL.
func (c *RedisCache) SetEx(ctx context.Context, key string, ttl time.Duration, value string) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return errkind.NewDegradedExternal("cache setex failed", err)
	}
	return nil
}

// Key builders shared across callers so cache keys stay consistent.

// BaselineKey builds the cache key for a monitor/hour baseline.
func BaselineKey(monitorID string, hourOfDay int) string {
	return "baseline:" + monitorID + ":" + strconv.Itoa(hourOfDay)
}

// LLMResponseKey builds the cache key for a cached LLM response.
func LLMResponseKey(promptSHA256Hex string) string {
	return "llm:response:" + promptSHA256Hex
}

// RepoMetaKey builds the cache key for cached repo metadata.
func RepoMetaKey(repository string) string {
	return "repo:meta:" + repository
}

// CodeSearchKey builds the cache key for a cached code-search result,
// scoped by the search pattern and the repository set it ran against.
func CodeSearchKey(pattern string, repositories []string) string {
	return "codesearch:" + pattern + ":" + strings.Join(repositories, ",")
}
