// Package cache holds the derived-read cache and its invalidator. Durable
// state never lives here: losing the cache costs a recompute, nothing more,
// so invalidation failures are reported as warnings rather than errors.
package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/scholarxp/xp-engine/pkg/logger"
)

// Well-known invalidation scopes. A scope maps to a key prefix; callers may
// also pass raw prefixes such as "admin:" or "stats:".
const (
	ScopeAnalytics   = "analytics"
	ScopeLeaderboard = "leaderboard"
)

// InvalidationResult reports what an invalidation pass touched. Warnings
// carry per-scope failures; the pass as a whole still counts as done.
type InvalidationResult struct {
	Scopes      []string `json:"scopes"`
	KeysRemoved int64    `json:"keys_removed"`
	Warnings    []string `json:"warnings,omitempty"`
}

// OK reports whether the pass completed without warnings.
func (r InvalidationResult) OK() bool { return len(r.Warnings) == 0 }

// Invalidator removes derived read caches after a mutation.
type Invalidator interface {
	Invalidate(ctx context.Context, scopes ...string) InvalidationResult
}

// Cache is the read/write surface handlers use for derived data.
type Cache interface {
	Invalidator
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// Redis implements Cache on a Redis client. Keys are namespaced by scope
// prefix so invalidation can SCAN-and-delete per scope.
type Redis struct {
	client *redis.Client
	log    *logger.Logger
}

var _ Cache = (*Redis)(nil)

// NewRedis wraps the given client.
func NewRedis(client *redis.Client, log *logger.Logger) *Redis {
	if log == nil {
		log = logger.NewDefault("cache")
	}
	return &Redis{client: client, log: log}
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache set failed")
	}
}

// Invalidate deletes every key under each scope prefix. A scope that fails
// becomes a warning; the remaining scopes are still processed.
func (c *Redis) Invalidate(ctx context.Context, scopes ...string) InvalidationResult {
	result := InvalidationResult{Scopes: scopes}
	for _, scope := range scopes {
		removed, err := c.deletePrefix(ctx, scopePrefix(scope))
		if err != nil {
			c.log.WithError(err).WithField("scope", scope).Warn("cache invalidation failed")
			result.Warnings = append(result.Warnings, scope+": "+err.Error())
			continue
		}
		result.KeysRemoved += removed
	}
	return result
}

func (c *Redis) deletePrefix(ctx context.Context, prefix string) (int64, error) {
	var (
		cursor  uint64
		removed int64
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, prefix+"*", 200).Result()
		if err != nil {
			return removed, err
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			removed += n
			if err != nil {
				return removed, err
			}
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

func scopePrefix(scope string) string {
	switch scope {
	case ScopeAnalytics:
		return "stats:"
	case ScopeLeaderboard:
		return "leaderboard:"
	default:
		return scope
	}
}

// Memory is an in-process Cache for tests and cacheless deployments.
type Memory struct {
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

var _ Cache = (*Memory)(nil)

// NewMemory creates an empty in-process cache. Not safe for concurrent use;
// intended for single-goroutine tests.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (c *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	e, ok := c.entries[key]
	if !ok || (!e.expires.IsZero() && time.Now().After(e.expires)) {
		return nil, false
	}
	return e.value, true
}

func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}
	c.entries[key] = memoryEntry{value: value, expires: expires}
}

func (c *Memory) Invalidate(_ context.Context, scopes ...string) InvalidationResult {
	result := InvalidationResult{Scopes: scopes}
	for _, scope := range scopes {
		prefix := scopePrefix(scope)
		for key := range c.entries {
			if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
				delete(c.entries, key)
				result.KeysRemoved++
			}
		}
	}
	return result
}
