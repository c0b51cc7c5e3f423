// Package cache memoizes retrieval results and hot lookups in redis.
// The cache is strictly optional: a nil or unreachable backend
// degrades every call to a miss.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"ltmc/internal/apperrors"
	"ltmc/internal/config"
	"ltmc/internal/logging"
)

// ErrMiss reports an absent key.
var ErrMiss = errors.New("cache miss")

// Cache wraps a redis client. A nil client means the cache was never
// configured; every operation then behaves as a miss or a no-op.
type Cache struct {
	client     *redis.Client
	defaultTTL time.Duration
	logger     logging.Logger
}

// Open connects to redis when configured. An empty URI yields a
// disabled cache, not an error; an unreachable backend likewise
// degrades with a WARN.
func Open(ctx context.Context, cfg config.CacheConfig, logger logging.Logger) *Cache {
	c := &Cache{
		defaultTTL: time.Duration(cfg.TTLSeconds) * time.Second,
		logger:     logger.WithComponent("cache"),
	}
	if cfg.URI == "" {
		c.logger.Info("cache backend not configured, reads go direct")
		return c
	}

	c.client = redis.NewClient(&redis.Options{
		Addr:     cfg.URI,
		Password: cfg.Password,
	})
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.logger.Warn("cache backend unreachable, reads go direct", "error", err.Error())
	}
	return c
}

// Enabled reports whether a backend was configured at all.
func (c *Cache) Enabled() bool { return c != nil && c.client != nil }

// Get loads a JSON value into dst, or reports ErrMiss.
func (c *Cache) Get(ctx context.Context, key string, dst interface{}) error {
	if !c.Enabled() {
		return ErrMiss
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		c.logger.Debug("cache get failed, treating as miss", "key", key, "error", err.Error())
		return ErrMiss
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		// A stale or foreign payload is worse than a miss. Drop it.
		_ = c.client.Del(ctx, key).Err()
		return ErrMiss
	}
	return nil
}

// Set stores a JSON value under the default TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}) {
	c.SetTTL(ctx, key, value, c.defaultTTL)
}

// SetTTL stores a JSON value with an explicit TTL. Failures are
// logged and swallowed; the cache never fails a write path.
func (c *Cache) SetTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if !c.Enabled() {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Debug("cache set skipped, value not serializable", "key", key)
		return
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.logger.Debug("cache set failed", "key", key, "error", err.Error())
	}
}

// Invalidate deletes every key matching the pattern, walking the
// keyspace with SCAN so large instances are not blocked.
func (c *Cache) Invalidate(ctx context.Context, pattern string) int64 {
	if !c.Enabled() {
		return 0
	}
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			c.logger.Debug("cache invalidation scan failed", "pattern", pattern, "error", err.Error())
			return deleted
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...).Result()
			if err != nil {
				c.logger.Debug("cache invalidation delete failed", "pattern", pattern, "error", err.Error())
				return deleted
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			return deleted
		}
	}
}

// Flush clears one key scope, or everything when scope is empty.
func (c *Cache) Flush(ctx context.Context, scope string) int64 {
	if scope == "" {
		return c.Invalidate(ctx, "*")
	}
	return c.Invalidate(ctx, scope+":*")
}

// Health reports reachability for the health surface.
func (c *Cache) Health(ctx context.Context) error {
	if !c.Enabled() {
		return apperrors.ErrCacheUnavailable
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		return apperrors.Wrap(apperrors.ErrorCodeCache, "pinging cache backend", err)
	}
	return nil
}

// Stats reports key counts per scope.
func (c *Cache) Stats(ctx context.Context) map[string]int64 {
	stats := map[string]int64{}
	if !c.Enabled() {
		return stats
	}
	for _, scope := range []string{ScopeRetrieve, ScopeChat, ScopeTodo, ScopeGraph} {
		var (
			cursor uint64
			count  int64
		)
		for {
			keys, next, err := c.client.Scan(ctx, cursor, scope+":*", 200).Result()
			if err != nil {
				break
			}
			count += int64(len(keys))
			cursor = next
			if cursor == 0 {
				break
			}
		}
		stats[scope] = count
	}
	return stats
}

// Close releases the client.
func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}
