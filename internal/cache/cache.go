// Package cache provides a read-through cache with tag-based invalidation
// over a pluggable persistent key-value Store.
//
// Cache-layer failures never reach callers: a store error is logged and
// treated as a miss or a no-op. Errors from the fetch function of
// CacheOrFetch are returned unchanged.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"gitlab.com/yelinaung/mess-bot/internal/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Tags shared by the services that cache derived reads.
const (
	TagPayments = "payments"
	TagBoarders = "boarders"
	TagStats    = "stats"
	TagExpenses = "expenses"
)

// Cache is a typed facade over a Store.
type Cache struct {
	store   Store
	now     func() time.Time
	lookups metric.Int64Counter
}

// New creates a Cache backed by store.
func New(store Store) *Cache {
	lookups, err := otel.Meter("gitlab.com/yelinaung/mess-bot/internal/cache").Int64Counter(
		"mess.cache.lookups",
		metric.WithDescription("Cache lookups by result"),
	)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Failed to create cache lookup counter")
	}
	return &Cache{store: store, now: time.Now, lookups: lookups}
}

// Store returns the underlying store.
func (c *Cache) Store() Store {
	return c.store
}

func (c *Cache) record(ctx context.Context, result string) {
	if c.lookups != nil {
		c.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}
}

// Set stores v under key and adds key to each tag. Methods on a nil
// Cache are no-ops.
func (c *Cache) Set(ctx context.Context, key string, v any, tags ...string) {
	if c == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		logger.Log.Warn().Err(err).Str("key", key).Msg("Failed to encode cache value")
		return
	}
	if err := c.store.Set(ctx, key, Entry{Data: data, Timestamp: c.now()}); err != nil {
		logger.Log.Warn().Err(err).Str("key", key).Msg("Failed to write cache entry")
		return
	}
	if len(tags) == 0 {
		return
	}
	if err := c.store.Tag(ctx, key, tags...); err != nil {
		logger.Log.Warn().Err(err).Str("key", key).Strs("tags", tags).Msg("Failed to tag cache entry")
	}
}

// Get returns the value stored under key. found is false on a miss, on a
// store error and when the stored value cannot be decoded into T.
func Get[T any](ctx context.Context, c *Cache, key string) (value T, found bool) {
	if c == nil {
		return value, false
	}
	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		logger.Log.Warn().Err(err).Str("key", key).Msg("Failed to read cache entry")
		c.record(ctx, "error")
		return value, false
	}
	if !ok {
		c.record(ctx, "miss")
		return value, false
	}
	if err := json.Unmarshal(entry.Data, &value); err != nil {
		logger.Log.Warn().Err(err).Str("key", key).Msg("Failed to decode cache entry")
		c.record(ctx, "error")
		var zero T
		return zero, false
	}
	c.record(ctx, "hit")
	return value, true
}

// Invalidate deletes the given keys.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if c == nil || len(keys) == 0 {
		return
	}
	if err := c.store.Delete(ctx, keys...); err != nil {
		logger.Log.Warn().Err(err).Strs("keys", keys).Msg("Failed to invalidate cache keys")
	}
}

// InvalidateTags deletes every key carrying one of the tags, then the tags.
func (c *Cache) InvalidateTags(ctx context.Context, tags ...string) {
	if c == nil {
		return
	}
	for _, tag := range tags {
		keys, err := c.store.KeysForTag(ctx, tag)
		if err != nil {
			logger.Log.Warn().Err(err).Str("tag", tag).Msg("Failed to list tagged cache keys")
			continue
		}
		c.Invalidate(ctx, keys...)
		if err := c.store.DropTag(ctx, tag); err != nil {
			logger.Log.Warn().Err(err).Str("tag", tag).Msg("Failed to drop cache tag")
		}
		logger.Log.Debug().Str("tag", tag).Int("keys", len(keys)).Msg("Cache tag invalidated")
	}
}

// Clear drops every entry and tag.
func (c *Cache) Clear(ctx context.Context) {
	if c == nil {
		return
	}
	if err := c.store.Clear(ctx); err != nil {
		logger.Log.Warn().Err(err).Msg("Failed to clear cache")
	}
}

// CacheOrFetch returns the cached value for key, or calls fetch, stores its
// result under key with the given tags and returns it. forceRefresh deletes
// any cached value first so fetch always runs. A nil Cache always fetches.
func CacheOrFetch[T any](
	ctx context.Context,
	c *Cache,
	key string,
	fetch func(context.Context) (T, error),
	forceRefresh bool,
	tags ...string,
) (T, error) {
	if c == nil {
		return fetch(ctx)
	}

	if forceRefresh {
		c.Invalidate(ctx, key)
	} else if v, ok := Get[T](ctx, c, key); ok {
		return v, nil
	}

	v, err := fetch(ctx)
	if err != nil {
		return v, err
	}
	c.Set(ctx, key, v, tags...)
	return v, nil
}
