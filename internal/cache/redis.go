package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient is the subset of the go-redis command surface the store
// uses. *redis.Client satisfies it.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
}

var _ RedisClient = (*redis.Client)(nil)

// RedisStore keeps entries in Redis strings and tag membership in Redis
// sets. All keys live under prefix so Clear only removes this cache's data.
type RedisStore struct {
	client RedisClient
	prefix string
}

// NewRedisStore creates a RedisStore. An empty prefix defaults to "mess:cache:".
func NewRedisStore(client RedisClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "mess:cache:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) entryKey(key string) string { return s.prefix + "entry:" + key }
func (s *RedisStore) tagKey(tag string) string { return s.prefix + "tag:" + tag }
func (s *RedisStore) indexKey() string { return s.prefix + "index" }
func (s *RedisStore) tagIndexKey() string { return s.prefix + "tags" }

func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := s.client.Get(ctx, s.entryKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get: %w", err)
	}
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode entry: %w", err)
	}
	return e, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if err := s.client.Set(ctx, s.entryKey(key), string(raw), 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	if err := s.client.SAdd(ctx, s.indexKey(), key).Err(); err != nil {
		return fmt.Errorf("redis index: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	redisKeys := make([]string, len(keys))
	for i, k := range keys {
		redisKeys[i] = s.entryKey(k)
	}
	if err := s.client.Del(ctx, redisKeys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return fmt.Errorf("redis index: %w", err)
	}
	tags, err := s.client.SMembers(ctx, s.tagIndexKey()).Result()
	if err != nil {
		return fmt.Errorf("redis tag index: %w", err)
	}

	doomed := make([]string, 0, len(keys)+len(tags)+2)
	for _, k := range keys {
		doomed = append(doomed, s.entryKey(k))
	}
	for _, t := range tags {
		doomed = append(doomed, s.tagKey(t))
	}
	doomed = append(doomed, s.indexKey(), s.tagIndexKey())

	if err := s.client.Del(ctx, doomed...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RedisStore) Tag(ctx context.Context, key string, tags ...string) error {
	for _, t := range tags {
		if err := s.client.SAdd(ctx, s.tagKey(t), key).Err(); err != nil {
			return fmt.Errorf("redis sadd: %w", err)
		}
		if err := s.client.SAdd(ctx, s.tagIndexKey(), t).Err(); err != nil {
			return fmt.Errorf("redis tag index: %w", err)
		}
	}
	return nil
}

func (s *RedisStore) KeysForTag(ctx context.Context, tag string) ([]string, error) {
	keys, err := s.client.SMembers(ctx, s.tagKey(tag)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	return keys, nil
}

func (s *RedisStore) DropTag(ctx context.Context, tag string) error {
	if err := s.client.Del(ctx, s.tagKey(tag)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
