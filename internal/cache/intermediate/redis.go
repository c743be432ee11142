package intermediate

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on a Redis-compatible server. Keys carry a
// namespace prefix so intermediate entries never collide with the other
// tiers sharing the same database.
type RedisStore struct {
	client    redis.UniversalClient
	namespace string
}

// NewRedisStore creates a Redis-backed store. Namespace defaults to "tier3".
func NewRedisStore(client redis.UniversalClient, namespace string) *RedisStore {
	if namespace == "" {
		namespace = "tier3"
	}
	return &RedisStore{client: client, namespace: namespace}
}

func (s *RedisStore) fullKey(key string) string {
	return s.namespace + ":" + key
}

// Get returns the entry for key, or nil when absent or expired.
func (s *RedisStore) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.client.Get(ctx, s.fullKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	return &entry, nil
}

// Set unconditionally overwrites the entry for key.
func (s *RedisStore) Set(ctx context.Context, key string, entry *Entry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if err := s.client.Set(ctx, s.fullKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key and reports whether it existed.
func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, s.fullKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return n > 0, nil
}

// DeleteByPrefix removes every key with the given prefix using an
// incremental SCAN so large keyspaces are never blocked.
func (s *RedisStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	pattern := s.fullKey(prefix) + "*"
	removed := 0

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return removed, fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			n, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("redis del: %w", err)
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return removed, nil
}

// Len returns the number of namespaced intermediate entries.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	count := 0
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.namespace+":*", 100).Result()
		if err != nil {
			return count, fmt.Errorf("redis scan: %w", err)
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return count, nil
}
