package memory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "ltm:exact:"

// RedisExactStore is an ExactStore backed by Redis. Entries are stored as
// JSON under a fingerprint-derived key with no expiry.
type RedisExactStore struct {
	client *redis.Client
}

// NewRedisExactStore creates a store on top of an existing Redis client.
func NewRedisExactStore(client *redis.Client) *RedisExactStore {
	return &RedisExactStore{client: client}
}

func (s *RedisExactStore) Get(ctx context.Context, fingerprint string) (Entry, bool, error) {
	raw, err := s.client.Get(ctx, redisKeyPrefix+fingerprint).Result()
	if err == redis.Nil {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return Entry{}, false, fmt.Errorf("decode memory entry: %w", err)
	}
	return entry, true, nil
}

func (s *RedisExactStore) Put(ctx context.Context, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode memory entry: %w", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+entry.Fingerprint, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
