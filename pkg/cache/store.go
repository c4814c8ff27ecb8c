package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	appErrors "github.com/noah-isme/cbhlc-api/pkg/errors"
)

// KeyPrefix namespaces every key written by the API.
const KeyPrefix = "cbhlc:"

// Store keeps JSON payloads in Redis. A nil client makes every read a miss
// and every write a no-op, so callers need no special casing when Redis is off.
type Store struct {
	client *redis.Client
}

// NewStore wraps client.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Key joins parts under the API prefix.
func Key(parts ...string) string {
	key := KeyPrefix
	for i, p := range parts {
		if i > 0 {
			key += ":"
		}
		key += p
	}
	return key
}

// Get unmarshals the cached value into dest, returning ErrCacheMiss when absent.
func (s *Store) Get(ctx context.Context, key string, dest interface{}) error {
	if s == nil || s.client == nil {
		return appErrors.ErrCacheMiss
	}

	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return appErrors.ErrCacheMiss
		}
		return fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return nil
}

// Set stores value as JSON with the given TTL.
func (s *Store) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if s == nil || s.client == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// DeleteByPattern removes every key matching pattern.
func (s *Store) DeleteByPattern(ctx context.Context, pattern string) error {
	if s == nil || s.client == nil {
		return nil
	}

	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan %s: %w", pattern, err)
	}
	if len(batch) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, batch...).Err(); err != nil {
		return fmt.Errorf("redis delete %s: %w", pattern, err)
	}
	return nil
}
