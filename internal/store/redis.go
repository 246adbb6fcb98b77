// redis.go -- go-redis client for session storage.
//
// Stores session data with TTL matching session expiry.
// Shared between app instances so a sign-in on one node is visible on all.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore wraps a Redis client for session operations.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to Redis and returns a ready-to-use session store.
// It pings Redis to verify connectivity before returning.
// Call once at startup from main.go...returned store is safe for concurrent use.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	rdb := redis.NewClient(opt)

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return &RedisStore{rdb}, nil
}

// Close shuts down the Redis client and releases all resources.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// CheckHealth pings Redis.
func (s *RedisStore) CheckHealth(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// SetSession stores a session under key with given TTL (in seconds).
func (s *RedisStore) SetSession(ctx context.Context, key string, sess Session, ttl int) error {
	if ttl <= 0 {
		// Redis SET with TTL=0 means no expiry, not immediate expiry.
		return fmt.Errorf("storing session: non-positive ttl %d", ttl)
	}
	out, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKey(key), out, time.Duration(ttl)*time.Second).Err(); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by key.
// Returns ErrCacheMiss if the key does not exist (or Redis already expired it).
func (s *RedisStore) GetSession(ctx context.Context, key string) (*Session, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("fetching session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("parsing session: %w", err)
	}
	return &sess, nil
}

// DeleteSession removes a session by key. Deleting a missing key is not an error.
func (s *RedisStore) DeleteSession(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, sessionKey(key)).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func sessionKey(key string) string {
	return fmt.Sprintf("session:%s", key)
}
