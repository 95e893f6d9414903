// Package dedup implements the shared visited-set over a backing cache.
package dedup

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/crawlfleet/crawlfleet/internal/crawl"
)

// visitedKey is the Redis hash holding one field per visited URL.
const visitedKey = "visited_urls"

// Config carries Redis connection parameters.
type Config struct {
	Host string
	Port int
	DB   int
}

// RedisStore implements crawl.DedupStore against a shared Redis hash.
// It offers no cross-agent atomicity: Exists and Mark are independent
// round-trips by contract.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials Redis and verifies the link with a ping. A
// failure here is a transport fault: no agent should start without a
// reachable visited-set.
func NewRedisStore(ctx context.Context, cfg Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		DB:   cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, &crawl.TransportError{Op: "redis ping", Err: err}
	}
	return &RedisStore{client: client}, nil
}

// Exists reports whether key was already marked visited.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	visited, err := s.client.HExists(ctx, visitedKey, key).Result()
	if err != nil {
		return false, fmt.Errorf("dedup exists %q: %w", key, err)
	}
	return visited, nil
}

// Mark records key as visited. Once marked, a key is never un-marked.
func (s *RedisStore) Mark(ctx context.Context, key string) error {
	if err := s.client.HSet(ctx, visitedKey, key, "true").Err(); err != nil {
		return fmt.Errorf("dedup mark %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}
