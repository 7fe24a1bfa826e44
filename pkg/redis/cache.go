package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache provides typed JSON caching utilities
// ⭐ SSOT: 캐시 헬퍼는 여기서만
type Cache struct {
	client *Client
}

// NewCache creates a new cache helper on the client's namespace
func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) key(key string) string {
	return fmt.Sprintf("%s:cache:%s", c.client.Prefix(), key)
}

// Get retrieves a cached value. A miss is (false, nil).
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get failed: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}

	return true, nil
}

// Set stores a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return c.client.Redis().Set(ctx, c.key(key), data, ttl).Err()
}

// Delete removes a cached value
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.client.Enabled() {
		return nil
	}
	return c.client.Redis().Del(ctx, c.key(key)).Err()
}

// TTLSnapshot bounds how long a mirrored snapshot outlives its publisher
const TTLSnapshot = 1 * time.Minute

// LeaderboardKey is the cache key of a competition's latest top-N snapshot
func LeaderboardKey(competitionID string) string {
	return fmt.Sprintf("leaderboard:%s", competitionID)
}

// LeaderboardChannel is the pub/sub channel for a competition's snapshots
func LeaderboardChannel(competitionID string) string {
	return fmt.Sprintf("leaderboard:%s", competitionID)
}
