package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wonny/arena/pkg/config"
)

// Client wraps the Redis client with additional utilities
// ⭐ SSOT: Redis 연결은 여기서만 관리
type Client struct {
	rdb     *redis.Client
	enabled bool
	prefix  string
}

// New creates a new Redis client. A disabled config yields a no-op client.
func New(cfg *config.Config) (*Client, error) {
	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "arena"
	}

	if !cfg.Redis.Enabled {
		return &Client{enabled: false, prefix: prefix}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Client{
		rdb:     rdb,
		enabled: true,
		prefix:  prefix,
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

// Enabled returns whether Redis is enabled
func (c *Client) Enabled() bool {
	return c.enabled
}

// Prefix returns the key namespace shared by caches, limiters and channels
func (c *Client) Prefix() string {
	return c.prefix
}

// Ping checks the connection (always nil when disabled)
func (c *Client) Ping(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

// Publish sends payload on the namespaced channel
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	if !c.enabled {
		return nil
	}
	return c.rdb.Publish(ctx, ChannelName(c.prefix, channel), payload).Err()
}

// Redis returns the underlying redis client for advanced usage
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// ChannelName builds the pub/sub channel for a namespace
func ChannelName(prefix, channel string) string {
	return fmt.Sprintf("%s:%s", prefix, channel)
}
