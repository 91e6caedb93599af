package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/vidgate/internal/core/domain"
)

// Config holds Redis connection configuration.
type Config struct {
	URL       string        `yaml:"url"`
	Password  string        `yaml:"password"`
	KeyPrefix string        `yaml:"key_prefix"`
	HealthTTL time.Duration `yaml:"health_ttl"`
}

// Client caches health snapshots in Redis. It implements
// storage.HealthSnapshotStore.
type Client struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewClientWithRedis(rdb, cfg), nil
}

// NewClientWithRedis wraps an existing go-redis client.
func NewClientWithRedis(rdb redis.UniversalClient, cfg Config) *Client {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "vidgate"
	}
	ttl := cfg.HealthTTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Client{rdb: rdb, prefix: prefix, ttl: ttl}
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) healthKey(targetID string) string {
	return fmt.Sprintf("%s:health:%s", c.prefix, targetID)
}

// SaveHealth stores the snapshot with the configured TTL.
func (c *Client) SaveHealth(ctx context.Context, h *domain.ModelHealth) error {
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to encode health: %w", err)
	}
	if err := c.rdb.Set(ctx, c.healthKey(h.TargetID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

// LoadHealth returns the cached snapshot, or nil when absent or expired.
func (c *Client) LoadHealth(ctx context.Context, targetID string) (*domain.ModelHealth, error) {
	data, err := c.rdb.Get(ctx, c.healthKey(targetID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}

	var h domain.ModelHealth
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to decode health: %w", err)
	}
	return &h, nil
}
