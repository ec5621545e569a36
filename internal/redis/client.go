package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pyquest-jobs/internal/config"
	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis connection used for snapshot reads and rate limiting
type Client struct {
	client *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewClient connects to Redis
func NewClient(cfg *config.RedisConfig, logger *slog.Logger) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewFromClient(client, logger), nil
}

// NewFromClient wraps an existing go-redis client
func NewFromClient(client *redis.Client, logger *slog.Logger) *Client {
	return &Client{
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// Ping checks Redis connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
