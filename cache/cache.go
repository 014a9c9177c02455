// Package cache provides the conversation cache client: a flat key→JSON-blob
// store on Redis with last-writer-wins semantics. There is no versioning and
// no compare-and-swap; concurrent writers race by design of the protocol.
//
// All store/retrieve failures are swallowed and logged. Callers receive an
// empty result and must treat it as not-found, never as a distinct failure
// signal.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config holds the Redis connection settings for the conversation cache.
type Config struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		Addr:     "localhost:6379",
		PoolSize: 10,
	}
}

// Client is the conversation cache client.
type Client struct {
	redis  *redis.Client
	logger *zap.Logger
}

// New creates a cache client and verifies connectivity.
func New(config Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("cache client connected", zap.String("addr", config.Addr))

	return &Client{
		redis:  client,
		logger: logger.With(zap.String("component", "cache")),
	}, nil
}

// Store writes a serialized value under key, overwriting any previous value.
// Failures are logged and reported as false, never as an error to the caller.
func (c *Client) Store(ctx context.Context, key string, value []byte) bool {
	if len(value) == 0 {
		c.logger.Warn("no value to store", zap.String("key", key))
		return false
	}
	if err := c.redis.Set(ctx, key, value, 0).Err(); err != nil {
		c.logger.Error("failed to store value",
			zap.String("key", key),
			zap.Error(err),
		)
		return false
	}
	return true
}

// Retrieve reads the value under key. An unknown key and a transport failure
// both yield an empty result; failures are logged.
func (c *Client) Retrieve(ctx context.Context, key string) []byte {
	value, err := c.redis.Get(ctx, key).Bytes()
	switch {
	case err == redis.Nil:
		c.logger.Warn("no value found", zap.String("key", key))
		return nil
	case err != nil:
		c.logger.Error("failed to retrieve value",
			zap.String("key", key),
			zap.Error(err),
		)
		return nil
	}
	return value
}

// Delete removes the value under key and reports whether a key was deleted.
func (c *Client) Delete(ctx context.Context, key string) bool {
	deleted, err := c.redis.Del(ctx, key).Result()
	if err != nil {
		c.logger.Error("failed to delete key",
			zap.String("key", key),
			zap.Error(err),
		)
		return false
	}
	return deleted == 1
}

// Ping checks cache connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close releases the underlying Redis connection pool.
func (c *Client) Close() error {
	return c.redis.Close()
}
