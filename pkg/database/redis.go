package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the connection settings for the redis payment-status
// store. The same connection also backs the worker's processed-message marks.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int

	// PoolSize caps concurrent connections; 0 uses the go-redis default.
	// Status writes are single-key operations, so a worker rarely needs
	// more than a handful.
	PoolSize int
}

// DefaultRedisConfig returns the local-development defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Host:     "localhost",
		Port:     6379,
		Password: "",
		DB:       0,
		PoolSize: 10,
	}
}

// Addr returns the Redis address string.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewRedisClient connects and verifies the connection. Saga status reads sit
// on the request path of the payment API, so the ping is bounded rather than
// inheriting an unbounded startup context.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
