package db

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/bohemiyan/LMS/internal/config"
)

// NewRedisClient initializes and returns a Redis client. A nil client means
// caching is disabled.
func NewRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if !cfg.RedisEnabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       0,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}
