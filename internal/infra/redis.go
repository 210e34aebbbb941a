package infra

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

func redisOptions(url, clientName string, poolSize int) (*redis.Options, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if clientName != "" {
		opt.ClientName = clientName
	}
	if poolSize > 0 {
		opt.PoolSize = poolSize
	}
	return opt, nil
}

// NewRedisClient connects the client shared by idempotency keys, login rate
// limits and scheduler locks. The client name shows up in CLIENT LIST.
func NewRedisClient(ctx context.Context, url, clientName string, poolSize int) (*redis.Client, error) {
	opt, err := redisOptions(url, clientName, poolSize)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opt.Addr, err)
	}
	return client, nil
}
