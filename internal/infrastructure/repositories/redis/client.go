package redis

import (
	"context"
	"fmt"
	"time"

	"vinyl/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ClientConfig describes the redis connection used for the room store, the
// event mirror and the migration lock.
type ClientConfig struct {
	Address  string
	Password string
	DB       int
	PoolSize int
	// ConnectAttempts bounds the startup ping. Zero uses the retry default.
	ConnectAttempts int
}

func (c ClientConfig) options() *redis.Options {
	return &redis.Options{
		Addr:         c.Address,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: 1,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// NewRedisClient pings with backoff, then brings the key schema up to date.
func NewRedisClient(ctx context.Context, cfg ClientConfig, logger *zap.SugaredLogger) (*redis.Client, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	client := redis.NewClient(cfg.options())

	policy := retry.DefaultConfig()
	if cfg.ConnectAttempts > 0 {
		policy.MaxAttempts = cfg.ConnectAttempts
	}
	attempt := 0
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Debugw("redis ping failed", "address", cfg.Address, "attempt", attempt, "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Address, err)
	}

	migrateCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := Migrate(migrateCtx, client, logger); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis migrations: %w", err)
	}

	logger.Infow("connected to redis",
		"address", cfg.Address,
		"db", cfg.DB,
		"pool_size", cfg.PoolSize,
		"attempts", attempt,
	)
	return client, nil
}

func CloseRedisClient(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
