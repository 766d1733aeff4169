package persistence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bsm/redislock"
	"github.com/fsp-disbursement/internal/config"
	"github.com/redis/go-redis/v9"
)

// RedisDB holds the Redis client used for rate-limiter counters and pair locks
type RedisDB struct {
	client *redis.Client
	locker *redislock.Client
	logger *slog.Logger
}

func NewRedisDB(ctx context.Context, logger *slog.Logger, cfg *config.RedisConfig) (*RedisDB, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("Connected to Redis", "addr", cfg.Addr, "db", cfg.DB)

	return &RedisDB{
		client: client,
		locker: redislock.New(client),
		logger: logger,
	}, nil
}

func (r *RedisDB) Client() *redis.Client {
	return r.client
}

// Locker returns the distributed lock client sharing the same connection pool
func (r *RedisDB) Locker() *redislock.Client {
	return r.locker
}

func (r *RedisDB) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}
	r.logger.Info("Closed Redis connection")
	return nil
}
