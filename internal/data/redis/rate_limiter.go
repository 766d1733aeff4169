// Package redis holds the Redis-backed coordination used by the job processor:
// per-queue rate limiting and the per-beneficiary pair lock.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	rateLimitWindow = time.Second
	// counters outlive their window so a slow INCR+EXPIRE pair never leaves a key without TTL
	rateLimitKeyTTL = 2 * time.Second
	scanBatchSize   = 500
)

// counterStore is the subset of the Redis client the limiter uses
type counterStore interface {
	Incr(ctx context.Context, key string) *goredis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *goredis.BoolCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *goredis.ScanCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

// RateLimiter is a fixed one-second window limiter shared by every processor replica.
// Each queue has its own counter under "<prefix>:ratelimit:<queue>:<unix second>".
type RateLimiter struct {
	store     counterStore
	prefix    string
	perSecond int
	logger    *slog.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewRateLimiter creates a limiter. perSecond <= 0 disables limiting.
func NewRateLimiter(logger *slog.Logger, client *goredis.Client, prefix string, perSecond int) *RateLimiter {
	return newRateLimiter(logger, client, prefix, perSecond)
}

func newRateLimiter(logger *slog.Logger, store counterStore, prefix string, perSecond int) *RateLimiter {
	return &RateLimiter{
		store:     store,
		prefix:    prefix,
		perSecond: perSecond,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// Wait blocks until the queue may start another job in the current window
func (l *RateLimiter) Wait(ctx context.Context, queue string) error {
	if l.perSecond <= 0 {
		return nil
	}

	for {
		now := l.now()
		key := fmt.Sprintf("%s:ratelimit:%s:%d", l.prefix, queue, now.Unix())

		count, err := l.store.Incr(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("failed to increment rate limit counter %s: %w", key, err)
		}
		if count == 1 {
			if err := l.store.Expire(ctx, key, rateLimitKeyTTL).Err(); err != nil {
				l.logger.Warn("Failed to set rate limit counter TTL", "key", key, "error", err)
			}
		}
		if count <= int64(l.perSecond) {
			return nil
		}

		next := now.Truncate(rateLimitWindow).Add(rateLimitWindow)
		if err := l.sleep(ctx, next.Sub(now)); err != nil {
			return err
		}
	}
}

// Purge deletes every key this service wrote under its prefix, counters and locks alike
func (l *RateLimiter) Purge(ctx context.Context) (int, error) {
	pattern := l.prefix + ":*"
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := l.store.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to scan redis keys %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			n, err := l.store.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("failed to delete redis keys: %w", err)
			}
			deleted += int(n)
		}
		if next == 0 {
			break
		}
		cursor = next
	}

	l.logger.Info("Purged rate limiter state", "pattern", pattern, "deleted", deleted)
	return deleted, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
