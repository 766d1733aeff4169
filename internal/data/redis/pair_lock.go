package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/fsp-disbursement/internal/domain/job"
)

type releaser interface {
	Release(ctx context.Context) error
}

type lockObtainer interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (releaser, error)
}

type redislockObtainer struct {
	client *redislock.Client
}

func (o redislockObtainer) Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (releaser, error) {
	return o.client.Obtain(ctx, key, ttl, opt)
}

// PairLocker serializes jobs of one beneficiary and payment cycle across replicas
type PairLocker struct {
	obtainer lockObtainer
	prefix   string
	ttl      time.Duration
	logger   *slog.Logger
}

func NewPairLocker(logger *slog.Logger, client *redislock.Client, prefix string, ttl time.Duration) *PairLocker {
	return &PairLocker{
		obtainer: redislockObtainer{client: client},
		prefix:   prefix,
		ttl:      ttl,
		logger:   logger,
	}
}

// Lock takes the lock for a pair key without waiting. A held lock returns job.ErrPairBusy.
// The returned function releases the lock.
func (p *PairLocker) Lock(ctx context.Context, pairKey string) (func(context.Context), error) {
	key := fmt.Sprintf("%s:lock:%s", p.prefix, pairKey)

	lock, err := p.obtainer.Obtain(ctx, key, p.ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, fmt.Errorf("%w: %s", job.ErrPairBusy, pairKey)
		}
		return nil, fmt.Errorf("failed to obtain pair lock %s: %w", key, err)
	}

	return func(ctx context.Context) {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			p.logger.Warn("Failed to release pair lock", "key", key, "error", err)
		}
	}, nil
}
