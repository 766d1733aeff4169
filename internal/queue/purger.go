package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fsp-disbursement/internal/platform/metrics"
)

// ErrPurgeForbidden is returned when a purge is requested in production
var ErrPurgeForbidden = errors.New("purging queues is not allowed in production")

// TopicRecreator drops every pending message of the given queues
type TopicRecreator interface {
	RecreateTopics(ctx context.Context, topics ...string) error
}

// StatePurger clears the rate-limiter state held outside the queues
type StatePurger interface {
	Purge(ctx context.Context) (int, error)
}

// PurgeResult reports what a purge removed
type PurgeResult struct {
	Queues          []string `json:"queues"`
	RateLimiterKeys int      `json:"rate_limiter_keys"`
}

// Purger empties all queues together with their rate-limiter counters
type Purger struct {
	topics     TopicRecreator
	state      StatePurger
	queues     []string
	production bool
	logger     *slog.Logger
}

func NewPurger(logger *slog.Logger, topics TopicRecreator, state StatePurger, queues []string, production bool) *Purger {
	return &Purger{
		topics:     topics,
		state:      state,
		queues:     queues,
		production: production,
		logger:     logger,
	}
}

// PurgeAll recreates every queue and then clears the limiter. The limiter is cleared even
// when the queues could not be recreated so no counters outlive a partial purge.
func (p *Purger) PurgeAll(ctx context.Context) (PurgeResult, error) {
	if p.production {
		return PurgeResult{}, ErrPurgeForbidden
	}

	result := PurgeResult{Queues: p.queues}
	p.logger.Warn("Purging all queues", "queues", p.queues)

	topicErr := p.topics.RecreateTopics(ctx, p.queues...)
	if topicErr != nil {
		topicErr = fmt.Errorf("failed to purge queues: %w", topicErr)
	}

	deleted, stateErr := p.state.Purge(ctx)
	result.RateLimiterKeys = deleted
	if stateErr != nil {
		stateErr = fmt.Errorf("failed to purge rate limiter state: %w", stateErr)
	}

	if err := errors.Join(topicErr, stateErr); err != nil {
		p.logger.Error("Queue purge incomplete", "error", err)
		return result, err
	}

	metrics.QueuePurges.Inc()
	p.logger.Info("Purged all queues", "queues", len(p.queues), "rate_limiter_keys", deleted)
	return result, nil
}
