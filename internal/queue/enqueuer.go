package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsp-disbursement/internal/domain/job"
)

// Publisher writes one message to a queue
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, value interface{}) error
}

// Enqueuer routes and publishes jobs. It does not wait for processing.
type Enqueuer struct {
	router    *Router
	publisher Publisher
	logger    *slog.Logger
}

func NewEnqueuer(logger *slog.Logger, router *Router, publisher Publisher) *Enqueuer {
	return &Enqueuer{router: router, publisher: publisher, logger: logger}
}

// Enqueue publishes the job to its routed queue and returns the queue name
func (e *Enqueuer) Enqueue(ctx context.Context, j *job.Job) (string, error) {
	queue := e.router.Route(j.Provider, j.BulkSize)
	return queue, e.EnqueueTo(ctx, queue, j)
}

// EnqueueTo publishes the job to a given queue. Jobs of the same beneficiary and
// payment cycle share a partition key.
func (e *Enqueuer) EnqueueTo(ctx context.Context, queue string, j *job.Job) error {
	if err := j.Validate(); err != nil {
		return err
	}
	if err := e.publisher.Publish(ctx, queue, j.PairKey(), j); err != nil {
		return fmt.Errorf("failed to enqueue job %s to %s: %w", j.IdempotencyKey, queue, err)
	}

	e.logger.Debug("Enqueued job",
		"queue", queue,
		"idempotency_key", j.IdempotencyKey,
		"program_id", j.ProgramID,
		"is_retry", j.IsRetry,
	)
	return nil
}
