package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsp-disbursement/internal/domain/job"
	"github.com/panjf2000/ants/v2"
)

// QueueWorkerPool runs the jobs of one queue on a bounded pool.
// The pool size is the queue's maximum concurrency.
type QueueWorkerPool struct {
	queue       string
	baseService ProcessingService
	limiter     RateLimiter
	pool        *ants.Pool
	logger      *slog.Logger
}

type WorkerPoolConfig struct {
	Queue string
	Size  int
}

func NewQueueWorkerPool(
	baseService ProcessingService,
	limiter RateLimiter,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*QueueWorkerPool, error) {
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool for %s: %w", config.Queue, err)
	}

	return &QueueWorkerPool{
		queue:       config.Queue,
		baseService: baseService,
		limiter:     limiter,
		pool:        pool,
		logger:      logger.With("queue", config.Queue),
	}, nil
}

// Handle waits for a rate limit slot, runs the job on the pool and returns its result
func (p *QueueWorkerPool) Handle(ctx context.Context, j *job.Job) error {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, p.queue); err != nil {
			return fmt.Errorf("rate limiter wait for %s: %w", p.queue, err)
		}
	}

	resultChan := make(chan error, 1)
	jobCopy := *j

	err := p.pool.Submit(func() {
		resultChan <- p.baseService.ProcessJob(ctx, p.queue, &jobCopy)
	})
	if err != nil {
		p.logger.Error("Failed to submit job to worker pool",
			"idempotency_key", j.IdempotencyKey,
			"error", err,
		)
		return err
	}

	select {
	case err := <-resultChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown releases the pool after running jobs finish
func (p *QueueWorkerPool) Shutdown() {
	p.logger.Info("Shutting down worker pool", "running_workers", p.pool.Running())
	p.pool.Release()
}

// Running returns the number of running workers in the pool.
func (p *QueueWorkerPool) Running() int {
	return p.pool.Running()
}

// Capacity returns the capacity of the worker pool.
func (p *QueueWorkerPool) Capacity() int {
	return p.pool.Cap()
}
