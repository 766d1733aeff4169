package service

import (
	"context"

	"github.com/fsp-disbursement/internal/domain/job"
	"github.com/fsp-disbursement/internal/domain/order"
	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/fsp-disbursement/internal/domain/transaction"
	"github.com/fsp-disbursement/internal/fsp"
	"github.com/fsp-disbursement/internal/settlement"
)

// ProcessingService processes one job taken from a queue
type ProcessingService interface {
	ProcessJob(ctx context.Context, queue string, j *job.Job) error
}

// EligibilityChecker re-checks the beneficiary at dequeue time
type EligibilityChecker interface {
	Check(ctx context.Context, j *job.Job) error
}

// RetryGuard counts the failed attempts of the job's beneficiary and payment cycle
type RetryGuard interface {
	FailedAttempts(ctx context.Context, j *job.Job) (int, error)
}

// AttemptStarter creates the pending transaction and its provider order together
type AttemptStarter interface {
	Start(ctx context.Context, j *job.Job) (*transaction.Transaction, *order.ProviderOrder, error)
	AttachOrder(ctx context.Context, tx *transaction.Transaction) (*order.ProviderOrder, error)
}

// FailureRecorder writes an error row for a job that was refused before any provider call
type FailureRecorder interface {
	RecordFailure(ctx context.Context, j *job.Job, message string) error
}

// PairLocker serializes jobs of one beneficiary and payment cycle
type PairLocker interface {
	Lock(ctx context.Context, pairKey string) (func(context.Context), error)
}

// Requeuer publishes a resent job back to its queue
type Requeuer interface {
	EnqueueTo(ctx context.Context, queue string, j *job.Job) error
}

// StatusApplier applies a provider status report to an order and its transaction
type StatusApplier interface {
	Apply(ctx context.Context, o *order.ProviderOrder, report fsp.StatusReport) (settlement.Result, error)
}

// AdapterLookup finds provider integrations
type AdapterLookup interface {
	Adapter(provider shared.ProviderName) (fsp.Adapter, bool)
	Querier(provider shared.ProviderName) (fsp.StatusQuerier, bool)
}

// RateLimiter bounds how many jobs a queue starts per second
type RateLimiter interface {
	Wait(ctx context.Context, queue string) error
}
