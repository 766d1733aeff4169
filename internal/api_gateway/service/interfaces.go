package service

import (
	"context"

	"github.com/fsp-disbursement/internal/domain/callback"
	"github.com/fsp-disbursement/internal/domain/job"
	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/fsp-disbursement/internal/queue"
)

// PaymentService enqueues payment batches and retries
type PaymentService interface {
	// EnqueueBatch publishes one job per transfer of a payment batch
	EnqueueBatch(ctx context.Context, batch job.BatchContext, items []job.TransferRequest) (*BatchResult, error)

	// RetryFailed re-enqueues the failed transfers of a payment
	// Returns ErrRetryWindowClosed when the payment is too old to retry
	RetryFailed(ctx context.Context, programID int64, paymentNumber int, userID int64, correlationID string) (*BatchResult, error)
}

// CallbackService handles provider webhooks
type CallbackService interface {
	HandleCallback(ctx context.Context, provider shared.ProviderName, kind string, body []byte, correlationID string) (callback.Result, error)
}

// QueuePurger empties every queue together with its rate-limiter state
type QueuePurger interface {
	PurgeAll(ctx context.Context) (queue.PurgeResult, error)
}
