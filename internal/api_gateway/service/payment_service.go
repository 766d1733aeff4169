package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fsp-disbursement/internal/domain/job"
	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/fsp-disbursement/internal/domain/transaction"
)

var (
	ErrEmptyBatch        = errors.New("batch has no transfers")
	ErrRetryWindowClosed = errors.New("payment is outside the retry window")
)

// JobEnqueuer routes a job to its queue and publishes it
type JobEnqueuer interface {
	Enqueue(ctx context.Context, j *job.Job) (string, error)
}

// BatchResult counts what an enqueue call did with the submitted transfers
type BatchResult struct {
	Accepted      int    `json:"accepted"`
	NotApplicable int    `json:"not_applicable"`
	Queue         string `json:"queue,omitempty"`
}

// PaymentServiceImpl turns payment batches and retry requests into queued jobs
type PaymentServiceImpl struct {
	transactions transaction.Repository
	enqueuer     JobEnqueuer
	retryWindow  int
	logger       *slog.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(logger *slog.Logger, transactions transaction.Repository, enqueuer JobEnqueuer, retryWindow int) PaymentService {
	return &PaymentServiceImpl{
		transactions: transactions,
		enqueuer:     enqueuer,
		retryWindow:  retryWindow,
		logger:       logger,
	}
}

// EnqueueBatch publishes one job per transfer. Invalid transfers and beneficiaries that
// already have a pending or waiting row in this payment are counted as not applicable.
func (s *PaymentServiceImpl) EnqueueBatch(ctx context.Context, batch job.BatchContext, items []job.TransferRequest) (*BatchResult, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}
	batch.BulkSize = len(items)
	scope := shared.ProgramScope(batch.ProgramID)
	logger := s.logger.With("program_id", batch.ProgramID, "payment_number", batch.PaymentNumber, "provider", batch.Provider)
	if batch.CorrelationID != "" {
		logger = logger.With("correlation_id", batch.CorrelationID)
	}

	result := &BatchResult{}
	for _, item := range items {
		if err := item.Validate(); err != nil {
			logger.Warn("Skipping invalid transfer", "reference_id", item.ReferenceID, "error", err)
			result.NotApplicable++
			continue
		}

		inFlight, err := s.transactions.HasInFlight(ctx, scope, item.ReferenceID, batch.PaymentNumber)
		if err != nil {
			return result, fmt.Errorf("failed to check in-flight transfers for %s: %w", item.ReferenceID, err)
		}
		if inFlight {
			logger.Info("Skipping beneficiary with a transfer in flight", "reference_id", item.ReferenceID)
			result.NotApplicable++
			continue
		}

		queueName, err := s.enqueuer.Enqueue(ctx, job.New(batch, item))
		if err != nil {
			logger.Error("Failed to enqueue transfer", "reference_id", item.ReferenceID, "error", err)
			return result, err
		}
		result.Accepted++
		result.Queue = queueName
	}

	logger.Info("Payment batch enqueued",
		"accepted", result.Accepted,
		"not_applicable", result.NotApplicable,
		"queue", result.Queue,
	)
	return result, nil
}

// RetryFailed re-enqueues every beneficiary whose latest transfer in the payment failed.
// Each retry gets a new idempotency key. Payments older than the retry window are refused.
func (s *PaymentServiceImpl) RetryFailed(ctx context.Context, programID int64, paymentNumber int, userID int64, correlationID string) (*BatchResult, error) {
	scope := shared.ProgramScope(programID)
	logger := s.logger.With("program_id", programID, "payment_number", paymentNumber)
	if correlationID != "" {
		logger = logger.With("correlation_id", correlationID)
	}

	latest, err := s.transactions.LatestPaymentNumber(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest payment number: %w", err)
	}
	if paymentNumber > latest || paymentNumber <= latest-s.retryWindow {
		logger.Warn("Retry refused", "latest_payment_number", latest, "retry_window", s.retryWindow)
		return nil, fmt.Errorf("%w: payment %d, latest %d, window %d", ErrRetryWindowClosed, paymentNumber, latest, s.retryWindow)
	}

	failed, err := s.transactions.ListLatestFailed(ctx, scope, paymentNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed transfers: %w", err)
	}

	result := &BatchResult{}
	for _, tx := range failed {
		retry := job.New(job.BatchContext{
			ProgramID:        programID,
			PaymentNumber:    paymentNumber,
			Provider:         tx.Provider,
			ProviderConfigID: tx.ProviderConfigID,
			UserID:           userID,
			BulkSize:         len(failed),
			CorrelationID:    correlationID,
			IsRetry:          true,
		}, job.TransferRequest{
			ReferenceID:    tx.ReferenceID,
			Amount:         tx.Amount,
			Destination:    tx.Destination,
			ProviderParams: tx.CustomData,
		})

		queueName, err := s.enqueuer.Enqueue(ctx, retry)
		if err != nil {
			logger.Error("Failed to enqueue retry", "reference_id", tx.ReferenceID, "error", err)
			return result, err
		}
		result.Accepted++
		result.Queue = queueName
	}

	logger.Info("Failed transfers re-enqueued", "accepted", result.Accepted)
	return result, nil
}
