package components

import (
	"context"
	"errors"
	"log/slog"

	"github.com/fsp-disbursement/internal/domain/job"
	"github.com/fsp-disbursement/internal/domain/transaction"
	"github.com/fsp-disbursement/internal/payment_processor/service"
)

type FailureRecorderImpl struct {
	transactions transaction.Repository
	logger       *slog.Logger
}

func NewFailureRecorder(transactions transaction.Repository, logger *slog.Logger) service.FailureRecorder {
	return &FailureRecorderImpl{
		transactions: transactions,
		logger:       logger,
	}
}

// RecordFailure writes an error row for a job that never reached the provider.
// A redelivered job whose row already exists is moved to error instead, unless terminal.
func (r *FailureRecorderImpl) RecordFailure(ctx context.Context, j *job.Job, message string) error {
	logger := r.logger.With("idempotency_key", j.IdempotencyKey, "program_id", j.ProgramID)
	if j.CorrelationID != "" {
		logger = logger.With("correlation_id", j.CorrelationID)
	}

	logger.Info("Recording failed transaction", "reference_id", j.ReferenceID, "reason", message)

	tx := newTransaction(j, transaction.StatusError)
	tx.ErrorMessage = &message

	err := r.transactions.Create(ctx, j.Scope(), tx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, transaction.ErrDuplicateIdempotencyKey{}) {
		logger.Error("Failed to create error transaction", "error", err)
		return err
	}

	existing, getErr := r.transactions.GetByIdempotencyKey(ctx, j.Scope(), j.IdempotencyKey)
	if getErr != nil {
		logger.Error("Failed to load existing transaction for failed job", "error", getErr)
		return getErr
	}
	if existing.Status.IsTerminal() {
		logger.Info("Transaction already terminal", "status", existing.Status)
		return nil
	}

	updateErr := r.transactions.UpdateStatus(ctx, j.Scope(), existing.ID, transaction.Failed(message))
	if updateErr != nil && !errors.Is(updateErr, transaction.ErrTerminalState) {
		logger.Error("Failed to move existing transaction to error", "transaction_id", existing.ID.String(), "error", updateErr)
		return updateErr
	}
	return nil
}
