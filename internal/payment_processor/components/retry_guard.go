package components

import (
	"context"
	"fmt"

	"github.com/fsp-disbursement/internal/domain/job"
	"github.com/fsp-disbursement/internal/domain/transaction"
	"github.com/fsp-disbursement/internal/payment_processor/service"
)

type RetryGuardImpl struct {
	transactions transaction.Repository
}

func NewRetryGuard(transactions transaction.Repository) service.RetryGuard {
	return &RetryGuardImpl{transactions: transactions}
}

// FailedAttempts counts error rows for the job's beneficiary and payment cycle
func (g *RetryGuardImpl) FailedAttempts(ctx context.Context, j *job.Job) (int, error) {
	count, err := g.transactions.CountFailed(ctx, j.Scope(), j.ReferenceID, j.PaymentNumber)
	if err != nil {
		return 0, fmt.Errorf("failed to count failed attempts for %s: %w", j.PairKey(), err)
	}
	return count, nil
}
