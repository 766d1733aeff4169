package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsp-disbursement/internal/domain/beneficiary"
	"github.com/fsp-disbursement/internal/domain/job"
	"github.com/fsp-disbursement/internal/payment_processor/service"
)

type EligibilityCheckerImpl struct {
	beneficiaries beneficiary.Repository
	logger        *slog.Logger
}

func NewEligibilityChecker(beneficiaries beneficiary.Repository, logger *slog.Logger) service.EligibilityChecker {
	return &EligibilityCheckerImpl{
		beneficiaries: beneficiaries,
		logger:        logger,
	}
}

// Check fails with beneficiary.ErrNotEligible when the registration left the program
// after the job was queued. Lookup errors are returned as they are.
func (c *EligibilityCheckerImpl) Check(ctx context.Context, j *job.Job) error {
	b, err := c.beneficiaries.GetByReferenceID(ctx, j.Scope(), j.ReferenceID)
	if err != nil {
		return err
	}
	if !b.IsEligible() {
		c.logger.Info("Beneficiary no longer eligible",
			"idempotency_key", j.IdempotencyKey,
			"reference_id", j.ReferenceID,
			"status", b.Status,
		)
		return fmt.Errorf("%w: status %s", beneficiary.ErrNotEligible, b.Status)
	}
	return nil
}
