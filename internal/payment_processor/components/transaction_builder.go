package components

import (
	"time"

	"github.com/fsp-disbursement/internal/domain/job"
	"github.com/fsp-disbursement/internal/domain/transaction"
	"github.com/google/uuid"
)

// newTransaction builds the ledger row for one attempt of j. The provider params are kept
// in custom data so a later retry of the row can send them again.
func newTransaction(j *job.Job, status transaction.Status) *transaction.Transaction {
	now := time.Now().UTC()
	var customData map[string]string
	if len(j.ProviderParams) > 0 {
		customData = make(map[string]string, len(j.ProviderParams))
		for k, v := range j.ProviderParams {
			customData[k] = v
		}
	}
	return &transaction.Transaction{
		ID:               uuid.New(),
		ProgramID:        j.ProgramID,
		ReferenceID:      j.ReferenceID,
		PaymentNumber:    j.PaymentNumber,
		Amount:           j.Amount,
		Provider:         j.Provider,
		ProviderConfigID: j.ProviderConfigID,
		Destination:      j.Destination,
		Status:           status,
		IdempotencyKey:   j.IdempotencyKey,
		CustomData:       customData,
		IsRetry:          j.IsRetry,
		UserID:           j.UserID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}
