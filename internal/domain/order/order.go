package order

import (
	"strings"
	"time"

	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/google/uuid"
)

// ProviderOrder is the provider-side record of one transaction: the key the provider
// tracks it by and the last status string the provider reported.
type ProviderOrder struct {
	ID            uuid.UUID           `json:"id"`
	TransactionID uuid.UUID           `json:"transaction_id"`
	ProgramID     int64               `json:"program_id"`
	Provider      shared.ProviderName `json:"provider"`
	Reference     string              `json:"reference"`
	Status        *string             `json:"status,omitempty"` // nil until the provider answered
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// ReferenceFromKey derives the provider order key from a job's idempotency key.
// Providers reject dashes in references, and one key always maps to one reference.
func ReferenceFromKey(idempotencyKey string) string {
	return strings.ReplaceAll(idempotencyKey, "-", "")
}

// New creates an order whose provider status is still unknown
func New(transactionID uuid.UUID, programID int64, provider shared.ProviderName, reference string) *ProviderOrder {
	now := time.Now().UTC()
	return &ProviderOrder{
		ID:            uuid.New(),
		TransactionID: transactionID,
		ProgramID:     programID,
		Provider:      provider,
		Reference:     reference,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// StatusIs reports whether the last known provider status equals status
func (o *ProviderOrder) StatusIs(status string) bool {
	return o.Status != nil && *o.Status == status
}

// IsUnknown reports whether the provider never confirmed this order
func (o *ProviderOrder) IsUnknown() bool {
	return o.Status == nil
}

// Scope returns the program scope the order belongs to
func (o *ProviderOrder) Scope() shared.Scope {
	return shared.ProgramScope(o.ProgramID)
}
