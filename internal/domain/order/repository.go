package order

import (
	"context"
	"errors"
	"time"

	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/google/uuid"
)

// Repository stores provider orders.
// FindByReference and ListOpen are system lookups used by callbacks and reconciliation;
// the order they return carries the program scope for every follow-up write.
// ListOpen only returns orders created before createdBefore.
type Repository interface {
	Create(ctx context.Context, scope shared.Scope, o *ProviderOrder) error
	GetByTransactionID(ctx context.Context, scope shared.Scope, transactionID uuid.UUID) (*ProviderOrder, error)
	UpdateStatus(ctx context.Context, scope shared.Scope, id uuid.UUID, status string) error
	FindByReference(ctx context.Context, provider shared.ProviderName, reference string) (*ProviderOrder, error)
	ListOpen(ctx context.Context, provider shared.ProviderName, terminalStatuses []string, createdBefore time.Time, limit int) ([]*ProviderOrder, error)
}

// ErrDuplicateReference is returned when a reference is already used by another transaction
var ErrDuplicateReference = errors.New("provider order reference already exists")

// ErrOrderNotFound indicates a missing provider order
type ErrOrderNotFound struct {
	ID            uuid.UUID
	Reference     string
	TransactionID uuid.UUID
}

func (e ErrOrderNotFound) Error() string {
	switch {
	case e.Reference != "":
		return "provider order not found: " + e.Reference
	case e.TransactionID != uuid.Nil:
		return "provider order not found for transaction: " + e.TransactionID.String()
	default:
		return "provider order not found: " + e.ID.String()
	}
}

// Is matches any ErrOrderNotFound when the target carries no identity
func (e ErrOrderNotFound) Is(target error) bool {
	t, ok := target.(ErrOrderNotFound)
	if !ok {
		return false
	}
	if t.ID == uuid.Nil && t.Reference == "" && t.TransactionID == uuid.Nil {
		return true
	}
	return e == t
}
