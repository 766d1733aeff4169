package transaction

import (
	"context"
	"errors"

	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/google/uuid"
)

// Repository is the transaction ledger. Every call is filtered by the given scope.
type Repository interface {
	Create(ctx context.Context, scope shared.Scope, tx *Transaction) error
	GetByID(ctx context.Context, scope shared.Scope, id uuid.UUID) (*Transaction, error)
	GetByIdempotencyKey(ctx context.Context, scope shared.Scope, key string) (*Transaction, error)
	UpdateStatus(ctx context.Context, scope shared.Scope, id uuid.UUID, update StatusUpdate) error
	CountFailed(ctx context.Context, scope shared.Scope, referenceID string, paymentNumber int) (int, error)
	HasInFlight(ctx context.Context, scope shared.Scope, referenceID string, paymentNumber int) (bool, error)
	ListLatestFailed(ctx context.Context, scope shared.Scope, paymentNumber int) ([]*Transaction, error)
	LatestPaymentNumber(ctx context.Context, scope shared.Scope) (int, error)
}

// ErrTerminalState is returned when an update targets a row already in success or error
var ErrTerminalState = errors.New("transaction is in a terminal state")

// ErrTransactionNotFound indicates a missing transaction within the caller's scope
type ErrTransactionNotFound struct {
	ID             uuid.UUID
	IdempotencyKey string
}

func (e ErrTransactionNotFound) Error() string {
	if e.IdempotencyKey != "" {
		return "transaction not found for idempotency key: " + e.IdempotencyKey
	}
	return "transaction not found: " + e.ID.String()
}

// Is matches any ErrTransactionNotFound when the target carries no identity
func (e ErrTransactionNotFound) Is(target error) bool {
	t, ok := target.(ErrTransactionNotFound)
	if !ok {
		return false
	}
	if t.ID == uuid.Nil && t.IdempotencyKey == "" {
		return true
	}
	return e.ID == t.ID && e.IdempotencyKey == t.IdempotencyKey
}

// ErrDuplicateIdempotencyKey indicates a second row for the same job
type ErrDuplicateIdempotencyKey struct {
	Key string
}

func (e ErrDuplicateIdempotencyKey) Error() string {
	return "duplicate idempotency key: " + e.Key
}

// Is matches any ErrDuplicateIdempotencyKey when the target key is empty
func (e ErrDuplicateIdempotencyKey) Is(target error) bool {
	t, ok := target.(ErrDuplicateIdempotencyKey)
	if !ok {
		return false
	}
	return t.Key == "" || t.Key == e.Key
}
