package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fsp-disbursement/internal/domain/job"
	"github.com/fsp-disbursement/internal/domain/order"
	"github.com/fsp-disbursement/internal/domain/transaction"
	"github.com/fsp-disbursement/internal/payment_processor/service"
	"github.com/jackc/pgx/v5"
)

// TxRunner runs a function inside one database transaction
type TxRunner interface {
	ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// TxBinder returns repositories bound to tx
type TxBinder func(tx pgx.Tx) (transaction.Repository, order.Repository)

type AttemptStarterImpl struct {
	db     TxRunner
	bind   TxBinder
	orders order.Repository
	logger *slog.Logger
}

func NewAttemptStarter(db TxRunner, bind TxBinder, orders order.Repository, logger *slog.Logger) service.AttemptStarter {
	return &AttemptStarterImpl{
		db:     db,
		bind:   bind,
		orders: orders,
		logger: logger,
	}
}

// Start inserts the pending row and its provider order in one database transaction,
// so no row exists without the reference the provider will know it by.
func (s *AttemptStarterImpl) Start(ctx context.Context, j *job.Job) (*transaction.Transaction, *order.ProviderOrder, error) {
	tx := newTransaction(j, transaction.StatusPending)
	o := order.New(tx.ID, j.ProgramID, j.Provider, order.ReferenceFromKey(j.IdempotencyKey))

	err := s.db.ExecuteTx(ctx, func(dbTx pgx.Tx) error {
		transactions, orders := s.bind(dbTx)
		if err := transactions.Create(ctx, j.Scope(), tx); err != nil {
			return err
		}
		return orders.Create(ctx, j.Scope(), o)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start attempt %s: %w", j.IdempotencyKey, err)
	}

	s.logger.Debug("Attempt started",
		"transaction_id", tx.ID.String(),
		"reference", o.Reference,
		"idempotency_key", j.IdempotencyKey,
	)
	return tx, o, nil
}

// AttachOrder creates the missing provider order of an existing pending row
func (s *AttemptStarterImpl) AttachOrder(ctx context.Context, tx *transaction.Transaction) (*order.ProviderOrder, error) {
	o := order.New(tx.ID, tx.ProgramID, tx.Provider, order.ReferenceFromKey(tx.IdempotencyKey))
	if err := s.orders.Create(ctx, o.Scope(), o); err != nil {
		return nil, fmt.Errorf("failed to create provider order for transaction %s: %w", tx.ID, err)
	}
	return o, nil
}
