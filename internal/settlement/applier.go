// Package settlement applies provider-reported statuses to the ledger. Reconciliation,
// callbacks and the processor's timeout resolution all go through the same Applier.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fsp-disbursement/internal/domain/order"
	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/fsp-disbursement/internal/domain/transaction"
	"github.com/fsp-disbursement/internal/fsp"
	"github.com/fsp-disbursement/internal/notification"
)

// Result describes what one Apply call changed
type Result struct {
	OrderRefreshed  bool
	Transitioned    bool
	AlreadyTerminal bool
	Status          transaction.Status
}

// Applier refreshes the provider order and moves the ledger row per the provider's decision
type Applier struct {
	transactions transaction.Repository
	orders       order.Repository
	notifier     notification.Notifier
	logger       *slog.Logger
}

func NewApplier(logger *slog.Logger, transactions transaction.Repository, orders order.Repository, notifier notification.Notifier) *Applier {
	if notifier == nil {
		notifier = notification.Nop{}
	}
	return &Applier{
		transactions: transactions,
		orders:       orders,
		notifier:     notifier,
		logger:       logger,
	}
}

// Apply applies the decision to the transaction and then records the provider status on
// the order. A row that is already terminal is left untouched and is not an error.
// The ledger is written first: an order refreshed to a terminal status drops out of the
// reconciliation sweep, so it must not get ahead of its transaction.
func (a *Applier) Apply(ctx context.Context, o *order.ProviderOrder, report fsp.StatusReport) (Result, error) {
	var result Result
	scope := o.Scope()
	logger := a.logger.With(
		"program_id", o.ProgramID,
		"provider", o.Provider,
		"reference", o.Reference,
	)

	if report.Decision.Transitions() {
		update := report.Decision.Update(o.Reference, report.Details)
		err := a.transactions.UpdateStatus(ctx, scope, o.TransactionID, update)
		switch {
		case errors.Is(err, transaction.ErrTerminalState):
			logger.Debug("Transaction already terminal, decision ignored", "transaction_id", o.TransactionID.String())
			result.AlreadyTerminal = true
		case err != nil:
			return result, fmt.Errorf("failed to apply %s to transaction %s: %w", update.Status, o.TransactionID, err)
		default:
			result.Transitioned = true
			result.Status = update.Status
			logger.Info("Applied provider status",
				"transaction_id", o.TransactionID.String(),
				"provider_status", report.ProviderStatus,
				"status", update.Status,
			)
			if update.Status == transaction.StatusSuccess {
				a.notifySuccess(ctx, scope, o, logger)
			}
		}
	}

	if report.ProviderStatus != "" && !o.StatusIs(report.ProviderStatus) {
		if err := a.orders.UpdateStatus(ctx, scope, o.ID, report.ProviderStatus); err != nil {
			return result, fmt.Errorf("failed to refresh provider order %s: %w", o.Reference, err)
		}
		status := report.ProviderStatus
		o.Status = &status
		result.OrderRefreshed = true
	}
	return result, nil
}

func (a *Applier) notifySuccess(ctx context.Context, scope shared.Scope, o *order.ProviderOrder, logger *slog.Logger) {
	tx, err := a.transactions.GetByID(ctx, scope, o.TransactionID)
	if err != nil {
		logger.Warn("Could not load transaction for notification", "transaction_id", o.TransactionID.String(), "error", err)
		return
	}
	a.notifier.PaymentSucceeded(tx)
}
