// Package notification hands payment events to the external messaging service.
// Dispatch is fire-and-forget: failures are logged and never reach the ledger.
package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/fsp-disbursement/internal/domain/transaction"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventPaymentSucceeded = "payment_succeeded"

	defaultPublishTimeout = 10 * time.Second
)

// Event is the message consumed by the SMS/WhatsApp sender
type Event struct {
	Type          string              `json:"type"`
	TransactionID uuid.UUID           `json:"transaction_id"`
	ProgramID     int64               `json:"program_id"`
	ReferenceID   string              `json:"reference_id"`
	PaymentNumber int                 `json:"payment_number"`
	Amount        decimal.Decimal     `json:"amount"`
	Provider      shared.ProviderName `json:"provider"`
	OccurredAt    time.Time           `json:"occurred_at"`
}

// Publisher writes a notification event
type Publisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

// Notifier is what the processor and the settlement applier call on terminal transitions
type Notifier interface {
	PaymentSucceeded(tx *transaction.Transaction)
}

// Dispatcher publishes events in the background
type Dispatcher struct {
	publisher Publisher
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
	wg        sync.WaitGroup
}

func NewDispatcher(logger *slog.Logger, publisher Publisher) *Dispatcher {
	return &Dispatcher{
		publisher: publisher,
		timeout:   defaultPublishTimeout,
		logger:    logger,
		now:       time.Now,
	}
}

// PaymentSucceeded queues a payment_succeeded event and returns immediately
func (d *Dispatcher) PaymentSucceeded(tx *transaction.Transaction) {
	if tx == nil {
		return
	}
	event := Event{
		Type:          EventPaymentSucceeded,
		TransactionID: tx.ID,
		ProgramID:     tx.ProgramID,
		ReferenceID:   tx.ReferenceID,
		PaymentNumber: tx.PaymentNumber,
		Amount:        tx.Amount,
		Provider:      tx.Provider,
		OccurredAt:    d.now().UTC(),
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.publisher.Publish(ctx, event.TransactionID.String(), event); err != nil {
			d.logger.Warn("Failed to dispatch notification",
				"type", event.Type,
				"transaction_id", event.TransactionID.String(),
				"program_id", event.ProgramID,
				"error", err,
			)
			return
		}
		d.logger.Debug("Dispatched notification", "type", event.Type, "transaction_id", event.TransactionID.String())
	}()
}

// Wait blocks until every dispatched event has been handed over or has failed
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Nop drops every event
type Nop struct{}

func (Nop) PaymentSucceeded(*transaction.Transaction) {}
