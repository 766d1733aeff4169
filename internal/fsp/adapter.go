// Package fsp defines the contract every financial service provider integration
// implements and the normalized outcomes the job processor maps onto the ledger.
package fsp

import (
	"context"

	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// TransferInput is one transfer attempt. IdempotencyKey and Reference are fixed per Job
// and reused when the same Job is delivered again.
type TransferInput struct {
	IdempotencyKey string
	Reference      string
	Amount         decimal.Decimal
	Destination    string
	Params         map[string]string
}

// Adapter performs exactly one transfer attempt against one provider.
// The error return is reserved for failures that are not a modeled Outcome.
type Adapter interface {
	Provider() shared.ProviderName
	Transfer(ctx context.Context, in TransferInput) (Outcome, error)
}

// StatusQuerier is implemented by providers whose confirmation is polled
type StatusQuerier interface {
	Provider() shared.ProviderName
	QueryStatus(ctx context.Context, reference string) (StatusReport, error)
	// TerminalStatuses are provider statuses that need no further polling
	TerminalStatuses() []string
}

// CallbackParser is implemented by providers that push status by webhook
type CallbackParser interface {
	Provider() shared.ProviderName
	ParseCallback(kind string, body []byte) (StatusReport, error)
}
