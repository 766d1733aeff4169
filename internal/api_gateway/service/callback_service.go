package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fsp-disbursement/internal/domain/callback"
	"github.com/fsp-disbursement/internal/domain/order"
	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/fsp-disbursement/internal/fsp"
	"github.com/fsp-disbursement/internal/platform/metrics"
	"github.com/fsp-disbursement/internal/settlement"
)

var (
	// ErrUnattributable means the callback cannot be tied to a provider that pushes status
	ErrUnattributable = errors.New("callback cannot be attributed to a provider")
	// ErrUnknownReference means no provider order carries the callback's reference
	ErrUnknownReference = errors.New("callback references an unknown order")
)

// CallbackParsers finds the webhook parser of a provider
type CallbackParsers interface {
	CallbackParser(provider shared.ProviderName) (fsp.CallbackParser, bool)
}

// StatusApplier applies a provider status report to an order and its transaction
type StatusApplier interface {
	Apply(ctx context.Context, o *order.ProviderOrder, report fsp.StatusReport) (settlement.Result, error)
}

// CallbackServiceImpl applies authenticated provider callbacks and audits every one of them
type CallbackServiceImpl struct {
	parsers CallbackParsers
	orders  order.Repository
	applier StatusApplier
	audit   callback.Repository
	logger  *slog.Logger
}

// NewCallbackService creates a new callback service
func NewCallbackService(
	logger *slog.Logger,
	parsers CallbackParsers,
	orders order.Repository,
	applier StatusApplier,
	audit callback.Repository,
) CallbackService {
	return &CallbackServiceImpl{
		parsers: parsers,
		orders:  orders,
		applier: applier,
		audit:   audit,
		logger:  logger,
	}
}

// HandleCallback parses the body, finds the order it reports on and applies the reported
// status through the same path reconciliation uses.
func (s *CallbackServiceImpl) HandleCallback(ctx context.Context, provider shared.ProviderName, kind string, body []byte, correlationID string) (callback.Result, error) {
	entry := &callback.Entry{
		Provider:      provider,
		Kind:          kind,
		Payload:       string(body),
		CorrelationID: correlationID,
	}
	logger := s.logger.With("provider", provider, "kind", kind)
	if correlationID != "" {
		logger = logger.With("correlation_id", correlationID)
	}

	result, err := s.handle(ctx, entry, body, logger)
	entry.Result = result
	if err != nil {
		entry.Detail = err.Error()
	}

	if auditErr := s.audit.Record(ctx, entry); auditErr != nil {
		logger.Warn("Failed to record callback", "error", auditErr)
	}
	metrics.Callbacks.WithLabelValues(provider.String(), string(result)).Inc()
	return result, err
}

func (s *CallbackServiceImpl) handle(ctx context.Context, entry *callback.Entry, body []byte, logger *slog.Logger) (callback.Result, error) {
	parser, ok := s.parsers.CallbackParser(entry.Provider)
	if !ok {
		logger.Warn("Callback for a provider without callbacks")
		return callback.ResultUnattributable, ErrUnattributable
	}

	report, err := parser.ParseCallback(entry.Kind, body)
	if err != nil {
		logger.Warn("Invalid callback", "error", err)
		return callback.ResultInvalid, err
	}
	entry.Reference = report.Reference
	entry.ProviderStatus = report.ProviderStatus

	o, err := s.orders.FindByReference(ctx, entry.Provider, report.Reference)
	if errors.Is(err, order.ErrOrderNotFound{}) {
		logger.Warn("Callback for unknown reference", "reference", report.Reference)
		return callback.ResultUnattributable, fmt.Errorf("%w: %s", ErrUnknownReference, report.Reference)
	}
	if err != nil {
		return callback.ResultFailed, fmt.Errorf("failed to look up order %s: %w", report.Reference, err)
	}

	applied, err := s.applier.Apply(ctx, o, report)
	if err != nil {
		logger.Error("Failed to apply callback", "reference", report.Reference, "error", err)
		return callback.ResultFailed, err
	}
	if applied.Transitioned {
		return callback.ResultApplied, nil
	}
	return callback.ResultNoChange, nil
}
