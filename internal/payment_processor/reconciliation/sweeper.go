// Package reconciliation polls providers for orders whose outcome is still open and
// applies what they report. It is the safety net for lost callbacks and crashed workers.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsp-disbursement/internal/domain/order"
	"github.com/fsp-disbursement/internal/fsp"
	"github.com/fsp-disbursement/internal/platform/metrics"
	"github.com/fsp-disbursement/internal/settlement"
)

// Row results as counted in metrics
const (
	resultTransitioned = "transitioned"
	resultUnchanged    = "unchanged"
	resultQueryFailed  = "query_failed"
	resultApplyFailed  = "apply_failed"
)

// QuerierSource lists the providers that support status queries
type QuerierSource interface {
	Queriers() []fsp.StatusQuerier
}

// StatusApplier applies a provider status report to an order and its transaction
type StatusApplier interface {
	Apply(ctx context.Context, o *order.ProviderOrder, report fsp.StatusReport) (settlement.Result, error)
}

// Summary counts what one sweep did
type Summary struct {
	Checked      int `json:"checked"`
	Transitioned int `json:"transitioned"`
	Failed       int `json:"failed"`
}

func (s *Summary) add(other Summary) {
	s.Checked += other.Checked
	s.Transitioned += other.Transitioned
	s.Failed += other.Failed
}

// Sweeper runs one reconciliation pass over every polling provider
type Sweeper struct {
	queriers     QuerierSource
	orders       order.Repository
	applier      StatusApplier
	batchSize    int
	queryTimeout time.Duration
	minAge       time.Duration
	logger       *slog.Logger
}

func NewSweeper(
	logger *slog.Logger,
	queriers QuerierSource,
	orders order.Repository,
	applier StatusApplier,
	batchSize int,
	queryTimeout time.Duration,
	minAge time.Duration,
) *Sweeper {
	return &Sweeper{
		queriers:     queriers,
		orders:       orders,
		applier:      applier,
		batchSize:    batchSize,
		queryTimeout: queryTimeout,
		minAge:       minAge,
		logger:       logger,
	}
}

// Sweep checks up to batchSize open orders per provider that are older than minAge.
// A failing row is counted and skipped; the returned error only reports providers whose
// orders could not be listed.
func (s *Sweeper) Sweep(ctx context.Context) (Summary, error) {
	var total Summary
	var errs []error

	for _, querier := range s.queriers.Queriers() {
		summary, err := s.sweepProvider(ctx, querier)
		total.add(summary)
		if err != nil {
			errs = append(errs, err)
		}
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
	}

	s.logger.Info("Reconciliation sweep finished",
		"checked", total.Checked,
		"transitioned", total.Transitioned,
		"failed", total.Failed,
	)
	return total, errors.Join(errs...)
}

func (s *Sweeper) sweepProvider(ctx context.Context, querier fsp.StatusQuerier) (Summary, error) {
	var summary Summary
	provider := querier.Provider()
	logger := s.logger.With("provider", provider)

	createdBefore := time.Now().UTC().Add(-s.minAge)
	orders, err := s.orders.ListOpen(ctx, provider, querier.TerminalStatuses(), createdBefore, s.batchSize)
	if err != nil {
		logger.Error("Failed to list open provider orders", "error", err)
		return summary, fmt.Errorf("failed to list open %s orders: %w", provider, err)
	}
	if len(orders) == 0 {
		logger.Debug("No open provider orders")
		return summary, nil
	}

	logger.Info("Reconciling open provider orders", "count", len(orders))

	for _, o := range orders {
		if ctx.Err() != nil {
			break
		}
		summary.Checked++
		result := s.reconcile(ctx, querier, o, logger)
		metrics.ReconciliationRows.WithLabelValues(provider.String(), result).Inc()

		switch result {
		case resultTransitioned:
			summary.Transitioned++
		case resultQueryFailed, resultApplyFailed:
			summary.Failed++
		}
	}
	return summary, nil
}

func (s *Sweeper) reconcile(ctx context.Context, querier fsp.StatusQuerier, o *order.ProviderOrder, logger *slog.Logger) string {
	logger = logger.With("reference", o.Reference, "program_id", o.ProgramID)

	queryCtx := ctx
	if s.queryTimeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, s.queryTimeout)
		defer cancel()
	}
	report, err := querier.QueryStatus(queryCtx, o.Reference)
	if err != nil {
		logger.Warn("Status query failed", "error", err)
		return resultQueryFailed
	}

	result, err := s.applier.Apply(ctx, o, report)
	if err != nil {
		logger.Error("Failed to apply provider status", "provider_status", report.ProviderStatus, "error", err)
		return resultApplyFailed
	}
	if result.Transitioned {
		return resultTransitioned
	}
	return resultUnchanged
}
