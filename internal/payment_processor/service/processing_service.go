package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsp-disbursement/internal/domain/beneficiary"
	"github.com/fsp-disbursement/internal/domain/job"
	"github.com/fsp-disbursement/internal/domain/order"
	"github.com/fsp-disbursement/internal/domain/transaction"
	"github.com/fsp-disbursement/internal/fsp"
	"github.com/fsp-disbursement/internal/notification"
	"github.com/fsp-disbursement/internal/platform/metrics"
)

// Job outcomes as counted in metrics
const (
	OutcomeAccepted   = "accepted"
	OutcomeSuccess    = "success"
	OutcomeRejected   = "rejected"
	OutcomeTransient  = "transient_failure"
	OutcomeUnknown    = "unknown_after_timeout"
	OutcomeIneligible = "ineligible"
	OutcomeCeiling    = "retry_ceiling"
	OutcomeDropped    = "dropped"
	OutcomeDuplicate  = "duplicate"
	OutcomeNoAdapter  = "no_adapter"
	OutcomeUnexpected = "unexpected_error"
)

// Limits bound how often and how long the processor talks to a provider
type Limits struct {
	MaxFailedAttempts int
	ProviderTimeout   time.Duration
}

// Dependencies are the collaborators of the processing service. PairLocker is optional.
type Dependencies struct {
	Transactions transaction.Repository
	Orders       order.Repository
	Eligibility  EligibilityChecker
	RetryGuard   RetryGuard
	Attempts     AttemptStarter
	Failures     FailureRecorder
	Adapters     AdapterLookup
	Applier      StatusApplier
	Requeuer     Requeuer
	Notifier     notification.Notifier
	PairLocker   PairLocker
}

type ProcessingServiceImpl struct {
	deps   Dependencies
	limits Limits
	logger *slog.Logger
}

func NewProcessingService(deps Dependencies, limits Limits, logger *slog.Logger) *ProcessingServiceImpl {
	if deps.Notifier == nil {
		deps.Notifier = notification.Nop{}
	}
	return &ProcessingServiceImpl{
		deps:   deps,
		limits: limits,
		logger: logger,
	}
}

// ProcessJob makes at most one transfer attempt for j and records its outcome.
// It returns an error only when no provider call was made and redelivery is safe.
func (s *ProcessingServiceImpl) ProcessJob(ctx context.Context, queue string, j *job.Job) error {
	logger := s.logger.With(
		"queue", queue,
		"idempotency_key", j.IdempotencyKey,
		"program_id", j.ProgramID,
		"provider", j.Provider,
	)
	if j.CorrelationID != "" {
		logger = logger.With("correlation_id", j.CorrelationID)
	}

	if s.deps.PairLocker != nil {
		unlock, err := s.deps.PairLocker.Lock(ctx, j.PairKey())
		if err != nil {
			logger.Warn("Pair lock not acquired, job will be redelivered", "pair", j.PairKey(), "error", err)
			return err
		}
		defer unlock(context.WithoutCancel(ctx))
	}

	outcome, err := s.process(ctx, queue, j, logger)
	if err != nil {
		logger.Error("Job not processed", "error", err)
		return err
	}

	metrics.JobsProcessed.WithLabelValues(queue, j.Provider.String(), outcome).Inc()
	logger.Info("Job processed", "outcome", outcome)
	return nil
}

func (s *ProcessingServiceImpl) process(ctx context.Context, queue string, j *job.Job, logger *slog.Logger) (string, error) {
	existing, err := s.deps.Transactions.GetByIdempotencyKey(ctx, j.Scope(), j.IdempotencyKey)
	if err == nil {
		return s.resume(ctx, queue, j, existing, logger)
	}
	if !errors.Is(err, transaction.ErrTransactionNotFound{}) {
		return "", fmt.Errorf("redelivery check failed for %s: %w", j.IdempotencyKey, err)
	}

	if err := s.deps.Eligibility.Check(ctx, j); err != nil {
		switch {
		case errors.Is(err, beneficiary.ErrBeneficiaryNotFound{}):
			logger.Warn("Beneficiary not found, dropping job", "reference_id", j.ReferenceID)
			return OutcomeDropped, nil
		case errors.Is(err, beneficiary.ErrNotEligible):
			message := transaction.ManualReviewMessage("Beneficiary is no longer eligible for payment")
			return s.refuse(ctx, j, message, OutcomeIneligible)
		default:
			return "", fmt.Errorf("eligibility check failed for %s: %w", j.IdempotencyKey, err)
		}
	}

	failed, err := s.deps.RetryGuard.FailedAttempts(ctx, j)
	if err != nil {
		return "", err
	}
	if failed > s.limits.MaxFailedAttempts {
		logger.Warn("Retry ceiling reached", "failed_attempts", failed, "max_failed_attempts", s.limits.MaxFailedAttempts)
		message := transaction.ManualReviewMessage(fmt.Sprintf("Transfer failed %d times for this payment", failed))
		return s.refuse(ctx, j, message, OutcomeCeiling)
	}

	adapter, ok := s.deps.Adapters.Adapter(j.Provider)
	if !ok {
		logger.Error("No adapter registered for provider")
		message := transaction.ManualReviewMessage(fmt.Sprintf("No integration configured for provider %s", j.Provider))
		return s.refuse(ctx, j, message, OutcomeNoAdapter)
	}

	tx, o, err := s.deps.Attempts.Start(ctx, j)
	if errors.Is(err, transaction.ErrDuplicateIdempotencyKey{}) {
		logger.Info("Another delivery of this job already started the attempt")
		return OutcomeDuplicate, nil
	}
	if err != nil {
		return "", err
	}

	return s.attempt(ctx, queue, j, adapter, tx, o, logger), nil
}

// refuse records an error row for a job that is not sent to the provider
func (s *ProcessingServiceImpl) refuse(ctx context.Context, j *job.Job, message, outcome string) (string, error) {
	if err := s.deps.Failures.RecordFailure(ctx, j, message); err != nil {
		return "", fmt.Errorf("failed to record refusal of %s: %w", j.IdempotencyKey, err)
	}
	return outcome, nil
}

// resume handles a job whose transaction row already exists
func (s *ProcessingServiceImpl) resume(ctx context.Context, queue string, j *job.Job, tx *transaction.Transaction, logger *slog.Logger) (string, error) {
	if tx.Status != transaction.StatusPending {
		logger.Info("Job already processed", "transaction_id", tx.ID.String(), "status", tx.Status)
		return OutcomeDuplicate, nil
	}

	o, err := s.deps.Orders.GetByTransactionID(ctx, j.Scope(), tx.ID)
	if err != nil && !errors.Is(err, order.ErrOrderNotFound{}) {
		return "", fmt.Errorf("failed to load provider order of transaction %s: %w", tx.ID, err)
	}

	if o != nil && !o.IsUnknown() {
		logger.Info("Provider already answered for pending transaction, leaving it to reconciliation",
			"transaction_id", tx.ID.String(),
			"provider_status", *o.Status,
		)
		return OutcomeDuplicate, nil
	}

	// a resent job repeats an attempt that failed transiently, the provider
	// deduplicates it by key, so it is sent again instead of being resolved
	if o != nil && j.Resends == 0 {
		if _, ok := s.deps.Adapters.Querier(j.Provider); ok {
			logger.Info("Resolving pending transaction with unknown provider status", "transaction_id", tx.ID.String())
			s.resolveUnknown(ctx, j, tx, o, logger)
			return OutcomeUnknown, nil
		}
	}

	adapter, ok := s.deps.Adapters.Adapter(j.Provider)
	if !ok {
		logger.Error("No adapter registered for provider")
		s.update(ctx, j, tx, transaction.Failed(transaction.ManualReviewMessage(
			fmt.Sprintf("No integration configured for provider %s", j.Provider))), logger)
		return OutcomeNoAdapter, nil
	}

	if o == nil {
		if o, err = s.deps.Attempts.AttachOrder(ctx, tx); err != nil {
			return "", err
		}
	}

	// the provider deduplicates on the idempotency key, so the same attempt can be resent
	logger.Info("Resending pending transaction", "transaction_id", tx.ID.String(), "reference", o.Reference)
	return s.attempt(ctx, queue, j, adapter, tx, o, logger), nil
}

// attempt makes the single provider call for tx and maps its outcome onto the ledger.
// Write failures after the call are logged: the row stays pending for reconciliation.
func (s *ProcessingServiceImpl) attempt(
	ctx context.Context,
	queue string,
	j *job.Job,
	adapter fsp.Adapter,
	tx *transaction.Transaction,
	o *order.ProviderOrder,
	logger *slog.Logger,
) string {
	callCtx, cancel := s.providerContext(ctx)
	out, err := adapter.Transfer(callCtx, fsp.TransferInput{
		IdempotencyKey: j.IdempotencyKey,
		Reference:      o.Reference,
		Amount:         j.Amount,
		Destination:    j.Destination,
		Params:         j.ProviderParams,
	})
	cancel()

	if err != nil {
		logger.Error("Provider adapter failed unexpectedly", "transaction_id", tx.ID.String(), "error", err)
		s.update(ctx, j, tx, transaction.Failed(transaction.ManualReviewMessage("Unexpected error while sending the transfer")), logger)
		return OutcomeUnexpected
	}

	logger = logger.With("transaction_id", tx.ID.String(), "reference", o.Reference)
	logger.Info("Provider outcome", "outcome", out.String())

	switch out.Kind {
	case fsp.OutcomeAccepted:
		s.refreshOrder(ctx, o, out.ProviderStatus, logger)
		s.update(ctx, j, tx, transaction.Waiting(externalReference(out, o)), logger)
		return OutcomeAccepted

	case fsp.OutcomeSuccess:
		s.refreshOrder(ctx, o, out.ProviderStatus, logger)
		update := transaction.Succeeded(out.Details)
		ref := externalReference(out, o)
		update.ExternalReference = &ref
		if s.update(ctx, j, tx, update, logger) {
			tx.Status = transaction.StatusSuccess
			tx.ExternalReference = &ref
			s.deps.Notifier.PaymentSucceeded(tx)
		}
		return OutcomeSuccess

	case fsp.OutcomeRejected:
		s.refreshOrder(ctx, o, out.ProviderStatus, logger)
		s.update(ctx, j, tx, transaction.Failed(failureMessage(out)), logger)
		return OutcomeRejected

	case fsp.OutcomeTransientFailure:
		s.handleTransient(ctx, queue, j, tx, o, out, logger)
		return OutcomeTransient

	case fsp.OutcomeUnknownAfterTimeout:
		s.resolveUnknown(ctx, j, tx, o, logger)
		return OutcomeUnknown

	default:
		logger.Error("Unmapped provider outcome", "kind", out.Kind)
		s.update(ctx, j, tx, transaction.Failed(transaction.ManualReviewMessage("Unexpected provider response")), logger)
		return OutcomeUnexpected
	}
}

// resolveUnknown asks the provider what happened to an order whose transfer timed out.
// Without a status query the row waits for a callback.
func (s *ProcessingServiceImpl) resolveUnknown(ctx context.Context, j *job.Job, tx *transaction.Transaction, o *order.ProviderOrder, logger *slog.Logger) {
	querier, ok := s.deps.Adapters.Querier(j.Provider)
	if !ok {
		logger.Warn("Provider outcome unknown, awaiting callback")
		s.update(ctx, j, tx, transaction.Waiting(o.Reference), logger)
		return
	}

	callCtx, cancel := s.providerContext(ctx)
	report, err := querier.QueryStatus(callCtx, o.Reference)
	cancel()
	if err != nil {
		logger.Warn("Status query failed, leaving transaction pending for reconciliation", "error", err)
		return
	}

	if report.Found {
		if !s.update(ctx, j, tx, transaction.Waiting(o.Reference), logger) {
			return
		}
	} else if !report.Decision.Transitions() {
		report.Decision = fsp.TransitionTo(transaction.StatusError,
			transaction.RetrySafeMessage("Provider has no record of the transfer"))
	}

	if _, err := s.deps.Applier.Apply(ctx, o, report); err != nil {
		logger.Error("Failed to apply provider status", "error", err)
	}
}

// handleTransient keeps the row pending and resends the same job, under the same
// idempotency key, while the pair's failure budget allows. Once the budget is used up
// the provider is asked what it holds before the row fails.
func (s *ProcessingServiceImpl) handleTransient(
	ctx context.Context,
	queue string,
	j *job.Job,
	tx *transaction.Transaction,
	o *order.ProviderOrder,
	out fsp.Outcome,
	logger *slog.Logger,
) {
	if s.canResend(ctx, j, logger) {
		resend := j.Resend()
		err := s.deps.Requeuer.EnqueueTo(ctx, queue, resend)
		if err == nil {
			logger.Info("Transient failure, job resent with the same idempotency key", "resends", resend.Resends)
			return
		}
		logger.Error("Failed to resend job", "error", err)
	}

	if _, ok := s.deps.Adapters.Querier(j.Provider); ok {
		s.resolveUnknown(ctx, j, tx, o, logger)
		return
	}
	s.update(ctx, j, tx, transaction.Failed(failureMessage(out)), logger)
}

// canResend reports whether the failed rows of the pair plus the resends of this job
// leave room for one more attempt
func (s *ProcessingServiceImpl) canResend(ctx context.Context, j *job.Job, logger *slog.Logger) bool {
	failed, err := s.deps.RetryGuard.FailedAttempts(ctx, j)
	if err != nil {
		logger.Error("Could not count failed attempts, job not resent", "error", err)
		return false
	}
	used := failed + j.Resends + 1
	if used > s.limits.MaxFailedAttempts {
		logger.Info("Retry budget used up", "failed_attempts", failed, "resends", j.Resends)
		return false
	}
	return true
}

// update applies a ledger transition and reports whether it was written
func (s *ProcessingServiceImpl) update(ctx context.Context, j *job.Job, tx *transaction.Transaction, update transaction.StatusUpdate, logger *slog.Logger) bool {
	err := s.deps.Transactions.UpdateStatus(ctx, j.Scope(), tx.ID, update)
	if errors.Is(err, transaction.ErrTerminalState) {
		logger.Info("Transaction already terminal, update skipped", "transaction_id", tx.ID.String(), "status", update.Status)
		return false
	}
	if err != nil {
		logger.Error("Failed to update transaction, leaving it for reconciliation",
			"transaction_id", tx.ID.String(),
			"status", update.Status,
			"error", err,
		)
		return false
	}
	tx.Status = update.Status
	return true
}

func (s *ProcessingServiceImpl) refreshOrder(ctx context.Context, o *order.ProviderOrder, providerStatus string, logger *slog.Logger) {
	if providerStatus == "" || o.StatusIs(providerStatus) {
		return
	}
	if err := s.deps.Orders.UpdateStatus(ctx, o.Scope(), o.ID, providerStatus); err != nil {
		logger.Error("Failed to store provider status", "provider_status", providerStatus, "error", err)
		return
	}
	o.Status = &providerStatus
}

func (s *ProcessingServiceImpl) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.limits.ProviderTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.limits.ProviderTimeout)
}

func externalReference(out fsp.Outcome, o *order.ProviderOrder) string {
	if out.ExternalReference != "" {
		return out.ExternalReference
	}
	return o.Reference
}

func failureMessage(out fsp.Outcome) string {
	if out.Err == nil {
		return transaction.ManualReviewMessage("Provider rejected the transfer")
	}
	return out.Err.LedgerMessage()
}
