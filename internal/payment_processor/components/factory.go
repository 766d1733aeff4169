package components

import (
	"log/slog"

	"github.com/fsp-disbursement/internal/config"
	"github.com/fsp-disbursement/internal/data/postgres"
	"github.com/fsp-disbursement/internal/domain/beneficiary"
	"github.com/fsp-disbursement/internal/domain/order"
	"github.com/fsp-disbursement/internal/domain/transaction"
	"github.com/fsp-disbursement/internal/fsp"
	"github.com/fsp-disbursement/internal/notification"
	"github.com/fsp-disbursement/internal/payment_processor/service"
	"github.com/fsp-disbursement/internal/queue"
	"github.com/jackc/pgx/v5"
)

// ProcessorDeps are the stores and integrations the processor is built from.
// PairLocker is nil when the pair lock is disabled.
type ProcessorDeps struct {
	DB            TxRunner
	Transactions  *postgres.TransactionRepository
	Orders        *postgres.OrderRepository
	Beneficiaries beneficiary.Repository
	Adapters      *fsp.Registry
	Applier       service.StatusApplier
	Requeuer      service.Requeuer
	Notifier      notification.Notifier
	PairLocker    service.PairLocker
}

// CreateProcessingService creates a new ProcessingService with all its dependencies.
func CreateProcessingService(deps ProcessorDeps, logger *slog.Logger, cfg *config.Config) service.ProcessingService {
	bind := func(tx pgx.Tx) (transaction.Repository, order.Repository) {
		return deps.Transactions.WithTx(tx), deps.Orders.WithTx(tx)
	}

	return service.NewProcessingService(service.Dependencies{
		Transactions: deps.Transactions,
		Orders:       deps.Orders,
		Eligibility:  NewEligibilityChecker(deps.Beneficiaries, logger),
		RetryGuard:   NewRetryGuard(deps.Transactions),
		Attempts:     NewAttemptStarter(deps.DB, bind, deps.Orders, logger),
		Failures:     NewFailureRecorder(deps.Transactions, logger),
		Adapters:     deps.Adapters,
		Applier:      deps.Applier,
		Requeuer:     deps.Requeuer,
		Notifier:     deps.Notifier,
		PairLocker:   deps.PairLocker,
	}, service.Limits{
		MaxFailedAttempts: cfg.Processor.MaxFailedAttempts,
		ProviderTimeout:   cfg.Processor.ProviderTimeout,
	}, logger)
}

// CreateQueueHandlers gives every queue its own worker pool sized by the queue's concurrency
// and registers it. The returned pools must be shut down by the caller.
func CreateQueueHandlers(
	base service.ProcessingService,
	limiter service.RateLimiter,
	queues []string,
	logger *slog.Logger,
	cfg *config.Config,
) (*queue.Registry, []*service.QueueWorkerPool, error) {
	registry := queue.NewRegistry()
	pools := make([]*service.QueueWorkerPool, 0, len(queues))

	shutdown := func() {
		for _, p := range pools {
			p.Shutdown()
		}
	}

	for _, name := range queues {
		size := cfg.Queue.ConcurrencyFor(name)
		pool, err := service.NewQueueWorkerPool(base, limiter, service.WorkerPoolConfig{Queue: name, Size: size}, logger)
		if err != nil {
			shutdown()
			return nil, nil, err
		}
		pools = append(pools, pool)

		if err := registry.Register(name, size, pool); err != nil {
			shutdown()
			return nil, nil, err
		}
		logger.Info("Registered queue", "queue", name, "concurrency", size)
	}
	return registry, pools, nil
}
