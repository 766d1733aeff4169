package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fsp-disbursement/internal/config"
	"github.com/fsp-disbursement/internal/data/postgres"
	"github.com/fsp-disbursement/internal/data/redis"
	"github.com/fsp-disbursement/internal/fsp/providers"
	"github.com/fsp-disbursement/internal/logger"
	"github.com/fsp-disbursement/internal/notification"
	"github.com/fsp-disbursement/internal/payment_processor/components"
	"github.com/fsp-disbursement/internal/payment_processor/consumer"
	"github.com/fsp-disbursement/internal/payment_processor/reconciliation"
	"github.com/fsp-disbursement/internal/platform/messaging/consumers"
	"github.com/fsp-disbursement/internal/platform/messaging/producers"
	"github.com/fsp-disbursement/internal/platform/metrics"
	"github.com/fsp-disbursement/internal/platform/persistence"
	"github.com/fsp-disbursement/internal/queue"
	"github.com/fsp-disbursement/internal/settlement"
)

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("payment_processor")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	log.Info("Starting Payment Processor",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	redisDB, err := persistence.NewRedisDB(appCtx, log, &cfg.Redis)
	if err != nil {
		log.Error("Failed to initialize Redis", "error", err)
		os.Exit(1)
	}

	router := queue.NewRouter(log, cfg.Queue.BulkThreshold)
	queues := router.Queues()

	jobProducer, err := producers.NewJobProducer(appCtx, log, &cfg.Kafka, queues)
	if err != nil {
		log.Error("Failed to initialize job producer", "error", err)
		os.Exit(1)
	}

	// dlqProducer is nil when no DLQ topic is configured; its methods are nil-safe
	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}

	notificationProducer, err := producers.NewNotificationProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize notification producer", "error", err)
		os.Exit(1)
	}
	notifier := notification.NewDispatcher(log, notificationProducer)

	registry, err := providers.NewRegistry(cfg, log)
	if err != nil {
		log.Error("Failed to initialize provider adapters", "error", err)
		os.Exit(1)
	}

	transactionRepo := postgres.NewTransactionRepository(log, postgresDB)
	orderRepo := postgres.NewOrderRepository(log, postgresDB)
	beneficiaryRepo := postgres.NewBeneficiaryRepository(log, postgresDB)
	applier := settlement.NewApplier(log, transactionRepo, orderRepo, notifier)

	deps := components.ProcessorDeps{
		DB:            postgresDB,
		Transactions:  transactionRepo,
		Orders:        orderRepo,
		Beneficiaries: beneficiaryRepo,
		Adapters:      registry,
		Applier:       applier,
		Requeuer:      queue.NewEnqueuer(log, router, jobProducer),
		Notifier:      notifier,
	}
	if cfg.Redis.PairLockEnabled {
		deps.PairLocker = redis.NewPairLocker(log, redisDB.Locker(), cfg.Redis.KeyPrefix, cfg.Redis.PairLockTTL)
	}

	processingService := components.CreateProcessingService(deps, log, cfg)
	limiter := redis.NewRateLimiter(log, redisDB.Client(), cfg.Redis.KeyPrefix, cfg.Queue.RateLimitPerSecond)

	handlers, pools, err := components.CreateQueueHandlers(processingService, limiter, queues, log, cfg)
	if err != nil {
		log.Error("Failed to create queue handlers", "error", err)
		os.Exit(1)
	}

	errChan := make(chan error, 2)
	var wg sync.WaitGroup

	// One consumer per concurrency slot so a queue never has more jobs in flight than its pool
	var kafkaConsumers []*consumers.KafkaConsumer
	for _, reg := range handlers.Registrations() {
		eventHandler := consumer.NewJobEventHandler(log, reg.Queue, reg.Handler, dlqProducer)
		for i := 0; i < reg.Concurrency; i++ {
			c := consumers.NewKafkaConsumer(appCtx, log, &cfg.Kafka, reg.Queue, dlqProducer)
			if err := c.Subscribe(appCtx, eventHandler.HandleMessage); err != nil {
				log.Error("Failed to subscribe to queue", "queue", reg.Queue, "error", err)
				os.Exit(1)
			}
			kafkaConsumers = append(kafkaConsumers, c)
		}
		log.Info("Consuming queue", "queue", reg.Queue, "consumers", reg.Concurrency)
	}

	if cfg.Reconciliation.Enabled {
		sweeper := reconciliation.NewSweeper(log, registry, orderRepo, applier, cfg.Reconciliation.BatchSize, cfg.Processor.ProviderTimeout, cfg.Reconciliation.MinAge)
		poller := reconciliation.NewPoller(log, sweeper, cfg.Reconciliation.Interval)

		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info("Starting reconciliation poller",
				"interval", cfg.Reconciliation.Interval.String(),
				"batch_size", cfg.Reconciliation.BatchSize,
				"min_age", cfg.Reconciliation.MinAge.String(),
			)
			poller.Start(appCtx)
		}()
	}

	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("Starting metrics server", "port", cfg.Metrics.Port)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serviceErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Service error occurred", "error", err)
		serviceErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	for _, c := range kafkaConsumers {
		if err := c.Close(); err != nil {
			log.Error("Error closing Kafka consumer", "error", err)
		}
	}

	for _, p := range pools {
		p.Shutdown()
	}

	wgChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(wgChan)
	}()

	select {
	case <-wgChan:
		log.Info("All services stopped successfully")
	case <-shutdownCtx.Done():
		log.Warn("Shutdown timeout reached, forcing exit")
	}

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Error stopping metrics server", "error", err)
	}

	notifier.Wait()
	if err := notificationProducer.Close(); err != nil {
		log.Error("Error closing notification producer", "error", err)
	}
	if err := dlqProducer.Close(); err != nil {
		log.Error("Error closing DLQ Kafka producer", "error", err)
	}
	if err := jobProducer.Close(); err != nil {
		log.Error("Error closing job producer", "error", err)
	}

	postgresDB.Close()

	if err := redisDB.Close(); err != nil {
		log.Error("Error closing Redis connection", "error", err)
	}

	if serviceErr != nil {
		log.Error("Payment Processor shutdown with errors", "error", serviceErr)
		os.Exit(1)
	}
	log.Info("Payment Processor shutdown completed")
}
