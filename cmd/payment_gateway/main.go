package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsp-disbursement/internal/api_gateway"
	"github.com/fsp-disbursement/internal/api_gateway/service"
	"github.com/fsp-disbursement/internal/config"
	"github.com/fsp-disbursement/internal/data/mongo"
	"github.com/fsp-disbursement/internal/data/postgres"
	"github.com/fsp-disbursement/internal/data/redis"
	"github.com/fsp-disbursement/internal/fsp/providers"
	"github.com/fsp-disbursement/internal/logger"
	"github.com/fsp-disbursement/internal/notification"
	"github.com/fsp-disbursement/internal/platform/messaging/producers"
	"github.com/fsp-disbursement/internal/platform/persistence"
	"github.com/fsp-disbursement/internal/queue"
	"github.com/fsp-disbursement/internal/settlement"
)

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("payment_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
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
	callbackRepo := mongo.NewCallbackLogRepository(log, mongoDB.Database())
	if err := mongoDB.EnsureIndexes(appCtx, mongo.CallbackCollectionName, mongo.CallbackIndexes(cfg.Callback.Retention)); err != nil {
		log.Error("Failed to create callback indexes", "error", err)
		os.Exit(1)
	}
	rateLimiter := redis.NewRateLimiter(log, redisDB.Client(), cfg.Redis.KeyPrefix, cfg.Queue.RateLimitPerSecond)

	enqueuer := queue.NewEnqueuer(log, router, jobProducer)
	applier := settlement.NewApplier(log, transactionRepo, orderRepo, notifier)
	purger := queue.NewPurger(log, producers.NewTopicAdmin(log, &cfg.Kafka), rateLimiter, queues, cfg.Application.IsProduction())

	server := api_gateway.NewServer(log, cfg, api_gateway.Services{
		Payments:    service.NewPaymentService(log, transactionRepo, enqueuer, cfg.Processor.RetryWindowPayments),
		Callbacks:   service.NewCallbackService(log, registry, orderRepo, applier, callbackRepo),
		Purger:      purger,
		CallbackLog: callbackRepo,
		Providers:   registry.Providers(),
		Health: map[string]api_gateway.HealthCheck{
			"postgres": postgresDB.Ping,
			"mongodb":  mongoDB.Ping,
			"redis":    func(ctx context.Context) error { return redisDB.Client().Ping(ctx).Err() },
		},
	})
	log.Info("REST server initialized", "queues", queues)

	errChan := make(chan error, 1)

	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	cancelAppCtx()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// Stop taking requests before the stores they use go away
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	notifier.Wait()
	if err = notificationProducer.Close(); err != nil {
		log.Error("Error closing notification producer", "error", err)
	}

	if err = jobProducer.Close(); err != nil {
		log.Error("Error closing job producer", "error", err)
	}

	postgresDB.Close()

	if err = redisDB.Close(); err != nil {
		log.Error("Error closing Redis connection", "error", err)
	}

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	if serverErr != nil {
		log.Error("Payment gateway shutdown with errors", "error", serverErr)
		os.Exit(1)
	}
	log.Info("Payment gateway shutdown completed")
}
