package main

import (
	"github.com/fsp-disbursement/internal/data/postgres"
	"github.com/fsp-disbursement/internal/fsp/providers"
	"github.com/fsp-disbursement/internal/logger"
	"github.com/fsp-disbursement/internal/notification"
	"github.com/fsp-disbursement/internal/payment_processor/reconciliation"
	"github.com/fsp-disbursement/internal/platform/messaging/producers"
	"github.com/fsp-disbursement/internal/platform/persistence"
	"github.com/fsp-disbursement/internal/settlement"
	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation sweep over open provider orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if n, _ := cmd.Flags().GetInt("batch-size"); n > 0 {
				cfg.Reconciliation.BatchSize = n
			}
			if age, _ := cmd.Flags().GetDuration("min-age"); age > 0 {
				cfg.Reconciliation.MinAge = age
			}
			log := logger.NewLogger(cfg)
			ctx := cmd.Context()

			postgresDB, err := persistence.NewPostgresDB(ctx, log, &cfg.Postgres)
			if err != nil {
				return err
			}
			defer postgresDB.Close()

			notificationProducer, err := producers.NewNotificationProducer(ctx, log, &cfg.Kafka)
			if err != nil {
				return err
			}
			defer notificationProducer.Close()
			notifier := notification.NewDispatcher(log, notificationProducer)
			defer notifier.Wait()

			registry, err := providers.NewRegistry(cfg, log)
			if err != nil {
				return err
			}

			transactionRepo := postgres.NewTransactionRepository(log, postgresDB)
			orderRepo := postgres.NewOrderRepository(log, postgresDB)
			sweeper := reconciliation.NewSweeper(
				log,
				registry,
				orderRepo,
				settlement.NewApplier(log, transactionRepo, orderRepo, notifier),
				cfg.Reconciliation.BatchSize,
				cfg.Processor.ProviderTimeout,
				cfg.Reconciliation.MinAge,
			)

			summary, err := sweeper.Sweep(ctx)
			if printErr := printJSON(cmd.OutOrStdout(), summary); printErr != nil {
				return printErr
			}
			return err
		},
	}

	cmd.Flags().Int("batch-size", 0, "Orders per provider, defaults to the configured batch size")
	cmd.Flags().Duration("min-age", 0, "Skip orders younger than this, defaults to the configured minimum age")

	return cmd
}
