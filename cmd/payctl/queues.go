package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fsp-disbursement/internal/config"
	"github.com/fsp-disbursement/internal/data/redis"
	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/fsp-disbursement/internal/logger"
	"github.com/fsp-disbursement/internal/platform/messaging/producers"
	"github.com/fsp-disbursement/internal/platform/persistence"
	"github.com/fsp-disbursement/internal/queue"
	"github.com/spf13/cobra"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	name, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	// schema changes belong to the services, never to the operator tool
	cfg.Postgres.MigrationsPath = ""
	return cfg, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func routeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "route <provider>",
		Short: "Print the queue a job of the provider is routed to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			threshold, _ := cmd.Flags().GetInt("bulk-threshold")
			bulkSize, _ := cmd.Flags().GetInt("bulk-size")

			log := logger.NewLogger(&config.Config{Logging: config.LoggingConfig{Level: "error"}})
			router := queue.NewRouter(log, threshold)
			fmt.Fprintln(cmd.OutOrStdout(), router.Route(shared.ParseProviderName(args[0]), bulkSize))
			return nil
		},
	}

	cmd.Flags().Int("bulk-size", 1, "Number of jobs in the batch")
	cmd.Flags().Int("bulk-threshold", 0, "Small-bulk threshold, 0 disables the bulk split")

	return cmd
}

func queuesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queues",
		Short: "List every queue a job can be routed to",
		RunE: func(cmd *cobra.Command, args []string) error {
			threshold, _ := cmd.Flags().GetInt("bulk-threshold")

			log := logger.NewLogger(&config.Config{Logging: config.LoggingConfig{Level: "error"}})
			for _, q := range queue.NewRouter(log, threshold).Queues() {
				fmt.Fprintln(cmd.OutOrStdout(), q)
			}
			return nil
		},
	}

	cmd.Flags().Int("bulk-threshold", 0, "Small-bulk threshold, 0 disables the bulk split")

	return cmd
}

func purgeQueuesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-queues",
		Short: "Drop every queued job and clear the rate-limiter state",
		Long: `Recreates every queue topic and deletes the rate-limiter keys.
Jobs already being processed are not affected. Refused in production.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log := logger.NewLogger(cfg)
			ctx := cmd.Context()

			redisDB, err := persistence.NewRedisDB(ctx, log, &cfg.Redis)
			if err != nil {
				return err
			}
			defer redisDB.Close()

			router := queue.NewRouter(log, cfg.Queue.BulkThreshold)
			purger := queue.NewPurger(
				log,
				producers.NewTopicAdmin(log, &cfg.Kafka),
				redis.NewRateLimiter(log, redisDB.Client(), cfg.Redis.KeyPrefix, cfg.Queue.RateLimitPerSecond),
				router.Queues(),
				cfg.Application.IsProduction(),
			)

			result, err := purger.PurgeAll(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}
