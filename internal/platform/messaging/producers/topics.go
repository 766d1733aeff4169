package producers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/fsp-disbursement/internal/config"
	"github.com/segmentio/kafka-go"
)

const (
	partitionReadAttempts = 5
	partitionReadBackoff  = 2 * time.Second
)

// createKafkaTopicIfNotExists creates Kafka topic if not found, retries on partition read errors
func createKafkaTopicIfNotExists(conn topicConn, topicName string, numPartitions int, replicationFactor int, log *slog.Logger) error {
	return ensureTopic(conn, topicName, numPartitions, replicationFactor, log, partitionReadBackoff)
}

func ensureTopic(conn topicConn, topicName string, numPartitions int, replicationFactor int, log *slog.Logger, backoff time.Duration) error {
	var partitions []kafka.Partition
	var err error

	log.Info("Checking if Kafka topic exists", "topic", topicName)
	for i := 0; i < partitionReadAttempts; i++ {
		partitions, err = conn.ReadPartitions(topicName)
		if err == nil {
			break
		}
		log.Warn("Failed to read partitions, retrying...", "topic", topicName, "attempt", i+1, "error", err)
		time.Sleep(backoff)
	}

	if len(partitions) > 0 {
		log.Info("Kafka topic already exists", "topic", topicName)
		return nil
	}

	log.Info("Kafka topic does not exist or is not accessible, attempting to create it", "topic", topicName, "last_error_read", err)
	if err := conn.CreateTopics(topicConfig(topicName, numPartitions, replicationFactor)); err != nil {
		return fmt.Errorf("failed to create kafka topic %s: %w", topicName, err)
	}
	log.Info("Successfully created Kafka topic", "topic", topicName)
	return nil
}

func topicConfig(name string, numPartitions, replicationFactor int) kafka.TopicConfig {
	if numPartitions <= 0 {
		numPartitions = 1
	}
	if replicationFactor <= 0 {
		replicationFactor = 1
	}
	return kafka.TopicConfig{
		Topic:             name,
		NumPartitions:     numPartitions,
		ReplicationFactor: replicationFactor,
	}
}

// TopicAdmin creates and recreates queue topics through the cluster controller
type TopicAdmin struct {
	logger            *slog.Logger
	dial              func(ctx context.Context) (topicConn, error)
	numPartitions     int
	replicationFactor int
	backoff           time.Duration
}

func NewTopicAdmin(logger *slog.Logger, cfg *config.KafkaConfig) *TopicAdmin {
	return &TopicAdmin{
		logger:            logger,
		dial:              controllerDialer(cfg.Brokers),
		numPartitions:     cfg.NumPartitions,
		replicationFactor: cfg.ReplicationFactor,
		backoff:           partitionReadBackoff,
	}
}

// controllerDialer connects to the broker that owns topic metadata, which is
// required for topic deletion.
func controllerDialer(brokers string) func(ctx context.Context) (topicConn, error) {
	return func(ctx context.Context) (topicConn, error) {
		conn, err := kafka.DialContext(ctx, "tcp", brokers)
		if err != nil {
			return nil, fmt.Errorf("failed to dial kafka: %w", err)
		}
		defer conn.Close()

		controller, err := conn.Controller()
		if err != nil {
			return nil, fmt.Errorf("failed to find kafka controller: %w", err)
		}

		controllerConn, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
		if err != nil {
			return nil, fmt.Errorf("failed to dial kafka controller: %w", err)
		}
		return controllerConn, nil
	}
}

// EnsureTopics creates every missing topic
func (a *TopicAdmin) EnsureTopics(ctx context.Context, topics ...string) error {
	conn, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	for _, topic := range topics {
		if err := ensureTopic(conn, topic, a.numPartitions, a.replicationFactor, a.logger, a.backoff); err != nil {
			return err
		}
	}
	return nil
}

// RecreateTopics drops every message of the given topics by deleting and creating them again.
// Topics that do not exist yet are only created.
func (a *TopicAdmin) RecreateTopics(ctx context.Context, topics ...string) error {
	conn, err := a.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	var existing []string
	for _, topic := range topics {
		partitions, err := conn.ReadPartitions(topic)
		if err == nil && len(partitions) > 0 {
			existing = append(existing, topic)
		}
	}

	if len(existing) > 0 {
		if err := conn.DeleteTopics(existing...); err != nil {
			return fmt.Errorf("failed to delete kafka topics %v: %w", existing, err)
		}
		a.logger.Info("Deleted Kafka topics", "topics", existing)
	}

	configs := make([]kafka.TopicConfig, 0, len(topics))
	for _, topic := range topics {
		configs = append(configs, topicConfig(topic, a.numPartitions, a.replicationFactor))
	}
	// deletion completes asynchronously on the brokers
	for attempt := 1; ; attempt++ {
		err = conn.CreateTopics(configs...)
		if err == nil {
			break
		}
		if !errors.Is(err, kafka.TopicAlreadyExists) || attempt >= partitionReadAttempts {
			return fmt.Errorf("failed to recreate kafka topics: %w", err)
		}
		a.logger.Warn("Kafka topics still being deleted, retrying creation", "attempt", attempt)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(a.backoff):
		}
	}

	a.logger.Info("Recreated Kafka topics", "topics", topics)
	return nil
}
