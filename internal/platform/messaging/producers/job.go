package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/fsp-disbursement/internal/config"
	"github.com/segmentio/kafka-go"
)

// JobProducer writes job messages to queue topics. The topic is chosen per message.
type JobProducer struct {
	logger *slog.Logger
	writer KafkaWriter
}

// NewJobProducer creates the queue producer and makes sure every queue topic exists
func NewJobProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig, topics []string) (*JobProducer, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("no queue topics configured")
	}

	if err := NewTopicAdmin(logger, cfg).EnsureTopics(ctx, topics...); err != nil {
		return nil, fmt.Errorf("failed to ensure queue topics exist for job producer: %w", err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.MaxWait,
	}

	return &JobProducer{
		logger: logger,
		writer: writer,
	}, nil
}

// Publish writes one message synchronously so the caller knows the job was enqueued.
// Messages with the same key land on the same partition.
func (p *JobProducer) Publish(ctx context.Context, topic string, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: jsonValue,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish job message",
			"topic", topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish job message to %s: %w", topic, err)
	}

	p.logger.Debug("Published job message", "topic", topic, "key", key)
	return nil
}

func (p *JobProducer) Close() error {
	p.logger.Info("Closing job producer")
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close job producer writer: %w", err)
	}
	return nil
}
