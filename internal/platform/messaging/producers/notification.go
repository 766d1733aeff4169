package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/fsp-disbursement/internal/config"
	"github.com/segmentio/kafka-go"
)

// NotificationProducer writes notification events for the messaging service
type NotificationProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

func NewNotificationProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*NotificationProducer, error) {
	if cfg.NotificationTopic == "" {
		return nil, fmt.Errorf("kafka notification topic is not configured")
	}

	if err := NewTopicAdmin(logger, cfg).EnsureTopics(ctx, cfg.NotificationTopic); err != nil {
		return nil, fmt.Errorf("failed to ensure notification topic %s exists: %w", cfg.NotificationTopic, err)
	}

	topic := cfg.NotificationTopic
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		WriteTimeout: cfg.MaxWait,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				logger.Error("Failed to write notification messages asynchronously", "topic", topic, "error", err, "count", len(messages))
			}
		},
	}

	return &NotificationProducer{
		logger: logger,
		writer: writer,
		topic:  topic,
	}, nil
}

func (p *NotificationProducer) Publish(ctx context.Context, key string, value interface{}) error {
	jsonValue, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: jsonValue,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish notification to %s: %w", p.topic, err)
	}
	return nil
}

func (p *NotificationProducer) Close() error {
	p.logger.Info("Closing notification producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close notification writer for topic %s: %w", p.topic, err)
	}
	return nil
}
