package consumers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsp-disbursement/internal/config"
	"github.com/fsp-disbursement/internal/platform/messaging/producers"
	"github.com/segmentio/kafka-go"
)

type MessageHandler func(ctx context.Context, key []byte, value []byte) error

// Consumer defines the message queue consumer interface
type Consumer interface {
	Subscribe(ctx context.Context, handler MessageHandler) error
	Close() error
}

// messageReader is the subset of *kafka.Reader the consumer uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads one queue topic. A message is committed after its handler succeeds,
// or after it has been parked in the DLQ once the handler attempts are used up.
type KafkaConsumer struct {
	reader       messageReader
	dlq          producers.DeadLetterPublisher
	topic        string
	groupID      string
	maxAttempts  int
	retryBackoff time.Duration
	logger       *slog.Logger
}

func NewKafkaConsumer(_ context.Context, logger *slog.Logger, cfg *config.KafkaConfig, topic string, dlq producers.DeadLetterPublisher) *KafkaConsumer {
	return &KafkaConsumer{
		logger:       logger.With("topic", topic),
		topic:        topic,
		groupID:      cfg.ConsumerGroup,
		dlq:          dlq,
		maxAttempts:  cfg.HandlerMaxAttempts,
		retryBackoff: cfg.HandlerRetryBackoff,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     []string{cfg.Brokers},
			Topic:       topic,
			GroupID:     cfg.ConsumerGroup,
			MinBytes:    cfg.MinBytes,
			MaxBytes:    cfg.MaxBytes,
			MaxWait:     cfg.MaxWait,
			StartOffset: kafka.FirstOffset,
		}),
	}
}

// Subscribe starts the fetch loop in a goroutine and returns immediately
func (c *KafkaConsumer) Subscribe(ctx context.Context, handler MessageHandler) error {
	if c.reader == nil {
		return fmt.Errorf("consumer for %s has no reader", c.topic)
	}
	c.logger.Info("Subscribed to Kafka topic", "group_id", c.groupID)

	go c.run(ctx, handler)
	return nil
}

func (c *KafkaConsumer) run(ctx context.Context, handler MessageHandler) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Context canceled, stopping consumer")
				return
			}
			c.logger.Error("Failed to fetch message from Kafka", "error", err)
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}

		c.logger.Debug("Received message from Kafka",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
		)

		if !c.handle(ctx, msg, handler) {
			return
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("Failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", string(msg.Key),
				"error", err,
			)
		}
	}
}

// handle runs the handler with retries. It returns false when the context ended before
// the message was settled, in which case the offset must not be committed.
func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message, handler MessageHandler) bool {
	attempts := c.maxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = handler(ctx, msg.Key, msg.Value)
		if lastErr == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		c.logger.Warn("Message handler failed",
			"offset", msg.Offset,
			"key", string(msg.Key),
			"attempt", attempt,
			"max_attempts", attempts,
			"error", lastErr,
		)
		if attempt < attempts && !sleep(ctx, c.retryBackoff*time.Duration(attempt)) {
			return false
		}
	}

	reason := fmt.Sprintf("handler failed after %d attempts: %v", attempts, lastErr)
	if c.dlq == nil {
		c.logger.Error("Dropping message without DLQ", "key", string(msg.Key), "reason", reason)
		return true
	}
	for {
		err := c.dlq.PublishToDLQ(ctx, string(msg.Key), msg.Value, reason)
		if err == nil || errors.Is(err, producers.ErrDLQDisabled) {
			return true
		}
		c.logger.Error("Failed to park message in DLQ, retrying", "key", string(msg.Key), "error", err)
		if !sleep(ctx, time.Second) {
			return false
		}
	}
}

func (c *KafkaConsumer) Close() error {
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
