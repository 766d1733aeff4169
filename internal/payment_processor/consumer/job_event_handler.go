package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fsp-disbursement/internal/domain/job"
	"github.com/fsp-disbursement/internal/platform/messaging/producers"
	"github.com/fsp-disbursement/internal/queue"
)

// JobEventHandler decodes job messages of one queue and hands them to the queue's handler
type JobEventHandler struct {
	queue   string
	handler queue.JobHandler
	dlq     producers.DeadLetterPublisher
	logger  *slog.Logger
}

// NewJobEventHandler creates a new handler
func NewJobEventHandler(
	logger *slog.Logger,
	queueName string,
	handler queue.JobHandler,
	dlq producers.DeadLetterPublisher,
) *JobEventHandler {
	return &JobEventHandler{
		queue:   queueName,
		handler: handler,
		dlq:     dlq,
		logger:  logger.With("queue", queueName),
	}
}

// HandleMessage processes one Kafka message. Messages that can never be processed are
// parked in the DLQ; handler errors are returned so the consumer redelivers.
func (h *JobEventHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var j job.Job
	if err := json.Unmarshal(value, &j); err != nil {
		return h.park(ctx, key, value, fmt.Errorf("failed to unmarshal job: %w", err))
	}
	if err := j.Validate(); err != nil {
		return h.park(ctx, key, value, err)
	}

	logger := h.logger
	if j.CorrelationID != "" {
		logger = h.logger.With("correlation_id", j.CorrelationID)
	}

	logger.Info("Received job",
		"idempotency_key", j.IdempotencyKey,
		"program_id", j.ProgramID,
		"reference_id", j.ReferenceID,
		"payment_number", j.PaymentNumber,
		"is_retry", j.IsRetry,
	)

	if err := h.handler.Handle(ctx, &j); err != nil {
		logger.Warn("Job handler failed", "idempotency_key", j.IdempotencyKey, "error", err)
		return fmt.Errorf("processing job %s failed: %w", j.IdempotencyKey, err)
	}
	return nil
}

func (h *JobEventHandler) park(ctx context.Context, key, value []byte, reason error) error {
	h.logger.Error("Unprocessable job message", "message_key", string(key), "error", reason)

	dlqErr := producers.ErrDLQDisabled
	if h.dlq != nil {
		dlqErr = h.dlq.PublishToDLQ(ctx, string(key), value, reason.Error())
	}
	if dlqErr == nil {
		h.logger.Info("Published unprocessable job to DLQ", "message_key", string(key))
		return nil
	}
	if errors.Is(dlqErr, producers.ErrDLQDisabled) {
		h.logger.Warn("DLQ disabled, dropping unprocessable job", "message_key", string(key))
		return nil
	}
	return fmt.Errorf("failed to park unprocessable job: %w", dlqErr)
}
