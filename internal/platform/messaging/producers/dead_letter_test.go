package producers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDLQProducer_PublishToDLQ(t *testing.T) {
	ctx := context.Background()
	dlqTopic := "test-dlq-topic"
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("SuccessfulPublishToDLQ", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &DLQProducer{
			logger:   newTestLogger(),
			writer:   mockWriter,
			dlqTopic: dlqTopic,
			now:      func() time.Time { return fixed },
		}

		key := "3:ref-1:2"
		original := []byte(`{"idempotency_key":"abc"}`)
		reason := "invalid job: ReferenceID: required"

		mockWriter.On("WriteMessages", ctx, mock.MatchedBy(func(msgs []kafka.Message) bool {
			if len(msgs) != 1 || string(msgs[0].Key) != key {
				return false
			}
			var payload DeadLetter
			if err := json.Unmarshal(msgs[0].Value, &payload); err != nil {
				return false
			}
			return payload.OriginalValue == string(original) &&
				payload.DLQReason == reason &&
				payload.Timestamp == "2024-03-01T12:00:00Z" &&
				len(msgs[0].Headers) == 1 &&
				msgs[0].Headers[0].Key == "dlq-reason"
		})).Return(nil).Once()

		require.NoError(t, producer.PublishToDLQ(ctx, key, original, reason))
		mockWriter.AssertExpectations(t)
	})

	t.Run("PublishToDLQReturnsErrorOnWriterError", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &DLQProducer{logger: newTestLogger(), writer: mockWriter, dlqTopic: dlqTopic}
		writerError := errors.New("kafka DLQ write error")

		mockWriter.On("WriteMessages", ctx, mock.AnythingOfType("[]kafka.Message")).Return(writerError).Once()

		err := producer.PublishToDLQ(ctx, "k", []byte("v"), "writer_error")
		assert.ErrorIs(t, err, writerError)
		mockWriter.AssertExpectations(t)
	})

	t.Run("Disabled", func(t *testing.T) {
		var producer *DLQProducer
		assert.ErrorIs(t, producer.PublishToDLQ(ctx, "k", []byte("v"), "r"), ErrDLQDisabled)
		assert.NoError(t, producer.Close())
	})
}

func TestDLQProducer_Close(t *testing.T) {
	mockWriter := new(MockKafkaWriter)
	producer := &DLQProducer{logger: newTestLogger(), writer: mockWriter, dlqTopic: "dlq"}

	mockWriter.On("Close").Return(nil).Once()

	require.NoError(t, producer.Close())
	mockWriter.AssertExpectations(t)
}
