package handler

import (
	"context"
	"log/slog"
	"os"

	"github.com/fsp-disbursement/internal/api_gateway/service"
	"github.com/fsp-disbursement/internal/domain/callback"
	"github.com/fsp-disbursement/internal/domain/job"
	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/fsp-disbursement/internal/queue"
	"github.com/stretchr/testify/mock"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

// TestResponse is a typed version of Response for decoding test bodies
type TestResponse[T any] struct {
	Data          T          `json:"data"`
	Error         *ErrorInfo `json:"error,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
}

type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) EnqueueBatch(ctx context.Context, batch job.BatchContext, items []job.TransferRequest) (*service.BatchResult, error) {
	args := m.Called(ctx, batch, items)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.BatchResult), args.Error(1)
}

func (m *MockPaymentService) RetryFailed(ctx context.Context, programID int64, paymentNumber int, userID int64, correlationID string) (*service.BatchResult, error) {
	args := m.Called(ctx, programID, paymentNumber, userID, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.BatchResult), args.Error(1)
}

type MockCallbackService struct {
	mock.Mock
}

func (m *MockCallbackService) HandleCallback(ctx context.Context, provider shared.ProviderName, kind string, body []byte, correlationID string) (callback.Result, error) {
	args := m.Called(ctx, provider, kind, body, correlationID)
	return args.Get(0).(callback.Result), args.Error(1)
}

type MockQueuePurger struct {
	mock.Mock
}

func (m *MockQueuePurger) PurgeAll(ctx context.Context) (queue.PurgeResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(queue.PurgeResult), args.Error(1)
}

type MockCallbackLog struct {
	mock.Mock
}

func (m *MockCallbackLog) ListByReference(ctx context.Context, provider shared.ProviderName, reference string, limit int) ([]*callback.Entry, error) {
	args := m.Called(ctx, provider, reference, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*callback.Entry), args.Error(1)
}
