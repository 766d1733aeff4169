package service

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/fsp-disbursement/internal/domain/job"
	"github.com/fsp-disbursement/internal/domain/order"
	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/fsp-disbursement/internal/domain/transaction"
	"github.com/fsp-disbursement/internal/fsp"
	"github.com/fsp-disbursement/internal/settlement"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Create(ctx context.Context, scope shared.Scope, tx *transaction.Transaction) error {
	return m.Called(ctx, scope, tx).Error(0)
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, scope shared.Scope, id uuid.UUID) (*transaction.Transaction, error) {
	args := m.Called(ctx, scope, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) GetByIdempotencyKey(ctx context.Context, scope shared.Scope, key string) (*transaction.Transaction, error) {
	args := m.Called(ctx, scope, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transaction.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) UpdateStatus(ctx context.Context, scope shared.Scope, id uuid.UUID, update transaction.StatusUpdate) error {
	return m.Called(ctx, scope, id, update).Error(0)
}

func (m *MockTransactionRepository) CountFailed(ctx context.Context, scope shared.Scope, referenceID string, paymentNumber int) (int, error) {
	args := m.Called(ctx, scope, referenceID, paymentNumber)
	return args.Int(0), args.Error(1)
}

func (m *MockTransactionRepository) HasInFlight(ctx context.Context, scope shared.Scope, referenceID string, paymentNumber int) (bool, error) {
	args := m.Called(ctx, scope, referenceID, paymentNumber)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransactionRepository) ListLatestFailed(ctx context.Context, scope shared.Scope, paymentNumber int) ([]*transaction.Transaction, error) {
	args := m.Called(ctx, scope, paymentNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*transaction.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) LatestPaymentNumber(ctx context.Context, scope shared.Scope) (int, error) {
	args := m.Called(ctx, scope)
	return args.Int(0), args.Error(1)
}

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(ctx context.Context, scope shared.Scope, o *order.ProviderOrder) error {
	return m.Called(ctx, scope, o).Error(0)
}

func (m *MockOrderRepository) GetByTransactionID(ctx context.Context, scope shared.Scope, transactionID uuid.UUID) (*order.ProviderOrder, error) {
	args := m.Called(ctx, scope, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.ProviderOrder), args.Error(1)
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, scope shared.Scope, id uuid.UUID, status string) error {
	return m.Called(ctx, scope, id, status).Error(0)
}

func (m *MockOrderRepository) FindByReference(ctx context.Context, provider shared.ProviderName, reference string) (*order.ProviderOrder, error) {
	args := m.Called(ctx, provider, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.ProviderOrder), args.Error(1)
}

func (m *MockOrderRepository) ListOpen(ctx context.Context, provider shared.ProviderName, terminalStatuses []string, createdBefore time.Time, limit int) ([]*order.ProviderOrder, error) {
	args := m.Called(ctx, provider, terminalStatuses, createdBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*order.ProviderOrder), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) PaymentSucceeded(tx *transaction.Transaction) {
	m.Called(tx)
}

type MockEligibilityChecker struct {
	mock.Mock
}

func (m *MockEligibilityChecker) Check(ctx context.Context, j *job.Job) error {
	return m.Called(ctx, j).Error(0)
}

type MockRetryGuard struct {
	mock.Mock
}

func (m *MockRetryGuard) FailedAttempts(ctx context.Context, j *job.Job) (int, error) {
	args := m.Called(ctx, j)
	return args.Int(0), args.Error(1)
}

type MockAttemptStarter struct {
	mock.Mock
}

func (m *MockAttemptStarter) Start(ctx context.Context, j *job.Job) (*transaction.Transaction, *order.ProviderOrder, error) {
	args := m.Called(ctx, j)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*transaction.Transaction), args.Get(1).(*order.ProviderOrder), args.Error(2)
}

func (m *MockAttemptStarter) AttachOrder(ctx context.Context, tx *transaction.Transaction) (*order.ProviderOrder, error) {
	args := m.Called(ctx, tx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.ProviderOrder), args.Error(1)
}

type MockFailureRecorder struct {
	mock.Mock
}

func (m *MockFailureRecorder) RecordFailure(ctx context.Context, j *job.Job, message string) error {
	return m.Called(ctx, j, message).Error(0)
}

type MockPairLocker struct {
	mock.Mock
}

func (m *MockPairLocker) Lock(ctx context.Context, pairKey string) (func(context.Context), error) {
	args := m.Called(ctx, pairKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func(context.Context)), args.Error(1)
}

type MockRequeuer struct {
	mock.Mock
}

func (m *MockRequeuer) EnqueueTo(ctx context.Context, queue string, j *job.Job) error {
	return m.Called(ctx, queue, j).Error(0)
}

type MockStatusApplier struct {
	mock.Mock
}

func (m *MockStatusApplier) Apply(ctx context.Context, o *order.ProviderOrder, report fsp.StatusReport) (settlement.Result, error) {
	args := m.Called(ctx, o, report)
	return args.Get(0).(settlement.Result), args.Error(1)
}

type MockRateLimiter struct {
	mock.Mock
}

func (m *MockRateLimiter) Wait(ctx context.Context, queue string) error {
	return m.Called(ctx, queue).Error(0)
}

// MockAdapter is a provider adapter without status queries
type MockAdapter struct {
	mock.Mock
	provider shared.ProviderName
}

func (m *MockAdapter) Provider() shared.ProviderName {
	return m.provider
}

func (m *MockAdapter) Transfer(ctx context.Context, in fsp.TransferInput) (fsp.Outcome, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(fsp.Outcome), args.Error(1)
}

// MockQueryingAdapter also answers status queries
type MockQueryingAdapter struct {
	MockAdapter
}

func (m *MockQueryingAdapter) QueryStatus(ctx context.Context, reference string) (fsp.StatusReport, error) {
	args := m.Called(ctx, reference)
	return args.Get(0).(fsp.StatusReport), args.Error(1)
}

func (m *MockQueryingAdapter) TerminalStatuses() []string {
	return []string{"REDEEMED", "REFUNDED"}
}

type MockProcessingService struct {
	mock.Mock
}

func (m *MockProcessingService) ProcessJob(ctx context.Context, queue string, j *job.Job) error {
	return m.Called(ctx, queue, j).Error(0)
}
