package service

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/fsp-disbursement/internal/domain/callback"
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
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
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

type MockJobEnqueuer struct {
	mock.Mock
}

func (m *MockJobEnqueuer) Enqueue(ctx context.Context, j *job.Job) (string, error) {
	args := m.Called(ctx, j)
	return args.String(0), args.Error(1)
}

type MockCallbackParsers struct {
	mock.Mock
}

func (m *MockCallbackParsers) CallbackParser(provider shared.ProviderName) (fsp.CallbackParser, bool) {
	args := m.Called(provider)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(fsp.CallbackParser), args.Bool(1)
}

type MockCallbackParser struct {
	mock.Mock
	provider shared.ProviderName
}

func (m *MockCallbackParser) Provider() shared.ProviderName {
	return m.provider
}

func (m *MockCallbackParser) ParseCallback(kind string, body []byte) (fsp.StatusReport, error) {
	args := m.Called(kind, body)
	return args.Get(0).(fsp.StatusReport), args.Error(1)
}

type MockStatusApplier struct {
	mock.Mock
}

func (m *MockStatusApplier) Apply(ctx context.Context, o *order.ProviderOrder, report fsp.StatusReport) (settlement.Result, error) {
	args := m.Called(ctx, o, report)
	return args.Get(0).(settlement.Result), args.Error(1)
}

type MockCallbackRepository struct {
	mock.Mock
}

func (m *MockCallbackRepository) Record(ctx context.Context, entry *callback.Entry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *MockCallbackRepository) ListByReference(ctx context.Context, provider shared.ProviderName, reference string, limit int) ([]*callback.Entry, error) {
	args := m.Called(ctx, provider, reference, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*callback.Entry), args.Error(1)
}
