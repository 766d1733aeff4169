package components

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/fsp-disbursement/internal/domain/beneficiary"
	"github.com/fsp-disbursement/internal/domain/job"
	"github.com/fsp-disbursement/internal/domain/order"
	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/fsp-disbursement/internal/domain/transaction"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestJob() *job.Job {
	return job.New(job.BatchContext{
		ProgramID:     3,
		PaymentNumber: 2,
		Provider:      shared.ProviderNedbank,
		BulkSize:      1,
	}, job.TransferRequest{
		ReferenceID: "ref-1",
		Amount:      decimal.NewFromInt(200),
		Destination: "+27821234567",
	})
}

type MockBeneficiaryRepository struct {
	mock.Mock
}

func (m *MockBeneficiaryRepository) GetByReferenceID(ctx context.Context, scope shared.Scope, referenceID string) (*beneficiary.Beneficiary, error) {
	args := m.Called(ctx, scope, referenceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*beneficiary.Beneficiary), args.Error(1)
}

// MockTxRunner runs the function without a real transaction
type MockTxRunner struct {
	mock.Mock
}

func (m *MockTxRunner) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	return fn(nil)
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
