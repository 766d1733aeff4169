package reconciliation

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsp-disbursement/internal/domain/order"
	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/fsp-disbursement/internal/domain/transaction"
	"github.com/fsp-disbursement/internal/fsp"
	"github.com/fsp-disbursement/internal/settlement"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
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

type MockQuerier struct {
	mock.Mock
	provider shared.ProviderName
	terminal []string
}

func (m *MockQuerier) Provider() shared.ProviderName {
	return m.provider
}

func (m *MockQuerier) TerminalStatuses() []string {
	return m.terminal
}

func (m *MockQuerier) QueryStatus(ctx context.Context, reference string) (fsp.StatusReport, error) {
	args := m.Called(ctx, reference)
	return args.Get(0).(fsp.StatusReport), args.Error(1)
}

type staticQueriers []fsp.StatusQuerier

func (s staticQueriers) Queriers() []fsp.StatusQuerier {
	return s
}

type MockStatusApplier struct {
	mock.Mock
}

func (m *MockStatusApplier) Apply(ctx context.Context, o *order.ProviderOrder, report fsp.StatusReport) (settlement.Result, error) {
	args := m.Called(ctx, o, report)
	return args.Get(0).(settlement.Result), args.Error(1)
}

// olderThan matches the cutoff a sweep with the given minimum age passes to ListOpen
func olderThan(minAge time.Duration) interface{} {
	return mock.MatchedBy(func(createdBefore time.Time) bool {
		age := time.Since(createdBefore)
		return age >= minAge && age < minAge+time.Minute
	})
}

func openOrder(reference string) *order.ProviderOrder {
	return order.New(uuid.New(), 3, shared.ProviderNedbank, reference)
}

func TestSweeper_Sweep(t *testing.T) {
	terminal := []string{"REDEEMED", "REFUNDED"}
	redeemed := fsp.StatusReport{
		Reference:      "ref-a",
		ProviderStatus: "REDEEMED",
		Found:          true,
		Decision:       fsp.TransitionTo(transaction.StatusSuccess, ""),
	}
	pending := fsp.StatusReport{Reference: "ref-b", ProviderStatus: "PENDING", Found: true}

	testCases := []struct {
		name            string
		setupMocks      func(orders *MockOrderRepository, querier *MockQuerier, applier *MockStatusApplier)
		expectedSummary Summary
		expectedError   bool
	}{
		{
			name: "AppliesEveryOpenOrder",
			setupMocks: func(orders *MockOrderRepository, querier *MockQuerier, applier *MockStatusApplier) {
				a, b := openOrder("ref-a"), openOrder("ref-b")
				orders.On("ListOpen", mock.Anything, shared.ProviderNedbank, terminal, olderThan(5*time.Minute), 50).Return([]*order.ProviderOrder{a, b}, nil).Once()
				querier.On("QueryStatus", mock.Anything, "ref-a").Return(redeemed, nil).Once()
				querier.On("QueryStatus", mock.Anything, "ref-b").Return(pending, nil).Once()
				applier.On("Apply", mock.Anything, a, redeemed).Return(settlement.Result{Transitioned: true, Status: transaction.StatusSuccess}, nil).Once()
				applier.On("Apply", mock.Anything, b, pending).Return(settlement.Result{OrderRefreshed: true}, nil).Once()
			},
			expectedSummary: Summary{Checked: 2, Transitioned: 1},
		},
		{
			name: "QueryFailureIsIsolated",
			setupMocks: func(orders *MockOrderRepository, querier *MockQuerier, applier *MockStatusApplier) {
				a, b := openOrder("ref-a"), openOrder("ref-b")
				orders.On("ListOpen", mock.Anything, shared.ProviderNedbank, terminal, olderThan(5*time.Minute), 50).Return([]*order.ProviderOrder{b, a}, nil).Once()
				querier.On("QueryStatus", mock.Anything, "ref-b").Return(fsp.StatusReport{}, errors.New("timeout")).Once()
				querier.On("QueryStatus", mock.Anything, "ref-a").Return(redeemed, nil).Once()
				applier.On("Apply", mock.Anything, a, redeemed).Return(settlement.Result{Transitioned: true}, nil).Once()
			},
			expectedSummary: Summary{Checked: 2, Transitioned: 1, Failed: 1},
		},
		{
			name: "ApplyFailureIsCounted",
			setupMocks: func(orders *MockOrderRepository, querier *MockQuerier, applier *MockStatusApplier) {
				a := openOrder("ref-a")
				orders.On("ListOpen", mock.Anything, shared.ProviderNedbank, terminal, olderThan(5*time.Minute), 50).Return([]*order.ProviderOrder{a}, nil).Once()
				querier.On("QueryStatus", mock.Anything, "ref-a").Return(redeemed, nil).Once()
				applier.On("Apply", mock.Anything, a, redeemed).Return(settlement.Result{}, errors.New("db down")).Once()
			},
			expectedSummary: Summary{Checked: 1, Failed: 1},
		},
		{
			name: "AlreadyTerminalRowIsUnchanged",
			setupMocks: func(orders *MockOrderRepository, querier *MockQuerier, applier *MockStatusApplier) {
				a := openOrder("ref-a")
				orders.On("ListOpen", mock.Anything, shared.ProviderNedbank, terminal, olderThan(5*time.Minute), 50).Return([]*order.ProviderOrder{a}, nil).Once()
				querier.On("QueryStatus", mock.Anything, "ref-a").Return(redeemed, nil).Once()
				applier.On("Apply", mock.Anything, a, redeemed).Return(settlement.Result{OrderRefreshed: true, AlreadyTerminal: true}, nil).Once()
			},
			expectedSummary: Summary{Checked: 1},
		},
		{
			name: "NothingOpen",
			setupMocks: func(orders *MockOrderRepository, querier *MockQuerier, applier *MockStatusApplier) {
				orders.On("ListOpen", mock.Anything, shared.ProviderNedbank, terminal, olderThan(5*time.Minute), 50).Return([]*order.ProviderOrder{}, nil).Once()
			},
		},
		{
			name: "ListFailure",
			setupMocks: func(orders *MockOrderRepository, querier *MockQuerier, applier *MockStatusApplier) {
				orders.On("ListOpen", mock.Anything, shared.ProviderNedbank, terminal, olderThan(5*time.Minute), 50).Return(nil, errors.New("db down")).Once()
			},
			expectedError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			orders := &MockOrderRepository{}
			querier := &MockQuerier{provider: shared.ProviderNedbank, terminal: terminal}
			applier := &MockStatusApplier{}
			tc.setupMocks(orders, querier, applier)

			sweeper := NewSweeper(newTestLogger(), staticQueriers{querier}, orders, applier, 50, time.Second, 5*time.Minute)
			summary, err := sweeper.Sweep(context.Background())

			if tc.expectedError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.expectedSummary, summary)
			orders.AssertExpectations(t)
			querier.AssertExpectations(t)
			applier.AssertExpectations(t)
		})
	}
}

func TestSweeper_ListFailureDoesNotStopOtherProviders(t *testing.T) {
	orders := &MockOrderRepository{}
	applier := &MockStatusApplier{}
	failing := &MockQuerier{provider: shared.ProviderNedbank}
	working := &MockQuerier{provider: shared.ProviderSafaricom}

	o := order.New(uuid.New(), 3, shared.ProviderSafaricom, "conv-1")
	report := fsp.StatusReport{Reference: "conv-1", Found: true, Decision: fsp.TransitionTo(transaction.StatusError, "failed")}

	orders.On("ListOpen", mock.Anything, shared.ProviderNedbank, mock.Anything, mock.Anything, 10).Return(nil, errors.New("db down")).Once()
	orders.On("ListOpen", mock.Anything, shared.ProviderSafaricom, mock.Anything, mock.Anything, 10).Return([]*order.ProviderOrder{o}, nil).Once()
	working.On("QueryStatus", mock.Anything, "conv-1").Return(report, nil).Once()
	applier.On("Apply", mock.Anything, o, report).Return(settlement.Result{Transitioned: true}, nil).Once()

	sweeper := NewSweeper(newTestLogger(), staticQueriers{failing, working}, orders, applier, 10, 0, 0)
	summary, err := sweeper.Sweep(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "nedbank")
	assert.Equal(t, Summary{Checked: 1, Transitioned: 1}, summary)
	applier.AssertExpectations(t)
}

type countingSweeper struct {
	calls atomic.Int32
}

func (s *countingSweeper) Sweep(ctx context.Context) (Summary, error) {
	s.calls.Add(1)
	return Summary{}, errors.New("sweep failed")
}

func TestPoller_Start(t *testing.T) {
	sweeper := &countingSweeper{}
	poller := NewPoller(newTestLogger(), sweeper, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancellation")
	}
}

// ledgerStore keeps orders and transactions in memory so consecutive sweeps see the
// writes of earlier ones
type ledgerStore struct {
	mu            sync.Mutex
	orders        map[uuid.UUID]*order.ProviderOrder
	transactions  map[uuid.UUID]*transaction.Transaction
	failTxUpdates int
}

func newLedgerStore() *ledgerStore {
	return &ledgerStore{
		orders:       make(map[uuid.UUID]*order.ProviderOrder),
		transactions: make(map[uuid.UUID]*transaction.Transaction),
	}
}

// addPending stores a pending transaction and its unknown order created age ago
func (l *ledgerStore) addPending(reference string, age time.Duration) *order.ProviderOrder {
	tx := &transaction.Transaction{ID: uuid.New(), ProgramID: 3, Provider: shared.ProviderNedbank, Status: transaction.StatusPending}
	o := order.New(tx.ID, 3, shared.ProviderNedbank, reference)
	o.CreatedAt = time.Now().UTC().Add(-age)
	l.transactions[tx.ID] = tx
	l.orders[o.ID] = o
	return o
}

type storeOrders struct {
	order.Repository
	store *ledgerStore
}

func (r storeOrders) UpdateStatus(ctx context.Context, scope shared.Scope, id uuid.UUID, status string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.orders[id]
	if !ok {
		return order.ErrOrderNotFound{ID: id}
	}
	o.Status = &status
	return nil
}

func (r storeOrders) ListOpen(ctx context.Context, provider shared.ProviderName, terminalStatuses []string, createdBefore time.Time, limit int) ([]*order.ProviderOrder, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var open []*order.ProviderOrder
	for _, o := range r.store.orders {
		if o.Provider != provider || !o.CreatedAt.Before(createdBefore) {
			continue
		}
		if o.Status != nil && slices.Contains(terminalStatuses, *o.Status) {
			continue
		}
		if r.store.transactions[o.TransactionID].Status.IsTerminal() {
			continue
		}
		copied := *o
		open = append(open, &copied)
		if len(open) == limit {
			break
		}
	}
	return open, nil
}

type storeTransactions struct {
	transaction.Repository
	store *ledgerStore
}

func (r storeTransactions) UpdateStatus(ctx context.Context, scope shared.Scope, id uuid.UUID, update transaction.StatusUpdate) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if r.store.failTxUpdates > 0 {
		r.store.failTxUpdates--
		return errors.New("connection reset")
	}
	tx, ok := r.store.transactions[id]
	if !ok {
		return transaction.ErrTransactionNotFound{ID: id}
	}
	if tx.Status.IsTerminal() {
		return transaction.ErrTerminalState
	}
	tx.Status = update.Status
	return nil
}

func (r storeTransactions) GetByID(ctx context.Context, scope shared.Scope, id uuid.UUID) (*transaction.Transaction, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	tx, ok := r.store.transactions[id]
	if !ok {
		return nil, transaction.ErrTransactionNotFound{ID: id}
	}
	copied := *tx
	return &copied, nil
}

func TestSweeper_FailedLedgerWriteIsPickedUpByNextSweep(t *testing.T) {
	ctx := context.Background()
	store := newLedgerStore()
	o := store.addPending("ref-a", 10*time.Minute)
	store.failTxUpdates = 1

	terminal := []string{"REDEEMED", "REFUNDED"}
	querier := &MockQuerier{provider: shared.ProviderNedbank, terminal: terminal}
	redeemed := fsp.StatusReport{
		Reference:      "ref-a",
		ProviderStatus: "REDEEMED",
		Found:          true,
		Decision:       fsp.TransitionTo(transaction.StatusSuccess, ""),
	}
	querier.On("QueryStatus", mock.Anything, "ref-a").Return(redeemed, nil).Twice()

	orders := storeOrders{store: store}
	applier := settlement.NewApplier(newTestLogger(), storeTransactions{store: store}, orders, nil)
	sweeper := NewSweeper(newTestLogger(), staticQueriers{querier}, orders, applier, 50, time.Second, 5*time.Minute)

	first, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Checked: 1, Failed: 1}, first)
	assert.True(t, store.orders[o.ID].IsUnknown())
	assert.Equal(t, transaction.StatusPending, store.transactions[o.TransactionID].Status)

	second, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Checked: 1, Transitioned: 1}, second)
	assert.True(t, store.orders[o.ID].StatusIs("REDEEMED"))
	assert.Equal(t, transaction.StatusSuccess, store.transactions[o.TransactionID].Status)

	third, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{}, third)
	querier.AssertExpectations(t)
}

func TestSweeper_SkipsOrdersYoungerThanMinAge(t *testing.T) {
	store := newLedgerStore()
	young := store.addPending("ref-young", time.Minute)
	store.addPending("ref-old", 10*time.Minute)

	terminal := []string{"REDEEMED", "REFUNDED"}
	querier := &MockQuerier{provider: shared.ProviderNedbank, terminal: terminal}
	querier.On("QueryStatus", mock.Anything, "ref-old").
		Return(fsp.StatusReport{Reference: "ref-old", ProviderStatus: "PENDING", Found: true}, nil).Once()

	orders := storeOrders{store: store}
	applier := settlement.NewApplier(newTestLogger(), storeTransactions{store: store}, orders, nil)
	sweeper := NewSweeper(newTestLogger(), staticQueriers{querier}, orders, applier, 50, time.Second, 5*time.Minute)

	summary, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Summary{Checked: 1}, summary)
	assert.True(t, store.orders[young.ID].IsUnknown())
	querier.AssertNotCalled(t, "QueryStatus", mock.Anything, "ref-young")
	querier.AssertExpectations(t)
}
