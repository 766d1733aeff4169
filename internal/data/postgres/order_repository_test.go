package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/fsp-disbursement/internal/domain/order"
	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderRowColumns = []string{"id", "transaction_id", "program_id", "provider", "reference", "status", "created_at", "updated_at"}

func TestOrderRepository_Create(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := &OrderRepository{querier: mock, logger: newTestLogger()}

	o := order.New(uuid.New(), 3, shared.ProviderNedbank, "abc123")
	query := regexp.QuoteMeta("INSERT INTO provider_orders")

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(o.ID, o.TransactionID, int64(3), "nedbank", "abc123", (*string)(nil), o.CreatedAt, o.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		assert.NoError(t, repo.Create(ctx, shared.ProgramScope(3), o))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate reference", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(o.ID, o.TransactionID, int64(3), "nedbank", "abc123", (*string)(nil), o.CreatedAt, o.UpdatedAt).
			WillReturnError(&pgconn.PgError{Code: "23505"})

		err := repo.Create(ctx, shared.ProgramScope(3), o)
		assert.ErrorIs(t, err, order.ErrDuplicateReference)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOrderRepository_FindByReference(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := &OrderRepository{querier: mock, logger: newTestLogger()}

	id, txID := uuid.New(), uuid.New()
	now := time.Now().UTC()
	status := "PENDING"
	query := regexp.QuoteMeta("WHERE o.provider = $1 AND o.reference = $2")

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("nedbank", "abc123").
			WillReturnRows(pgxmock.NewRows(orderRowColumns).AddRow(id, txID, int64(3), "nedbank", "abc123", &status, now, now))

		got, err := repo.FindByReference(ctx, shared.ProviderNedbank, "abc123")
		require.NoError(t, err)
		assert.Equal(t, txID, got.TransactionID)
		assert.Equal(t, shared.ProgramScope(3), got.Scope())
		assert.True(t, got.StatusIs("PENDING"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("nedbank", "nope").WillReturnError(pgx.ErrNoRows)

		_, err := repo.FindByReference(ctx, shared.ProviderNedbank, "nope")
		assert.ErrorIs(t, err, order.ErrOrderNotFound{Reference: "nope"})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestOrderRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := &OrderRepository{querier: mock, logger: newTestLogger()}
	id := uuid.New()
	query := regexp.QuoteMeta("UPDATE provider_orders")

	mock.ExpectExec(query).WithArgs("REDEEMED", id, int64(3)).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	assert.NoError(t, repo.UpdateStatus(ctx, shared.ProgramScope(3), id, "REDEEMED"))

	mock.ExpectExec(query).WithArgs("REDEEMED", id, int64(4)).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err = repo.UpdateStatus(ctx, shared.ProgramScope(4), id, "REDEEMED")
	assert.ErrorIs(t, err, order.ErrOrderNotFound{ID: id})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_ListOpen(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := &OrderRepository{querier: mock, logger: newTestLogger()}

	now := time.Now().UTC()
	pending := "PENDING"
	rows := pgxmock.NewRows(orderRowColumns).
		AddRow(uuid.New(), uuid.New(), int64(3), "nedbank", "a", (*string)(nil), now, now).
		AddRow(uuid.New(), uuid.New(), int64(4), "nedbank", "b", &pending, now, now)

	terminal := []string{"REDEEMED", "REFUNDED", "FAILED"}
	createdBefore := now.Add(-5 * time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta("AND o.created_at < $4")).
		WithArgs("nedbank", terminal, []string{"pending", "waiting"}, createdBefore, 50).
		WillReturnRows(rows)

	open, err := repo.ListOpen(ctx, shared.ProviderNedbank, terminal, createdBefore, 50)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.True(t, open[0].IsUnknown())
	assert.Equal(t, int64(4), open[1].ProgramID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepository_ListOpenError(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := &OrderRepository{querier: mock, logger: newTestLogger()}

	createdBefore := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("JOIN transactions t ON t.id = o.transaction_id")).
		WithArgs("safaricom", []string{}, []string{"pending", "waiting"}, createdBefore, 10).
		WillReturnError(errors.New("connection refused"))

	open, err := repo.ListOpen(ctx, shared.ProviderSafaricom, nil, createdBefore, 10)
	assert.ErrorContains(t, err, "failed to list open provider orders")
	assert.Nil(t, open)
	assert.NoError(t, mock.ExpectationsWereMet())
}
