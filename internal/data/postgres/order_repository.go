package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsp-disbursement/internal/domain/order"
	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/fsp-disbursement/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const orderColumns = `o.id, o.transaction_id, o.program_id, o.provider, o.reference, o.status, o.created_at, o.updated_at`

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository for PostgreSQL
type OrderRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewOrderRepository creates a new PostgreSQL provider order repository
func NewOrderRepository(logger *slog.Logger, db *persistence.PostgresDB) *OrderRepository {
	return &OrderRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to the given transaction
func (r *OrderRepository) WithTx(tx pgx.Tx) *OrderRepository {
	return &OrderRepository{querier: tx, logger: r.logger}
}

// Create inserts a provider order. References are unique per provider.
func (r *OrderRepository) Create(ctx context.Context, scope shared.Scope, o *order.ProviderOrder) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if o.ProgramID != scope.ProgramID {
		return fmt.Errorf("order program %d outside %s: %w", o.ProgramID, scope, shared.ErrInvalidScope)
	}

	query := `
		INSERT INTO provider_orders (id, transaction_id, program_id, provider, reference, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.querier.Exec(ctx, query,
		o.ID,
		o.TransactionID,
		o.ProgramID,
		string(o.Provider),
		o.Reference,
		o.Status,
		o.CreatedAt,
		o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", order.ErrDuplicateReference, o.Reference)
		}
		r.logger.Error("Failed to create provider order", "reference", o.Reference, "error", err)
		return fmt.Errorf("failed to create provider order: %w", err)
	}

	return nil
}

// GetByTransactionID retrieves the order of a transaction within the scope
func (r *OrderRepository) GetByTransactionID(ctx context.Context, scope shared.Scope, transactionID uuid.UUID) (*order.ProviderOrder, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	query := `SELECT ` + orderColumns + `
		FROM provider_orders o
		WHERE o.transaction_id = $1 AND o.program_id = $2
	`

	o, err := scanOrder(r.querier.QueryRow(ctx, query, transactionID, scope.ProgramID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrOrderNotFound{TransactionID: transactionID}
		}
		r.logger.Error("Failed to get provider order", "transaction_id", transactionID.String(), "error", err)
		return nil, fmt.Errorf("failed to get provider order: %w", err)
	}

	return o, nil
}

// UpdateStatus stores the last status string the provider reported
func (r *OrderRepository) UpdateStatus(ctx context.Context, scope shared.Scope, id uuid.UUID, status string) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE provider_orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND program_id = $3
	`

	result, err := r.querier.Exec(ctx, query, status, id, scope.ProgramID)
	if err != nil {
		r.logger.Error("Failed to update provider order status", "id", id.String(), "error", err)
		return fmt.Errorf("failed to update provider order status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return order.ErrOrderNotFound{ID: id}
	}

	return nil
}

// FindByReference looks up an order by the key the provider knows it by
func (r *OrderRepository) FindByReference(ctx context.Context, provider shared.ProviderName, reference string) (*order.ProviderOrder, error) {
	query := `SELECT ` + orderColumns + `
		FROM provider_orders o
		WHERE o.provider = $1 AND o.reference = $2
	`

	o, err := scanOrder(r.querier.QueryRow(ctx, query, string(provider), reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrOrderNotFound{Reference: reference}
		}
		r.logger.Error("Failed to find provider order", "provider", provider.String(), "reference", reference, "error", err)
		return nil, fmt.Errorf("failed to find provider order: %w", err)
	}

	return o, nil
}

// ListOpen returns the oldest orders of a provider whose status is unknown or not yet
// terminal, whose transaction is still pending or waiting, and which were created before
// createdBefore. The age bound keeps the sweep off attempts whose provider call is in flight.
func (r *OrderRepository) ListOpen(ctx context.Context, provider shared.ProviderName, terminalStatuses []string, createdBefore time.Time, limit int) ([]*order.ProviderOrder, error) {
	query := `SELECT ` + orderColumns + `
		FROM provider_orders o
		JOIN transactions t ON t.id = o.transaction_id
		WHERE o.provider = $1
			AND (o.status IS NULL OR NOT (o.status = ANY($2)))
			AND t.status = ANY($3)
			AND o.created_at < $4
		ORDER BY o.created_at
		LIMIT $5
	`

	if terminalStatuses == nil {
		terminalStatuses = []string{}
	}

	rows, err := r.querier.Query(ctx, query, string(provider), terminalStatuses, inFlightStatuses, createdBefore, limit)
	if err != nil {
		r.logger.Error("Failed to list open provider orders", "provider", provider.String(), "error", err)
		return nil, fmt.Errorf("failed to list open provider orders: %w", err)
	}
	defer rows.Close()

	var result []*order.ProviderOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider order: %w", err)
		}
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate provider orders: %w", err)
	}

	return result, nil
}

func scanOrder(row pgx.Row) (*order.ProviderOrder, error) {
	var (
		o        order.ProviderOrder
		provider string
	)
	err := row.Scan(
		&o.ID,
		&o.TransactionID,
		&o.ProgramID,
		&provider,
		&o.Reference,
		&o.Status,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Provider = shared.ProviderName(provider)
	return &o, nil
}
