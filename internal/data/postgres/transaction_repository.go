package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/fsp-disbursement/internal/domain/transaction"
	"github.com/fsp-disbursement/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, program_id, reference_id, payment_number, amount::text, provider, provider_config_id,
		destination, status, error_message, idempotency_key, external_reference, custom_data, is_retry, user_id,
		created_at, updated_at`

var _ transaction.Repository = (*TransactionRepository)(nil)

var inFlightStatuses = []string{string(transaction.StatusPending), string(transaction.StatusWaiting)}

// TransactionRepository implements transaction.Repository for PostgreSQL
type TransactionRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewTransactionRepository creates a new PostgreSQL transaction repository
func NewTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB) *TransactionRepository {
	return &TransactionRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to the given transaction
func (r *TransactionRepository) WithTx(tx pgx.Tx) *TransactionRepository {
	return &TransactionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create inserts a new transaction row. A second row for the same idempotency key
// returns ErrDuplicateIdempotencyKey.
func (r *TransactionRepository) Create(ctx context.Context, scope shared.Scope, tx *transaction.Transaction) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if tx.ProgramID != scope.ProgramID {
		return fmt.Errorf("transaction program %d outside %s: %w", tx.ProgramID, scope, shared.ErrInvalidScope)
	}

	customData, err := marshalCustomData(tx.CustomData)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO transactions (id, program_id, reference_id, payment_number, amount, provider, provider_config_id,
			destination, status, error_message, idempotency_key, external_reference, custom_data, is_retry, user_id,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`

	_, err = r.querier.Exec(ctx, query,
		tx.ID,
		tx.ProgramID,
		tx.ReferenceID,
		tx.PaymentNumber,
		tx.Amount.String(),
		string(tx.Provider),
		tx.ProviderConfigID,
		tx.Destination,
		string(tx.Status),
		tx.ErrorMessage,
		tx.IdempotencyKey,
		tx.ExternalReference,
		customData,
		tx.IsRetry,
		tx.UserID,
		tx.CreatedAt,
		tx.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return transaction.ErrDuplicateIdempotencyKey{Key: tx.IdempotencyKey}
		}
		r.logger.Error("Failed to create transaction", "idempotency_key", tx.IdempotencyKey, "error", err)
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a transaction by ID within the scope
func (r *TransactionRepository) GetByID(ctx context.Context, scope shared.Scope, id uuid.UUID) (*transaction.Transaction, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE id = $1 AND program_id = $2
	`

	tx, err := scanTransaction(r.querier.QueryRow(ctx, query, id, scope.ProgramID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transaction.ErrTransactionNotFound{ID: id}
		}
		r.logger.Error("Failed to get transaction", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	return tx, nil
}

// GetByIdempotencyKey retrieves the row created for a job
func (r *TransactionRepository) GetByIdempotencyKey(ctx context.Context, scope shared.Scope, key string) (*transaction.Transaction, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE idempotency_key = $1 AND program_id = $2
	`

	tx, err := scanTransaction(r.querier.QueryRow(ctx, query, key, scope.ProgramID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, transaction.ErrTransactionNotFound{IdempotencyKey: key}
		}
		r.logger.Error("Failed to get transaction by idempotency key", "idempotency_key", key, "error", err)
		return nil, fmt.Errorf("failed to get transaction by idempotency key: %w", err)
	}

	return tx, nil
}

// UpdateStatus applies a state change. The WHERE clause only matches rows in an allowed
// source status, so concurrent writers cannot move a terminal row. A miss on an
// existing row returns ErrTerminalState.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, scope shared.Scope, id uuid.UUID, update transaction.StatusUpdate) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	sources := transaction.SourcesFor(update.Status)
	if len(sources) == 0 {
		return fmt.Errorf("no transition leads to status %q", update.Status)
	}

	customData, err := marshalCustomData(update.CustomData)
	if err != nil {
		return err
	}

	query := `
		UPDATE transactions
		SET status = $1,
			error_message = COALESCE($2, error_message),
			external_reference = COALESCE($3, external_reference),
			custom_data = custom_data || $4::jsonb,
			updated_at = NOW()
		WHERE id = $5 AND program_id = $6 AND status = ANY($7)
	`

	result, err := r.querier.Exec(ctx, query,
		string(update.Status),
		update.ErrorMessage,
		update.ExternalReference,
		customData,
		id,
		scope.ProgramID,
		sources,
	)
	if err != nil {
		r.logger.Error("Failed to update transaction status", "id", id.String(), "status", string(update.Status), "error", err)
		return fmt.Errorf("failed to update transaction status: %w", err)
	}

	if result.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = r.querier.QueryRow(ctx, `SELECT status FROM transactions WHERE id = $1 AND program_id = $2`, id, scope.ProgramID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return transaction.ErrTransactionNotFound{ID: id}
		}
		return fmt.Errorf("failed to read transaction status: %w", err)
	}

	r.logger.Debug("Transaction status update skipped",
		"id", id.String(),
		"current_status", current,
		"target_status", string(update.Status),
	)
	return fmt.Errorf("%w: %s cannot move from %s to %s", transaction.ErrTerminalState, id, current, update.Status)
}

// CountFailed counts error rows of one beneficiary in one payment cycle
func (r *TransactionRepository) CountFailed(ctx context.Context, scope shared.Scope, referenceID string, paymentNumber int) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}

	query := `
		SELECT COUNT(*)
		FROM transactions
		WHERE program_id = $1 AND reference_id = $2 AND payment_number = $3 AND status = $4
	`

	var count int
	err := r.querier.QueryRow(ctx, query, scope.ProgramID, referenceID, paymentNumber, string(transaction.StatusError)).Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count failed transactions", "reference_id", referenceID, "error", err)
		return 0, fmt.Errorf("failed to count failed transactions: %w", err)
	}

	return count, nil
}

// HasInFlight reports whether the beneficiary already has a pending or waiting row in the cycle
func (r *TransactionRepository) HasInFlight(ctx context.Context, scope shared.Scope, referenceID string, paymentNumber int) (bool, error) {
	if err := scope.Validate(); err != nil {
		return false, err
	}

	query := `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE program_id = $1 AND reference_id = $2 AND payment_number = $3 AND status = ANY($4)
		)
	`

	var exists bool
	err := r.querier.QueryRow(ctx, query, scope.ProgramID, referenceID, paymentNumber, inFlightStatuses).Scan(&exists)
	if err != nil {
		r.logger.Error("Failed to check in-flight transactions", "reference_id", referenceID, "error", err)
		return false, fmt.Errorf("failed to check in-flight transactions: %w", err)
	}

	return exists, nil
}

// ListLatestFailed returns, per beneficiary, the most recent row of the cycle when that row is an error
func (r *TransactionRepository) ListLatestFailed(ctx context.Context, scope shared.Scope, paymentNumber int) ([]*transaction.Transaction, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT ` + transactionColumns + `
		FROM (
			SELECT DISTINCT ON (reference_id) *
			FROM transactions
			WHERE program_id = $1 AND payment_number = $2
			ORDER BY reference_id, created_at DESC
		) latest
		WHERE status = $3
		ORDER BY reference_id
	`

	rows, err := r.querier.Query(ctx, query, scope.ProgramID, paymentNumber, string(transaction.StatusError))
	if err != nil {
		r.logger.Error("Failed to list failed transactions", "payment_number", paymentNumber, "error", err)
		return nil, fmt.Errorf("failed to list failed transactions: %w", err)
	}
	defer rows.Close()

	var result []*transaction.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	return result, nil
}

// LatestPaymentNumber returns the highest payment cycle of the program, or 0
func (r *TransactionRepository) LatestPaymentNumber(ctx context.Context, scope shared.Scope) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}

	var latest int
	err := r.querier.QueryRow(ctx, `SELECT COALESCE(MAX(payment_number), 0) FROM transactions WHERE program_id = $1`, scope.ProgramID).Scan(&latest)
	if err != nil {
		return 0, fmt.Errorf("failed to read latest payment number: %w", err)
	}
	return latest, nil
}

func scanTransaction(row pgx.Row) (*transaction.Transaction, error) {
	var (
		tx         transaction.Transaction
		amount     string
		provider   string
		status     string
		customData []byte
	)
	err := row.Scan(
		&tx.ID,
		&tx.ProgramID,
		&tx.ReferenceID,
		&tx.PaymentNumber,
		&amount,
		&provider,
		&tx.ProviderConfigID,
		&tx.Destination,
		&status,
		&tx.ErrorMessage,
		&tx.IdempotencyKey,
		&tx.ExternalReference,
		&customData,
		&tx.IsRetry,
		&tx.UserID,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	tx.Provider = shared.ProviderName(provider)
	tx.Status = transaction.Status(status)
	if len(customData) > 0 {
		if err := json.Unmarshal(customData, &tx.CustomData); err != nil {
			return nil, fmt.Errorf("invalid custom data: %w", err)
		}
	}
	return &tx, nil
}

func marshalCustomData(data map[string]string) ([]byte, error) {
	if data == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal custom data: %w", err)
	}
	return raw, nil
}
