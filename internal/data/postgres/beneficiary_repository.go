package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/fsp-disbursement/internal/domain/beneficiary"
	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/fsp-disbursement/internal/platform/persistence"
	"github.com/jackc/pgx/v5"
)

var _ beneficiary.Repository = (*BeneficiaryRepository)(nil)

// BeneficiaryRepository reads registrations for eligibility checks
type BeneficiaryRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewBeneficiaryRepository(logger *slog.Logger, db *persistence.PostgresDB) *BeneficiaryRepository {
	return &BeneficiaryRepository{querier: db.Pool(), logger: logger}
}

// GetByReferenceID returns the registration of a beneficiary in the scoped program
func (r *BeneficiaryRepository) GetByReferenceID(ctx context.Context, scope shared.Scope, referenceID string) (*beneficiary.Beneficiary, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	query := `
		SELECT reference_id, program_id, status, phone_number
		FROM registrations
		WHERE program_id = $1 AND reference_id = $2
	`

	var (
		b      beneficiary.Beneficiary
		status string
	)
	err := r.querier.QueryRow(ctx, query, scope.ProgramID, referenceID).Scan(&b.ReferenceID, &b.ProgramID, &status, &b.PhoneNumber)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, beneficiary.ErrBeneficiaryNotFound{ReferenceID: referenceID}
		}
		r.logger.Error("Failed to get registration", "reference_id", referenceID, "error", err)
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	b.Status = beneficiary.Status(status)

	return &b, nil
}
