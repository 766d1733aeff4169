package beneficiary

import (
	"context"
	"errors"

	"github.com/fsp-disbursement/internal/domain/shared"
)

// Status is the registration status of a beneficiary in a program
type Status string

const (
	StatusRegistered Status = "registered"
	StatusIncluded   Status = "included"
	StatusPaused     Status = "paused"
	StatusDeclined   Status = "declined"
	StatusCompleted  Status = "completed"
	StatusDeleted    Status = "deleted"
)

// Beneficiary is the slice of registration data the payment pipeline reads
type Beneficiary struct {
	ReferenceID string
	ProgramID   int64
	Status      Status
	PhoneNumber string
}

// IsEligible reports whether the beneficiary may still receive payments
func (b *Beneficiary) IsEligible() bool {
	return b.Status == StatusIncluded
}

// Repository reads registrations. Registration management itself lives elsewhere.
type Repository interface {
	GetByReferenceID(ctx context.Context, scope shared.Scope, referenceID string) (*Beneficiary, error)
}

// ErrNotEligible is returned when a beneficiary left the program after the job was queued
var ErrNotEligible = errors.New("beneficiary is not eligible for payment")

// ErrBeneficiaryNotFound indicates a missing registration within the caller's scope
type ErrBeneficiaryNotFound struct {
	ReferenceID string
}

func (e ErrBeneficiaryNotFound) Error() string {
	return "beneficiary not found: " + e.ReferenceID
}

// Is matches any ErrBeneficiaryNotFound when the target reference is empty
func (e ErrBeneficiaryNotFound) Is(target error) bool {
	t, ok := target.(ErrBeneficiaryNotFound)
	if !ok {
		return false
	}
	return t.ReferenceID == "" || t.ReferenceID == e.ReferenceID
}
