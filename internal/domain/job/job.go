package job

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("amount must be greater than zero")
	ErrInvalidJob    = errors.New("invalid job")
	// ErrPairBusy means another job of the same beneficiary and payment cycle holds the lock
	ErrPairBusy = errors.New("another job for this beneficiary and payment is in progress")
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// TransferRequest is one line of a payment batch before it becomes a Job
type TransferRequest struct {
	ReferenceID    string            `json:"reference_id" validate:"required"`
	Amount         decimal.Decimal   `json:"amount"`
	Destination    string            `json:"destination" validate:"required"`
	ProviderParams map[string]string `json:"provider_params,omitempty"`
}

// Job is the queue message for one transfer. It carries everything the processor needs
// so the hot path does not re-read the batch. Redelivering a Job is safe because the
// idempotency key is fixed when the Job is created.
type Job struct {
	IdempotencyKey   string              `json:"idempotency_key" validate:"required,uuid"`
	ProgramID        int64               `json:"program_id" validate:"required,gt=0"`
	ReferenceID      string              `json:"reference_id" validate:"required"`
	PaymentNumber    int                 `json:"payment_number" validate:"required,gt=0"`
	Amount           decimal.Decimal     `json:"amount"`
	Destination      string              `json:"destination" validate:"required"`
	Provider         shared.ProviderName `json:"provider" validate:"required"`
	ProviderConfigID int64               `json:"provider_config_id" validate:"gte=0"`
	ProviderParams   map[string]string   `json:"provider_params,omitempty"`
	IsRetry          bool                `json:"is_retry"`
	Resends          int                 `json:"resends,omitempty" validate:"gte=0"`
	BulkSize         int                 `json:"bulk_size" validate:"gte=0"`
	UserID           int64               `json:"user_id" validate:"gte=0"`
	CorrelationID    string              `json:"correlation_id,omitempty"`
	EnqueuedAt       time.Time           `json:"enqueued_at"`
}

// BatchContext is shared by every Job built from one batch
type BatchContext struct {
	ProgramID        int64
	PaymentNumber    int
	Provider         shared.ProviderName
	ProviderConfigID int64
	UserID           int64
	BulkSize         int
	CorrelationID    string
	IsRetry          bool
}

// New builds a Job with a fresh idempotency key
func New(batch BatchContext, request TransferRequest) *Job {
	return &Job{
		IdempotencyKey:   uuid.NewString(),
		ProgramID:        batch.ProgramID,
		ReferenceID:      request.ReferenceID,
		PaymentNumber:    batch.PaymentNumber,
		Amount:           request.Amount,
		Destination:      request.Destination,
		Provider:         batch.Provider,
		ProviderConfigID: batch.ProviderConfigID,
		ProviderParams:   request.ProviderParams,
		IsRetry:          batch.IsRetry,
		BulkSize:         batch.BulkSize,
		UserID:           batch.UserID,
		CorrelationID:    batch.CorrelationID,
		EnqueuedAt:       time.Now().UTC(),
	}
}

// Resend returns a copy of the job that repeats the same attempt after a transient
// failure. The idempotency key is kept, so the provider can deduplicate it.
func (j *Job) Resend() *Job {
	resend := *j
	resend.Resends++
	resend.EnqueuedAt = time.Now().UTC()
	resend.ProviderParams = copyParams(j.ProviderParams)
	return &resend
}

func copyParams(params map[string]string) map[string]string {
	if params == nil {
		return nil
	}
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

// Scope returns the program scope of the job
func (j *Job) Scope() shared.Scope {
	return shared.ProgramScope(j.ProgramID)
}

// PairKey identifies the beneficiary and payment cycle the job pays
func (j *Job) PairKey() string {
	return fmt.Sprintf("%d:%s:%d", j.ProgramID, j.ReferenceID, j.PaymentNumber)
}

// Validate checks the job before it is enqueued or processed
func (j *Job) Validate() error {
	if err := structValidator().Struct(j); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidJob, describe(err))
	}
	if !j.Amount.IsPositive() {
		return fmt.Errorf("%w: %w", ErrInvalidJob, ErrInvalidAmount)
	}
	return nil
}

// Validate checks a batch line
func (r TransferRequest) Validate() error {
	if err := structValidator().Struct(r); err != nil {
		return describeError(err)
	}
	if !r.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

func describeError(err error) error {
	return errors.New(describe(err))
}

// describe flattens validator errors into "field: rule" pairs
func describe(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}
	parts := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}
