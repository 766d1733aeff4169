package transaction

import (
	"strings"
	"time"

	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the generic lifecycle state of one payment attempt
type Status string

const (
	StatusPending Status = "pending"
	StatusWaiting Status = "waiting"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

const (
	retrySafeSuffix    = "It is safe to retry this transfer."
	manualReviewSuffix = "Do not retry without manual review."
)

// allowedSources lists, per target status, the states a row may move from.
// Terminal states never appear as a source.
var allowedSources = map[Status][]Status{
	StatusWaiting: {StatusPending, StatusWaiting},
	StatusSuccess: {StatusPending, StatusWaiting},
	StatusError:   {StatusPending, StatusWaiting},
}

// IsTerminal reports whether no automated process may change the status again
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusError
}

// IsValid reports whether s is one of the known statuses
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusWaiting, StatusSuccess, StatusError:
		return true
	}
	return false
}

// CanTransition reports whether a row in status from may be moved to status to
func CanTransition(from, to Status) bool {
	for _, s := range allowedSources[to] {
		if s == from {
			return true
		}
	}
	return false
}

// SourcesFor returns the statuses a row may be in for an update to target to succeed
func SourcesFor(to Status) []string {
	sources := allowedSources[to]
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		out = append(out, string(s))
	}
	return out
}

// Transaction is one payment attempt for a beneficiary in a payment cycle.
// Retries create new rows; a row is never moved out of a terminal status.
type Transaction struct {
	ID                uuid.UUID           `json:"id"`
	ProgramID         int64               `json:"program_id"`
	ReferenceID       string              `json:"reference_id"`
	PaymentNumber     int                 `json:"payment_number"`
	Amount            decimal.Decimal     `json:"amount"`
	Provider          shared.ProviderName `json:"provider"`
	ProviderConfigID  int64               `json:"provider_config_id"`
	Destination       string              `json:"destination"`
	Status            Status              `json:"status"`
	ErrorMessage      *string             `json:"error_message,omitempty"`
	IdempotencyKey    string              `json:"idempotency_key"`
	ExternalReference *string             `json:"external_reference,omitempty"`
	CustomData        map[string]string   `json:"custom_data,omitempty"`
	IsRetry           bool                `json:"is_retry"`
	UserID            int64               `json:"user_id"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// StatusUpdate is a single-row state change
type StatusUpdate struct {
	Status            Status
	ErrorMessage      *string
	ExternalReference *string
	CustomData        map[string]string
}

// Waiting moves a row to waiting with the provider's tracking key
func Waiting(externalReference string) StatusUpdate {
	update := StatusUpdate{Status: StatusWaiting}
	if externalReference != "" {
		update.ExternalReference = &externalReference
	}
	return update
}

// Succeeded moves a row to success, optionally merging provider details into custom data
func Succeeded(details map[string]string) StatusUpdate {
	return StatusUpdate{Status: StatusSuccess, CustomData: details}
}

// Failed moves a row to error with a user-facing message
func Failed(message string) StatusUpdate {
	return StatusUpdate{Status: StatusError, ErrorMessage: &message}
}

// RetrySafeMessage appends the "safe to retry" guidance to a failure message
func RetrySafeMessage(message string) string {
	return withSuffix(message, retrySafeSuffix)
}

// ManualReviewMessage appends the "manual review" guidance to a failure message
func ManualReviewMessage(message string) string {
	return withSuffix(message, manualReviewSuffix)
}

func withSuffix(message, suffix string) string {
	message = strings.TrimSpace(message)
	if message == "" {
		return suffix
	}
	if strings.Contains(message, suffix) {
		return message
	}
	if !strings.HasSuffix(message, ".") {
		message += "."
	}
	return message + " " + suffix
}
