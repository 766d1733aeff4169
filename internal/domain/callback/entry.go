package callback

import (
	"context"
	"time"

	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/google/uuid"
)

// Result records what happened to a received callback
type Result string

const (
	ResultApplied        Result = "applied"
	ResultNoChange       Result = "no_change"
	ResultUnattributable Result = "unattributable"
	ResultInvalid        Result = "invalid"
	ResultFailed         Result = "failed"
)

// Entry is the audit record of one provider webhook call
type Entry struct {
	ID             uuid.UUID           `json:"id" bson:"_id"`
	Provider       shared.ProviderName `json:"provider" bson:"provider"`
	Kind           string              `json:"kind" bson:"kind"`
	Reference      string              `json:"reference,omitempty" bson:"reference,omitempty"`
	ProviderStatus string              `json:"provider_status,omitempty" bson:"provider_status,omitempty"`
	Payload        string              `json:"payload" bson:"payload"`
	Result         Result              `json:"result" bson:"result"`
	Detail         string              `json:"detail,omitempty" bson:"detail,omitempty"`
	CorrelationID  string              `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
	ReceivedAt     time.Time           `json:"received_at" bson:"received_at"`
}

// Repository is the append-only callback audit log
type Repository interface {
	Record(ctx context.Context, entry *Entry) error
	ListByReference(ctx context.Context, provider shared.ProviderName, reference string, limit int) ([]*Entry, error)
}
