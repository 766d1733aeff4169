package handler

import "github.com/shopspring/decimal"

// EnqueueBatchRequest represents a payment batch to send to one provider
type EnqueueBatchRequest struct {
	ProgramID        int64             `json:"program_id" binding:"required,gt=0"`
	PaymentNumber    int               `json:"payment_number" binding:"required,gt=0"`
	Provider         string            `json:"provider" binding:"required"`
	ProviderConfigID int64             `json:"provider_config_id" binding:"min=0"`
	UserID           int64             `json:"user_id" binding:"min=0"`
	Transfers        []TransferRequest `json:"transfers" binding:"required,min=1,dive"`
}

// TransferRequest represents one beneficiary transfer of a batch
type TransferRequest struct {
	ReferenceID    string            `json:"reference_id" binding:"required"`
	Amount         decimal.Decimal   `json:"amount"`
	Destination    string            `json:"destination" binding:"required"`
	ProviderParams map[string]string `json:"provider_params,omitempty"`
}

// RetryPaymentRequest represents a request to retry the failed transfers of a payment
type RetryPaymentRequest struct {
	UserID int64 `json:"user_id" binding:"min=0"`
}

// BatchResponse represents the outcome of an enqueue call
type BatchResponse struct {
	Accepted      int    `json:"accepted"`
	NotApplicable int    `json:"not_applicable"`
	Queue         string `json:"queue,omitempty"`
}

// CallbackResponse acknowledges a provider callback
type CallbackResponse struct {
	Result string `json:"result"`
}

// PurgeResponse reports what a queue purge removed
type PurgeResponse struct {
	Queues          []string `json:"queues"`
	RateLimiterKeys int      `json:"rate_limiter_keys"`
}

// CallbackEntryResponse represents an audited provider callback
type CallbackEntryResponse struct {
	ID             string `json:"id"`
	Kind           string `json:"kind"`
	Reference      string `json:"reference,omitempty"`
	ProviderStatus string `json:"provider_status,omitempty"`
	Result         string `json:"result"`
	Detail         string `json:"detail,omitempty"`
	CorrelationID  string `json:"correlation_id,omitempty"`
	ReceivedAt     string `json:"received_at"`
}

// CallbackLogParams filters the callback audit log
type CallbackLogParams struct {
	Limit int `form:"limit,default=20" binding:"min=1,max=100"`
}
