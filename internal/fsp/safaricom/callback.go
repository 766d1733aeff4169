package safaricom

import (
	"encoding/json"
	"fmt"

	"github.com/fsp-disbursement/internal/domain/transaction"
	"github.com/fsp-disbursement/internal/fsp"
)

// Callback kinds accepted on /fsp-callbacks/safaricom/:kind
const (
	CallbackTransfer = "transfer"
	CallbackTimeout  = "timeout"
)

// Provider statuses stored on the order after a callback
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusTimedOut  = "timeout"
)

const (
	resultCodeSuccess = "0"
	msgTimedOut       = "Safaricom timed out before completing the transfer"
)

// ParseCallback decodes a result or timeout callback into a status report keyed by
// the OriginatorConversationID sent with the payment request
func (a *Adapter) ParseCallback(kind string, body []byte) (fsp.StatusReport, error) {
	var envelope callbackEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fsp.StatusReport{}, fmt.Errorf("%w: %v", fsp.ErrInvalidCallback, err)
	}
	result := envelope.Result
	if result == nil || result.OriginatorConversationID == "" {
		return fsp.StatusReport{}, fmt.Errorf("%w: missing Result.OriginatorConversationID", fsp.ErrInvalidCallback)
	}

	report := fsp.StatusReport{
		Reference: result.OriginatorConversationID,
		Found:     true,
		Details:   details(result),
	}

	switch kind {
	case CallbackTransfer:
		if string(result.ResultCode) == resultCodeSuccess {
			report.ProviderStatus = StatusCompleted
			report.Decision = fsp.TransitionTo(transaction.StatusSuccess, "")
		} else {
			report.ProviderStatus = StatusFailed
			report.Decision = fsp.TransitionTo(transaction.StatusError, transaction.RetrySafeMessage(result.ResultDesc))
		}
	case CallbackTimeout:
		report.ProviderStatus = StatusTimedOut
		report.Decision = fsp.TransitionTo(transaction.StatusError, transaction.RetrySafeMessage(msgTimedOut))
	default:
		return fsp.StatusReport{}, fmt.Errorf("%w: unknown callback kind %q", fsp.ErrInvalidCallback, kind)
	}
	return report, nil
}

func details(result *callbackResult) map[string]string {
	out := make(map[string]string)
	if result.ConversationID != "" {
		out["mpesa_conversation_id"] = result.ConversationID
	}
	if result.TransactionID != "" {
		out["mpesa_transaction_id"] = result.TransactionID
	}
	if result.ResultParameters != nil {
		for _, p := range result.ResultParameters.ResultParameter {
			if p.Key == "TransactionReceipt" {
				out["mpesa_receipt"] = fmt.Sprint(p.Value)
			}
		}
	}
	return out
}
