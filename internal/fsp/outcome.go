package fsp

import (
	"fmt"

	"github.com/fsp-disbursement/internal/domain/transaction"
)

// OutcomeKind is the normalized result of one transfer attempt
type OutcomeKind string

const (
	OutcomeAccepted            OutcomeKind = "accepted"
	OutcomeSuccess             OutcomeKind = "success"
	OutcomeRejected            OutcomeKind = "rejected"
	OutcomeTransientFailure    OutcomeKind = "transient_failure"
	OutcomeUnknownAfterTimeout OutcomeKind = "unknown_after_timeout"
)

// Outcome is a tagged union: which fields are set depends on Kind
type Outcome struct {
	Kind              OutcomeKind
	ExternalReference string            // Accepted, Success
	ProviderStatus    string            // last provider status string, if the provider sent one
	Details           map[string]string // Success confirmation details
	Err               *Error            // Rejected, TransientFailure, UnknownAfterTimeout
}

// Accepted means the provider took the transfer and will confirm later
func Accepted(externalReference, providerStatus string) Outcome {
	return Outcome{Kind: OutcomeAccepted, ExternalReference: externalReference, ProviderStatus: providerStatus}
}

// Succeeded means the provider confirmed synchronously
func Succeeded(externalReference, providerStatus string, details map[string]string) Outcome {
	return Outcome{Kind: OutcomeSuccess, ExternalReference: externalReference, ProviderStatus: providerStatus, Details: details}
}

// Rejected means the provider, or local validation, refused the transfer permanently
func Rejected(err *Error, providerStatus string) Outcome {
	return Outcome{Kind: OutcomeRejected, Err: err, ProviderStatus: providerStatus}
}

// Transient means the request failed before the provider acted and may be retried
func Transient(err *Error) Outcome {
	return Outcome{Kind: OutcomeTransientFailure, Err: err}
}

// UnknownAfterTimeout means the provider may or may not have received the request
func UnknownAfterTimeout(err *Error) Outcome {
	return Outcome{Kind: OutcomeUnknownAfterTimeout, Err: err}
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("%s: %s", o.Kind, o.Err.Error())
	}
	return string(o.Kind)
}

// StatusReport is what a provider says about an order, already mapped to a decision
type StatusReport struct {
	Reference      string
	ProviderStatus string
	Found          bool
	Decision       Decision
	Details        map[string]string
}

// Decision is the ledger consequence of a provider status.
// An empty Status means no transition.
type Decision struct {
	Status  transaction.Status
	Message string
}

// NoTransition leaves the ledger row as it is
func NoTransition() Decision {
	return Decision{}
}

// TransitionTo moves the ledger row to a terminal status
func TransitionTo(status transaction.Status, message string) Decision {
	return Decision{Status: status, Message: message}
}

// Transitions reports whether the decision changes the ledger row
func (d Decision) Transitions() bool {
	return d.Status != ""
}

// Update converts the decision into a ledger update
func (d Decision) Update(externalReference string, details map[string]string) transaction.StatusUpdate {
	switch d.Status {
	case transaction.StatusSuccess:
		return transaction.Succeeded(details)
	case transaction.StatusError:
		return transaction.Failed(d.Message)
	default:
		return transaction.Waiting(externalReference)
	}
}
