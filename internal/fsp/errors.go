package fsp

import (
	"errors"
	"fmt"

	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/fsp-disbursement/internal/domain/transaction"
)

// ErrorKind classifies a provider failure
type ErrorKind string

const (
	KindValidation ErrorKind = "validation" // detected locally, no network call made
	KindRejection  ErrorKind = "rejection"  // provider refused permanently
	KindTransient  ErrorKind = "transient"  // request never reached the provider or failed with 5xx
	KindAmbiguous  ErrorKind = "ambiguous"  // timed out, provider state unknown
	KindNotFound   ErrorKind = "not_found"  // provider has no record of the order
)

var (
	ErrUnknownProvider = errors.New("no adapter registered for provider")
	ErrUnknownStatus   = errors.New("provider reported an unknown status")
	ErrInvalidCallback = errors.New("invalid provider callback")
)

// Error is a structured provider failure: kind, provider code and message
type Error struct {
	Kind     ErrorKind
	Provider shared.ProviderName
	Code     string
	Message  string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s error (%s): %s", e.Provider, e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s error: %s", e.Provider, e.Kind, e.Message)
}

// RetrySafe reports whether a new attempt cannot cause a second real-world transfer
func (e *Error) RetrySafe() bool {
	return e.Kind == KindTransient || e.Kind == KindNotFound
}

// LedgerMessage is the user-facing error message stored on the transaction
func (e *Error) LedgerMessage() string {
	if e.RetrySafe() {
		return transaction.RetrySafeMessage(e.Message)
	}
	return transaction.ManualReviewMessage(e.Message)
}

// NewError builds a provider error
func NewError(provider shared.ProviderName, kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Provider: provider, Code: code, Message: message}
}

// ValidationError is a local rejection made before any network call
func ValidationError(provider shared.ProviderName, message string) *Error {
	return NewError(provider, KindValidation, "", message)
}
