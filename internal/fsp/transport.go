package fsp

import (
	"context"
	"errors"
	"net"

	"github.com/fsp-disbursement/internal/domain/shared"
)

// ClassifyTransportError turns an error from an HTTP round trip into an Outcome.
// Failures to connect are transient since nothing reached the provider. Any other
// failure, timeouts included, may have happened after the provider received the request.
func ClassifyTransportError(provider shared.ProviderName, err error, message string) Outcome {
	if IsConnectError(err) {
		return Transient(NewError(provider, KindTransient, "", message))
	}
	return UnknownAfterTimeout(NewError(provider, KindAmbiguous, "", message))
}

// IsConnectError reports whether err happened while dialing, before any request byte was sent
func IsConnectError(err error) bool {
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// IsTimeout reports whether err is a deadline or network timeout
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
