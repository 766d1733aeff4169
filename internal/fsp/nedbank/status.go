package nedbank

import (
	"github.com/fsp-disbursement/internal/domain/transaction"
	"github.com/fsp-disbursement/internal/fsp"
)

// VoucherStatus is the Nedbank voucher lifecycle. FAILED is never sent by Nedbank; it
// marks an order Nedbank rejected or never created.
type VoucherStatus string

const (
	StatusPending    VoucherStatus = "PENDING"
	StatusProcessing VoucherStatus = "PROCESSING"
	StatusRedeemable VoucherStatus = "REDEEMABLE"
	StatusRedeemed   VoucherStatus = "REDEEMED"
	StatusRefunded   VoucherStatus = "REFUNDED"
	StatusFailed     VoucherStatus = "FAILED"
)

const (
	msgRefunded = "Voucher has been refunded by Nedbank. If you retry this transfer, the person will receive a new voucher."
	msgFailed   = "Nedbank voucher was not found, something went wrong when creating the voucher. Please retry the transfer."
)

func (s VoucherStatus) IsKnown() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusRedeemable, StatusRedeemed, StatusRefunded, StatusFailed:
		return true
	}
	return false
}

// Decide maps a voucher status onto the ledger
func Decide(status VoucherStatus) fsp.Decision {
	switch status {
	case StatusRedeemed:
		return fsp.TransitionTo(transaction.StatusSuccess, "")
	case StatusRefunded:
		return fsp.TransitionTo(transaction.StatusError, transaction.RetrySafeMessage(msgRefunded))
	case StatusFailed:
		return fsp.TransitionTo(transaction.StatusError, transaction.RetrySafeMessage(msgFailed))
	default:
		return fsp.NoTransition()
	}
}
