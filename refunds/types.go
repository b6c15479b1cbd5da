/*
Package refunds provides refund tracking with a permanent dedup guard.

PURPOSE:
  Keeps a registry of refundable transactions and processes refund
  batches against it. Every refunded transaction ID enters a permanent
  membership set; the set is checked before each refund and never
  shrinks, so a transaction can be refunded at most once - including
  when the same ID appears twice within one batch, where the first
  occurrence wins and the second fails.

WIRE CODES:
    0 TransactionNotFound  (no such transaction in the registry)
    1 AlreadyRefunded      (dedup guard hit)
    2 NotEligible          (transaction not flagged refundable)
    3 TransferFailed       (Ledger rejected the payout)
*/
package refunds

import (
	"time"

	"github.com/warp/ledger-engine/engine"
	"github.com/warp/ledger-engine/ledger"
)

// Transaction is one registered, potentially refundable transaction.
type Transaction struct {
	ID         uint64
	Payer      ledger.Account
	Amount     engine.Amount
	Category   string
	Refundable bool
	RecordedAt time.Time
}

// Request is one refund. Reason is informational and lands in the
// audit stream only.
type Request struct {
	TxID   uint64
	Reason string
}

// ItemFault is the closed per-item fault enum for refunds.
type ItemFault uint32

const (
	FaultTransactionNotFound ItemFault = 0
	FaultAlreadyRefunded     ItemFault = 1
	FaultNotEligible         ItemFault = 2
	FaultTransferFailed      ItemFault = 3
)

var _ engine.Fault = FaultTransactionNotFound

func (f ItemFault) Code() uint32 { return uint32(f) }

func (f ItemFault) Error() string {
	switch f {
	case FaultTransactionNotFound:
		return "transaction not found"
	case FaultAlreadyRefunded:
		return "transaction already refunded"
	case FaultNotEligible:
		return "transaction not eligible for refund"
	case FaultTransferFailed:
		return "ledger transfer rejected"
	}
	return "unknown refund fault"
}
