/*
Package rewards provides batch reward distribution.

PURPOSE:
  Pays token rewards from the caller's treasury to many recipients in one
  call. The simplest member of the batch family: no record lifecycle, just
  validated transfers with partial-failure semantics.

TREASURY PRECHECK:
  Before any item is processed, the treasury balance must cover the batch
  total; otherwise the whole call hard-aborts with ErrInsufficientFunds.
  This is the one service-specific precondition beyond the shared ones.

WIRE CODES:
    0 InvalidAmount     (non-positive or out of bounds)
    1 InvalidRecipient  (empty recipient account)
    2 TransferFailed    (Ledger rejected the transfer)
*/
package rewards

import (
	"github.com/warp/ledger-engine/engine"
	"github.com/warp/ledger-engine/ledger"
)

// Request is one reward payout.
type Request struct {
	Recipient ledger.Account
	Amount    engine.Amount
}

// ItemFault is the closed per-item fault enum for reward distribution.
type ItemFault uint32

const (
	FaultInvalidAmount    ItemFault = 0
	FaultInvalidRecipient ItemFault = 1
	FaultTransferFailed   ItemFault = 2
)

var _ engine.Fault = FaultInvalidAmount

func (f ItemFault) Code() uint32 { return uint32(f) }

func (f ItemFault) Error() string {
	switch f {
	case FaultInvalidAmount:
		return "invalid reward amount"
	case FaultInvalidRecipient:
		return "invalid recipient"
	case FaultTransferFailed:
		return "ledger transfer rejected"
	}
	return "unknown reward fault"
}

// validateRequest checks one payout against static rules. Pure.
func validateRequest(req Request) engine.Fault {
	if req.Recipient == "" {
		return FaultInvalidRecipient
	}
	if !req.Amount.IsPositive() || req.Amount.GreaterThan(engine.MaxItemAmount) {
		return FaultInvalidAmount
	}
	return nil
}
