/*
validation.go - Reversal validation rules and wire codes

PURPOSE:
  Pure validation of one reversal against static rules and the current
  record snapshot. No side effects: reads the record and the clock, returns
  the first failing rule's fault.

RULE ORDER (significant - only the first failure is reported):
  1. existence          -> NotFound
  2. terminal state     -> AlreadyReleased / AlreadyReversed
  3. authorization      -> Unauthorized (admin or depositor may reverse)
  4. deadline           -> DeadlineNotReached (non-admin callers only)
  5. amount bounds      -> InvalidAmount (defensive; amounts are also
                           checked at Open)

WIRE CODES:
  The uint32 mapping below is frozen for off-chain consumers. New faults
  append; existing codes never change meaning.

    0 NotFound
    1 AlreadyReleased
    2 AlreadyReversed
    3 Unauthorized
    4 DeadlineNotReached
    5 TransferFailed   (execution-time Ledger rejection)
    6 InvalidAmount
*/
package escrow

import (
	"time"

	"github.com/warp/ledger-engine/engine"
)

// ItemFault is the closed per-item fault enum for escrow operations.
type ItemFault uint32

const (
	FaultNotFound           ItemFault = 0
	FaultAlreadyReleased    ItemFault = 1
	FaultAlreadyReversed    ItemFault = 2
	FaultUnauthorized       ItemFault = 3
	FaultDeadlineNotReached ItemFault = 4
	FaultTransferFailed     ItemFault = 5
	FaultInvalidAmount      ItemFault = 6
)

var _ engine.Fault = FaultNotFound

// Code returns the stable wire code.
func (f ItemFault) Code() uint32 { return uint32(f) }

func (f ItemFault) Error() string {
	switch f {
	case FaultNotFound:
		return "escrow not found"
	case FaultAlreadyReleased:
		return "escrow already released"
	case FaultAlreadyReversed:
		return "escrow already reversed"
	case FaultUnauthorized:
		return "caller not authorized to reverse"
	case FaultDeadlineNotReached:
		return "deadline not reached"
	case FaultTransferFailed:
		return "ledger transfer rejected"
	case FaultInvalidAmount:
		return "invalid escrow amount"
	}
	return "unknown escrow fault"
}

// validateReversal checks whether an escrow can be reversed.
// esc == nil means the record does not exist. checkDeadline is false on the
// batch path (admin-only) and true on the single-reversal path.
func validateReversal(esc *Escrow, caller, admin engine.Caller, checkDeadline bool, now time.Time) engine.Fault {
	if esc == nil {
		return FaultNotFound
	}

	switch esc.Status {
	case StatusReleased:
		return FaultAlreadyReleased
	case StatusReversed:
		return FaultAlreadyReversed
	}

	isAdmin := caller == admin
	isDepositor := string(caller) == string(esc.Depositor)
	if !isAdmin && !isDepositor {
		return FaultUnauthorized
	}

	// Admins bypass the deadline; depositors wait it out.
	if checkDeadline && !isAdmin && now.Before(esc.Deadline) {
		return FaultDeadlineNotReached
	}

	if !esc.Amount.IsPositive() || esc.Amount.GreaterThan(engine.MaxItemAmount) {
		return FaultInvalidAmount
	}

	return nil
}
