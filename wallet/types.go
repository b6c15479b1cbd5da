/*
Package wallet provides batch multi-currency balance updates.

PURPOSE:
  Maintains per-user, per-currency balances and applies batches of set,
  add, and subtract operations with partial-failure semantics. Balances
  are bookkeeping records, not Ledger accounts: no funds move, only the
  stored figures change.

WIRE CODES:
    0 InvalidAmount        (below the dust minimum or out of bounds)
    1 InvalidUser          (empty user)
    2 InvalidCurrency      (empty or oversized currency code)
    3 InvalidOperation     (not set/add/subtract)
    4 InsufficientBalance  (subtract would go negative)
    5 ArithmeticOverflow   (result leaves the representable range)
*/
package wallet

import (
	"time"

	"github.com/warp/ledger-engine/engine"
	"github.com/warp/ledger-engine/ledger"
)

// Op selects how a request combines with the stored balance.
type Op string

const (
	OpSet      Op = "set"
	OpAdd      Op = "add"
	OpSubtract Op = "subtract"
)

// maxCurrencyLen bounds currency codes (XLM, USDC, EURC and the like).
const maxCurrencyLen = 12

// MinBalanceChange is the dust floor: every request amount must be at
// least this much.
var MinBalanceChange = engine.MustParseAmount("1")

// Request is one balance update.
type Request struct {
	User     ledger.Account
	Currency string
	Amount   engine.Amount
	Op       Op
}

// Balance is a user's stored balance in one currency.
type Balance struct {
	User      ledger.Account
	Currency  string
	Balance   engine.Amount
	UpdatedAt time.Time
}

// ItemFault is the closed per-item fault enum for balance updates.
type ItemFault uint32

const (
	FaultInvalidAmount       ItemFault = 0
	FaultInvalidUser         ItemFault = 1
	FaultInvalidCurrency     ItemFault = 2
	FaultInvalidOperation    ItemFault = 3
	FaultInsufficientBalance ItemFault = 4
	FaultArithmeticOverflow  ItemFault = 5
)

var _ engine.Fault = FaultInvalidAmount

func (f ItemFault) Code() uint32 { return uint32(f) }

func (f ItemFault) Error() string {
	switch f {
	case FaultInvalidAmount:
		return "invalid amount"
	case FaultInvalidUser:
		return "invalid user"
	case FaultInvalidCurrency:
		return "invalid currency"
	case FaultInvalidOperation:
		return "invalid operation"
	case FaultInsufficientBalance:
		return "insufficient balance"
	case FaultArithmeticOverflow:
		return "arithmetic overflow"
	}
	return "unknown wallet fault"
}

// validateRequest checks one update against static rules. Pure; rule
// order is significant.
func validateRequest(req Request) engine.Fault {
	if req.User == "" {
		return FaultInvalidUser
	}
	if req.Currency == "" || len(req.Currency) > maxCurrencyLen {
		return FaultInvalidCurrency
	}
	if req.Amount.LessThan(MinBalanceChange) || req.Amount.GreaterThan(engine.MaxAmount) {
		return FaultInvalidAmount
	}
	switch req.Op {
	case OpSet, OpAdd, OpSubtract:
	default:
		return FaultInvalidOperation
	}
	return nil
}

// applyOp computes the new balance for a validated request against the
// current stored balance.
func applyOp(current engine.Amount, req Request) (engine.Amount, engine.Fault) {
	var next engine.Amount
	var ok bool

	switch req.Op {
	case OpSet:
		next = req.Amount
	case OpAdd:
		next, ok = current.CheckedAdd(req.Amount)
		if !ok {
			return engine.Amount{}, FaultArithmeticOverflow
		}
	case OpSubtract:
		next, ok = current.CheckedSub(req.Amount)
		if !ok {
			return engine.Amount{}, FaultArithmeticOverflow
		}
	default:
		return engine.Amount{}, FaultInvalidOperation
	}

	if next.IsNegative() {
		return engine.Amount{}, FaultInsufficientBalance
	}
	if next.GreaterThan(engine.MaxAmount) {
		return engine.Amount{}, FaultArithmeticOverflow
	}
	return next, nil
}
