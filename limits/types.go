/*
Package limits provides batch spending-limit updates.

PURPOSE:
  Maintains one spending-limit record per user and applies batches of
  limit updates with partial-failure semantics. Updating a limit resets
  the month's accumulated spending and reactivates the record. Limits
  at or above HighValueThreshold additionally emit a high-value audit
  event.

WIRE CODES:
    0 InvalidLimit     (below MinLimit or above MaxLimit)
    1 InvalidUser      (empty user)
    2 InvalidCategory  (oversized category name)
*/
package limits

import (
	"time"

	"github.com/warp/ledger-engine/engine"
	"github.com/warp/ledger-engine/ledger"
)

// Limit bounds, in the asset's smallest unit.
var (
	MinLimit = engine.MustParseAmount("1000000")
	MaxLimit = engine.MustParseAmount("100000000000000000")

	// HighValueThreshold marks limits worth an extra audit event.
	HighValueThreshold = engine.MustParseAmount("10000000000000000")
)

// maxCategoryLen bounds category names ("food", "entertainment", ...).
const maxCategoryLen = 32

// Request is one spending-limit update. Category is optional.
type Request struct {
	User         ledger.Account
	MonthlyLimit engine.Amount
	Category     string
}

// SpendingLimit is a user's stored limit configuration.
type SpendingLimit struct {
	User            ledger.Account
	MonthlyLimit    engine.Amount
	CurrentSpending engine.Amount
	Category        string
	UpdatedAt       time.Time
	Active          bool
}

// ItemFault is the closed per-item fault enum for limit updates.
type ItemFault uint32

const (
	FaultInvalidLimit    ItemFault = 0
	FaultInvalidUser     ItemFault = 1
	FaultInvalidCategory ItemFault = 2
)

var _ engine.Fault = FaultInvalidLimit

func (f ItemFault) Code() uint32 { return uint32(f) }

func (f ItemFault) Error() string {
	switch f {
	case FaultInvalidLimit:
		return "invalid limit amount"
	case FaultInvalidUser:
		return "invalid user"
	case FaultInvalidCategory:
		return "invalid category"
	}
	return "unknown limit fault"
}

// validateRequest checks one update against static rules. Pure; rule
// order is significant.
func validateRequest(req Request) engine.Fault {
	if req.User == "" {
		return FaultInvalidUser
	}
	if req.MonthlyLimit.LessThan(MinLimit) || req.MonthlyLimit.GreaterThan(MaxLimit) {
		return FaultInvalidLimit
	}
	if len(req.Category) > maxCategoryLen {
		return FaultInvalidCategory
	}
	return nil
}
