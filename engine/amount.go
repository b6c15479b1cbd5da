package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Signed 128-bit-bounded quantity
// =============================================================================
//
// Amount wraps decimal.Decimal but is constrained to the two's-complement
// 128-bit signed integer range. Arithmetic is explicit: checked operations
// report overflow, saturating operations cap at MaxAmount. The saturation
// ceiling is an observable, documented boundary, not an incidental behavior.

var (
	// MaxAmount is 2^127 - 1, the saturation ceiling for volume counters.
	MaxAmount = Amount{Value: decimal.RequireFromString("170141183460469231731687303715884105727")}

	// MinAmount is -2^127.
	MinAmount = Amount{Value: decimal.RequireFromString("-170141183460469231731687303715884105728")}

	// MaxItemAmount bounds a single operation's amount (half the
	// representable range, so two items can never overflow a running sum
	// in one step).
	MaxItemAmount = Amount{Value: MaxAmount.Value.Div(decimal.NewFromInt(2)).Floor()}
)

// Amount is a signed quantity in the smallest unit of the token.
type Amount struct {
	Value decimal.Decimal
}

func NewAmount(v int64) Amount {
	return Amount{Value: decimal.NewFromInt(v)}
}

// ParseAmount parses a decimal string and rejects values outside the
// 128-bit signed range or with a fractional part.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", s, err)
	}
	a := Amount{Value: d}
	if !d.Equal(d.Floor()) {
		return Amount{}, fmt.Errorf("parse amount %q: fractional amounts not supported", s)
	}
	if !a.InRange() {
		return Amount{}, fmt.Errorf("parse amount %q: outside 128-bit range", s)
	}
	return a, nil
}

// MustParseAmount is ParseAmount for constants in tests and fixtures.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// InRange reports whether the amount fits the 128-bit signed range.
func (a Amount) InRange() bool {
	return a.Value.Cmp(MinAmount.Value) >= 0 && a.Value.Cmp(MaxAmount.Value) <= 0
}

// CheckedAdd returns a+b, or ok=false if the result leaves the range.
func (a Amount) CheckedAdd(b Amount) (Amount, bool) {
	sum := Amount{Value: a.Value.Add(b.Value)}
	if !sum.InRange() {
		return Amount{}, false
	}
	return sum, true
}

// CheckedSub returns a-b, or ok=false if the result leaves the range.
func (a Amount) CheckedSub(b Amount) (Amount, bool) {
	diff := Amount{Value: a.Value.Sub(b.Value)}
	if !diff.InRange() {
		return Amount{}, false
	}
	return diff, true
}

// SaturatingAdd returns a+b capped at MaxAmount (floored at MinAmount).
// Used for lifetime volume counters, which must never wrap or abort.
func (a Amount) SaturatingAdd(b Amount) Amount {
	sum := Amount{Value: a.Value.Add(b.Value)}
	if sum.Value.Cmp(MaxAmount.Value) > 0 {
		return MaxAmount
	}
	if sum.Value.Cmp(MinAmount.Value) < 0 {
		return MinAmount
	}
	return sum
}

func (a Amount) Neg() Amount          { return Amount{Value: a.Value.Neg()} }
func (a Amount) IsZero() bool         { return a.Value.IsZero() }
func (a Amount) IsPositive() bool     { return a.Value.IsPositive() }
func (a Amount) IsNegative() bool     { return a.Value.IsNegative() }
func (a Amount) Equal(b Amount) bool  { return a.Value.Equal(b.Value) }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool    { return a.Value.LessThan(b.Value) }

func (a Amount) String() string { return a.Value.String() }
