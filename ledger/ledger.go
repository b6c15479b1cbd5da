/*
Package ledger defines the token-transfer collaborator consumed by the
batch services.

PURPOSE:
  The engine treats account balances and transfers as an external
  primitive: services ask the Ledger to move funds and convert any
  rejection into a per-item failure. The Ledger is deliberately small -
  balance and transfer - mirroring a token contract client.

ERROR CONTRACT:
  Transfer errors must be catchable and convertible: a rejected transfer
  during batch execution becomes a Failure result for that item and NEVER
  aborts the whole batch. Services rely on errors.Is against the
  sentinels below.

IMPLEMENTATIONS:
  - Memory (memory.go): in-process accounts for tests and dev
  - store/sqlite: production accounts table

SEE ALSO:
  - engine/runner.go: Where transfer faults are converted
*/
package ledger

import (
	"context"
	"errors"

	"github.com/warp/ledger-engine/engine"
)

// Account identifies a balance-holding party. Services also use accounts
// for their own vaults (escrow holdings, reward treasuries).
type Account string

var (
	// ErrInsufficientFunds is returned when a transfer exceeds the
	// sender's balance.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrUnknownAccount is returned when the sender does not exist.
	ErrUnknownAccount = errors.New("ledger: unknown account")

	// ErrInvalidTransfer is returned for non-positive transfer amounts.
	ErrInvalidTransfer = errors.New("ledger: invalid transfer amount")
)

// Ledger exposes balances and transfers.
type Ledger interface {
	// Balance returns the owner's balance; zero for unknown accounts.
	Balance(ctx context.Context, owner Account) (engine.Amount, error)

	// Transfer moves amount from one account to another. The amount must
	// be positive and covered by the sender's balance.
	Transfer(ctx context.Context, from, to Account, amount engine.Amount) error
}
