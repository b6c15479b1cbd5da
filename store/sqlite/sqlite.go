/*
Package sqlite provides the SQLite-backed implementation of every
storage interface in the system.

PURPOSE:
  One Store implements all persistence concerns behind a single database
  file. In production the same patterns apply to PostgreSQL - only minor
  SQL dialect differences.

INTERFACES IMPLEMENTED:
  engine.CounterStore: Aggregate counters per service
  engine.StateStore:   Admin identity per service
  ledger.Ledger:       Account balances and transfers
  escrow.Store:        Escrow records with monotone status
  wallet.Store:        Per-user, per-currency balances
  limits.Store:        Spending limit records
  refunds.Store:       Transaction registry and the refunded-ID set

FORWARD-ONLY ENFORCEMENT:
  - escrows rows are never deleted; a write that would leave a terminal
    status fails with escrow.ErrTerminalTransition.
  - refunded_ids rows are never deleted: membership is permanent, which
    is what makes refund dedup survive restarts.
  - Escrow IDs come from a sequences row, never from row counts, so an
    ID is never reused.

AMOUNTS:
  Stored as decimal strings (TEXT), parsed through engine.ParseAmount on
  read. Never floats.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/counters.go: Counter and state interfaces
  - ledger/ledger.go: Ledger interface and error contract
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/ledger-engine/engine"
	"github.com/warp/ledger-engine/escrow"
	"github.com/warp/ledger-engine/ledger"
	"github.com/warp/ledger-engine/limits"
	"github.com/warp/ledger-engine/refunds"
	"github.com/warp/ledger-engine/wallet"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Per-service singleton state (admin identity)
	CREATE TABLE IF NOT EXISTS service_state (
		service TEXT PRIMARY KEY,
		admin TEXT NOT NULL
	);

	-- Lifetime aggregate counters per service
	CREATE TABLE IF NOT EXISTS aggregate_counters (
		service TEXT PRIMARY KEY,
		batches INTEGER NOT NULL DEFAULT 0,
		items INTEGER NOT NULL DEFAULT 0,
		volume TEXT NOT NULL DEFAULT '0'
	);

	-- Monotonic ID sequences (never derived from row counts)
	CREATE TABLE IF NOT EXISTS sequences (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL DEFAULT 0
	);

	-- Ledger accounts
	CREATE TABLE IF NOT EXISTS accounts (
		owner TEXT PRIMARY KEY,
		balance TEXT NOT NULL DEFAULT '0'
	);

	-- Escrow records (never deleted; status only moves forward)
	CREATE TABLE IF NOT EXISTS escrows (
		id INTEGER PRIMARY KEY,
		depositor TEXT NOT NULL,
		recipient TEXT NOT NULL,
		token TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		deadline TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_escrows_depositor
		ON escrows(depositor, id);
	CREATE INDEX IF NOT EXISTS idx_escrows_status
		ON escrows(status);

	-- Wallet balances per user and currency
	CREATE TABLE IF NOT EXISTS wallet_balances (
		user TEXT NOT NULL,
		currency TEXT NOT NULL,
		balance TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user, currency)
	);

	-- Spending limits, one row per user
	CREATE TABLE IF NOT EXISTS spending_limits (
		user TEXT PRIMARY KEY,
		monthly_limit TEXT NOT NULL,
		current_spending TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	-- Refundable transaction registry
	CREATE TABLE IF NOT EXISTS refund_transactions (
		id INTEGER PRIMARY KEY,
		payer TEXT NOT NULL,
		amount TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		refundable BOOLEAN NOT NULL,
		recorded_at TEXT NOT NULL
	);

	-- Permanent refunded-ID membership set (never deleted)
	CREATE TABLE IF NOT EXISTS refunded_ids (
		id INTEGER PRIMARY KEY,
		amount TEXT NOT NULL,
		refunded_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// COUNTER STORE (engine.CounterStore interface)
// =============================================================================

// LoadCounters returns the lifetime totals for a service; zero if the
// service has never run a batch.
func (s *Store) LoadCounters(ctx context.Context, service string) (engine.Counters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c engine.Counters
	var volume string
	err := s.db.QueryRowContext(ctx,
		`SELECT batches, items, volume FROM aggregate_counters WHERE service = ?`,
		service,
	).Scan(&c.Batches, &c.Items, &volume)
	if err == sql.ErrNoRows {
		return engine.Counters{}, nil
	}
	if err != nil {
		return engine.Counters{}, err
	}
	c.Volume, err = engine.ParseAmount(volume)
	if err != nil {
		return engine.Counters{}, fmt.Errorf("corrupt volume counter for %s: %w", service, err)
	}
	return c, nil
}

// StoreCounters overwrites the lifetime totals for a service.
func (s *Store) StoreCounters(ctx context.Context, service string, c engine.Counters) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO aggregate_counters (service, batches, items, volume)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(service) DO UPDATE SET
			batches = excluded.batches,
			items = excluded.items,
			volume = excluded.volume`,
		service, c.Batches, c.Items, c.Volume.String(),
	)
	return err
}

// =============================================================================
// STATE STORE (engine.StateStore interface)
// =============================================================================

func (s *Store) Admin(ctx context.Context, service string) (engine.Caller, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var admin string
	err := s.db.QueryRowContext(ctx,
		`SELECT admin FROM service_state WHERE service = ?`, service,
	).Scan(&admin)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return engine.Caller(admin), true, nil
}

func (s *Store) SetAdmin(ctx context.Context, service string, admin engine.Caller) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO service_state (service, admin) VALUES (?, ?)
		ON CONFLICT(service) DO UPDATE SET admin = excluded.admin`,
		service, string(admin),
	)
	return err
}

// =============================================================================
// LEDGER (ledger.Ledger interface)
// =============================================================================

// Balance returns the owner's balance; zero for unknown accounts.
func (s *Store) Balance(ctx context.Context, owner ledger.Account) (engine.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE owner = ?`, string(owner),
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return engine.Amount{}, nil
	}
	if err != nil {
		return engine.Amount{}, err
	}
	return engine.ParseAmount(raw)
}

// Transfer moves amount between accounts inside one database transaction.
func (s *Store) Transfer(ctx context.Context, from, to ledger.Account, amount engine.Amount) error {
	if !amount.IsPositive() {
		return ledger.ErrInvalidTransfer
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE owner = ?`, string(from),
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return ledger.ErrUnknownAccount
	}
	if err != nil {
		return err
	}
	balance, err := engine.ParseAmount(raw)
	if err != nil {
		return fmt.Errorf("corrupt balance for %s: %w", from, err)
	}
	if balance.LessThan(amount) {
		return ledger.ErrInsufficientFunds
	}

	// Decimal strings cannot be added in SQL, so both sides are computed
	// in Go inside the transaction.
	var toBalance engine.Amount
	var toRaw string
	err = tx.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE owner = ?`, string(to),
	).Scan(&toRaw)
	switch {
	case err == sql.ErrNoRows:
		// Receiving account springs into existence at zero.
	case err != nil:
		return err
	default:
		if toBalance, err = engine.ParseAmount(toRaw); err != nil {
			return fmt.Errorf("corrupt balance for %s: %w", to, err)
		}
	}

	newFrom, _ := balance.CheckedSub(amount)
	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = ? WHERE owner = ?`,
		newFrom.String(), string(from),
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (owner, balance) VALUES (?, ?)
		ON CONFLICT(owner) DO UPDATE SET balance = excluded.balance`,
		string(to), toBalance.SaturatingAdd(amount).String(),
	); err != nil {
		return err
	}

	return tx.Commit()
}

// Mint credits an account out of thin air. Setup and dev tooling only.
func (s *Store) Mint(ctx context.Context, owner ledger.Account, amount engine.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE owner = ?`, string(owner),
	).Scan(&raw)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO accounts (owner, balance) VALUES (?, ?)`,
			string(owner), amount.String(),
		)
		return err
	case err != nil:
		return err
	}

	balance, err := engine.ParseAmount(raw)
	if err != nil {
		return fmt.Errorf("corrupt balance for %s: %w", owner, err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE accounts SET balance = ? WHERE owner = ?`,
		balance.SaturatingAdd(amount).String(), string(owner),
	)
	return err
}

// =============================================================================
// ESCROW STORE (escrow.Store interface)
// =============================================================================

func (s *Store) Get(ctx context.Context, id uint64) (escrow.Escrow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getEscrow(ctx, id)
}

func (s *Store) getEscrow(ctx context.Context, id uint64) (escrow.Escrow, bool, error) {
	var (
		esc                 escrow.Escrow
		amount              string
		status              string
		createdAt, deadline string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, depositor, recipient, token, amount, status, created_at, deadline
		FROM escrows WHERE id = ?`, id,
	).Scan(&esc.ID, &esc.Depositor, &esc.Recipient, &esc.Token, &amount, &status, &createdAt, &deadline)
	if err == sql.ErrNoRows {
		return escrow.Escrow{}, false, nil
	}
	if err != nil {
		return escrow.Escrow{}, false, err
	}

	esc.Status = escrow.Status(status)
	if esc.Amount, err = engine.ParseAmount(amount); err != nil {
		return escrow.Escrow{}, false, fmt.Errorf("corrupt escrow %d amount: %w", id, err)
	}
	if esc.CreatedAt, err = parseTime(createdAt); err != nil {
		return escrow.Escrow{}, false, err
	}
	if esc.Deadline, err = parseTime(deadline); err != nil {
		return escrow.Escrow{}, false, err
	}
	return esc, true, nil
}

// Put inserts or updates an escrow record, refusing any write that
// would leave a terminal status.
func (s *Store) Put(ctx context.Context, esc escrow.Escrow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok, err := s.getEscrow(ctx, esc.ID)
	if err != nil {
		return err
	}
	if ok && prev.Status.Terminal() && prev.Status != esc.Status {
		return escrow.ErrTerminalTransition
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO escrows (id, depositor, recipient, token, amount, status, created_at, deadline)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status`,
		esc.ID, string(esc.Depositor), string(esc.Recipient), esc.Token,
		esc.Amount.String(), string(esc.Status),
		formatTime(esc.CreatedAt), formatTime(esc.Deadline),
	)
	return err
}

// NextID advances and returns the escrow ID sequence.
func (s *Store) NextID(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO sequences (name, value) VALUES ('escrow', 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1`,
	); err != nil {
		return 0, err
	}

	var id uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM sequences WHERE name = 'escrow'`,
	).Scan(&id)
	return id, err
}

// ByDepositor lists escrow IDs opened by a depositor, oldest first.
func (s *Store) ByDepositor(ctx context.Context, depositor ledger.Account) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM escrows WHERE depositor = ? ORDER BY id`,
		string(depositor),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// =============================================================================
// WALLET STORE (wallet.Store interface)
// =============================================================================

func (s *Store) GetBalance(ctx context.Context, user ledger.Account, currency string) (wallet.Balance, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		bal       wallet.Balance
		raw       string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user, currency, balance, updated_at
		FROM wallet_balances WHERE user = ? AND currency = ?`,
		string(user), currency,
	).Scan(&bal.User, &bal.Currency, &raw, &updatedAt)
	if err == sql.ErrNoRows {
		return wallet.Balance{}, false, nil
	}
	if err != nil {
		return wallet.Balance{}, false, err
	}

	if bal.Balance, err = engine.ParseAmount(raw); err != nil {
		return wallet.Balance{}, false, fmt.Errorf("corrupt wallet balance %s/%s: %w", user, currency, err)
	}
	if bal.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return wallet.Balance{}, false, err
	}
	return bal, true, nil
}

func (s *Store) PutBalance(ctx context.Context, bal wallet.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallet_balances (user, currency, balance, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user, currency) DO UPDATE SET
			balance = excluded.balance,
			updated_at = excluded.updated_at`,
		string(bal.User), bal.Currency, bal.Balance.String(), formatTime(bal.UpdatedAt),
	)
	return err
}

// =============================================================================
// LIMITS STORE (limits.Store interface)
// =============================================================================

func (s *Store) GetLimit(ctx context.Context, user ledger.Account) (limits.SpendingLimit, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		lim               limits.SpendingLimit
		monthly, spending string
		updatedAt         string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user, monthly_limit, current_spending, category, updated_at, active
		FROM spending_limits WHERE user = ?`, string(user),
	).Scan(&lim.User, &monthly, &spending, &lim.Category, &updatedAt, &lim.Active)
	if err == sql.ErrNoRows {
		return limits.SpendingLimit{}, false, nil
	}
	if err != nil {
		return limits.SpendingLimit{}, false, err
	}

	if lim.MonthlyLimit, err = engine.ParseAmount(monthly); err != nil {
		return limits.SpendingLimit{}, false, fmt.Errorf("corrupt limit for %s: %w", user, err)
	}
	if lim.CurrentSpending, err = engine.ParseAmount(spending); err != nil {
		return limits.SpendingLimit{}, false, fmt.Errorf("corrupt spending for %s: %w", user, err)
	}
	if lim.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return limits.SpendingLimit{}, false, err
	}
	return lim, true, nil
}

func (s *Store) PutLimit(ctx context.Context, lim limits.SpendingLimit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO spending_limits (user, monthly_limit, current_spending, category, updated_at, active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user) DO UPDATE SET
			monthly_limit = excluded.monthly_limit,
			current_spending = excluded.current_spending,
			category = excluded.category,
			updated_at = excluded.updated_at,
			active = excluded.active`,
		string(lim.User), lim.MonthlyLimit.String(), lim.CurrentSpending.String(),
		lim.Category, formatTime(lim.UpdatedAt), lim.Active,
	)
	return err
}

// =============================================================================
// REFUNDS STORE (refunds.Store interface)
// =============================================================================

func (s *Store) GetTransaction(ctx context.Context, id uint64) (refunds.Transaction, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		tx         refunds.Transaction
		amount     string
		recordedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, payer, amount, category, refundable, recorded_at
		FROM refund_transactions WHERE id = ?`, id,
	).Scan(&tx.ID, &tx.Payer, &amount, &tx.Category, &tx.Refundable, &recordedAt)
	if err == sql.ErrNoRows {
		return refunds.Transaction{}, false, nil
	}
	if err != nil {
		return refunds.Transaction{}, false, err
	}

	if tx.Amount, err = engine.ParseAmount(amount); err != nil {
		return refunds.Transaction{}, false, fmt.Errorf("corrupt transaction %d amount: %w", id, err)
	}
	if tx.RecordedAt, err = parseTime(recordedAt); err != nil {
		return refunds.Transaction{}, false, err
	}
	return tx, true, nil
}

func (s *Store) PutTransaction(ctx context.Context, tx refunds.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM refund_transactions WHERE id = ?`, tx.ID,
	).Scan(&exists)
	if err == nil {
		return refunds.ErrDuplicateID
	}
	if err != sql.ErrNoRows {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO refund_transactions (id, payer, amount, category, refundable, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		tx.ID, string(tx.Payer), tx.Amount.String(), tx.Category, tx.Refundable,
		formatTime(tx.RecordedAt),
	)
	return err
}

func (s *Store) IsRefunded(ctx context.Context, id uint64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM refunded_ids WHERE id = ?`, id,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) MarkRefunded(ctx context.Context, id uint64, amount engine.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refunded_ids (id, amount, refunded_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		id, amount.String(), formatTime(time.Now().UTC()),
	)
	return err
}

func (s *Store) TotalRefunded(ctx context.Context) (engine.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT amount FROM refunded_ids`)
	if err != nil {
		return engine.Amount{}, err
	}
	defer rows.Close()

	// Summed in Go: SQLite arithmetic on TEXT columns would go through
	// floats and lose precision.
	var total engine.Amount
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return engine.Amount{}, err
		}
		amount, err := engine.ParseAmount(raw)
		if err != nil {
			return engine.Amount{}, fmt.Errorf("corrupt refunded amount: %w", err)
		}
		total = total.SaturatingAdd(amount)
	}
	return total, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
