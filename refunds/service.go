package refunds

import (
	"context"
	"strconv"
	"sync"

	"github.com/warp/ledger-engine/access"
	"github.com/warp/ledger-engine/engine"
	"github.com/warp/ledger-engine/ledger"
)

// ServiceName keys counters, events, and metrics for this service.
const ServiceName = "refunds"

// Config collects the service's collaborators.
type Config struct {
	Store    Store
	State    engine.StateStore
	Counters engine.CounterStore
	Ledger   ledger.Ledger
	Auth     access.Authorizer
	Events   engine.Emitter
	Observer engine.Observer
	Clock    engine.Clock

	// Treasury funds refund payouts.
	Treasury ledger.Account
}

// Service owns the transaction registry and the refunded set.
type Service struct {
	mu  sync.Mutex
	cfg Config
}

func New(cfg Config) *Service {
	if cfg.Clock == nil {
		cfg.Clock = engine.SystemClock{}
	}
	if cfg.Observer == nil {
		cfg.Observer = engine.NopObserver{}
	}
	if cfg.Treasury == "" {
		cfg.Treasury = "refund-treasury"
	}
	return &Service{cfg: cfg}
}

// Initialize sets the admin. Fails on double initialization.
func (s *Service) Initialize(ctx context.Context, admin engine.Caller) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok, err := s.cfg.State.Admin(ctx, ServiceName); err != nil {
		return err
	} else if ok {
		return engine.ErrAlreadyInitialized
	}
	return s.cfg.State.SetAdmin(ctx, ServiceName, admin)
}

// Record registers a refundable transaction. Admin-only; IDs are never
// reused.
func (s *Service) Record(ctx context.Context, caller engine.Caller, tx Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cfg.Auth.Authorize(ctx, caller); err != nil {
		return err
	}
	admin, err := s.admin(ctx)
	if err != nil {
		return err
	}
	if caller != admin {
		return engine.ErrUnauthorized
	}
	if !tx.Amount.IsPositive() || tx.Amount.GreaterThan(engine.MaxItemAmount) {
		return engine.ErrInvalidAmount
	}

	tx.RecordedAt = s.cfg.Clock.Now()
	if err := s.cfg.Store.PutTransaction(ctx, tx); err != nil {
		return err
	}

	s.emit(ctx, engine.Event{
		Service: ServiceName,
		Type:    engine.EventRecordCreated,
		Key:     formatTxID(tx.ID),
		Amount:  tx.Amount,
	})
	return nil
}

// RefundBatch refunds up to MaxBatchSize transactions. Admin-only.
// Each success pays treasury to payer and permanently marks the ID;
// the same ID twice in one batch succeeds once and fails once.
func (s *Service) RefundBatch(ctx context.Context, caller engine.Caller, reqs []Request) (engine.BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cfg.Auth.Authorize(ctx, caller); err != nil {
		return engine.BatchResult{}, err
	}
	admin, err := s.admin(ctx)
	if err != nil {
		return engine.BatchResult{}, err
	}
	if caller != admin {
		return engine.BatchResult{}, engine.ErrUnauthorized
	}

	runner := engine.Runner[Request]{
		Service:  ServiceName,
		Proc:     &refundProcessor{svc: s},
		Counters: s.cfg.Counters,
		Events:   s.cfg.Events,
		Observer: s.cfg.Observer,
		Clock:    s.cfg.Clock,
	}
	return runner.Run(ctx, caller, reqs)
}

// Get returns a registered transaction.
func (s *Service) Get(ctx context.Context, id uint64) (Transaction, bool, error) {
	return s.cfg.Store.GetTransaction(ctx, id)
}

// IsRefunded reports whether a transaction has been refunded.
func (s *Service) IsRefunded(ctx context.Context, id uint64) (bool, error) {
	return s.cfg.Store.IsRefunded(ctx, id)
}

// TotalRefunded returns the lifetime refunded amount.
func (s *Service) TotalRefunded(ctx context.Context) (engine.Amount, error) {
	return s.cfg.Store.TotalRefunded(ctx)
}

// AggregateCounters returns the lifetime totals for this service.
func (s *Service) AggregateCounters(ctx context.Context) (engine.Counters, error) {
	return s.cfg.Counters.LoadCounters(ctx, ServiceName)
}

// Admin returns the configured admin.
func (s *Service) Admin(ctx context.Context) (engine.Caller, error) {
	return s.admin(ctx)
}

// SetAdmin rotates the admin. Current admin only.
func (s *Service) SetAdmin(ctx context.Context, caller, newAdmin engine.Caller) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cfg.Auth.Authorize(ctx, caller); err != nil {
		return err
	}
	admin, err := s.admin(ctx)
	if err != nil {
		return err
	}
	if caller != admin {
		return engine.ErrUnauthorized
	}
	return s.cfg.State.SetAdmin(ctx, ServiceName, newAdmin)
}

func (s *Service) admin(ctx context.Context) (engine.Caller, error) {
	admin, ok, err := s.cfg.State.Admin(ctx, ServiceName)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", engine.ErrNotInitialized
	}
	return admin, nil
}

func (s *Service) emit(ctx context.Context, e engine.Event) {
	if s.cfg.Events == nil {
		return
	}
	e.ID = engine.NewEventID()
	e.At = s.cfg.Clock.Now()
	s.cfg.Events.Emit(ctx, e)
}

// =============================================================================
// PROCESSOR
// =============================================================================

type refundProcessor struct {
	svc *Service
}

// Validate checks existence, the dedup guard, and eligibility, in that
// order, against the live store. The dedup check is what makes an
// in-batch duplicate fail on its second occurrence: the first
// occurrence marks the ID before the second is validated.
func (p *refundProcessor) Validate(ctx context.Context, _ engine.Caller, req Request) engine.Fault {
	tx, ok, err := p.svc.cfg.Store.GetTransaction(ctx, req.TxID)
	if err != nil || !ok {
		return FaultTransactionNotFound
	}
	refunded, err := p.svc.cfg.Store.IsRefunded(ctx, req.TxID)
	if err != nil {
		return FaultTransactionNotFound
	}
	if refunded {
		return FaultAlreadyRefunded
	}
	if !tx.Refundable {
		return FaultNotEligible
	}
	return nil
}

func (p *refundProcessor) Execute(ctx context.Context, _ engine.Caller, req Request) (engine.Outcome, engine.Fault) {
	tx, ok, err := p.svc.cfg.Store.GetTransaction(ctx, req.TxID)
	if err != nil || !ok {
		return engine.Outcome{}, FaultTransactionNotFound
	}

	// A Ledger rejection fails this item; the ID stays unmarked so the
	// refund can be retried in a later batch.
	if err := p.svc.cfg.Ledger.Transfer(ctx, p.svc.cfg.Treasury, tx.Payer, tx.Amount); err != nil {
		return engine.Outcome{}, FaultTransferFailed
	}

	if err := p.svc.cfg.Store.MarkRefunded(ctx, req.TxID, tx.Amount); err != nil {
		return engine.Outcome{}, FaultTransferFailed
	}
	return engine.Outcome{Key: formatTxID(req.TxID), Amount: tx.Amount}, nil
}

func (p *refundProcessor) Describe(req Request) (string, engine.Amount) {
	return formatTxID(req.TxID), engine.Amount{}
}

func formatTxID(id uint64) string { return strconv.FormatUint(id, 10) }
