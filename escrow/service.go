/*
service.go - Escrow operations

PURPOSE:
  Wires the escrow domain to the shared batch engine and the Ledger
  collaborator. Exposes the full lifecycle: open, release, single reverse,
  batch reverse, plus getters and admin rotation.

CALL SERIALIZATION:
  The original runtime guaranteed that no two calls into one service
  instance interleave. A Go process has no such host, so the service
  serializes its mutating entry points with a mutex. Within a call,
  execution is synchronous and run-to-completion; there is no cancellation
  mid-batch.

ABORT VS ITEM FAILURE:
  Open/Release/Reverse are single operations: failures surface as errors.
  BatchReverse hard-aborts only on its preconditions (authorization, empty,
  oversized); everything after that is per-item.
*/
package escrow

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/warp/ledger-engine/access"
	"github.com/warp/ledger-engine/engine"
	"github.com/warp/ledger-engine/ledger"
)

// ServiceName keys counters, events, and metrics for this service.
const ServiceName = "escrow"

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

	// Vault holds locked funds. Distinct from any caller account.
	Vault ledger.Account
	// Token names the asset held in escrow (informational on records).
	Token string
}

// Service owns the escrow records and their lifecycle.
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
	if cfg.Vault == "" {
		cfg.Vault = "escrow-vault"
	}
	return &Service{cfg: cfg}
}

// Initialize sets the admin. Fails on double initialization; nothing else
// works before this.
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

// =============================================================================
// SINGLE-RECORD LIFECYCLE
// =============================================================================

// Open locks funds from the depositor and creates an Active record.
// Returns the assigned escrow ID.
func (s *Service) Open(ctx context.Context, depositor engine.Caller, recipient ledger.Account, amount engine.Amount, deadline time.Time) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cfg.Auth.Authorize(ctx, depositor); err != nil {
		return 0, err
	}
	if _, err := s.admin(ctx); err != nil {
		return 0, err
	}
	if !amount.IsPositive() || amount.GreaterThan(engine.MaxItemAmount) {
		return 0, engine.ErrInvalidAmount
	}

	if err := s.cfg.Ledger.Transfer(ctx, ledger.Account(depositor), s.cfg.Vault, amount); err != nil {
		return 0, err
	}

	id, err := s.cfg.Store.NextID(ctx)
	if err != nil {
		return 0, err
	}
	esc := Escrow{
		ID:        id,
		Depositor: ledger.Account(depositor),
		Recipient: recipient,
		Token:     s.cfg.Token,
		Amount:    amount,
		Status:    StatusActive,
		CreatedAt: s.cfg.Clock.Now(),
		Deadline:  deadline,
	}
	if err := s.cfg.Store.Put(ctx, esc); err != nil {
		return 0, err
	}

	s.emit(ctx, engine.Event{
		Service: ServiceName,
		Type:    engine.EventRecordCreated,
		Key:     formatID(id),
		Amount:  amount,
	})
	return id, nil
}

// Release pays an Active escrow out to its recipient.
// Allowed for the admin or the depositor.
func (s *Service) Release(ctx context.Context, caller engine.Caller, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cfg.Auth.Authorize(ctx, caller); err != nil {
		return err
	}
	admin, err := s.admin(ctx)
	if err != nil {
		return err
	}

	esc, ok, err := s.cfg.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return engine.ErrNotFound
	}
	if caller != admin && string(caller) != string(esc.Depositor) {
		return engine.ErrUnauthorized
	}
	if esc.Status != StatusActive {
		return engine.ErrNotActive
	}

	if err := s.cfg.Ledger.Transfer(ctx, s.cfg.Vault, esc.Recipient, esc.Amount); err != nil {
		return err
	}

	esc.Status = StatusReleased
	if err := s.cfg.Store.Put(ctx, esc); err != nil {
		return err
	}

	s.emit(ctx, engine.Event{
		Service: ServiceName,
		Type:    engine.EventRecordReleased,
		Key:     formatID(id),
		Amount:  esc.Amount,
	})
	return nil
}

// Reverse returns an Active escrow's funds to the depositor.
// Admin any time; the depositor only once the deadline has passed.
func (s *Service) Reverse(ctx context.Context, caller engine.Caller, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.cfg.Auth.Authorize(ctx, caller); err != nil {
		return err
	}
	admin, err := s.admin(ctx)
	if err != nil {
		return err
	}

	esc, ok, err := s.cfg.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	var snapshot *Escrow
	if ok {
		snapshot = &esc
	}
	if fault := validateReversal(snapshot, caller, admin, true, s.cfg.Clock.Now()); fault != nil {
		return singleOpError(fault)
	}

	if err := s.cfg.Ledger.Transfer(ctx, s.cfg.Vault, esc.Depositor, esc.Amount); err != nil {
		return err
	}

	esc.Status = StatusReversed
	if err := s.cfg.Store.Put(ctx, esc); err != nil {
		return err
	}

	s.emit(ctx, engine.Event{
		Service: ServiceName,
		Type:    engine.EventRecordReversed,
		Key:     formatID(id),
		Amount:  esc.Amount,
	})
	return nil
}

// =============================================================================
// BATCH REVERSAL
// =============================================================================

// BatchReverse reverses up to MaxBatchSize escrows in one call. Admin-only.
// Per-item faults never abort the call; prior and later successful items
// commit regardless.
func (s *Service) BatchReverse(ctx context.Context, caller engine.Caller, reqs []ReversalRequest) (engine.BatchResult, error) {
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

	runner := engine.Runner[ReversalRequest]{
		Service:  ServiceName,
		Proc:     &reverseProcessor{svc: s, admin: admin},
		Counters: s.cfg.Counters,
		Events:   s.cfg.Events,
		Observer: s.cfg.Observer,
		Clock:    s.cfg.Clock,
	}
	return runner.Run(ctx, caller, reqs)
}

// reverseProcessor implements engine.Processor for reversal requests.
// Validation runs against the live store immediately before execution, so
// the same escrow listed twice in one batch fails on its second occurrence.
type reverseProcessor struct {
	svc   *Service
	admin engine.Caller
}

func (p *reverseProcessor) Validate(ctx context.Context, caller engine.Caller, req ReversalRequest) engine.Fault {
	esc, ok, err := p.svc.cfg.Store.Get(ctx, req.EscrowID)
	if err != nil {
		return FaultNotFound
	}
	var snapshot *Escrow
	if ok {
		snapshot = &esc
	}
	// Batch path is admin-only, so the deadline never gates it.
	return validateReversal(snapshot, caller, p.admin, false, p.svc.cfg.Clock.Now())
}

func (p *reverseProcessor) Execute(ctx context.Context, _ engine.Caller, req ReversalRequest) (engine.Outcome, engine.Fault) {
	esc, ok, err := p.svc.cfg.Store.Get(ctx, req.EscrowID)
	if err != nil || !ok {
		return engine.Outcome{}, FaultNotFound
	}

	// A Ledger rejection here is a per-item failure, not a call abort.
	if err := p.svc.cfg.Ledger.Transfer(ctx, p.svc.cfg.Vault, esc.Depositor, esc.Amount); err != nil {
		return engine.Outcome{}, FaultTransferFailed
	}

	esc.Status = StatusReversed
	if err := p.svc.cfg.Store.Put(ctx, esc); err != nil {
		return engine.Outcome{}, FaultTransferFailed
	}
	return engine.Outcome{Key: formatID(esc.ID), Amount: esc.Amount}, nil
}

func (p *reverseProcessor) Describe(req ReversalRequest) (string, engine.Amount) {
	return formatID(req.EscrowID), engine.Amount{}
}

// =============================================================================
// GETTERS AND ADMIN
// =============================================================================

// Get returns an escrow record by ID.
func (s *Service) Get(ctx context.Context, id uint64) (Escrow, bool, error) {
	return s.cfg.Store.Get(ctx, id)
}

// UserEscrows lists escrow IDs opened by a depositor, oldest first.
func (s *Service) UserEscrows(ctx context.Context, depositor ledger.Account) ([]uint64, error) {
	return s.cfg.Store.ByDepositor(ctx, depositor)
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

// =============================================================================
// INTERNAL
// =============================================================================

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

// singleOpError maps a validation fault to the sentinel errors single
// (non-batch) operations surface.
func singleOpError(fault engine.Fault) error {
	switch fault {
	case FaultNotFound:
		return engine.ErrNotFound
	case FaultAlreadyReleased, FaultAlreadyReversed:
		return engine.ErrNotActive
	case FaultUnauthorized:
		return engine.ErrUnauthorized
	case FaultDeadlineNotReached:
		return engine.ErrDeadlineNotReached
	case FaultInvalidAmount:
		return engine.ErrInvalidAmount
	}
	return fault
}

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }
