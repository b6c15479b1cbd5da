package wallet

import (
	"context"
	"sync"

	"github.com/warp/ledger-engine/access"
	"github.com/warp/ledger-engine/engine"
	"github.com/warp/ledger-engine/ledger"
)

// ServiceName keys counters, events, and metrics for this service.
const ServiceName = "wallet"

// Config collects the service's collaborators.
type Config struct {
	Store    Store
	State    engine.StateStore
	Counters engine.CounterStore
	Auth     access.Authorizer
	Events   engine.Emitter
	Observer engine.Observer
	Clock    engine.Clock
}

// Service owns the balance records.
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

// BatchUpdate applies up to MaxBatchSize balance updates. Admin-only.
// Invalid items fail individually; the rest of the batch proceeds.
func (s *Service) BatchUpdate(ctx context.Context, caller engine.Caller, reqs []Request) (engine.BatchResult, error) {
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
		Proc:     &updateProcessor{svc: s},
		Counters: s.cfg.Counters,
		Events:   s.cfg.Events,
		Observer: s.cfg.Observer,
		Clock:    s.cfg.Clock,
	}
	return runner.Run(ctx, caller, reqs)
}

// GetBalance returns the stored balance; absent records read as zero.
func (s *Service) GetBalance(ctx context.Context, user ledger.Account, currency string) (Balance, error) {
	bal, ok, err := s.cfg.Store.GetBalance(ctx, user, currency)
	if err != nil {
		return Balance{}, err
	}
	if !ok {
		return Balance{User: user, Currency: currency}, nil
	}
	return bal, nil
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

// =============================================================================
// PROCESSOR
// =============================================================================

type updateProcessor struct {
	svc *Service
}

func (p *updateProcessor) Validate(_ context.Context, _ engine.Caller, req Request) engine.Fault {
	return validateRequest(req)
}

func (p *updateProcessor) Execute(ctx context.Context, _ engine.Caller, req Request) (engine.Outcome, engine.Fault) {
	current, ok, err := p.svc.cfg.Store.GetBalance(ctx, req.User, req.Currency)
	if err != nil {
		return engine.Outcome{}, FaultArithmeticOverflow
	}
	var base engine.Amount
	if ok {
		base = current.Balance
	}

	next, fault := applyOp(base, req)
	if fault != nil {
		return engine.Outcome{}, fault
	}

	bal := Balance{
		User:      req.User,
		Currency:  req.Currency,
		Balance:   next,
		UpdatedAt: p.svc.cfg.Clock.Now(),
	}
	if err := p.svc.cfg.Store.PutBalance(ctx, bal); err != nil {
		return engine.Outcome{}, FaultArithmeticOverflow
	}
	return engine.Outcome{Key: balanceResultKey(req), Amount: req.Amount}, nil
}

func (p *updateProcessor) Describe(req Request) (string, engine.Amount) {
	return balanceResultKey(req), req.Amount
}

// balanceResultKey identifies an item in batch results and events.
func balanceResultKey(req Request) string {
	return string(req.User) + "/" + req.Currency
}
