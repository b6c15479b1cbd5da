package rewards

import (
	"context"
	"sync"

	"github.com/warp/ledger-engine/access"
	"github.com/warp/ledger-engine/engine"
	"github.com/warp/ledger-engine/ledger"
)

// ServiceName keys counters, events, and metrics for this service.
const ServiceName = "rewards"

// Config collects the service's collaborators.
type Config struct {
	State    engine.StateStore
	Counters engine.CounterStore
	Ledger   ledger.Ledger
	Auth     access.Authorizer
	Events   engine.Emitter
	Observer engine.Observer
	Clock    engine.Clock
}

// Service distributes rewards from the admin's treasury.
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

// Distribute pays rewards to up to MaxBatchSize recipients. Admin-only.
// Hard-aborts when the treasury cannot cover the batch total; after that
// every failure is per-item and the rest of the batch proceeds.
func (s *Service) Distribute(ctx context.Context, caller engine.Caller, reqs []Request) (engine.BatchResult, error) {
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
	if len(reqs) == 0 {
		return engine.BatchResult{}, engine.ErrEmptyBatch
	}
	if len(reqs) > engine.MaxBatchSize {
		return engine.BatchResult{}, engine.ErrBatchTooLarge
	}

	// Treasury precheck before any item is touched; failure commits
	// nothing. Only positive amounts count toward the requirement so an
	// invalid negative item cannot shrink it.
	var required engine.Amount
	for _, req := range reqs {
		if req.Amount.IsPositive() {
			required = required.SaturatingAdd(req.Amount)
		}
	}
	balance, err := s.cfg.Ledger.Balance(ctx, ledger.Account(caller))
	if err != nil {
		return engine.BatchResult{}, err
	}
	if balance.LessThan(required) {
		return engine.BatchResult{}, engine.ErrInsufficientFunds
	}

	runner := engine.Runner[Request]{
		Service:  ServiceName,
		Proc:     &payoutProcessor{svc: s, treasury: ledger.Account(caller)},
		Counters: s.cfg.Counters,
		Events:   s.cfg.Events,
		Observer: s.cfg.Observer,
		Clock:    s.cfg.Clock,
	}
	return runner.Run(ctx, caller, reqs)
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

type payoutProcessor struct {
	svc      *Service
	treasury ledger.Account
}

func (p *payoutProcessor) Validate(_ context.Context, _ engine.Caller, req Request) engine.Fault {
	return validateRequest(req)
}

func (p *payoutProcessor) Execute(ctx context.Context, _ engine.Caller, req Request) (engine.Outcome, engine.Fault) {
	// A rejected transfer fails this item only.
	if err := p.svc.cfg.Ledger.Transfer(ctx, p.treasury, req.Recipient, req.Amount); err != nil {
		return engine.Outcome{}, FaultTransferFailed
	}
	return engine.Outcome{Key: string(req.Recipient), Amount: req.Amount}, nil
}

func (p *payoutProcessor) Describe(req Request) (string, engine.Amount) {
	return string(req.Recipient), req.Amount
}
