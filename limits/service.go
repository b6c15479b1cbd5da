package limits

import (
	"context"
	"sync"

	"github.com/warp/ledger-engine/access"
	"github.com/warp/ledger-engine/engine"
	"github.com/warp/ledger-engine/ledger"
)

// ServiceName keys counters, events, and metrics for this service.
const ServiceName = "limits"

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

// Service owns the spending-limit records.
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

// BatchUpdate applies up to MaxBatchSize limit updates. Admin-only.
// Each successful update overwrites the user's record, resets the
// month's spending, and marks the limit active.
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
		Proc:     &limitProcessor{svc: s},
		Counters: s.cfg.Counters,
		Events:   s.cfg.Events,
		Observer: s.cfg.Observer,
		Clock:    s.cfg.Clock,
	}
	return runner.Run(ctx, caller, reqs)
}

// Get returns a user's limit record.
func (s *Service) Get(ctx context.Context, user ledger.Account) (SpendingLimit, bool, error) {
	return s.cfg.Store.GetLimit(ctx, user)
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

type limitProcessor struct {
	svc *Service
}

func (p *limitProcessor) Validate(_ context.Context, _ engine.Caller, req Request) engine.Fault {
	return validateRequest(req)
}

func (p *limitProcessor) Execute(ctx context.Context, _ engine.Caller, req Request) (engine.Outcome, engine.Fault) {
	lim := SpendingLimit{
		User:         req.User,
		MonthlyLimit: req.MonthlyLimit,
		// Fresh limit, fresh month.
		CurrentSpending: engine.Amount{},
		Category:        req.Category,
		UpdatedAt:       p.svc.cfg.Clock.Now(),
		Active:          true,
	}
	if err := p.svc.cfg.Store.PutLimit(ctx, lim); err != nil {
		return engine.Outcome{}, FaultInvalidLimit
	}

	if !req.MonthlyLimit.LessThan(HighValueThreshold) {
		p.emitHighValue(ctx, req)
	}
	return engine.Outcome{Key: string(req.User), Amount: req.MonthlyLimit}, nil
}

func (p *limitProcessor) Describe(req Request) (string, engine.Amount) {
	return string(req.User), req.MonthlyLimit
}

func (p *limitProcessor) emitHighValue(ctx context.Context, req Request) {
	if p.svc.cfg.Events == nil {
		return
	}
	p.svc.cfg.Events.Emit(ctx, engine.Event{
		ID:      engine.NewEventID(),
		Service: ServiceName,
		Type:    engine.EventHighValue,
		At:      p.svc.cfg.Clock.Now(),
		Key:     string(req.User),
		Amount:  req.MonthlyLimit,
	})
}
