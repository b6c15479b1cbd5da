/*
events.go - Append-only audit event stream

PURPOSE:
  Every batch call narrates itself for off-chain observers: one batch-start
  event, one event per item (success or failure with code), one
  batch-completion event. Events are a pure side channel - no engine or
  service logic may depend on their emission, and an emitter error never
  affects the batch outcome.

ORDERING:
  Within a single call, events are emitted in processing order. No ordering
  guarantee exists across calls or emitters.

IMPLEMENTATIONS:
  MemoryEmitter: retains events in memory, used by tests and the API's
                 recent-events endpoint.
  SlogEmitter:   structured log output for operational visibility.
  MultiEmitter:  fan-out to several sinks.

SEE ALSO:
  - runner.go: Emission points
*/
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the audit stream vocabulary.
type EventType string

const (
	EventBatchStarted   EventType = "batch_started"
	EventItemSucceeded  EventType = "item_succeeded"
	EventItemFailed     EventType = "item_failed"
	EventBatchCompleted EventType = "batch_completed"

	// Single-operation lifecycle events (outside the batch engine).
	EventRecordCreated  EventType = "record_created"
	EventRecordReleased EventType = "record_released"
	EventRecordReversed EventType = "record_reversed"

	// EventHighValue flags an item whose amount crossed a service's
	// high-value threshold. Emitted alongside the item's success event.
	EventHighValue EventType = "high_value"
)

// Event is one append-only audit notification.
type Event struct {
	ID      string
	Service string
	Type    EventType
	BatchID uint64
	At      time.Time

	// Batch-level fields
	ItemCount  int
	Successful int
	Failed     int
	Volume     Amount

	// Item-level fields
	Key    string
	Amount Amount
	Code   uint32
}

// Emitter consumes audit events. Emit errors are ignored by the engine.
type Emitter interface {
	Emit(ctx context.Context, e Event)
}

// =============================================================================
// MEMORY EMITTER
// =============================================================================

// MemoryEmitter retains emitted events, newest last.
type MemoryEmitter struct {
	mu     sync.Mutex
	events []Event
	limit  int
}

// NewMemoryEmitter creates an emitter retaining up to limit events
// (0 = unbounded).
func NewMemoryEmitter(limit int) *MemoryEmitter {
	return &MemoryEmitter{limit: limit}
}

func (m *MemoryEmitter) Emit(_ context.Context, e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	if m.limit > 0 && len(m.events) > m.limit {
		m.events = m.events[len(m.events)-m.limit:]
	}
}

// Events returns a copy of the retained events.
func (m *MemoryEmitter) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// =============================================================================
// SLOG EMITTER
// =============================================================================

// SlogEmitter writes events as structured log lines.
type SlogEmitter struct {
	Logger *slog.Logger
}

func (s *SlogEmitter) Emit(ctx context.Context, e Event) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		"event_id", e.ID,
		"service", e.Service,
		"batch_id", e.BatchID,
	}
	switch e.Type {
	case EventBatchStarted:
		attrs = append(attrs, "items", e.ItemCount)
	case EventBatchCompleted:
		attrs = append(attrs, "succeeded", e.Successful, "failed", e.Failed, "volume", e.Volume.String())
	case EventItemSucceeded:
		attrs = append(attrs, "key", e.Key, "amount", e.Amount.String())
	case EventItemFailed:
		attrs = append(attrs, "key", e.Key, "amount", e.Amount.String(), "code", e.Code)
	}
	logger.LogAttrs(ctx, slog.LevelInfo, string(e.Type), slog.Group("batch", attrs...))
}

// =============================================================================
// MULTI EMITTER
// =============================================================================

// MultiEmitter fans out to every sink.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(ctx context.Context, e Event) {
	for _, em := range m {
		em.Emit(ctx, e)
	}
}

// NewEventID assigns a unique event identifier.
func NewEventID() string { return uuid.NewString() }
