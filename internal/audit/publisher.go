package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ErrPersistFailed is returned by Emit when the event could not be stored.
// The calling operation must report failure.
var ErrPersistFailed = errors.New("audit event not persisted")

const defaultBufferSize = 256

// Publisher writes audit events. Mutating actions go through Emit, which
// blocks until the store accepts the event. Reads go through Track, which
// queues the event for a Worker and never blocks the caller.
type Publisher struct {
	store   Store
	logger  *slog.Logger
	metrics *Metrics
	breaker *CircuitBreaker
	inbox   chan Event
	now     func() time.Time
}

// Option configures the Publisher.
type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithCircuitBreaker guards best-effort writes.
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(p *Publisher) {
		p.breaker = cb
	}
}

// WithBufferSize sets how many tracked events may wait for the worker.
func WithBufferSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.inbox = make(chan Event, n)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		p.now = now
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:   store,
		logger:  slog.Default(),
		breaker: NewCircuitBreaker(5, 30*time.Second),
		inbox:   make(chan Event, defaultBufferSize),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit synchronously persists event.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Action == "" {
		return fmt.Errorf("%w: action is required", ErrPersistFailed)
	}
	event = p.stamp(event)

	start := p.now()
	if err := p.store.Append(ctx, event); err != nil {
		p.metrics.incPersistFailure(event.Action)
		p.logger.ErrorContext(ctx, "failed to persist audit event",
			"action", event.Action,
			"subject", event.Subject,
			"error", err,
		)
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}
	p.metrics.observeEmitted(event.Action, p.now().Sub(start).Seconds())
	return nil
}

// Track queues event for asynchronous persistence. Events are dropped when
// the buffer is full or the circuit is open.
func (p *Publisher) Track(ctx context.Context, event Event) {
	event = p.stamp(event)
	if !p.breaker.Allow() {
		p.metrics.incDropped()
		p.logger.DebugContext(ctx, "audit circuit open, dropping event", "action", event.Action)
		return
	}
	select {
	case p.inbox <- event:
	default:
		p.metrics.incDropped()
		p.logger.WarnContext(ctx, "audit buffer full, dropping event", "action", event.Action)
	}
}

// List returns the audit trail of a subject.
func (p *Publisher) List(ctx context.Context, subject string) ([]Event, error) {
	return p.store.ListBySubject(ctx, subject)
}

// Worker returns a worker draining the events queued by Track.
func (p *Publisher) Worker() *Worker {
	return &Worker{publisher: p, inbox: p.inbox}
}

func (p *Publisher) stamp(event Event) Event {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now().UTC()
	}
	if event.Outcome == "" {
		event.Outcome = OutcomeSucceeded
	}
	return event
}
