package audit

import (
	"context"
	"time"
)

// Worker persists tracked events. Store failures feed the publisher's
// circuit breaker instead of stopping the worker.
type Worker struct {
	publisher *Publisher
	inbox     <-chan Event
}

// Run blocks until ctx is done, then flushes what is already queued.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case event := <-w.inbox:
			w.persist(ctx, event)
		}
	}
}

func (w *Worker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var pending []Event
	for done := false; !done; {
		select {
		case event := <-w.inbox:
			pending = append(pending, event)
		default:
			done = true
		}
	}
	if len(pending) == 0 {
		return
	}
	batch, ok := w.publisher.store.(BatchStore)
	if !ok {
		for _, event := range pending {
			w.persist(ctx, event)
		}
		return
	}
	p := w.publisher
	if err := batch.AppendBatch(ctx, pending); err != nil {
		p.logger.WarnContext(ctx, "failed to flush tracked audit events",
			"count", len(pending),
			"error", err,
		)
		return
	}
	for _, event := range pending {
		p.metrics.incEmitted(event.Action)
	}
}

func (w *Worker) persist(ctx context.Context, event Event) {
	p := w.publisher
	start := p.now()
	if err := p.store.Append(ctx, event); err != nil {
		p.breaker.RecordFailure()
		p.metrics.incPersistFailure(event.Action)
		p.metrics.setCircuitOpen(p.breaker.IsOpen())
		p.logger.WarnContext(ctx, "failed to persist tracked audit event",
			"action", event.Action,
			"error", err,
		)
		return
	}
	p.breaker.RecordSuccess()
	p.metrics.setCircuitOpen(false)
	p.metrics.observeEmitted(event.Action, p.now().Sub(start).Seconds())
}
