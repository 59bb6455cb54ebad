package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"ledgerid/internal/transport"
	pstrings "ledgerid/pkg/platform/strings"
)

// DefaultIdleTimeout is how long a resolver waits for more history before it
// declares resolution complete.
const DefaultIdleTimeout = 30 * time.Second

// ResolverConfig is the immutable configuration of a Resolver.
type ResolverConfig[T Payload] struct {
	TopicID string
	// Keys are the DIDs or credential hashes to resolve.
	Keys        []string
	IdleTimeout time.Duration

	Decrypter Transform[T]
	Validate  Validator[T]
	// Rule defaults to Supersedes.
	Rule ConflictRule[T]

	// OnFinished receives the final state of every requested key; keys
	// without accepted messages map to nil. Required.
	OnFinished func(results map[string]*Entry[T])
	// OnError receives transport errors. Without it the first transport
	// error aborts the resolution.
	OnError func(err error)
	// OnInvalid receives messages the listener rejected.
	OnInvalid func(msg transport.Message, reason string)

	// Now defaults to time.Now.
	Now     func() time.Time
	Logger  *slog.Logger
	Metrics *Metrics
}

// Resolver replays a topic from the beginning of time up to the moment it
// starts and folds every accepted envelope into one state per key.
//
// The log never acknowledges the end of a range, so completion is a heuristic:
// once no message has arrived for IdleTimeout the history is assumed to be
// exhausted. A slow or stalled log can make a resolver finish early.
type Resolver[T Payload] struct {
	cfg  ResolverConfig[T]
	keys map[string]struct{}

	mu           sync.Mutex
	results      map[string]*Entry[T]
	copies       map[string]resolvedCopy[T]
	listener     *Listener[T]
	timer        *time.Timer
	generation   uint64
	lastActivity time.Time
	startedAt    time.Time
	executed     bool
	finished     bool
	err          error
	done         chan struct{}
}

// NewResolver creates a resolver; nothing is streamed until Execute.
func NewResolver[T Payload](cfg ResolverConfig[T]) *Resolver[T] {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Rule == nil {
		cfg.Rule = Supersedes[T]
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Resolver[T]{
		cfg:  cfg,
		keys: pstrings.ToSet(cfg.Keys),
		done: make(chan struct{}),
	}
}

func (r *Resolver[T]) validate(client transport.Subscriber) error {
	var violations []error
	if len(r.keys) == 0 {
		violations = append(violations, errors.New("set of keys to resolve is empty"))
	}
	if r.cfg.OnFinished == nil {
		violations = append(violations, errors.New("finished handler is required"))
	}
	if r.cfg.TopicID == "" {
		violations = append(violations, errors.New("topic id is required"))
	}
	if client == nil {
		violations = append(violations, errors.New("transport client is required"))
	}
	if len(violations) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(violations...))
	}
	return nil
}

// Execute validates the configuration and starts replaying the topic. It
// returns immediately; completion is reported through OnFinished, Done and Wait.
func (r *Resolver[T]) Execute(ctx context.Context, client transport.Subscriber) error {
	r.mu.Lock()
	if r.executed {
		r.mu.Unlock()
		return ErrAlreadyExecuted
	}
	if err := r.validate(client); err != nil {
		r.mu.Unlock()
		return err
	}
	r.executed = true
	r.startedAt = r.cfg.Now()
	r.results = make(map[string]*Entry[T], len(r.keys))
	for key := range r.keys {
		r.results[key] = nil
	}
	r.copies = make(map[string]resolvedCopy[T])
	r.listener = NewListener(ListenerConfig[T]{
		TopicID:   r.cfg.TopicID,
		EndTime:   r.startedAt,
		Decrypter: r.cfg.Decrypter,
		Validate:  r.cfg.Validate,
		OnError:   r.handleError,
		OnInvalid: r.handleInvalid,
		Logger:    r.cfg.Logger,
		Metrics:   r.cfg.Metrics,
	})
	listener := r.listener
	r.armLocked()
	r.mu.Unlock()

	if err := listener.Subscribe(ctx, client, r.handleMessage); err != nil {
		r.abort(err)
		return err
	}
	return nil
}

// Done is closed when the resolution finished or was aborted.
func (r *Resolver[T]) Done() <-chan struct{} {
	return r.done
}

// Err returns the error that aborted the resolution, if any.
func (r *Resolver[T]) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Wait blocks until the resolution completes and returns its results.
// Cancelling ctx cancels the resolution.
func (r *Resolver[T]) Wait(ctx context.Context) (map[string]*Entry[T], error) {
	select {
	case <-r.done:
	case <-ctx.Done():
		r.abort(ctx.Err())
		<-r.done
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	return r.snapshotLocked(), nil
}

// Cancel stops the resolution without invoking OnFinished.
func (r *Resolver[T]) Cancel() {
	r.abort(context.Canceled)
}

func (r *Resolver[T]) handleMessage(env *Envelope[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.armLocked()

	payload, err := env.Open(r.cfg.Decrypter)
	if err != nil {
		return
	}
	key := payload.Subject()
	if _, ok := r.keys[key]; !ok {
		return
	}
	signature := env.Signature()
	if prev, dup := r.copies[signature]; dup {
		if !precedes(env, prev.env) {
			return
		}
		r.copies[signature] = resolvedCopy[T]{key: key, env: env, payload: payload}
		r.results[key] = r.refoldLocked(key)
		r.lastActivity = r.cfg.Now()
		r.cfg.Logger.Debug("earlier copy of a resolved message replaced",
			"topic_id", r.cfg.TopicID,
			"key", key,
			"sequence_number", env.SequenceNumber(),
		)
		return
	}
	r.copies[signature] = resolvedCopy[T]{key: key, env: env, payload: payload}

	next, accepted := Fold(r.results[key], env, payload, r.cfg.Rule)
	if next != nil {
		r.results[key] = next
	}
	if accepted {
		r.lastActivity = r.cfg.Now()
	} else {
		r.cfg.Logger.Debug("superseded message discarded",
			"topic_id", r.cfg.TopicID,
			"key", key,
			"sequence_number", env.SequenceNumber(),
		)
	}
}

// resolvedCopy is the earliest consensus copy of one signed message.
type resolvedCopy[T Payload] struct {
	key     string
	env     *Envelope[T]
	payload T
}

// refoldLocked rebuilds a key's state from the earliest copy of each of its
// messages, folded in consensus order.
func (r *Resolver[T]) refoldLocked(key string) *Entry[T] {
	var copies []resolvedCopy[T]
	for _, c := range r.copies {
		if c.key == key {
			copies = append(copies, c)
		}
	}
	sort.Slice(copies, func(i, j int) bool {
		return precedes(copies[i].env, copies[j].env)
	})
	var state *Entry[T]
	for _, c := range copies {
		if next, _ := Fold(state, c.env, c.payload, r.cfg.Rule); next != nil {
			state = next
		}
	}
	return state
}

func (r *Resolver[T]) handleInvalid(msg transport.Message, reason string) {
	r.mu.Lock()
	if !r.finished {
		r.armLocked()
	}
	r.mu.Unlock()
	if r.cfg.OnInvalid != nil {
		r.cfg.OnInvalid(msg, reason)
	}
}

func (r *Resolver[T]) handleError(err error) {
	if r.cfg.OnError != nil {
		r.cfg.OnError(err)
		return
	}
	r.abort(err)
}

// armLocked (re)starts the single idle timer. Each arming bumps the
// generation so that a stale timer that already fired becomes a no-op.
func (r *Resolver[T]) armLocked() {
	r.generation++
	generation := r.generation
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.cfg.IdleTimeout, func() {
		r.onIdle(generation)
	})
}

func (r *Resolver[T]) onIdle(generation uint64) {
	r.mu.Lock()
	if r.finished || generation != r.generation {
		r.mu.Unlock()
		return
	}
	r.finishLocked(nil)
	results := r.snapshotLocked()
	listener := r.listener
	elapsed := r.cfg.Now().Sub(r.startedAt)
	lastActivity := r.lastActivity
	r.mu.Unlock()

	listener.Unsubscribe()
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.ObserveResolution(elapsed)
	}
	r.cfg.Logger.Info("resolution finished",
		"topic_id", r.cfg.TopicID,
		"keys", len(results),
		"duration", elapsed,
		"last_activity", lastActivity,
	)
	close(r.done)
	r.cfg.OnFinished(results)
}

func (r *Resolver[T]) abort(err error) {
	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	r.finishLocked(err)
	listener := r.listener
	r.mu.Unlock()

	if listener != nil {
		listener.Unsubscribe()
	}
	r.cfg.Logger.Warn("resolution aborted",
		"topic_id", r.cfg.TopicID,
		"error", err,
	)
	close(r.done)
}

func (r *Resolver[T]) finishLocked(err error) {
	r.finished = true
	r.err = err
	if r.timer != nil {
		r.timer.Stop()
	}
}

func (r *Resolver[T]) snapshotLocked() map[string]*Entry[T] {
	out := make(map[string]*Entry[T], len(r.results))
	for k, v := range r.results {
		out[k] = v
	}
	return out
}
