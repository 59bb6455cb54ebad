package message

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"ledgerid/internal/transport"
)

// Filter is a pre-decode predicate over raw topic messages.
type Filter func(msg transport.Message) bool

// Validator applies payload-specific integrity rules to an opened payload.
// A non-nil error rejects the message; its text is the rejection reason.
type Validator[T Payload] func(env *Envelope[T], payload T, msg transport.Message) error

// ListenerConfig is the immutable configuration of a Listener.
type ListenerConfig[T Payload] struct {
	TopicID string
	// StartTime zero streams from the beginning of the topic.
	StartTime time.Time
	// EndTime zero keeps the stream open.
	EndTime time.Time
	Limit   uint64

	Filters   []Filter
	Decrypter Transform[T]
	// Decode defaults to Decode[T].
	Decode   func(data []byte) (*Envelope[T], error)
	Validate Validator[T]

	// OnError receives transport errors. Without it errors are fatal unless
	// IgnoreErrors is set.
	OnError      func(err error)
	IgnoreErrors bool
	// OnInvalid receives every rejected message with a readable reason.
	OnInvalid func(msg transport.Message, reason string)

	Logger  *slog.Logger
	Metrics *Metrics
}

// Listener turns a raw topic stream into a stream of validated envelopes.
type Listener[T Payload] struct {
	cfg ListenerConfig[T]

	// mu serializes delivered -> processed -> maybe-unsubscribed.
	mu sync.Mutex

	subMu      sync.Mutex
	sub        transport.Subscription
	subscribed bool
	err        error

	cancelled atomic.Bool
	done      chan struct{}
	doneOnce  sync.Once
}

// NewListener creates a listener; nothing is streamed until Subscribe.
func NewListener[T Payload](cfg ListenerConfig[T]) *Listener[T] {
	if cfg.Decode == nil {
		cfg.Decode = Decode[T]
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Listener[T]{
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// Subscribe starts streaming the topic and invokes onAccepted for each valid
// envelope, in delivery order.
func (l *Listener[T]) Subscribe(ctx context.Context, client transport.Subscriber, onAccepted func(env *Envelope[T])) error {
	var violations []error
	if client == nil {
		violations = append(violations, errors.New("transport client is required"))
	}
	if l.cfg.TopicID == "" {
		violations = append(violations, errors.New("topic id is required"))
	}
	if onAccepted == nil {
		violations = append(violations, errors.New("accepted message callback is required"))
	}
	if len(violations) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(violations...))
	}

	l.subMu.Lock()
	if l.subscribed {
		l.subMu.Unlock()
		return ErrAlreadySubscribed
	}
	l.subscribed = true
	l.subMu.Unlock()

	q := transport.Query{
		TopicID:   l.cfg.TopicID,
		StartTime: l.cfg.StartTime,
		EndTime:   l.cfg.EndTime,
		Limit:     l.cfg.Limit,
	}
	sub, err := client.Subscribe(ctx, q, func(msg transport.Message) {
		l.deliver(msg, onAccepted)
	}, l.handleError)
	if err != nil {
		err = fmt.Errorf("subscribe to topic %s: %w", l.cfg.TopicID, err)
		l.fail(err)
		return err
	}

	l.subMu.Lock()
	l.sub = sub
	l.subMu.Unlock()
	if l.cancelled.Load() {
		sub.Unsubscribe()
	}

	l.cfg.Logger.Debug("subscribed to topic",
		"topic_id", l.cfg.TopicID,
		"start_time", l.cfg.StartTime,
		"end_time", l.cfg.EndTime,
	)
	return nil
}

// Unsubscribe stops delivery. It is idempotent and safe to call from within
// the accepted callback.
func (l *Listener[T]) Unsubscribe() {
	if !l.cancelled.CompareAndSwap(false, true) {
		return
	}
	l.subMu.Lock()
	sub := l.sub
	l.subMu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
	l.doneOnce.Do(func() { close(l.done) })
}

// Done is closed once the listener has stopped: after Unsubscribe, a fatal
// error, or the end of a bounded subscription window.
func (l *Listener[T]) Done() <-chan struct{} {
	return l.done
}

// Err returns the fatal error that stopped the listener, if any.
func (l *Listener[T]) Err() error {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	return l.err
}

func (l *Listener[T]) deliver(msg transport.Message, onAccepted func(env *Envelope[T])) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancelled.Load() {
		return
	}

	env, stage, reason := l.accept(msg)
	if reason != "" {
		l.reject(msg, stage, reason)
		return
	}
	if l.cfg.Metrics != nil {
		l.cfg.Metrics.IncAccepted()
	}
	onAccepted(env)
}

func (l *Listener[T]) accept(msg transport.Message) (*Envelope[T], string, string) {
	for _, filter := range l.cfg.Filters {
		if !filter(msg) {
			return nil, StageFilter, "message was rejected by filter"
		}
	}

	env, err := l.cfg.Decode(msg.Contents)
	if err != nil {
		return nil, StageDecode, err.Error()
	}
	if env.Mode() == ModeEncrypted && l.cfg.Decrypter == nil {
		return nil, StageDecrypt, ErrDecrypterRequired.Error()
	}
	env.delivered(msg.ConsensusTimestamp, msg.SequenceNumber)

	payload, err := env.Open(l.cfg.Decrypter)
	if err != nil {
		return nil, StageDecrypt, err.Error()
	}
	if err := payload.Validate(); err != nil {
		return nil, StageValidate, err.Error()
	}
	if l.cfg.Validate != nil {
		if err := l.cfg.Validate(env, payload, msg); err != nil {
			return nil, StageValidate, err.Error()
		}
	}
	return env, "", ""
}

func (l *Listener[T]) reject(msg transport.Message, stage, reason string) {
	if l.cfg.Metrics != nil {
		l.cfg.Metrics.IncRejected(stage)
	}
	l.cfg.Logger.Debug("rejected topic message",
		"topic_id", l.cfg.TopicID,
		"sequence_number", msg.SequenceNumber,
		"stage", stage,
		"reason", reason,
	)
	if l.cfg.OnInvalid != nil {
		l.cfg.OnInvalid(msg, reason)
	}
}

func (l *Listener[T]) handleError(err error) {
	if err == nil || errors.Is(err, transport.ErrSubscriptionCancelled) || l.cancelled.Load() {
		return
	}
	if errors.Is(err, transport.ErrEndOfStream) {
		l.cfg.Logger.Debug("subscription window exhausted", "topic_id", l.cfg.TopicID)
		l.Unsubscribe()
		return
	}
	if l.cfg.Metrics != nil {
		l.cfg.Metrics.IncTransportErrors()
	}
	if l.cfg.OnError != nil {
		l.cfg.OnError(err)
		return
	}
	if l.cfg.IgnoreErrors {
		l.cfg.Logger.Debug("ignoring transport error",
			"topic_id", l.cfg.TopicID,
			"error", err,
		)
		return
	}
	l.cfg.Logger.Error("subscription failed",
		"topic_id", l.cfg.TopicID,
		"error", err,
	)
	l.fail(err)
}

func (l *Listener[T]) fail(err error) {
	l.subMu.Lock()
	if l.err == nil {
		l.err = err
	}
	l.subMu.Unlock()
	l.Unsubscribe()
}
