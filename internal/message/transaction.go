package message

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ledgerid/internal/transport"
)

// DefaultConfirmationLead is how far before submission the confirmation
// listener starts streaming, to tolerate clock skew against the log.
const DefaultConfirmationLead = 5 * time.Second

// SubmitFunc publishes contents to a topic. It lets callers decorate the
// submission (retries, client-side limits) without changing the transaction.
type SubmitFunc func(ctx context.Context, publisher transport.Publisher, topicID string, contents []byte) (string, error)

// Publish is the default SubmitFunc.
func Publish(ctx context.Context, publisher transport.Publisher, topicID string, contents []byte) (string, error) {
	return publisher.Publish(ctx, topicID, contents)
}

// TransactionConfig is the immutable configuration of a Transaction.
type TransactionConfig[T Payload] struct {
	TopicID string
	// Envelope is either freshly wrapped (it is encrypted and signed during
	// Execute) or already signed (it is published as is).
	Envelope *Envelope[T]
	Signer   Signer
	// Encrypter and Decrypter must be set together.
	Encrypter Transform[T]
	Decrypter Transform[T]
	Submit    SubmitFunc

	// Validate is applied to the echoed message when waiting for confirmation.
	Validate Validator[T]
	// OnConfirmed, when set, is called once the published bytes come back
	// from the log with consensus metadata.
	OnConfirmed func(env *Envelope[T])
	OnError     func(err error)

	ConfirmationLead time.Duration
	Now              func() time.Time
	Logger           *slog.Logger
	Metrics          *Metrics
}

// Transaction publishes one envelope and optionally waits for its echo.
type Transaction[T Payload] struct {
	cfg TransactionConfig[T]

	mu       sync.Mutex
	executed bool
	listener *Listener[T]
}

// NewTransaction creates a transaction; nothing is published until Execute.
func NewTransaction[T Payload](cfg TransactionConfig[T]) *Transaction[T] {
	if cfg.ConfirmationLead <= 0 {
		cfg.ConfirmationLead = DefaultConfirmationLead
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Transaction[T]{cfg: cfg}
}

func (t *Transaction[T]) validateLocked(client transport.Client) error {
	var violations []error
	if t.executed {
		violations = append(violations, ErrAlreadyExecuted)
	}
	if t.cfg.TopicID == "" {
		violations = append(violations, errors.New("topic id is required"))
	}
	if t.cfg.Envelope == nil {
		violations = append(violations, errors.New("message or signed envelope is required"))
	} else if !t.cfg.Envelope.IsSigned() && t.cfg.Signer == nil {
		violations = append(violations, ErrSignerRequired)
	}
	if t.cfg.Submit == nil {
		violations = append(violations, errors.New("submit function is required"))
	}
	if (t.cfg.Encrypter == nil) != (t.cfg.Decrypter == nil) {
		violations = append(violations, errors.New("encrypter and decrypter must be provided together"))
	}
	if client == nil {
		violations = append(violations, errors.New("transport client is required"))
	}
	if len(violations) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(violations...))
	}
	return nil
}

// Execute builds, signs and publishes the envelope and returns the log's
// transaction id. A transaction executes at most once.
func (t *Transaction[T]) Execute(ctx context.Context, client transport.Client) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.validateLocked(client); err != nil {
		return "", err
	}

	contents, err := t.buildLocked()
	if err != nil {
		return "", err
	}
	t.executed = true

	if t.cfg.OnConfirmed != nil {
		if err := t.listenLocked(ctx, client, contents); err != nil {
			t.report(err)
			return "", err
		}
	}

	txID, err := t.cfg.Submit(ctx, client, t.cfg.TopicID, contents)
	if err != nil {
		if t.listener != nil {
			t.listener.Unsubscribe()
		}
		if t.cfg.Metrics != nil {
			t.cfg.Metrics.IncTransactions("failed")
		}
		err = fmt.Errorf("submit message to topic %s: %w", t.cfg.TopicID, err)
		t.report(err)
		return "", err
	}
	if t.cfg.Metrics != nil {
		t.cfg.Metrics.IncTransactions("submitted")
	}
	t.cfg.Logger.Debug("message submitted",
		"topic_id", t.cfg.TopicID,
		"transaction_id", txID,
	)
	return txID, nil
}

func (t *Transaction[T]) buildLocked() ([]byte, error) {
	env := t.cfg.Envelope
	if env.IsSigned() {
		return env.Bytes()
	}
	if t.cfg.Encrypter != nil && env.Mode() == ModePlain {
		if err := env.Encrypt(t.cfg.Encrypter); err != nil {
			return nil, err
		}
	}
	return env.Sign(t.cfg.Signer)
}

func (t *Transaction[T]) listenLocked(ctx context.Context, client transport.Subscriber, contents []byte) error {
	published := func(msg transport.Message) bool {
		return bytes.Equal(msg.Contents, contents)
	}
	var listener *Listener[T]
	listener = NewListener(ListenerConfig[T]{
		TopicID:   t.cfg.TopicID,
		StartTime: t.cfg.Now().Add(-t.cfg.ConfirmationLead),
		Filters:   []Filter{published},
		Decrypter: t.cfg.Decrypter,
		Validate:  t.cfg.Validate,
		OnError:   t.cfg.OnError,
		OnInvalid: func(msg transport.Message, reason string) {
			if !published(msg) {
				return
			}
			listener.Unsubscribe()
			t.report(fmt.Errorf("%w: %s", ErrInvalidMessage, reason))
		},
		Logger:  t.cfg.Logger,
		Metrics: t.cfg.Metrics,
	})
	t.listener = listener

	return listener.Subscribe(ctx, client, func(env *Envelope[T]) {
		listener.Unsubscribe()
		t.cfg.OnConfirmed(env)
	})
}

func (t *Transaction[T]) report(err error) {
	if t.cfg.OnError != nil {
		t.cfg.OnError(err)
		return
	}
	t.cfg.Logger.Error("transaction failed",
		"topic_id", t.cfg.TopicID,
		"error", err,
	)
}
