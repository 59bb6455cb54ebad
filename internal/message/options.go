package message

import (
	"log/slog"
	"time"

	"ledgerid/internal/transport"
)

// Settings collects the optional knobs shared by the typed listener, resolver
// and transaction constructors of each payload package.
type Settings struct {
	Logger  *slog.Logger
	Metrics *Metrics

	Encrypter Crypter
	Decrypter Crypter

	OnError      func(err error)
	OnInvalid    func(msg transport.Message, reason string)
	IgnoreErrors bool

	StartTime time.Time
	EndTime   time.Time
	Limit     uint64
	Filters   []Filter

	IdleTimeout time.Duration

	Submit           SubmitFunc
	ConfirmationLead time.Duration
	Now              func() time.Time
}

// Option configures Settings.
type Option func(*Settings)

// Apply folds opts over defaults.
func Apply(opts []Option) Settings {
	s := Settings{Submit: Publish}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Settings) {
		s.Logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(s *Settings) {
		s.Metrics = m
	}
}

// WithEncrypter sets the field cipher used before signing.
func WithEncrypter(c Crypter) Option {
	return func(s *Settings) {
		s.Encrypter = c
	}
}

// WithDecrypter sets the field cipher used to open encrypted envelopes.
func WithDecrypter(c Crypter) Option {
	return func(s *Settings) {
		s.Decrypter = c
	}
}

// WithCrypter sets both field ciphers.
func WithCrypter(encrypter, decrypter Crypter) Option {
	return func(s *Settings) {
		s.Encrypter = encrypter
		s.Decrypter = decrypter
	}
}

// WithErrorHandler routes transport and transaction errors to fn.
func WithErrorHandler(fn func(err error)) Option {
	return func(s *Settings) {
		s.OnError = fn
	}
}

// WithInvalidMessageHandler receives rejected messages and their reasons.
func WithInvalidMessageHandler(fn func(msg transport.Message, reason string)) Option {
	return func(s *Settings) {
		s.OnInvalid = fn
	}
}

// WithIgnoreErrors drops transport errors that have no handler.
func WithIgnoreErrors() Option {
	return func(s *Settings) {
		s.IgnoreErrors = true
	}
}

// WithStartTime sets where a listener starts streaming.
func WithStartTime(t time.Time) Option {
	return func(s *Settings) {
		s.StartTime = t
	}
}

// WithEndTime bounds a listener's stream.
func WithEndTime(t time.Time) Option {
	return func(s *Settings) {
		s.EndTime = t
	}
}

// WithLimit caps the number of messages a listener requests.
func WithLimit(n uint64) Option {
	return func(s *Settings) {
		s.Limit = n
	}
}

// WithFilters appends pre-decode filters.
func WithFilters(filters ...Filter) Option {
	return func(s *Settings) {
		s.Filters = append(s.Filters, filters...)
	}
}

// WithIdleTimeout sets the resolver's idle completion window.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Settings) {
		s.IdleTimeout = d
	}
}

// WithSubmit replaces the transaction's submission function.
func WithSubmit(fn SubmitFunc) Option {
	return func(s *Settings) {
		s.Submit = fn
	}
}

// WithConfirmationLead sets how far before submission confirmation starts.
func WithConfirmationLead(d time.Duration) Option {
	return func(s *Settings) {
		s.ConfirmationLead = d
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Settings) {
		s.Now = now
	}
}
