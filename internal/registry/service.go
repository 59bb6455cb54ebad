// Package registry is the application facade over the DID and credential
// status topics: it publishes lifecycle changes, resolves current states with
// a snapshot cache in front, verifies credentials and keeps an audit trail.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ledgerid/internal/audit"
	"ledgerid/internal/message"
	"ledgerid/internal/registry/cache"
	"ledgerid/internal/transport"
	"ledgerid/internal/vc"
)

const tracerName = "ledgerid/registry"

// DefaultConfirmationTimeout bounds how long a publish waits for its echo.
const DefaultConfirmationTimeout = 30 * time.Second

// Config names where the registry lives on the log.
type Config struct {
	Network  string
	DIDTopic string
	VCTopic  string
}

// Service publishes and resolves DIDs and credential statuses.
type Service struct {
	client  transport.Client
	cfg     Config
	logger  *slog.Logger
	tracer  trace.Tracer
	cache   cache.Cache
	auditor *audit.Publisher

	issuerKeys     vc.KeyProvider
	encrypter      message.Crypter
	decrypter      message.Crypter
	messageOpts    []message.Option
	confirmTimeout time.Duration
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithCache puts a snapshot cache in front of resolution.
func WithCache(c cache.Cache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

// WithAuditor records every publish and resolve.
func WithAuditor(p *audit.Publisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

// WithIssuerKeys sets the keys trusted to change credential statuses.
func WithIssuerKeys(keys vc.KeyProvider) Option {
	return func(s *Service) {
		s.issuerKeys = keys
	}
}

// WithCrypter encrypts published payloads and decrypts resolved ones.
func WithCrypter(encrypter, decrypter message.Crypter) Option {
	return func(s *Service) {
		s.encrypter = encrypter
		s.decrypter = decrypter
	}
}

// WithMessageOptions passes options through to every listener, resolver and
// transaction the service creates.
func WithMessageOptions(opts ...message.Option) Option {
	return func(s *Service) {
		s.messageOpts = append(s.messageOpts, opts...)
	}
}

func WithConfirmationTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.confirmTimeout = d
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// New creates the service. Without WithIssuerKeys every status message is
// rejected, so credential operations need it.
func New(client transport.Client, cfg Config, opts ...Option) (*Service, error) {
	var violations []error
	if client == nil {
		violations = append(violations, errors.New("transport client is required"))
	}
	if cfg.Network == "" {
		violations = append(violations, errors.New("network is required"))
	}
	if cfg.DIDTopic == "" {
		violations = append(violations, errors.New("did topic is required"))
	}
	if cfg.VCTopic == "" {
		violations = append(violations, errors.New("vc topic is required"))
	}
	if len(violations) > 0 {
		return nil, fmt.Errorf("%w: %w", message.ErrInvalidConfig, errors.Join(violations...))
	}

	s := &Service{
		client:         client,
		cfg:            cfg,
		logger:         slog.Default(),
		tracer:         otel.Tracer(tracerName),
		confirmTimeout: DefaultConfirmationTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// options returns the per-call message options: the shared ones followed by
// extra.
func (s *Service) options(extra ...message.Option) []message.Option {
	opts := make([]message.Option, 0, len(s.messageOpts)+len(extra)+2)
	opts = append(opts, message.WithLogger(s.logger))
	if s.encrypter != nil || s.decrypter != nil {
		opts = append(opts, message.WithCrypter(s.encrypter, s.decrypter))
	}
	opts = append(opts, s.messageOpts...)
	return append(opts, extra...)
}

// emit records a mutating action. A persist failure fails the operation.
func (s *Service) emit(ctx context.Context, event audit.Event) error {
	if s.auditor == nil {
		return nil
	}
	return s.auditor.Emit(ctx, event)
}

// track records a read without blocking the caller.
func (s *Service) track(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	s.auditor.Track(ctx, event)
}

func (s *Service) cacheGet(ctx context.Context, ns cache.Namespace, key string) *cache.Snapshot {
	if s.cache == nil {
		return nil
	}
	snap, err := s.cache.Get(ctx, ns, key)
	if err != nil {
		return nil
	}
	return snap
}

func (s *Service) cacheSet(ctx context.Context, ns cache.Namespace, snap *cache.Snapshot) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, ns, snap); err != nil {
		s.logger.WarnContext(ctx, "failed to cache resolution",
			"namespace", ns,
			"key", snap.Key,
			"error", err,
		)
	}
}

func (s *Service) cacheInvalidate(ctx context.Context, ns cache.Namespace, key string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, ns, key); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate cached resolution",
			"namespace", ns,
			"key", key,
			"error", err,
		)
	}
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
