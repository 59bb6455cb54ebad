package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"ledgerid/internal/audit"
	"ledgerid/internal/message"
	"ledgerid/internal/platform/config"
	"ledgerid/internal/platform/crypto"
	"ledgerid/internal/platform/httpserver"
	"ledgerid/internal/platform/logger"
	"ledgerid/internal/platform/postgres"
	redisclient "ledgerid/internal/platform/redis"
	"ledgerid/internal/registry"
	"ledgerid/internal/registry/cache"
	"ledgerid/internal/transport"
	"ledgerid/internal/transport/kafka"
	"ledgerid/internal/vc"
)

// runtime holds the wired dependencies of one command invocation.
type runtime struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *message.Metrics
	client   transport.Client
	cipher   *crypto.FieldCipher
	auditor  *audit.Publisher
	service  *registry.Service
	checks   map[string]httpserver.HealthCheck
	closers  []func()
}

// loadConfig reads the environment and applies global flag overrides.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return config.Config{}, err
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newRuntime connects to Kafka and, when configured, Redis and Postgres.
func newRuntime(c *cli.Context, issuerKeys vc.KeyProvider) (*runtime, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	var missing []error
	if cfg.DIDTopic == "" {
		missing = append(missing, errors.New("LEDGERID_DID_TOPIC is required"))
	}
	if cfg.VCTopic == "" {
		missing = append(missing, errors.New("LEDGERID_VC_TOPIC is required"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, err
	}

	ctx := c.Context
	log := logger.NewWriter(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	rt := &runtime{cfg: cfg, logger: log, checks: map[string]httpserver.HealthCheck{}}

	kc, err := kafka.New(cfg.Kafka.Brokers,
		kafka.WithTopicPrefix(cfg.Kafka.TopicPrefix),
		kafka.WithReplicationFactor(cfg.Kafka.ReplicationFactor),
		kafka.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, kc.Close)
	rt.checks["kafka"] = kc.Ping
	for _, topic := range []string{cfg.DIDTopic, cfg.VCTopic} {
		if err := kc.EnsureTopic(ctx, topic); err != nil {
			rt.close()
			return nil, err
		}
	}
	rt.client = kc

	rc, err := redisclient.New(ctx, cfg.Redis, rt.logger)
	if err != nil {
		rt.close()
		return nil, err
	}
	var db *sql.DB
	if cfg.Postgres.DSN != "" {
		db, err = postgres.Open(ctx, cfg.Postgres.DSN,
			postgres.WithPool(cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns, cfg.Postgres.ConnMaxLifetime))
		if err == nil {
			err = postgres.Migrate(ctx, db)
		}
		if err != nil {
			rt.close()
			return nil, err
		}
	}

	if err := rt.assemble(rc, db, issuerKeys); err != nil {
		rt.close()
		return nil, err
	}
	return rt, nil
}

// assemble builds metrics, cache, audit and the registry service on top of
// rt.client. rc and db are optional.
func (rt *runtime) assemble(rc *redisclient.Client, db *sql.DB, issuerKeys vc.KeyProvider) error {
	rt.registry = prometheus.NewRegistry()
	rt.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rt.metrics = message.NewMetrics(rt.registry)

	var snapshots cache.Cache
	cacheMetrics := cache.NewMetrics(rt.registry)
	if rc != nil {
		snapshots = cache.NewRedisCache(rc.Client, rt.cfg.CacheTTL, cacheMetrics)
		rt.checks["redis"] = rc.Health
		rt.closers = append(rt.closers, func() { _ = rc.Close() })
	} else {
		snapshots = cache.NewInMemoryCache(rt.cfg.CacheTTL, cacheMetrics)
	}

	var store audit.Store = audit.NewInMemoryStore()
	if db != nil {
		store = audit.NewPostgresStore(db)
		rt.checks["postgres"] = db.PingContext
		rt.closers = append(rt.closers, func() { _ = db.Close() })
	}
	rt.auditor = audit.NewPublisher(store,
		audit.WithLogger(rt.logger),
		audit.WithMetrics(audit.NewMetrics(rt.registry)),
	)

	opts := []registry.Option{
		registry.WithLogger(rt.logger),
		registry.WithCache(snapshots),
		registry.WithAuditor(rt.auditor),
		registry.WithIssuerKeys(issuerKeys),
		registry.WithMessageOptions(rt.messageOptions()...),
	}
	if rt.cfg.EncryptionSecret != "" {
		cipher, err := crypto.NewFieldCipher(crypto.KeyFromSecret([]byte(rt.cfg.EncryptionSecret)))
		if err != nil {
			return err
		}
		rt.cipher = cipher
		opts = append(opts, registry.WithCrypter(cipher.Encrypt, cipher.Decrypt))
	}

	svc, err := registry.New(rt.client, registry.Config{
		Network:  rt.cfg.Network,
		DIDTopic: rt.cfg.DIDTopic,
		VCTopic:  rt.cfg.VCTopic,
	}, opts...)
	if err != nil {
		return err
	}
	rt.service = svc
	return nil
}

// messageOptions are the options for listeners created outside the service.
func (rt *runtime) messageOptions() []message.Option {
	opts := []message.Option{
		message.WithLogger(rt.logger),
		message.WithMetrics(rt.metrics),
		message.WithIdleTimeout(rt.cfg.Resolver.IdleTimeout),
		message.WithConfirmationLead(rt.cfg.Resolver.ConfirmationLead),
	}
	if rt.cipher != nil {
		opts = append(opts, message.WithCrypter(rt.cipher.Encrypt, rt.cipher.Decrypt))
	}
	return opts
}

// run executes fn next to the audit worker and, when serveOps is set, the
// ops listener. Everything stops once fn returns.
func (rt *runtime) run(ctx context.Context, serveOps bool, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_ = rt.auditor.Worker().Run(gctx)
		return nil
	})
	if serveOps {
		srv := httpserver.New(rt.cfg.Ops.Addr, httpserver.NewOpsRouter(rt.registry, rt.checks, rt.logger))
		g.Go(func() error {
			return httpserver.Run(gctx, srv, rt.logger)
		})
	}
	g.Go(func() error {
		defer cancel()
		return fn(gctx)
	})
	return g.Wait()
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
