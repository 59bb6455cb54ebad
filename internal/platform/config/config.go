package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	pstrings "ledgerid/pkg/platform/strings"
)

// RegistryCacheTTL bounds how long a resolved snapshot may be served without
// replaying the topic.
var RegistryCacheTTL = 5 * time.Minute

// Config is the process configuration.
type Config struct {
	// Network is the DID network segment, e.g. "testnet".
	Network  string
	DIDTopic string
	VCTopic  string
	// EncryptionSecret enables field encryption when set.
	EncryptionSecret string

	Kafka    KafkaConfig
	Resolver ResolverConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Ops      OpsConfig
	Log      LogConfig
	CacheTTL time.Duration
}

// KafkaConfig configures the topic log.
type KafkaConfig struct {
	Brokers           []string
	TopicPrefix       string
	ReplicationFactor int16
}

// ResolverConfig configures resolution and confirmation timing.
type ResolverConfig struct {
	IdleTimeout      time.Duration
	ConfirmationLead time.Duration
}

// RedisConfig configures the snapshot cache. An empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig configures the audit store. An empty DSN keeps audit in memory.
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpsConfig configures the metrics and health listener.
type OpsConfig struct {
	Addr string
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string
	Format string
}

// Load preloads the first readable .env file among paths, without overriding
// variables already set, and then reads the environment.
func Load(paths ...string) (Config, error) {
	for _, path := range paths {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var p parser
	cfg := Config{
		Network:          p.str("LEDGERID_NETWORK", "testnet"),
		DIDTopic:         p.str("LEDGERID_DID_TOPIC", ""),
		VCTopic:          p.str("LEDGERID_VC_TOPIC", ""),
		EncryptionSecret: p.str("LEDGERID_ENCRYPTION_SECRET", ""),
		Kafka: KafkaConfig{
			Brokers:           p.list("LEDGERID_KAFKA_BROKERS", "localhost:9092"),
			TopicPrefix:       p.str("LEDGERID_KAFKA_TOPIC_PREFIX", "ledgerid."),
			ReplicationFactor: int16(p.integer("LEDGERID_KAFKA_REPLICATION", 1)),
		},
		Resolver: ResolverConfig{
			IdleTimeout:      p.duration("LEDGERID_IDLE_TIMEOUT", 30*time.Second),
			ConfirmationLead: p.duration("LEDGERID_CONFIRMATION_LEAD", 5*time.Second),
		},
		Redis: RedisConfig{
			URL:          p.str("REDIS_URL", ""),
			PoolSize:     p.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			DSN:             p.str("DATABASE_URL", ""),
			MaxOpenConns:    p.integer("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    p.integer("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: p.duration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Ops: OpsConfig{
			Addr: p.str("LEDGERID_OPS_ADDR", ":9090"),
		},
		Log: LogConfig{
			Level:  p.str("LOG_LEVEL", "info"),
			Format: p.str("LOG_FORMAT", "json"),
		},
		CacheTTL: p.duration("LEDGERID_CACHE_TTL", RegistryCacheTTL),
	}
	if err := errors.Join(p.errs...); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings every command needs.
func (c Config) Validate() error {
	var problems []error
	if c.Network == "" {
		problems = append(problems, errors.New("LEDGERID_NETWORK must not be empty"))
	}
	if len(c.Kafka.Brokers) == 0 {
		problems = append(problems, errors.New("LEDGERID_KAFKA_BROKERS must list at least one broker"))
	}
	if c.Kafka.ReplicationFactor < 1 {
		problems = append(problems, errors.New("LEDGERID_KAFKA_REPLICATION must be positive"))
	}
	if c.Resolver.IdleTimeout <= 0 {
		problems = append(problems, errors.New("LEDGERID_IDLE_TIMEOUT must be positive"))
	}
	if c.CacheTTL < 0 {
		problems = append(problems, errors.New("LEDGERID_CACHE_TTL must not be negative"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		problems = append(problems, fmt.Errorf("LOG_FORMAT %q is not json or text", c.Log.Format))
	}
	return errors.Join(problems...)
}

// parser collects every malformed variable instead of stopping at the first.
type parser struct {
	errs []error
}

func (p *parser) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (p *parser) list(key, def string) []string {
	return pstrings.SplitList(p.str(key, def))
}

func (p *parser) integer(key string, def int) int {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	raw := p.str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
