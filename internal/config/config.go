// Package config defines the environment-driven configuration of the
// payment API and the stage workers.
package config

import (
	"fmt"
	"time"

	"github.com/OscarCaraballo97/inferno-payment/internal/domain"
	"github.com/OscarCaraballo97/inferno-payment/pkg/config"
	"github.com/OscarCaraballo97/inferno-payment/pkg/database"
	"github.com/OscarCaraballo97/inferno-payment/pkg/tracing"
)

// Status store drivers.
const (
	StoreMemory   = "memory"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

// Funds check modes.
const (
	FundsModeRandom       = "random"
	FundsModeAlwaysPass   = "always-pass"
	FundsModeAlwaysReject = "always-reject"
)

// Common is configuration shared by the API and the workers.
type Common struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"inferno-payment"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	StoreDriver string `env:"STATUS_STORE_DRIVER" envDefault:"memory"`

	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"inferno"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"inferno_secret"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"payments"`
	PostgresSSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`

	TracingEnabled    bool    `env:"TRACING_ENABLED" envDefault:"false"`
	TracingEndpoint   string  `env:"OTLP_ENDPOINT" envDefault:"localhost:4318"`
	TracingSampleRate float64 `env:"TRACING_SAMPLE_RATE" envDefault:"1.0"`
}

// API is the configuration of the payment API process.
type API struct {
	Common

	Port            int           `env:"PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Base URL of the users service for card validation; empty skips it.
	UserServiceAPI string `env:"USER_SERVICE_API" envDefault:""`
}

// Worker is the configuration of a stage worker process. Each worker
// is bound to exactly one stage queue.
type Worker struct {
	Common

	Stage         string        `env:"WORKER_STAGE,required"`
	ConsumerGroup string        `env:"CONSUMER_GROUP" envDefault:""`
	StageDelay    time.Duration `env:"STAGE_DELAY" envDefault:"5s"`

	FundsMode         string  `env:"FUNDS_CHECK_MODE" envDefault:"random"`
	FundsFailureRatio float64 `env:"FUNDS_FAILURE_RATIO" envDefault:"0.2"`

	// Base URL of the core-banking service; empty switches settlement
	// into simulation mode.
	CoreBankingBase string `env:"CORE_BANKING_BASE" envDefault:""`

	// TTL for processed-message idempotency marks.
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	// HealthPort defaults to 8080 plus the stage order (8081..8083), so
	// co-located workers for different stages do not collide.
	HealthPort int `env:"HEALTH_PORT"`
}

// LoadAPI reads the API configuration from the environment.
func LoadAPI() (*API, error) {
	var cfg API
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadWorker reads the worker configuration from the environment.
func LoadWorker() (*Worker, error) {
	var cfg Worker
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if !domain.IsValidStep(cfg.Stage) {
		return nil, fmt.Errorf("invalid WORKER_STAGE %q", cfg.Stage)
	}
	switch cfg.FundsMode {
	case FundsModeRandom, FundsModeAlwaysPass, FundsModeAlwaysReject:
	default:
		return nil, fmt.Errorf("invalid FUNDS_CHECK_MODE %q", cfg.FundsMode)
	}
	if cfg.FundsFailureRatio < 0 || cfg.FundsFailureRatio > 1 {
		return nil, fmt.Errorf("FUNDS_FAILURE_RATIO must be within [0,1], got %v", cfg.FundsFailureRatio)
	}
	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = fmt.Sprintf("payment-worker-%s", cfg.Stage)
	}
	if cfg.HealthPort == 0 {
		cfg.HealthPort = 8080 + domain.Step(cfg.Stage).Order()
	}
	return &cfg, nil
}

func (c *Common) validate() error {
	switch c.StoreDriver {
	case StoreMemory, StoreRedis, StorePostgres:
		return nil
	default:
		return fmt.Errorf("invalid STATUS_STORE_DRIVER %q", c.StoreDriver)
	}
}

// Redis returns the Redis connection settings on top of the default pool
// sizing.
func (c *Common) Redis() database.RedisConfig {
	cfg := database.DefaultRedisConfig()
	cfg.Host = c.RedisHost
	cfg.Port = c.RedisPort
	cfg.Password = c.RedisPassword
	cfg.DB = c.RedisDB
	return cfg
}

// Postgres returns the PostgreSQL connection settings on top of the
// default pool sizing.
func (c *Common) Postgres() database.PostgresConfig {
	cfg := database.DefaultPostgresConfig()
	cfg.Host = c.PostgresHost
	cfg.Port = c.PostgresPort
	cfg.User = c.PostgresUser
	cfg.Password = c.PostgresPassword
	cfg.DBName = c.PostgresDB
	cfg.SSLMode = c.PostgresSSLMode
	return cfg
}

// Tracing returns the OpenTelemetry settings for the given service.
func (c *Common) Tracing(serviceName, version string) tracing.Config {
	return tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Environment:    c.Environment,
		OTLPEndpoint:   c.TracingEndpoint,
		SampleRate:     c.TracingSampleRate,
		Enabled:        c.TracingEnabled,
	}
}
