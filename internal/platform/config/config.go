// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"namereg/pkg/domain"
	"namereg/pkg/platform/strings"
)

// Config is the full process configuration.
type Config struct {
	Server   ServerConfig
	Registry RegistryConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Payout   PayoutConfig
}

// ServerConfig captures HTTP server level configuration.
type ServerConfig struct {
	Addr            string        `env:"NAMEREG_ADDR" envDefault:":8080"`
	LogLevel        slog.Level    `env:"NAMEREG_LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"NAMEREG_LOG_FORMAT" envDefault:"json"`
	JWTSigningKey   string        `env:"NAMEREG_JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer       string        `env:"NAMEREG_JWT_ISSUER" envDefault:"namereg"`
	JWTAudience     string        `env:"NAMEREG_JWT_AUDIENCE" envDefault:"namereg-api"`
	ShutdownTimeout time.Duration `env:"NAMEREG_SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// RegistryConfig holds the registry's own settings. Admin is only used the
// first time a database is initialized.
type RegistryConfig struct {
	Admin     domain.Identity `env:"NAMEREG_ADMIN"`
	TxTimeout time.Duration   `env:"NAMEREG_TX_TIMEOUT" envDefault:"5s"`
}

// DatabaseConfig selects the store. An empty URL runs the in-memory store.
type DatabaseConfig struct {
	URL             string        `env:"NAMEREG_DATABASE_URL"`
	MaxConns        int32         `env:"NAMEREG_DATABASE_MAX_CONNS" envDefault:"10"`
	MinConns        int32         `env:"NAMEREG_DATABASE_MIN_CONNS" envDefault:"1"`
	MaxConnLifetime time.Duration `env:"NAMEREG_DATABASE_MAX_CONN_LIFETIME" envDefault:"30m"`
	AutoMigrate     bool          `env:"NAMEREG_DATABASE_AUTO_MIGRATE" envDefault:"true"`
}

// RedisConfig configures the query cache. An empty URL disables it.
type RedisConfig struct {
	URL          string        `env:"NAMEREG_REDIS_URL"`
	CacheTTL     time.Duration `env:"NAMEREG_REDIS_CACHE_TTL" envDefault:"30s"`
	PoolSize     int           `env:"NAMEREG_REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"NAMEREG_REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"NAMEREG_REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"NAMEREG_REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"NAMEREG_REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// KafkaConfig configures the event relay. No brokers disables it.
type KafkaConfig struct {
	Brokers           []string      `env:"NAMEREG_KAFKA_BROKERS" envSeparator:","`
	Topic             string        `env:"NAMEREG_KAFKA_TOPIC" envDefault:"namereg.events"`
	ClientID          string        `env:"NAMEREG_KAFKA_CLIENT_ID" envDefault:"namereg"`
	Partitions        int32         `env:"NAMEREG_KAFKA_PARTITIONS" envDefault:"3"`
	ReplicationFactor int16         `env:"NAMEREG_KAFKA_REPLICATION_FACTOR" envDefault:"1"`
	PollInterval      time.Duration `env:"NAMEREG_OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	BatchSize         int           `env:"NAMEREG_OUTBOX_BATCH_SIZE" envDefault:"100"`
}

// PayoutConfig configures withdrawals. An empty endpoint keeps payouts in an
// in-process ledger.
type PayoutConfig struct {
	Endpoint         string        `env:"NAMEREG_PAYOUT_ENDPOINT"`
	Timeout          time.Duration `env:"NAMEREG_PAYOUT_TIMEOUT" envDefault:"3s"`
	FailureThreshold int           `env:"NAMEREG_PAYOUT_FAILURE_THRESHOLD" envDefault:"5"`
	SuccessThreshold int           `env:"NAMEREG_PAYOUT_SUCCESS_THRESHOLD" envDefault:"2"`
	Cooldown         time.Duration `env:"NAMEREG_PAYOUT_COOLDOWN" envDefault:"30s"`
}

// Load reads an optional .env file, then parses the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Kafka.Brokers = strings.DedupeAndTrim(cfg.Kafka.Brokers)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the process cannot start with.
func (c *Config) Validate() error {
	if c.Registry.Admin.IsZero() {
		return errors.New("NAMEREG_ADMIN must be set to a non-null identity")
	}
	if c.Registry.TxTimeout <= 0 {
		return errors.New("NAMEREG_TX_TIMEOUT must be positive")
	}
	switch c.Server.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("NAMEREG_LOG_FORMAT must be json or text, got %q", c.Server.LogFormat)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("NAMEREG_KAFKA_TOPIC is required when brokers are set")
	}
	return nil
}
