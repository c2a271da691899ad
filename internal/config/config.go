// Package config provides configuration structures and validation for the
// wallet core. It handles environment-based configuration for the API gateway,
// the settlement processor, and every backing service they share.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration with settings for all
// components. Each field represents a major subsystem's configuration and is
// validated during application startup.
type Config struct {
	Application    ApplicationConfig
	Logging        LoggingConfig
	Server         ServerConfig
	Kafka          KafkaConfig
	Postgres       PostgresConfig
	MongoDB        MongoDBConfig
	Redis          RedisConfig
	Outbox         OutboxConfig
	WorkerPool     WorkerPoolConfig
	Reconciliation ReconciliationConfig
	Providers      ProvidersConfig
	FX             FXConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Brokers            string
	SettlementTopic    string // settlement tasks: intents and provider events
	NotificationsTopic string // terminal-state domain events for the dispatcher
	NumPartitions      int
	ReplicationFactor  int
	ConsumerGroup      string
	MinBytes           int
	MaxBytes           int
	MaxWait            time.Duration
	StartOffset        int64
	DLQTopic           string
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MigrationsPath  string
}

// MongoDBConfig contains MongoDB configuration for the transaction journal and
// provider event audit store
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// RedisConfig contains Redis configuration for the idempotency guard
type RedisConfig struct {
	Addr string
	DB   int
	// KeyTTL must cover at least the longest documented provider webhook
	// retry window.
	KeyTTL time.Duration
}

// OutboxConfig contains outbox pattern configuration
type OutboxConfig struct {
	PollingInterval  time.Duration
	BatchSize        int
	MaxRetryAttempts int
}

// WorkerPoolConfig contains settlement worker pool configuration
type WorkerPoolConfig struct {
	Size int
}

// ReconciliationConfig contains the background sweep configuration
type ReconciliationConfig struct {
	SweepInterval  time.Duration
	PendingTimeout time.Duration // age before a PROVIDER_PENDING transaction is swept
	BatchSize      int
}

// ProviderConfig contains one provider's endpoint and credentials
type ProviderConfig struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	MaxAttempts    int
	BackoffBase    time.Duration
}

// ProvidersConfig maps configured provider adapters
type ProvidersConfig struct {
	MobileMoney ProviderConfig
	CardIssuer  ProviderConfig
}

// FXConfig contains currency conversion configuration
type FXConfig struct {
	// MarkupBps is applied to the raw market rate before fees, in basis points.
	MarkupBps int64
	// FeePolicy selects the conversion fee policy: flat, percentage or tiered.
	FeePolicy string
	// FeeFlat is the flat fee in target-currency minor units.
	FeeFlat int64
	// FeeBps is the percentage fee in basis points of the converted amount.
	FeeBps int64
	// UsdGmdRate seeds the static rate source: GMD minor units per USD minor
	// unit, as a decimal string.
	UsdGmdRate string
}

// validate performs comprehensive validation of all configuration values,
// ensuring they meet minimum requirements and logical constraints
func (c *Config) validate() error {
	var validationErrors []string

	// Validate Server config
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Validate Kafka config
	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.SettlementTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_SETTLEMENT_TOPIC is required")
	}
	if c.Kafka.NotificationsTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_NOTIFICATIONS_TOPIC is required")
	}
	if c.Kafka.ConsumerGroup == "" {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_GROUP is required")
	}
	if c.Kafka.MinBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MIN_BYTES must be greater than 0")
	}
	if c.Kafka.MaxBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_BYTES must be greater than 0")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_WAIT must be greater than 0")
	}
	if c.Kafka.DLQTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_DLQ_TOPIC is required")
	}

	// Validate PostgreSQL config
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MinPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MIN_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MaxConnIdleTime <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate Redis config
	if c.Redis.Addr == "" {
		validationErrors = append(validationErrors, "REDIS_ADDR is required")
	}
	if c.Redis.KeyTTL <= 0 {
		validationErrors = append(validationErrors, "REDIS_KEY_TTL must be greater than 0")
	}

	// Validate Outbox config
	if c.Outbox.PollingInterval <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_POLLING_INTERVAL must be greater than 0")
	}
	if c.Outbox.BatchSize <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_BATCH_SIZE must be greater than 0")
	}
	if c.Outbox.MaxRetryAttempts <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_MAX_RETRY_ATTEMPTS must be greater than 0")
	}

	// Validate WorkerPool config
	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	// Validate Reconciliation config
	if c.Reconciliation.SweepInterval <= 0 {
		validationErrors = append(validationErrors, "RECON_SWEEP_INTERVAL must be greater than 0")
	}
	if c.Reconciliation.PendingTimeout <= 0 {
		validationErrors = append(validationErrors, "RECON_PENDING_TIMEOUT must be greater than 0")
	}
	if c.Reconciliation.BatchSize <= 0 {
		validationErrors = append(validationErrors, "RECON_BATCH_SIZE must be greater than 0")
	}

	// Validate Provider configs
	for name, p := range map[string]ProviderConfig{
		"MOBILE_MONEY": c.Providers.MobileMoney,
		"CARD_ISSUER":  c.Providers.CardIssuer,
	} {
		if p.BaseURL == "" {
			validationErrors = append(validationErrors, "PROVIDER_"+name+"_BASE_URL is required")
		}
		if p.RequestTimeout <= 0 {
			validationErrors = append(validationErrors, "PROVIDER_"+name+"_REQUEST_TIMEOUT must be greater than 0")
		}
		if p.MaxAttempts <= 0 {
			validationErrors = append(validationErrors, "PROVIDER_"+name+"_MAX_ATTEMPTS must be greater than 0")
		}
	}

	// Validate FX config
	if c.FX.MarkupBps < 0 {
		validationErrors = append(validationErrors, "FX_MARKUP_BPS must not be negative")
	}
	switch c.FX.FeePolicy {
	case "flat", "percentage", "tiered":
	default:
		validationErrors = append(validationErrors, "FX_FEE_POLICY must be one of flat, percentage, tiered")
	}
	if c.FX.UsdGmdRate == "" {
		validationErrors = append(validationErrors, "FX_USD_GMD_RATE is required")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
