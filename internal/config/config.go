// Package config provides configuration structures and validation for the payment pipeline.
// It covers the HTTP gateway, the queue processors, the ledger stores, the rate limiter
// and the credentials of every financial service provider integration.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds the complete application configuration with settings for all components.
type Config struct {
	Application    ApplicationConfig
	Logging        LoggingConfig
	Server         ServerConfig
	Metrics        MetricsConfig
	Kafka          KafkaConfig
	Postgres       PostgresConfig
	MongoDB        MongoDBConfig
	Redis          RedisConfig
	Queue          QueueConfig
	Processor      ProcessorConfig
	Reconciliation ReconciliationConfig
	Nedbank        NedbankConfig
	Safaricom      SafaricomConfig
	Callback       CallbackConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// IsProduction reports whether destructive admin operations must be refused.
func (a ApplicationConfig) IsProduction() bool {
	return strings.EqualFold(a.Env, "production")
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// MetricsConfig contains the standalone metrics listener used by the processor
type MetricsConfig struct {
	Port int
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Brokers             string
	NumPartitions       int // Number of partitions for queue topics
	ReplicationFactor   int // Replication factor for topics
	ConsumerGroup       string
	MinBytes            int
	MaxBytes            int
	MaxWait             time.Duration
	DLQTopic            string // Topic for Dead Letter Queue
	NotificationTopic   string // Topic consumed by the messaging service
	HandlerMaxAttempts  int    // Handler attempts before a message goes to the DLQ
	HandlerRetryBackoff time.Duration
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// RedisConfig contains the Redis settings shared by the rate limiter and the pair lock
type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	KeyPrefix       string        // Every key written by this service starts with "<prefix>:"
	PairLockEnabled bool          // Serialize jobs of one beneficiary and payment cycle
	PairLockTTL     time.Duration // Upper bound for one job attempt
}

// QueueConfig contains job routing and per-queue throughput limits
type QueueConfig struct {
	BulkThreshold      int            // Batches below this size go to the small-bulk queue
	DefaultConcurrency int            // Concurrency for queues without an explicit entry
	Concurrency        map[string]int // Per-queue concurrency, parsed from "queue=n,queue=n"
	RateLimitPerSecond int            // Jobs started per queue per second, 0 disables the limiter
}

// ConcurrencyFor returns the configured maximum concurrency of a queue
func (q QueueConfig) ConcurrencyFor(queue string) int {
	if n, ok := q.Concurrency[queue]; ok && n > 0 {
		return n
	}
	return q.DefaultConcurrency
}

// ProcessorConfig contains the job processor limits
type ProcessorConfig struct {
	MaxFailedAttempts   int           // Failed attempts per beneficiary and payment cycle before the breaker opens
	RetryWindowPayments int           // How many recent payment cycles may still be retried
	ProviderTimeout     time.Duration // Bound on one provider call
}

// ReconciliationConfig contains reconciliation sweep configuration
type ReconciliationConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
	MinAge    time.Duration // Orders younger than this may still have a provider call in flight
}

// NedbankConfig contains the Nedbank voucher API credentials
type NedbankConfig struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	DebtorAccount string
	JWSSignature  string
}

// SafaricomConfig contains the Safaricom B2C API credentials
type SafaricomConfig struct {
	BaseURL            string
	ConsumerKey        string
	ConsumerSecret     string
	InitiatorName      string
	SecurityCredential string
	PartyA             string
	ResultURL          string
	TimeoutURL         string
}

// CallbackConfig contains the shared secrets used to authenticate provider webhooks
type CallbackConfig struct {
	Secrets   map[string]string // provider name -> HMAC secret
	Retention time.Duration     // how long raw callbacks stay in the audit log, 0 keeps them
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
	if c.Metrics.Port <= 0 {
		validationErrors = append(validationErrors, "METRICS_PORT must be greater than 0")
	}

	// Validate Kafka config
	if c.Kafka.Brokers == "" {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
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
	if c.Kafka.NotificationTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_NOTIFICATION_TOPIC is required")
	}
	if c.Kafka.HandlerMaxAttempts <= 0 {
		validationErrors = append(validationErrors, "KAFKA_HANDLER_MAX_ATTEMPTS must be greater than 0")
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

	// Validate Redis config
	if c.Redis.Addr == "" {
		validationErrors = append(validationErrors, "REDIS_ADDR is required")
	}
	if c.Redis.KeyPrefix == "" {
		validationErrors = append(validationErrors, "REDIS_KEY_PREFIX is required")
	}
	if c.Redis.PairLockEnabled && c.Redis.PairLockTTL <= 0 {
		validationErrors = append(validationErrors, "REDIS_PAIR_LOCK_TTL must be greater than 0 when the pair lock is enabled")
	}

	// Validate Queue config
	if c.Queue.BulkThreshold <= 0 {
		validationErrors = append(validationErrors, "QUEUE_BULK_THRESHOLD must be greater than 0")
	}
	if c.Queue.DefaultConcurrency <= 0 {
		validationErrors = append(validationErrors, "QUEUE_DEFAULT_CONCURRENCY must be greater than 0")
	}
	if c.Queue.RateLimitPerSecond < 0 {
		validationErrors = append(validationErrors, "QUEUE_RATE_LIMIT_PER_SECOND must not be negative")
	}

	// Validate Processor config
	if c.Processor.MaxFailedAttempts <= 0 {
		validationErrors = append(validationErrors, "PROCESSOR_MAX_FAILED_ATTEMPTS must be greater than 0")
	}
	if c.Processor.RetryWindowPayments <= 0 {
		validationErrors = append(validationErrors, "PROCESSOR_RETRY_WINDOW_PAYMENTS must be greater than 0")
	}
	if c.Processor.ProviderTimeout <= 0 {
		validationErrors = append(validationErrors, "PROCESSOR_PROVIDER_TIMEOUT must be greater than 0")
	}

	// Validate Reconciliation config
	if c.Reconciliation.Interval <= 0 {
		validationErrors = append(validationErrors, "RECONCILIATION_INTERVAL must be greater than 0")
	}
	if c.Reconciliation.BatchSize <= 0 {
		validationErrors = append(validationErrors, "RECONCILIATION_BATCH_SIZE must be greater than 0")
	}
	if c.Reconciliation.MinAge < c.Processor.ProviderTimeout {
		validationErrors = append(validationErrors, "RECONCILIATION_MIN_AGE must not be shorter than PROCESSOR_PROVIDER_TIMEOUT")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}

// parseQueueConcurrency parses "queue=n,queue=n" into a map
func parseQueueConcurrency(raw string) (map[string]int, error) {
	result := make(map[string]int)
	if strings.TrimSpace(raw) == "" {
		return result, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found || name == "" {
			return nil, fmt.Errorf("QUEUE_CONCURRENCY entry %q must look like queue=n", pair)
		}
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("QUEUE_CONCURRENCY entry %q must have a positive integer", pair)
		}
		result[name] = n
	}
	return result, nil
}
