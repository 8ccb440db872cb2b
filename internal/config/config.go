package config

import "time"

// Config is the root configuration for a barsync process.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Provider ProviderConfig `yaml:"provider"`
	Store    StoreConfig    `yaml:"store"`
	Workers  WorkersConfig  `yaml:"workers"`
	Lock     LockConfig     `yaml:"lock"`
	Stream   StreamConfig   `yaml:"stream"`
	Export   ExportConfig   `yaml:"export"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// InstanceConfig identifies this process.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// ProviderConfig holds market data provider settings.
type ProviderConfig struct {
	Name              string        `yaml:"name"`
	RestURL           string        `yaml:"rest_url"`
	APIKey            string        `yaml:"api_key"`
	APIKeyFile        string        `yaml:"api_key_file"` // JSON {environment, access_token}
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
	PageSize          int           `yaml:"page_size"`  // Candles per pagination page
	RateLimit         float64       `yaml:"rate_limit"` // Requests per second, 0 = unlimited
	RateBurst         int           `yaml:"rate_burst"`
	IncludeIncomplete bool          `yaml:"include_incomplete"`
	Breaker           BreakerConfig `yaml:"breaker"`
}

// BreakerConfig holds circuit breaker settings for provider calls.
type BreakerConfig struct {
	MaxRequests         uint32        `yaml:"max_requests"`
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"timeout"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
}

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
)

// StoreConfig selects and configures the bar store.
type StoreConfig struct {
	Driver   string         `yaml:"driver"`
	Mongo    MongoConfig    `yaml:"mongo"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// MongoConfig holds a MongoDB connection. Each series is one collection.
type MongoConfig struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// PostgresConfig holds a PostgreSQL connection. Each series is one table
// inside Schema.
type PostgresConfig struct {
	DBConfig `yaml:",inline"`
	Schema   string `yaml:"schema"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WorkersConfig holds worker pool settings.
type WorkersConfig struct {
	Width          int           `yaml:"width"`
	DequeueTimeout time.Duration `yaml:"dequeue_timeout"`
	QueueCapacity  int           `yaml:"queue_capacity"` // 0 = unbounded
}

// Lock drivers.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// LockConfig holds per-series lock settings.
type LockConfig struct {
	Driver        string        `yaml:"driver"`
	Redis         RedisConfig   `yaml:"redis"`
	TTL           time.Duration `yaml:"ttl"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// RedisConfig holds a Redis connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Stream sinks.
const (
	SinkStdout = "stdout"
	SinkWS     = "ws"
	SinkNATS   = "nats"
)

// StreamConfig holds replay stream settings.
type StreamConfig struct {
	Mode        string `yaml:"mode"` // materialized | lazy
	Sink        string `yaml:"sink"`
	WSAddr      string `yaml:"ws_addr"`
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"` // Prefix, the series key is appended
}

// ExportConfig holds series export settings.
type ExportConfig struct {
	Dir    string `yaml:"dir"`
	Format string `yaml:"format"` // parquet | json
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LoggingConfig holds process logger settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug | info | warn | error
	Format     string `yaml:"format"` // text | json
	Output     string `yaml:"output"` // stdout | file | both
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}
