package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultProviderName        = "oanda"
	DefaultRestURL             = "https://api-fxpractice.oanda.com/v1"
	DefaultProviderTimeout     = 30 * time.Second
	DefaultMaxRetries          = 3
	DefaultRetryBackoff        = 1 * time.Second
	DefaultPageSize            = 5000
	DefaultRateBurst           = 1
	DefaultBreakerMaxRequests  = 1
	DefaultBreakerInterval     = 1 * time.Minute
	DefaultBreakerTimeout      = 30 * time.Second
	DefaultBreakerFailures     = 5
	DefaultStoreDriver         = StoreMemory
	DefaultMongoURI            = "mongodb://localhost:27017"
	DefaultMongoDatabase       = "Oanda"
	DefaultMongoConnectTimeout = 10 * time.Second
	DefaultDBPort              = 5432
	DefaultDBSSLMode           = "prefer"
	DefaultMaxConns            = 10
	DefaultMinConns            = 2
	DefaultSchema              = "bars"
	DefaultWorkerWidth         = 5
	DefaultDequeueTimeout      = 1 * time.Second
	DefaultLockDriver          = LockLocal
	DefaultRedisAddr           = "localhost:6379"
	DefaultLockTTL             = 5 * time.Minute
	DefaultLockRetryInterval   = 100 * time.Millisecond
	DefaultStreamMode          = "materialized"
	DefaultStreamSink          = SinkStdout
	DefaultWSAddr              = ":8081"
	DefaultNATSURL             = "nats://127.0.0.1:4222"
	DefaultNATSSubject         = "bars"
	DefaultExportDir           = "."
	DefaultExportFormat        = "parquet"
	DefaultMetricsPort         = 9090
	DefaultMetricsPath         = "/metrics"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
	DefaultLogOutput           = "stdout"
	DefaultLogFile             = "barsync.log"
	DefaultLogMaxSizeMB        = 100
	DefaultLogMaxBackups       = 5
	DefaultLogMaxAgeDays       = 30
)

// ApplyDefaults fills every unset optional field.
func (c *Config) ApplyDefaults() {
	// Provider defaults
	if c.Provider.Name == "" {
		c.Provider.Name = DefaultProviderName
	}
	if c.Provider.RestURL == "" {
		c.Provider.RestURL = DefaultRestURL
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = DefaultProviderTimeout
	}
	if c.Provider.MaxRetries == 0 {
		c.Provider.MaxRetries = DefaultMaxRetries
	}
	if c.Provider.RetryBackoff == 0 {
		c.Provider.RetryBackoff = DefaultRetryBackoff
	}
	if c.Provider.PageSize == 0 {
		c.Provider.PageSize = DefaultPageSize
	}
	if c.Provider.RateBurst == 0 {
		c.Provider.RateBurst = DefaultRateBurst
	}
	if c.Provider.Breaker.MaxRequests == 0 {
		c.Provider.Breaker.MaxRequests = DefaultBreakerMaxRequests
	}
	if c.Provider.Breaker.Interval == 0 {
		c.Provider.Breaker.Interval = DefaultBreakerInterval
	}
	if c.Provider.Breaker.Timeout == 0 {
		c.Provider.Breaker.Timeout = DefaultBreakerTimeout
	}
	if c.Provider.Breaker.ConsecutiveFailures == 0 {
		c.Provider.Breaker.ConsecutiveFailures = DefaultBreakerFailures
	}

	// Store defaults
	if c.Store.Driver == "" {
		c.Store.Driver = DefaultStoreDriver
	}
	if c.Store.Mongo.URI == "" {
		c.Store.Mongo.URI = DefaultMongoURI
	}
	if c.Store.Mongo.Database == "" {
		c.Store.Mongo.Database = DefaultMongoDatabase
	}
	if c.Store.Mongo.ConnectTimeout == 0 {
		c.Store.Mongo.ConnectTimeout = DefaultMongoConnectTimeout
	}
	applyDBDefaults(&c.Store.Postgres.DBConfig)
	if c.Store.Postgres.Schema == "" {
		c.Store.Postgres.Schema = DefaultSchema
	}

	// Workers defaults
	if c.Workers.Width == 0 {
		c.Workers.Width = DefaultWorkerWidth
	}
	if c.Workers.DequeueTimeout == 0 {
		c.Workers.DequeueTimeout = DefaultDequeueTimeout
	}

	// Lock defaults
	if c.Lock.Driver == "" {
		c.Lock.Driver = DefaultLockDriver
	}
	if c.Lock.Redis.Addr == "" {
		c.Lock.Redis.Addr = DefaultRedisAddr
	}
	if c.Lock.TTL == 0 {
		c.Lock.TTL = DefaultLockTTL
	}
	if c.Lock.RetryInterval == 0 {
		c.Lock.RetryInterval = DefaultLockRetryInterval
	}

	// Stream defaults
	if c.Stream.Mode == "" {
		c.Stream.Mode = DefaultStreamMode
	}
	if c.Stream.Sink == "" {
		c.Stream.Sink = DefaultStreamSink
	}
	if c.Stream.WSAddr == "" {
		c.Stream.WSAddr = DefaultWSAddr
	}
	if c.Stream.NATSURL == "" {
		c.Stream.NATSURL = DefaultNATSURL
	}
	if c.Stream.NATSSubject == "" {
		c.Stream.NATSSubject = DefaultNATSSubject
	}

	// Export defaults
	if c.Export.Dir == "" {
		c.Export.Dir = DefaultExportDir
	}
	if c.Export.Format == "" {
		c.Export.Format = DefaultExportFormat
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = DefaultLogOutput
	}
	if c.Logging.File == "" {
		c.Logging.File = DefaultLogFile
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = DefaultLogMaxBackups
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = DefaultLogMaxAgeDays
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
