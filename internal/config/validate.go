package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Provider.RestURL == "" {
		return errors.New("provider.rest_url is required")
	}
	if c.Provider.PageSize < 1 {
		return errors.New("provider.page_size must be >= 1")
	}
	if c.Provider.MaxRetries < 0 {
		return errors.New("provider.max_retries must be >= 0")
	}
	if c.Provider.RateLimit < 0 {
		return errors.New("provider.rate_limit must be >= 0")
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StoreMongo:
		if c.Store.Mongo.URI == "" {
			return errors.New("store.mongo.uri is required")
		}
		if c.Store.Mongo.Database == "" {
			return errors.New("store.mongo.database is required")
		}
	case StorePostgres:
		if err := c.Store.Postgres.validate("store.postgres"); err != nil {
			return err
		}
		if c.Store.Postgres.Schema == "" {
			return errors.New("store.postgres.schema is required")
		}
	default:
		return fmt.Errorf("store.driver must be one of memory, mongo, postgres, got %q", c.Store.Driver)
	}

	if c.Workers.Width < 1 {
		return errors.New("workers.width must be >= 1")
	}
	if c.Workers.QueueCapacity < 0 {
		return errors.New("workers.queue_capacity must be >= 0")
	}

	switch c.Lock.Driver {
	case LockLocal:
	case LockRedis:
		if c.Lock.Redis.Addr == "" {
			return errors.New("lock.redis.addr is required")
		}
	default:
		return fmt.Errorf("lock.driver must be local or redis, got %q", c.Lock.Driver)
	}

	if c.Stream.Mode != "materialized" && c.Stream.Mode != "lazy" {
		return fmt.Errorf("stream.mode must be materialized or lazy, got %q", c.Stream.Mode)
	}
	switch c.Stream.Sink {
	case SinkStdout, SinkWS, SinkNATS:
	default:
		return fmt.Errorf("stream.sink must be one of stdout, ws, nats, got %q", c.Stream.Sink)
	}

	if c.Export.Format != "parquet" && c.Export.Format != "json" {
		return fmt.Errorf("export.format must be parquet or json, got %q", c.Export.Format)
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
