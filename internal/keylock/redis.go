package keylock

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rickgao/barsync/internal/config"
	"github.com/rickgao/barsync/internal/model"
)

// KeyPrefix namespaces lock keys in Redis.
const KeyPrefix = "barsync:lock:"

// Deletes the lock only if it still carries our token.
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`

// Redis is a Locker backed by SET NX PX. A holder that dies keeps the key
// until the TTL expires.
type Redis struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
	owned         bool
	logger        *slog.Logger
}

// ConnectRedis dials Redis from cfg and pings it.
func ConnectRedis(ctx context.Context, cfg config.LockConfig, logger *slog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
	}

	r := NewRedis(client, cfg.TTL, cfg.RetryInterval, logger)
	r.owned = true
	return r, nil
}

// NewRedis wraps an existing client. Zero durations use the config defaults.
func NewRedis(client *redis.Client, ttl, retryInterval time.Duration, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = config.DefaultLockTTL
	}
	if retryInterval <= 0 {
		retryInterval = config.DefaultLockRetryInterval
	}
	return &Redis{
		client:        client,
		ttl:           ttl,
		retryInterval: retryInterval,
		logger:        logger,
	}
}

// Lock implements Locker. It polls every retry interval, with up to 10ms of
// jitter, until the key is free or ctx is done.
func (r *Redis) Lock(ctx context.Context, key model.SeriesKey) (func(), error) {
	name := KeyPrefix + key.String()
	token := uuid.New().String()

	for {
		ok, err := r.client.SetNX(ctx, name, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			break
		}

		wait := r.retryInterval + time.Duration(rand.Intn(10))*time.Millisecond
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { r.unlock(name, token) })
	}, nil
}

func (r *Redis) unlock(name, token string) {
	// The caller's context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := r.client.Eval(ctx, unlockScript, []string{name}, token).Int64()
	if err != nil {
		r.logger.Warn("redis unlock failed", "lock", name, "error", err)
		return
	}
	if n == 0 {
		r.logger.Warn("redis lock expired before unlock", "lock", name)
	}
}

// Close closes the client if ConnectRedis created it.
func (r *Redis) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}
