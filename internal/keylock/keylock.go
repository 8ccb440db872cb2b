package keylock

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rickgao/barsync/internal/config"
	"github.com/rickgao/barsync/internal/model"
)

// Locker grants exclusive access to one series key at a time.
type Locker interface {
	// Lock blocks until the key is held or ctx is done. The returned
	// function releases the lock and is safe to call more than once.
	Lock(ctx context.Context, key model.SeriesKey) (unlock func(), err error)
}

// Open builds the locker selected by cfg.Driver.
func Open(ctx context.Context, cfg config.LockConfig, logger *slog.Logger) (Locker, error) {
	switch cfg.Driver {
	case config.LockLocal, "":
		return NewLocal(), nil
	case config.LockRedis:
		r, err := ConnectRedis(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: unknown lock driver %q", model.ErrConfig, cfg.Driver)
	}
}
