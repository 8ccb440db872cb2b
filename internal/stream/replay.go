package stream

import (
	"context"
	"time"
)

// Replay initializes c if needed and advances it until the ExitEvent has
// been delivered. A positive interval paces bar events. It returns the
// number of bars emitted by this call.
func Replay(ctx context.Context, c *Cursor, interval time.Duration) (int, error) {
	if !c.initialized {
		if err := c.Initialize(ctx); err != nil {
			return 0, err
		}
	}

	var ticker *time.Ticker
	if interval > 0 {
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}

	start := c.pos
	for c.Running() {
		if err := c.Advance(ctx); err != nil {
			return c.pos - start, err
		}
		if ticker == nil || !c.Running() {
			continue
		}
		select {
		case <-ctx.Done():
			return c.pos - start, ctx.Err()
		case <-ticker.C:
		}
	}

	c.logger.Info("stream replayed", "key", c.key, "bars", c.pos-start)
	return c.pos - start, nil
}
