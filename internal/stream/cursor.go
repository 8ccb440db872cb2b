package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickgao/barsync/internal/metrics"
	"github.com/rickgao/barsync/internal/model"
	"github.com/rickgao/barsync/internal/store"
)

// Mode selects how a Cursor reads its series.
type Mode string

const (
	Materialized Mode = "materialized"
	Lazy         Mode = "lazy"
)

// ParseMode validates a mode name. An empty name is Materialized.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case Materialized, "":
		return Materialized, nil
	case Lazy:
		return Lazy, nil
	default:
		return "", fmt.Errorf("%w: unknown stream mode %q", model.ErrConfig, s)
	}
}

// Config holds cursor configuration.
type Config struct {
	Mode   Mode
	Ticker string     // Event ticker (default: the series symbol)
	Start  *time.Time // Inclusive, nil = from the first bar
	End    *time.Time // Inclusive, nil = to the last bar
}

// ErrNotInitialized is returned by Advance before Initialize.
var ErrNotInitialized = errors.New("cursor not initialized")

// Cursor emits one series to a Sink.
type Cursor struct {
	store   store.Store
	key     model.SeriesKey
	sink    Sink
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Collector

	// bars holds the materialized table, or the consumed prefix in lazy mode.
	bars    []model.Bar
	pos     int
	rows    store.Cursor
	pending *model.Bar // read from rows but not yet delivered

	last        model.Bar
	emitted     bool
	initialized bool
	running     bool
}

// NewCursor creates a Cursor. Call Initialize before Advance.
func NewCursor(s store.Store, key model.SeriesKey, sink Sink, cfg Config, logger *slog.Logger, m *metrics.Collector) *Cursor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Mode == "" {
		cfg.Mode = Materialized
	}
	if cfg.Ticker == "" {
		cfg.Ticker = key.Symbol
	}
	return &Cursor{
		store:   s,
		key:     key,
		sink:    sink,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
	}
}

// Initialize opens the configured range and resets the cursor. Calling it
// again restarts the stream from the beginning of the range.
func (c *Cursor) Initialize(ctx context.Context) error {
	if c.cfg.Mode != Materialized && c.cfg.Mode != Lazy {
		return fmt.Errorf("%w: unknown stream mode %q", model.ErrConfig, c.cfg.Mode)
	}
	if err := c.release(ctx); err != nil {
		return err
	}

	c.initialized = false
	c.running = false
	c.bars = nil
	c.pos = 0
	c.pending = nil
	c.last = model.Bar{}
	c.emitted = false

	cur, err := c.store.Find(ctx, c.key, store.Query{Start: c.cfg.Start, End: c.cfg.End})
	if err != nil {
		return fmt.Errorf("open %s: %w", c.key, err)
	}

	if c.cfg.Mode == Materialized {
		bars, err := store.All(ctx, cur)
		if err != nil {
			return fmt.Errorf("load %s: %w", c.key, err)
		}
		c.bars = bars
	} else {
		c.rows = cur
	}

	c.initialized = true
	c.running = true

	c.logger.Debug("stream initialized",
		"key", c.key,
		"mode", c.cfg.Mode,
		"rows", len(c.bars),
	)
	return nil
}

// Advance emits the next bar, or the ExitEvent when the range is used up.
// Once the ExitEvent has been delivered it returns model.ErrExhausted. A
// sink error leaves the cursor where it was so the same event is retried.
func (c *Cursor) Advance(ctx context.Context) error {
	if !c.initialized {
		return ErrNotInitialized
	}
	if !c.running {
		return model.ErrExhausted
	}

	bar, ok, err := c.peek(ctx)
	if err != nil {
		return fmt.Errorf("read %s: %w", c.key, err)
	}

	if !ok {
		if err := c.sink.Put(ctx, ExitEvent{}); err != nil {
			return fmt.Errorf("emit exit %s: %w", c.key, err)
		}
		c.metrics.StreamEvent(string(TypeExit))
		c.running = false
		c.logger.Debug("stream exhausted", "key", c.key, "bars", c.pos)
		return c.release(ctx)
	}

	if err := c.sink.Put(ctx, NewBarEvent(c.cfg.Ticker, bar)); err != nil {
		return fmt.Errorf("emit bar %s: %w", c.key, err)
	}
	c.metrics.StreamEvent(string(TypeBar))

	if c.cfg.Mode == Lazy {
		c.bars = append(c.bars, bar)
		c.pending = nil
	}
	c.pos++
	c.last = bar
	c.emitted = true
	return nil
}

// peek returns the next undelivered bar without consuming it.
func (c *Cursor) peek(ctx context.Context) (model.Bar, bool, error) {
	if c.cfg.Mode == Materialized {
		if c.pos >= len(c.bars) {
			return model.Bar{}, false, nil
		}
		return c.bars[c.pos], true, nil
	}

	if c.pending != nil {
		return *c.pending, true, nil
	}
	if !c.rows.Next(ctx) {
		return model.Bar{}, false, c.rows.Err()
	}
	b := c.rows.Bar()
	c.pending = &b
	return b, true, nil
}

// Instance returns the bars emitted so far, oldest first.
func (c *Cursor) Instance() []model.Bar {
	return append([]model.Bar(nil), c.bars[:c.pos]...)
}

// LastPrice returns the close of the most recently emitted bar.
func (c *Cursor) LastPrice() (float64, bool) {
	return c.last.Close, c.emitted
}

// LastTime returns the timestamp of the most recently emitted bar.
func (c *Cursor) LastTime() (time.Time, bool) {
	return c.last.Timestamp, c.emitted
}

// Running reports whether the stream has not yet emitted its ExitEvent.
func (c *Cursor) Running() bool {
	return c.running
}

// Key returns the series being streamed.
func (c *Cursor) Key() model.SeriesKey {
	return c.key
}

// Close stops the cursor without emitting an ExitEvent.
func (c *Cursor) Close(ctx context.Context) error {
	c.running = false
	return c.release(ctx)
}

func (c *Cursor) release(ctx context.Context) error {
	if c.rows == nil {
		return nil
	}
	err := c.rows.Close(ctx)
	c.rows = nil
	return err
}
