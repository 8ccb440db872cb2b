package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/barsync/internal/model"
)

// Query selects bars from one series. Bounds are inclusive.
type Query struct {
	Start      *time.Time
	End        *time.Time
	Descending bool
	Limit      int64 // 0 = no limit
}

// Contains reports whether ts falls inside the query bounds.
func (q Query) Contains(ts time.Time) bool {
	if q.Start != nil && ts.Before(*q.Start) {
		return false
	}
	if q.End != nil && ts.After(*q.End) {
		return false
	}
	return true
}

// Cursor iterates over query results.
type Cursor interface {
	Next(ctx context.Context) bool
	Bar() model.Bar
	Err() error
	Close(ctx context.Context) error
}

// Store persists bars, one collection per series.
type Store interface {
	// Find returns the bars matching q, ordered by timestamp. An unknown
	// series yields an empty cursor.
	Find(ctx context.Context, key model.SeriesKey, q Query) (Cursor, error)

	// DeleteOne removes the bar stamped ts and reports whether it existed.
	DeleteOne(ctx context.Context, key model.SeriesKey, ts time.Time) (bool, error)

	// InsertMany writes bars, creating the collection on first use. It
	// fails with model.ErrDuplicate if a timestamp is already stored.
	InsertMany(ctx context.Context, key model.SeriesKey, bars []model.Bar) error

	// EnsureIndex makes sure the timestamp index exists. Idempotent.
	EnsureIndex(ctx context.Context, key model.SeriesKey) error

	// CollectionNames lists every stored series by name.
	CollectionNames(ctx context.Context) ([]string, error)

	Close(ctx context.Context) error
}

// Last returns the most recent bar of a series, or model.ErrNotFound when
// the series has no rows.
func Last(ctx context.Context, s Store, key model.SeriesKey) (model.Bar, error) {
	cur, err := s.Find(ctx, key, Query{Descending: true, Limit: 1})
	if err != nil {
		return model.Bar{}, err
	}
	defer cur.Close(ctx)

	if !cur.Next(ctx) {
		if err := cur.Err(); err != nil {
			return model.Bar{}, err
		}
		return model.Bar{}, fmt.Errorf("%w: no stored bars for %s", model.ErrNotFound, key)
	}
	return cur.Bar(), nil
}

// All drains and closes a cursor.
func All(ctx context.Context, cur Cursor) ([]model.Bar, error) {
	defer cur.Close(ctx)

	var out []model.Bar
	for cur.Next(ctx) {
		out = append(out, cur.Bar())
	}
	return out, cur.Err()
}

// FindAll is Find followed by All.
func FindAll(ctx context.Context, s Store, key model.SeriesKey, q Query) ([]model.Bar, error) {
	cur, err := s.Find(ctx, key, q)
	if err != nil {
		return nil, err
	}
	return All(ctx, cur)
}

// Keys lists every stored series as a SeriesKey. Collections whose names
// do not parse as a key are skipped.
func Keys(ctx context.Context, s Store) ([]model.SeriesKey, error) {
	names, err := s.CollectionNames(ctx)
	if err != nil {
		return nil, err
	}

	keys := make([]model.SeriesKey, 0, len(names))
	for _, name := range names {
		key, err := model.ParseSeriesKey(name)
		if errors.Is(err, model.ErrConfig) {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// SliceCursor iterates over an in-memory slice.
type SliceCursor struct {
	bars []model.Bar
	pos  int
}

// NewSliceCursor wraps bars. The slice is not copied.
func NewSliceCursor(bars []model.Bar) *SliceCursor {
	return &SliceCursor{bars: bars, pos: -1}
}

func (c *SliceCursor) Next(ctx context.Context) bool {
	if c.pos+1 >= len(c.bars) {
		c.pos = len(c.bars)
		return false
	}
	c.pos++
	return true
}

func (c *SliceCursor) Bar() model.Bar {
	if c.pos < 0 || c.pos >= len(c.bars) {
		return model.Bar{}
	}
	return c.bars[c.pos]
}

func (c *SliceCursor) Err() error { return nil }

func (c *SliceCursor) Close(ctx context.Context) error { return nil }
