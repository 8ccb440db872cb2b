package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rickgao/barsync/internal/model"
)

// Memory is a process-local Store. Each series is a slice kept sorted by
// timestamp.
type Memory struct {
	mu      sync.RWMutex
	series  map[string][]model.Bar
	indexed map[string]bool
	closed  bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		series:  make(map[string][]model.Bar),
		indexed: make(map[string]bool),
	}
}

// Find snapshots the matching bars; later writes do not affect the cursor.
func (m *Memory) Find(ctx context.Context, key model.SeriesKey, q Query) (Cursor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, model.ErrClosed
	}

	bars := m.series[key.String()]
	lo, hi := 0, len(bars)
	if q.Start != nil {
		lo = searchTS(bars, *q.Start)
	}
	if q.End != nil {
		hi = sort.Search(len(bars), func(i int) bool { return bars[i].Timestamp.After(*q.End) })
	}
	if lo >= hi {
		return NewSliceCursor(nil), nil
	}

	out := make([]model.Bar, hi-lo)
	copy(out, bars[lo:hi])
	if q.Descending {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	if q.Limit > 0 && int64(len(out)) > q.Limit {
		out = out[:q.Limit]
	}
	return NewSliceCursor(out), nil
}

func (m *Memory) DeleteOne(ctx context.Context, key model.SeriesKey, ts time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, model.ErrClosed
	}

	name := key.String()
	bars := m.series[name]
	i := searchTS(bars, ts)
	if i >= len(bars) || !bars[i].Timestamp.Equal(ts) {
		return false, nil
	}
	m.series[name] = append(bars[:i], bars[i+1:]...)
	return true, nil
}

// InsertMany writes all bars or none. bars must be strictly ascending.
func (m *Memory) InsertMany(ctx context.Context, key model.SeriesKey, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	if err := model.ValidateOrder(bars); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return model.ErrClosed
	}

	name := key.String()
	existing := m.series[name]
	for _, b := range bars {
		i := searchTS(existing, b.Timestamp)
		if i < len(existing) && existing[i].Timestamp.Equal(b.Timestamp) {
			return fmt.Errorf("%w: %s at %s", model.ErrDuplicate, key, b.Timestamp)
		}
	}

	m.series[name] = mergeSorted(existing, bars)
	return nil
}

// EnsureIndex creates the series if it does not exist yet.
func (m *Memory) EnsureIndex(ctx context.Context, key model.SeriesKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return model.ErrClosed
	}

	name := key.String()
	if _, ok := m.series[name]; !ok {
		m.series[name] = nil
	}
	m.indexed[name] = true
	return nil
}

// Indexed reports whether EnsureIndex has been called for key.
func (m *Memory) Indexed(key model.SeriesKey) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indexed[key.String()]
}

func (m *Memory) CollectionNames(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, model.ErrClosed
	}

	names := make([]string, 0, len(m.series))
	for name := range m.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// searchTS returns the index of the first bar at or after ts.
func searchTS(bars []model.Bar, ts time.Time) int {
	return sort.Search(len(bars), func(i int) bool { return !bars[i].Timestamp.Before(ts) })
}

// mergeSorted merges two ascending, disjoint slices into a new slice.
func mergeSorted(a, b []model.Bar) []model.Bar {
	out := make([]model.Bar, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].Timestamp.Before(b[j].Timestamp) {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}
