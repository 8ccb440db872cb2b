package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rickgao/barsync/internal/config"
	"github.com/rickgao/barsync/internal/model"
)

var t0 = time.Date(2016, 1, 4, 0, 0, 0, 0, time.UTC)

func bars(from, n int) []model.Bar {
	out := make([]model.Bar, n)
	for i := range out {
		p := float64(from + i)
		out[i] = model.Bar{
			Timestamp: t0.Add(time.Duration(from+i) * time.Minute),
			Open:      p,
			High:      p + 1,
			Low:       p - 1,
			Close:     p + 0.5,
			Volume:    100,
		}
	}
	return out
}

func tsAt(i int) time.Time {
	return t0.Add(time.Duration(i) * time.Minute)
}

// runStoreSuite exercises the Store contract. key must not exist yet.
func runStoreSuite(t *testing.T, s Store, key model.SeriesKey) {
	ctx := context.Background()

	t.Run("unknown series is empty", func(t *testing.T) {
		got, err := FindAll(ctx, s, key, Query{})
		if err != nil {
			t.Fatalf("FindAll() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("len = %d, want 0", len(got))
		}
		if _, err := Last(ctx, s, key); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("Last() error = %v, want ErrNotFound", err)
		}
		ok, err := s.DeleteOne(ctx, key, tsAt(0))
		if err != nil || ok {
			t.Errorf("DeleteOne() = %v, %v, want false, nil", ok, err)
		}
	})

	t.Run("insert and find", func(t *testing.T) {
		if err := s.InsertMany(ctx, key, bars(0, 10)); err != nil {
			t.Fatalf("InsertMany() error = %v", err)
		}
		if err := s.EnsureIndex(ctx, key); err != nil {
			t.Fatalf("EnsureIndex() error = %v", err)
		}

		got, err := FindAll(ctx, s, key, Query{})
		if err != nil {
			t.Fatalf("FindAll() error = %v", err)
		}
		if len(got) != 10 {
			t.Fatalf("len = %d, want 10", len(got))
		}
		for i, b := range got {
			if !b.Timestamp.Equal(tsAt(i)) {
				t.Errorf("got[%d].Timestamp = %v, want %v", i, b.Timestamp, tsAt(i))
			}
		}
		if got[3].Close != 3.5 {
			t.Errorf("got[3].Close = %v, want 3.5", got[3].Close)
		}
	})

	t.Run("range is inclusive", func(t *testing.T) {
		start, end := tsAt(2), tsAt(5)
		got, err := FindAll(ctx, s, key, Query{Start: &start, End: &end})
		if err != nil {
			t.Fatalf("FindAll() error = %v", err)
		}
		if len(got) != 4 {
			t.Fatalf("len = %d, want 4", len(got))
		}
		if !got[0].Timestamp.Equal(start) || !got[3].Timestamp.Equal(end) {
			t.Errorf("range = %v..%v, want %v..%v", got[0].Timestamp, got[3].Timestamp, start, end)
		}
	})

	t.Run("descending with limit", func(t *testing.T) {
		got, err := FindAll(ctx, s, key, Query{Descending: true, Limit: 3})
		if err != nil {
			t.Fatalf("FindAll() error = %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("len = %d, want 3", len(got))
		}
		if !got[0].Timestamp.Equal(tsAt(9)) || !got[2].Timestamp.Equal(tsAt(7)) {
			t.Errorf("got %v..%v, want %v..%v", got[0].Timestamp, got[2].Timestamp, tsAt(9), tsAt(7))
		}

		last, err := Last(ctx, s, key)
		if err != nil {
			t.Fatalf("Last() error = %v", err)
		}
		if !last.Timestamp.Equal(tsAt(9)) {
			t.Errorf("Last().Timestamp = %v, want %v", last.Timestamp, tsAt(9))
		}
	})

	t.Run("duplicate insert rejected", func(t *testing.T) {
		err := s.InsertMany(ctx, key, bars(9, 2))
		if !errors.Is(err, model.ErrDuplicate) {
			t.Fatalf("InsertMany() error = %v, want ErrDuplicate", err)
		}
	})

	t.Run("delete one", func(t *testing.T) {
		ok, err := s.DeleteOne(ctx, key, tsAt(0))
		if err != nil || !ok {
			t.Fatalf("DeleteOne() = %v, %v, want true, nil", ok, err)
		}
		ok, err = s.DeleteOne(ctx, key, tsAt(0))
		if err != nil || ok {
			t.Errorf("second DeleteOne() = %v, %v, want false, nil", ok, err)
		}

		first, err := FindAll(ctx, s, key, Query{Limit: 1})
		if err != nil {
			t.Fatalf("FindAll() error = %v", err)
		}
		if len(first) != 1 || !first[0].Timestamp.Equal(tsAt(1)) {
			t.Errorf("first bar = %v, want %v", first, tsAt(1))
		}
	})

	t.Run("collection names", func(t *testing.T) {
		names, err := s.CollectionNames(ctx)
		if err != nil {
			t.Fatalf("CollectionNames() error = %v", err)
		}
		found := false
		for _, n := range names {
			if n == key.String() {
				found = true
			}
		}
		if !found {
			t.Errorf("CollectionNames() = %v, missing %q", names, key.String())
		}
	})
}

func TestMemory(t *testing.T) {
	s := NewMemory()
	runStoreSuite(t, s, model.SeriesKey{Symbol: "EUR_USD", Resolution: "M1"})
}

func TestMemory_InsertUnorderedRejected(t *testing.T) {
	s := NewMemory()
	key := model.SeriesKey{Symbol: "EUR_USD", Resolution: "M1"}

	b := bars(0, 3)
	b[1], b[2] = b[2], b[1]

	if err := s.InsertMany(context.Background(), key, b); !errors.Is(err, model.ErrUnordered) {
		t.Fatalf("InsertMany() error = %v, want ErrUnordered", err)
	}
	got, _ := FindAll(context.Background(), s, key, Query{})
	if len(got) != 0 {
		t.Errorf("rejected insert stored %d bars", len(got))
	}
}

func TestMemory_InsertFillsGap(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	key := model.SeriesKey{Symbol: "USD_JPY", Resolution: "M1"}

	s.InsertMany(ctx, key, bars(0, 2))
	s.InsertMany(ctx, key, bars(5, 2))
	s.InsertMany(ctx, key, bars(2, 3))

	got, _ := FindAll(ctx, s, key, Query{})
	if len(got) != 7 {
		t.Fatalf("len = %d, want 7", len(got))
	}
	if err := model.ValidateOrder(got); err != nil {
		t.Errorf("stored bars out of order: %v", err)
	}
}

func TestMemory_FindSnapshot(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	key := model.SeriesKey{Symbol: "EUR_USD", Resolution: "H1"}
	s.InsertMany(ctx, key, bars(0, 3))

	cur, err := s.Find(ctx, key, Query{})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	s.DeleteOne(ctx, key, tsAt(1))

	got, _ := All(ctx, cur)
	if len(got) != 3 {
		t.Errorf("cursor saw %d bars, want 3 (snapshot)", len(got))
	}
}

func TestMemory_Closed(t *testing.T) {
	s := NewMemory()
	s.Close(context.Background())

	if _, err := s.Find(context.Background(), model.SeriesKey{Symbol: "A", Resolution: "D"}, Query{}); !errors.Is(err, model.ErrClosed) {
		t.Errorf("Find() after Close error = %v, want ErrClosed", err)
	}
}

func TestMemory_EnsureIndexCreatesCollection(t *testing.T) {
	s := NewMemory()
	key := model.SeriesKey{Symbol: "AUD_USD", Resolution: "D"}

	if s.Indexed(key) {
		t.Fatal("Indexed() = true before EnsureIndex")
	}
	s.EnsureIndex(context.Background(), key)
	if !s.Indexed(key) {
		t.Error("Indexed() = false after EnsureIndex")
	}

	names, _ := s.CollectionNames(context.Background())
	if len(names) != 1 || names[0] != "AUD_USD.D" {
		t.Errorf("CollectionNames() = %v, want [AUD_USD.D]", names)
	}
}

func TestKeys(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	s.EnsureIndex(ctx, model.SeriesKey{Symbol: "EUR_USD", Resolution: "M30"})
	s.EnsureIndex(ctx, model.SeriesKey{Symbol: "USD_JPY", Resolution: "H1"})
	s.EnsureIndex(ctx, model.SeriesKey{Symbol: "system", Resolution: ""})

	keys, err := Keys(ctx, s)
	if err != nil {
		t.Fatalf("Keys() error = %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("Keys() = %v, want 2 keys", keys)
	}
	if keys[0] != (model.SeriesKey{Symbol: "EUR_USD", Resolution: "M30"}) {
		t.Errorf("keys[0] = %v", keys[0])
	}
}

func TestSliceCursor(t *testing.T) {
	cur := NewSliceCursor(bars(0, 2))
	ctx := context.Background()

	if (cur.Bar() != model.Bar{}) {
		t.Error("Bar() before Next should be zero")
	}
	n := 0
	for cur.Next(ctx) {
		n++
	}
	if n != 2 {
		t.Errorf("iterated %d, want 2", n)
	}
	if cur.Next(ctx) {
		t.Error("Next() after exhaustion should stay false")
	}
}

func TestQuery_Contains(t *testing.T) {
	start, end := tsAt(1), tsAt(3)
	q := Query{Start: &start, End: &end}

	tests := []struct {
		ts   time.Time
		want bool
	}{
		{tsAt(0), false},
		{tsAt(1), true},
		{tsAt(2), true},
		{tsAt(3), true},
		{tsAt(4), false},
	}
	for _, tt := range tests {
		if got := q.Contains(tt.ts); got != tt.want {
			t.Errorf("Contains(%v) = %v, want %v", tt.ts, got, tt.want)
		}
	}
	if !(Query{}).Contains(tsAt(100)) {
		t.Error("unbounded query should contain everything")
	}
}

func TestOpen(t *testing.T) {
	s, err := Open(context.Background(), config.StoreConfig{Driver: config.StoreMemory}, nil)
	if err != nil {
		t.Fatalf("Open(memory) error = %v", err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Errorf("Open(memory) = %T, want *Memory", s)
	}

	if _, err := Open(context.Background(), config.StoreConfig{Driver: "sqlite"}, nil); !errors.Is(err, model.ErrConfig) {
		t.Errorf("Open(sqlite) error = %v, want ErrConfig", err)
	}
}
