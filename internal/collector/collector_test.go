package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rickgao/barsync/internal/merge"
	"github.com/rickgao/barsync/internal/model"
	"github.com/rickgao/barsync/internal/pool"
	"github.com/rickgao/barsync/internal/provider/providertest"
	"github.com/rickgao/barsync/internal/store"
)

var t0 = time.Date(2016, 1, 4, 0, 0, 0, 0, time.UTC)

var keys = []model.SeriesKey{
	{Symbol: "EUR_USD", Resolution: "M1"},
	{Symbol: "USD_JPY", Resolution: "M1"},
	{Symbol: "GBP_USD", Resolution: "M1"},
}

type fixture struct {
	store    *store.Memory
	provider *providertest.Series
	c        *Collector
}

func newFixture(cap, width int) *fixture {
	s := store.NewMemory()
	p := providertest.New(cap)
	m := merge.New(s, p, merge.Options{PageSize: cap}, nil, nil)
	c := New(Config{Width: width, DequeueTimeout: 10 * time.Millisecond}, m, s, nil, nil, nil)
	return &fixture{store: s, provider: p, c: c}
}

func (f *fixture) count(t *testing.T, key model.SeriesKey) int {
	t.Helper()
	bars, err := store.FindAll(context.Background(), f.store, key, store.Query{})
	if err != nil {
		t.Fatalf("FindAll(%s) error = %v", key, err)
	}
	return len(bars)
}

func TestSyncMany(t *testing.T) {
	f := newFixture(4, 2)
	for i, key := range keys {
		f.provider.Set(key, providertest.Bars(t0, 10+i))
	}

	start := t0
	results, err := f.c.SyncMany(context.Background(), keys, &start, nil)
	if err != nil {
		t.Fatalf("SyncMany() error = %v", err)
	}
	if len(results) != len(keys) {
		t.Fatalf("got %d results, want %d", len(results), len(keys))
	}
	for _, r := range results {
		if r.Err != nil {
			t.Errorf("%s: error = %v", r.Job.Key, r.Err)
		}
	}
	for i, key := range keys {
		if got := f.count(t, key); got != 10+i {
			t.Errorf("%s stored %d bars, want %d", key, got, 10+i)
		}
	}

	sum := Summarize(results)
	if sum.Jobs != 3 || sum.Failed != 0 || sum.Inserted != 33 {
		t.Errorf("Summarize() = %+v, want 3 jobs, 0 failed, 33 inserted", sum)
	}
}

func TestSyncMany_SameKeySerialized(t *testing.T) {
	f := newFixture(0, 4)
	key := keys[0]
	f.provider.Set(key, providertest.Bars(t0, 50))

	start := t0
	dup := []model.SeriesKey{key, key, key, key}
	results, err := f.c.SyncMany(context.Background(), dup, &start, nil)
	if err != nil {
		t.Fatalf("SyncMany() error = %v", err)
	}
	for _, r := range results {
		if r.Err != nil {
			t.Errorf("job %s error = %v", r.Job.ID, r.Err)
		}
	}
	if got := f.count(t, key); got != 50 {
		t.Errorf("stored %d bars, want 50", got)
	}
}

func TestSyncMany_FailuresReported(t *testing.T) {
	f := newFixture(0, 2)
	boom := errors.New("upstream down")
	f.provider.Set(keys[0], providertest.Bars(t0, 5))
	f.provider.Fail(keys[1], boom)

	start := t0
	results, err := f.c.SyncMany(context.Background(), keys[:2], &start, nil)
	if err != nil {
		t.Fatalf("SyncMany() error = %v", err)
	}

	var failed, ok int
	for _, r := range results {
		switch {
		case errors.Is(r.Err, boom):
			failed++
		case r.Err == nil:
			ok++
		default:
			t.Errorf("unexpected error %v", r.Err)
		}
	}
	if failed != 1 || ok != 1 {
		t.Errorf("failed=%d ok=%d, want 1 and 1", failed, ok)
	}
}

func TestUpdateMany(t *testing.T) {
	f := newFixture(0, 2)
	ctx := context.Background()
	series := providertest.Bars(t0, 20)
	f.provider.Set(keys[0], series)
	f.provider.Set(keys[1], series)
	f.store.InsertMany(ctx, keys[0], series[:10])
	f.store.InsertMany(ctx, keys[1], series)

	results, err := f.c.UpdateMany(ctx, keys[0], keys[1], keys[2])
	if err != nil {
		t.Fatalf("UpdateMany() error = %v", err)
	}

	byKey := make(map[model.SeriesKey]pool.Result)
	for _, r := range results {
		byKey[r.Job.Key] = r
	}

	if r := byKey[keys[0]]; r.Err != nil || r.Report.Inserted != 10 {
		t.Errorf("%s = %+v, %v, want 10 inserted", keys[0], r.Report, r.Err)
	}
	if r := byKey[keys[1]]; r.Err != nil || !r.Report.UpToDate {
		t.Errorf("%s = %+v, %v, want up to date", keys[1], r.Report, r.Err)
	}
	if r := byKey[keys[2]]; !errors.Is(r.Err, model.ErrNotFound) {
		t.Errorf("%s error = %v, want ErrNotFound", keys[2], r.Err)
	}

	sum := Summarize(results)
	if sum.UpToDate != 1 || sum.Failed != 1 {
		t.Errorf("Summarize() = %+v, want 1 up to date, 1 failed", sum)
	}
}

func TestUpdateAll(t *testing.T) {
	f := newFixture(3, 3)
	ctx := context.Background()
	series := providertest.Bars(t0, 12)
	for _, key := range keys {
		f.provider.Set(key, series)
		f.store.InsertMany(ctx, key, series[:2])
	}

	results, err := f.c.UpdateMany(ctx)
	if err != nil {
		t.Fatalf("UpdateMany() error = %v", err)
	}
	if len(results) != len(keys) {
		t.Fatalf("got %d results, want %d", len(results), len(keys))
	}
	for _, key := range keys {
		if got := f.count(t, key); got != 12 {
			t.Errorf("%s stored %d bars, want 12", key, got)
		}
	}
}

func TestUpdateAll_EmptyStore(t *testing.T) {
	f := newFixture(0, 1)
	results, err := f.c.UpdateAll(context.Background())
	if err != nil || len(results) != 0 {
		t.Errorf("UpdateAll() = %v, %v, want no results", results, err)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	s := store.NewMemory()
	p := providertest.New(0)
	m := merge.New(s, p, merge.Options{}, nil, nil)
	c := New(Config{Width: 1, DequeueTimeout: 10 * time.Millisecond, QueueCapacity: 1}, m, s, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	jobs := make([]model.FetchJob, 5)
	for i := range jobs {
		jobs[i] = model.NewFetchJob(keys[0], nil, nil)
	}

	done := make(chan struct{})
	go func() {
		c.Run(ctx, jobs, m.SyncJob)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_CancelledReportsUnrunJobs(t *testing.T) {
	s := store.NewMemory()
	p := providertest.New(0)
	m := merge.New(s, p, merge.Options{}, nil, nil)
	c := New(Config{Width: 2, DequeueTimeout: 10 * time.Millisecond}, m, s, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	jobs := make([]model.FetchJob, 5)
	for i := range jobs {
		jobs[i] = model.NewFetchJob(keys[0], nil, nil)
	}

	results, err := c.Run(ctx, jobs, m.SyncJob)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != len(jobs) {
		t.Fatalf("got %d results, want %d", len(results), len(jobs))
	}
	for i, r := range results {
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("results[%d].Err = %v, want context.Canceled", i, r.Err)
		}
	}
	if sum := Summarize(results); sum.Failed != len(jobs) {
		t.Errorf("Summary.Failed = %d, want %d", sum.Failed, len(jobs))
	}
	if len(p.Requests()) != 0 {
		t.Errorf("provider saw %d requests, want 0", len(p.Requests()))
	}
}
