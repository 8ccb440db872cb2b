package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/barsync/internal/keylock"
	"github.com/rickgao/barsync/internal/merge"
	"github.com/rickgao/barsync/internal/metrics"
	"github.com/rickgao/barsync/internal/model"
	"github.com/rickgao/barsync/internal/pool"
	"github.com/rickgao/barsync/internal/queue"
	"github.com/rickgao/barsync/internal/store"
)

// Config holds collector configuration.
type Config struct {
	Width          int           // Concurrent workers (default: pool default)
	DequeueTimeout time.Duration // Worker dequeue wait (default: pool default)
	QueueCapacity  int           // 0 = unbounded
}

// Collector fans bulk jobs out to a worker pool.
type Collector struct {
	cfg     Config
	merger  *merge.Merger
	store   store.Store
	locker  keylock.Locker
	logger  *slog.Logger
	metrics *metrics.Collector
}

// New creates a Collector. A nil locker uses an in-process keylock.Local.
func New(cfg Config, m *merge.Merger, s store.Store, l keylock.Locker, logger *slog.Logger, mc *metrics.Collector) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	if l == nil {
		l = keylock.NewLocal()
	}
	return &Collector{
		cfg:     cfg,
		merger:  m,
		store:   s,
		locker:  l,
		logger:  logger,
		metrics: mc,
	}
}

// SyncMany fetches [start, end] for every key.
func (c *Collector) SyncMany(ctx context.Context, keys []model.SeriesKey, start, end *time.Time) ([]pool.Result, error) {
	jobs := make([]model.FetchJob, len(keys))
	for i, key := range keys {
		jobs[i] = model.NewFetchJob(key, start, end)
	}
	return c.Run(ctx, jobs, c.merger.SyncJob)
}

// UpdateMany brings each key up to date from its last stored bar. With no
// keys it updates every stored series.
func (c *Collector) UpdateMany(ctx context.Context, keys ...model.SeriesKey) ([]pool.Result, error) {
	if len(keys) == 0 {
		return c.UpdateAll(ctx)
	}
	jobs := make([]model.FetchJob, len(keys))
	for i, key := range keys {
		jobs[i] = model.NewFetchJob(key, nil, nil)
	}
	return c.Run(ctx, jobs, c.merger.UpdateJob)
}

// UpdateAll updates every series present in the store.
func (c *Collector) UpdateAll(ctx context.Context) ([]pool.Result, error) {
	keys, err := store.Keys(ctx, c.store)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	if len(keys) == 0 {
		c.logger.Info("no stored series to update")
		return nil, nil
	}
	return c.UpdateMany(ctx, keys...)
}

// Run enqueues jobs, drains them through a fresh pool and returns the
// results in completion order. Job failures are reported in the results;
// the returned error is only set when the run itself could not finish.
func (c *Collector) Run(ctx context.Context, jobs []model.FetchJob, handler pool.HandlerFunc) ([]pool.Result, error) {
	if len(jobs) == 0 {
		return nil, nil
	}

	var q *queue.Queue[model.FetchJob]
	if c.cfg.QueueCapacity > 0 {
		q = queue.NewBounded[model.FetchJob](c.cfg.QueueCapacity)
	} else {
		q = queue.New[model.FetchJob]()
	}

	var (
		mu      sync.Mutex
		results = make([]pool.Result, 0, len(jobs))
	)
	sink := pool.ResultSinkFunc(func(r pool.Result) {
		c.logResult(r)
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	})

	p := pool.New(pool.Config{
		Width:          c.cfg.Width,
		DequeueTimeout: c.cfg.DequeueTimeout,
	}, q, sink, c.logger, pool.WithMetrics(c.metrics))

	if err := p.Start(ctx, c.guard(handler), c.cfg.Width); err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Stop only after the last job is queued so workers drain it.
		defer p.Stop()
		for _, job := range jobs {
			if err := q.Enqueue(gctx, job); err != nil {
				return fmt.Errorf("enqueue %s: %w", job.Key, err)
			}
		}
		return nil
	})

	err := g.Wait()
	p.Join()

	mu.Lock()
	defer mu.Unlock()

	// Workers abort on cancellation and leave the rest queued.
	if left := q.Drain(0); len(left) > 0 {
		c.logger.Warn("jobs abandoned", "count", len(left), "error", ctx.Err())
		for _, job := range left {
			results = append(results, pool.Result{
				Job: job,
				Err: fmt.Errorf("%s not run: %w", job.Key, context.Cause(ctx)),
			})
		}
	}
	return results, err
}

// guard wraps handler with the series lock for the job's key.
func (c *Collector) guard(handler pool.HandlerFunc) pool.HandlerFunc {
	return func(ctx context.Context, job model.FetchJob) (*model.SyncReport, error) {
		unlock, err := c.locker.Lock(ctx, job.Key)
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", job.Key, err)
		}
		defer unlock()
		return handler(ctx, job)
	}
}

func (c *Collector) logResult(r pool.Result) {
	if r.Err != nil {
		return
	}
	c.logger.Info(r.Report.String(),
		"job", r.Job.ID,
		"pages", r.Report.Pages,
		"duration", r.Duration,
	)
}

// Summary counts results by outcome.
type Summary struct {
	Jobs     int
	Failed   int
	UpToDate int
	Inserted int
	Deleted  int
}

// Summarize totals a result set.
func Summarize(results []pool.Result) Summary {
	var s Summary
	for _, r := range results {
		s.Jobs++
		if r.Err != nil {
			s.Failed++
			continue
		}
		if r.Report.UpToDate {
			s.UpToDate++
		}
		s.Inserted += r.Report.Inserted
		s.Deleted += r.Report.Deleted
	}
	return s
}
