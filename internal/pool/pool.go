package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/barsync/internal/metrics"
	"github.com/rickgao/barsync/internal/model"
	"github.com/rickgao/barsync/internal/queue"
)

// ErrRunning is returned by Start when workers are already active.
var ErrRunning = errors.New("pool already running")

// HandlerFunc processes one job. A nil report with a nil error means there
// was nothing to report.
type HandlerFunc func(ctx context.Context, job model.FetchJob) (*model.SyncReport, error)

// Result is the outcome of one handled job.
type Result struct {
	Job      model.FetchJob
	Report   *model.SyncReport
	Err      error
	Worker   int
	Duration time.Duration
}

// ResultSink receives job results.
type ResultSink interface {
	HandleResult(Result)
}

// ResultSinkFunc is a function adapter for ResultSink.
type ResultSinkFunc func(Result)

func (f ResultSinkFunc) HandleResult(r Result) {
	f(r)
}

// Config holds pool configuration.
type Config struct {
	Width          int           // Workers used when Start is given width <= 0 (default: 4)
	DequeueTimeout time.Duration // Wait per dequeue before re-checking the running flag (default: 1s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Width:          4,
		DequeueTimeout: time.Second,
	}
}

// Pool runs workers over a shared job queue.
type Pool struct {
	cfg     Config
	queue   *queue.Queue[model.FetchJob]
	sink    ResultSink
	logger  *slog.Logger
	metrics *metrics.Collector

	mu      sync.Mutex
	running atomic.Bool
	workers int
	wg      sync.WaitGroup

	processed atomic.Int64
	failed    atomic.Int64
}

// Option configures a Pool.
type Option func(*Pool)

// WithMetrics records job outcomes and queue depth on m.
func WithMetrics(m *metrics.Collector) Option {
	return func(p *Pool) {
		p.metrics = m
	}
}

// New creates a Pool reading from q. A nil sink discards results after
// logging failures.
func New(cfg Config, q *queue.Queue[model.FetchJob], sink ResultSink, logger *slog.Logger, opts ...Option) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Width <= 0 {
		cfg.Width = DefaultConfig().Width
	}
	if cfg.DequeueTimeout <= 0 {
		cfg.DequeueTimeout = DefaultConfig().DequeueTimeout
	}
	p := &Pool{
		cfg:    cfg,
		queue:  q,
		sink:   sink,
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches width workers calling handler. A width of zero or less
// uses Config.Width.
func (p *Pool) Start(ctx context.Context, handler HandlerFunc, width int) error {
	if handler == nil {
		return fmt.Errorf("%w: pool handler is required", model.ErrConfig)
	}
	if width <= 0 {
		width = p.cfg.Width
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.workers > 0 {
		return ErrRunning
	}

	p.running.Store(true)
	p.workers = width
	for i := 0; i < width; i++ {
		p.wg.Add(1)
		go p.run(ctx, i, handler)
	}

	p.logger.Info("worker pool started",
		"width", width,
		"queued", p.queue.Len(),
	)

	return nil
}

// Stop clears the running flag. Workers finish the queued jobs and exit.
func (p *Pool) Stop() {
	p.running.Store(false)
}

// Join blocks until every worker has exited, then resets the pool so it
// can be started again.
func (p *Pool) Join() {
	p.wg.Wait()

	p.mu.Lock()
	workers := p.workers
	p.workers = 0
	p.mu.Unlock()

	if workers > 0 {
		p.logger.Info("worker pool stopped",
			"processed", p.processed.Load(),
			"failed", p.failed.Load(),
		)
	}
}

// Shutdown stops the pool and waits for the drain, giving up when ctx is done.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.Stop()

	done := make(chan struct{})
	go func() {
		p.Join()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the running flag is set.
func (p *Pool) Running() bool {
	return p.running.Load()
}

// Processed returns the number of jobs handled so far, failures included.
func (p *Pool) Processed() int64 {
	return p.processed.Load()
}

// Failed returns the number of jobs whose handler returned an error or panicked.
func (p *Pool) Failed() int64 {
	return p.failed.Load()
}

// run is the worker loop.
func (p *Pool) run(ctx context.Context, id int, handler HandlerFunc) {
	defer p.wg.Done()

	for p.running.Load() || p.queue.Len() > 0 {
		if ctx.Err() != nil {
			p.logger.Warn("worker aborted", "worker", id, "queued", p.queue.Len())
			return
		}

		job, err := p.queue.Dequeue(p.cfg.DequeueTimeout)
		if errors.Is(err, model.ErrTimeout) {
			continue
		}
		if err != nil {
			// Closed and empty.
			return
		}

		st := p.queue.Stats()
		p.metrics.ObserveQueue(st.Len, st.MaxLength, st.Resizes)
		p.handle(ctx, id, job, handler)
	}
}

// handle runs one job, converting panics into errors.
func (p *Pool) handle(ctx context.Context, id int, job model.FetchJob, handler HandlerFunc) {
	start := time.Now()
	res := Result{Job: job, Worker: id}
	outcome := metrics.OutcomeOK

	func() {
		defer func() {
			if r := recover(); r != nil {
				res.Err = fmt.Errorf("handler panic: %v", r)
				outcome = metrics.OutcomePanic
				p.logger.Error("job handler panicked",
					"worker", id,
					"job", job.ID,
					"key", job.Key,
					"panic", r,
					"stack", string(debug.Stack()),
				)
			}
		}()
		res.Report, res.Err = handler(ctx, job)
	}()

	res.Duration = time.Since(start)
	p.processed.Add(1)

	if res.Err != nil {
		p.failed.Add(1)
		if outcome == metrics.OutcomeOK {
			outcome = metrics.OutcomeError
			p.logger.Warn("job failed",
				"worker", id,
				"job", job.ID,
				"key", job.Key,
				"error", res.Err,
			)
		}
	} else if res.Report != nil {
		p.logger.Info("job complete",
			"worker", id,
			"report", res.Report.String(),
			"duration", res.Duration,
		)
	}
	p.metrics.JobDone(outcome, res.Duration)

	if p.sink != nil && (res.Report != nil || res.Err != nil) {
		p.sink.HandleResult(res)
	}
}
