package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickgao/barsync/internal/metrics"
	"github.com/rickgao/barsync/internal/model"
	"github.com/rickgao/barsync/internal/provider"
	"github.com/rickgao/barsync/internal/store"
)

// Options configures a Merger.
type Options struct {
	// PageSize is the count requested per page when the provider asks for
	// pagination (default: provider.MaxCandles).
	PageSize int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{PageSize: provider.MaxCandles}
}

// Merger fetches bars from a provider and merges them into a store.
type Merger struct {
	store    store.Store
	provider provider.Provider
	opts     Options
	logger   *slog.Logger
	metrics  *metrics.Collector
}

// New creates a Merger. A nil logger uses slog.Default.
func New(s store.Store, p provider.Provider, opts Options, logger *slog.Logger, m *metrics.Collector) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultOptions().PageSize
	}
	return &Merger{
		store:    s,
		provider: p,
		opts:     opts,
		logger:   logger,
		metrics:  m,
	}
}

// Save merges an ordered batch into the series for key.
func (m *Merger) Save(ctx context.Context, key model.SeriesKey, bars []model.Bar) (model.SyncReport, error) {
	if len(bars) == 0 {
		return model.SyncReport{}, fmt.Errorf("save %s: %w", key, model.ErrEmptyBatch)
	}
	if err := model.ValidateOrder(bars); err != nil {
		return model.SyncReport{}, fmt.Errorf("save %s: %w", key, err)
	}

	deleted := 0

	// Leading overlap.
	lead := 0
	for ; lead < len(bars); lead++ {
		ok, err := m.store.DeleteOne(ctx, key, bars[lead].Timestamp)
		if err != nil {
			return model.SyncReport{}, fmt.Errorf("save %s: %w", key, err)
		}
		if !ok {
			break
		}
		deleted++
	}

	// Trailing overlap. Rows before lead are already gone.
	for i := len(bars) - 1; i > lead; i-- {
		ok, err := m.store.DeleteOne(ctx, key, bars[i].Timestamp)
		if err != nil {
			return model.SyncReport{}, fmt.Errorf("save %s: %w", key, err)
		}
		if !ok {
			break
		}
		deleted++
	}

	err := m.store.InsertMany(ctx, key, bars)
	if errors.Is(err, model.ErrDuplicate) {
		// A gap inside the overlap stopped both scans early.
		swept, serr := m.sweep(ctx, key, bars)
		if serr != nil {
			return model.SyncReport{}, fmt.Errorf("save %s: %w", key, serr)
		}
		m.logger.Warn("overlap had a gap, replaced interior rows",
			"key", key,
			"swept", swept,
		)
		deleted += swept
		err = m.store.InsertMany(ctx, key, bars)
	}
	if err != nil {
		return model.SyncReport{}, fmt.Errorf("save %s: %w", key, err)
	}
	if err := m.store.EnsureIndex(ctx, key); err != nil {
		return model.SyncReport{}, fmt.Errorf("save %s: %w", key, err)
	}

	m.metrics.Merged(len(bars), deleted)

	return model.SyncReport{
		Key:            key,
		FirstTimestamp: bars[0].Timestamp,
		LastTimestamp:  bars[len(bars)-1].Timestamp,
		Inserted:       len(bars),
		Deleted:        deleted,
		Pages:          1,
	}, nil
}

// sweep deletes the stored rows at the batch timestamps and returns how
// many were removed. Matching goes through DeleteOne so stores that round
// timestamps compare at their own precision.
func (m *Merger) sweep(ctx context.Context, key model.SeriesKey, bars []model.Bar) (int, error) {
	n := 0
	for _, b := range bars {
		ok, err := m.store.DeleteOne(ctx, key, b.Timestamp)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Sync fetches the job's window and merges it. When the provider reports
// the window is too large, it is fetched in pages of Options.PageSize
// anchored at the job's start, each page merged before the next is
// requested. A job without a start cannot be paginated and fails with
// model.ErrConfig. An empty fetch yields a zero report.
func (m *Merger) Sync(ctx context.Context, job model.FetchJob) (model.SyncReport, error) {
	req := provider.Request{
		Key:   job.Key,
		Start: job.Start,
		End:   job.End,
	}
	if job.Extra[ExtraStartExclusive] == "true" {
		req.StartExclusive = true
	}
	return m.sync(ctx, req)
}

// ExtraStartExclusive is the FetchJob.Extra flag that excludes the bar at Start.
const ExtraStartExclusive = "start_exclusive"

func (m *Merger) sync(ctx context.Context, req provider.Request) (model.SyncReport, error) {
	total := model.SyncReport{Key: req.Key}

	for {
		bars, err := m.provider.Fetch(ctx, req)
		if err == nil {
			if len(bars) == 0 {
				return total, nil
			}
			rep, err := m.Save(ctx, req.Key, bars)
			if err != nil {
				return total, err
			}
			return total.Combine(rep), nil
		}

		if !errors.Is(err, provider.ErrNeedsPagination) {
			return total, fmt.Errorf("fetch %s: %w", req.Key, err)
		}
		if req.Start == nil {
			return total, fmt.Errorf("%w: start is required to paginate %s", model.ErrConfig, req.Key)
		}

		rep, full, err := m.savePage(ctx, req)
		if err != nil {
			return total, err
		}
		total = total.Combine(rep)

		m.logger.Debug("merged page",
			"key", req.Key,
			"last", rep.LastTimestamp,
			"inserted", rep.Inserted,
			"deleted", rep.Deleted,
		)

		if !full {
			return total, nil
		}

		// Resume after the last merged bar with the original end.
		last := rep.LastTimestamp
		req.Start = &last
		req.StartExclusive = true
	}
}

// savePage fetches and merges one counted page from req.Start. full
// reports whether more data may follow.
func (m *Merger) savePage(ctx context.Context, req provider.Request) (model.SyncReport, bool, error) {
	page := req
	page.End = nil
	page.Count = m.opts.PageSize

	bars, err := m.provider.Fetch(ctx, page)
	if err != nil {
		return model.SyncReport{}, false, fmt.Errorf("fetch page %s: %w", req.Key, err)
	}
	if len(bars) == 0 {
		return model.SyncReport{}, false, fmt.Errorf("fetch page %s: provider asked to paginate but returned no bars", req.Key)
	}

	// The client drops the start bar itself when a server ignores
	// includeFirst, so an exclusive page may come back one short and still
	// be full.
	full := len(bars) >= page.Count || (req.StartExclusive && len(bars) >= page.Count-1)

	// A counted page ignores the end bound; trim what lies past it.
	if req.End != nil {
		bounds := store.Query{End: req.End}
		n := len(bars)
		for n > 0 && !bounds.Contains(bars[n-1].Timestamp) {
			n--
		}
		if n < len(bars) {
			full = false
		}
		if n == 0 {
			return model.SyncReport{}, false, nil
		}
		bars = bars[:n]
	}

	if !bars[len(bars)-1].Timestamp.After(*req.Start) && req.StartExclusive {
		return model.SyncReport{}, false, fmt.Errorf("fetch page %s: page did not advance past %s", req.Key, req.Start.Format(time.RFC3339))
	}

	rep, err := m.Save(ctx, req.Key, bars)
	if err != nil {
		return model.SyncReport{}, false, err
	}
	return rep, full, nil
}

// Update resumes a stored series from its most recent bar. A series with
// no stored bars fails with model.ErrNotFound. When the provider has
// nothing newer the report has UpToDate set.
func (m *Merger) Update(ctx context.Context, key model.SeriesKey) (model.SyncReport, error) {
	last, err := store.Last(ctx, m.store, key)
	if err != nil {
		return model.SyncReport{}, fmt.Errorf("update %s: %w", key, err)
	}

	start := last.Timestamp
	rep, err := m.sync(ctx, provider.Request{
		Key:            key,
		Start:          &start,
		StartExclusive: true,
	})
	if err != nil {
		return rep, fmt.Errorf("update %s: %w", key, err)
	}

	if rep.Inserted == 0 {
		return model.SyncReport{
			Key:           key,
			LastTimestamp: last.Timestamp,
			UpToDate:      true,
		}, nil
	}
	return rep, nil
}

// SyncJob adapts Sync to a worker pool handler.
func (m *Merger) SyncJob(ctx context.Context, job model.FetchJob) (*model.SyncReport, error) {
	rep, err := m.Sync(ctx, job)
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

// UpdateJob adapts Update to a worker pool handler. Only job.Key is used.
func (m *Merger) UpdateJob(ctx context.Context, job model.FetchJob) (*model.SyncReport, error) {
	rep, err := m.Update(ctx, job.Key)
	if err != nil {
		return nil, err
	}
	return &rep, nil
}
