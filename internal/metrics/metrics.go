package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "barsync"

// Job outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomePanic = "panic"
)

// Collector holds every barsync metric. It implements prometheus.Collector
// so a single Register call exposes all of them.
type Collector struct {
	jobsProcessed    *prometheus.CounterVec
	jobDuration      prometheus.Histogram
	rowsInserted     prometheus.Counter
	rowsDeleted      prometheus.Counter
	pages            prometheus.Counter
	providerRequests *prometheus.CounterVec
	streamEvents     *prometheus.CounterVec
	queueDepth       prometheus.Gauge
	queueMaxDepth    prometheus.Gauge
	queueResizes     prometheus.Gauge
}

// New returns a Collector with unregistered metrics.
func New() *Collector {
	return &Collector{
		jobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Fetch jobs handled by the worker pool, partitioned by outcome.",
		}, []string{"outcome"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time spent inside the job handler.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms -> ~80s
		}),
		rowsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_rows_inserted_total",
			Help:      "Bars written by the series merger.",
		}),
		rowsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_rows_deleted_total",
			Help:      "Stored bars replaced during overlap trimming.",
		}),
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_pages_total",
			Help:      "Provider pages merged, including pagination continuations.",
		}),
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Requests made to the market data provider, partitioned by outcome.",
		}, []string{"provider", "outcome"}),
		streamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Events emitted by stream cursors, partitioned by type.",
		}, []string{"type"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Jobs waiting in the job queue.",
		}),
		queueMaxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_max_depth",
			Help:      "Largest job queue length seen by the current queue.",
		}),
		queueResizes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_resizes",
			Help:      "Times the current job queue grew its buffer.",
		}),
	}
}

// Register adds the collector to reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	return reg.Register(c)
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.jobsProcessed.Describe(ch)
	c.jobDuration.Describe(ch)
	c.rowsInserted.Describe(ch)
	c.rowsDeleted.Describe(ch)
	c.pages.Describe(ch)
	c.providerRequests.Describe(ch)
	c.streamEvents.Describe(ch)
	c.queueDepth.Describe(ch)
	c.queueMaxDepth.Describe(ch)
	c.queueResizes.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.jobsProcessed.Collect(ch)
	c.jobDuration.Collect(ch)
	c.rowsInserted.Collect(ch)
	c.rowsDeleted.Collect(ch)
	c.pages.Collect(ch)
	c.providerRequests.Collect(ch)
	c.streamEvents.Collect(ch)
	c.queueDepth.Collect(ch)
	c.queueMaxDepth.Collect(ch)
	c.queueResizes.Collect(ch)
}

// JobDone records one handled job.
func (c *Collector) JobDone(outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.jobsProcessed.WithLabelValues(outcome).Inc()
	c.jobDuration.Observe(d.Seconds())
}

// Merged records the row counts of one merged page.
func (c *Collector) Merged(inserted, deleted int) {
	if c == nil {
		return
	}
	c.pages.Inc()
	c.rowsInserted.Add(float64(inserted))
	c.rowsDeleted.Add(float64(deleted))
}

// ProviderRequest records one provider call.
func (c *Collector) ProviderRequest(provider string, err error) {
	if c == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	c.providerRequests.WithLabelValues(provider, outcome).Inc()
}

// StreamEvent records one emitted stream event.
func (c *Collector) StreamEvent(eventType string) {
	if c == nil {
		return
	}
	c.streamEvents.WithLabelValues(eventType).Inc()
}

// ObserveQueue reports the job queue length, its high-water mark and how
// often it has grown.
func (c *Collector) ObserveQueue(depth, maxDepth, resizes int) {
	if c == nil {
		return
	}
	c.queueDepth.Set(float64(depth))
	c.queueMaxDepth.Set(float64(maxDepth))
	c.queueResizes.Set(float64(resizes))
}
