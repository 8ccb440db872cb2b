package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Series Identity
// -----------------------------------------------------------------------------

// SeriesKey identifies one logical time series. It doubles as the
// collection/table name in the store.
type SeriesKey struct {
	Symbol     string // Instrument (e.g., "EUR_USD")
	Resolution string // Granularity (e.g., "M30", "H1", "D")
}

// String returns the collection name for the key.
func (k SeriesKey) String() string {
	return k.Symbol + "." + k.Resolution
}

// IsZero reports whether the key is unset.
func (k SeriesKey) IsZero() bool {
	return k.Symbol == "" && k.Resolution == ""
}

// ParseSeriesKey parses a collection name of the form "SYMBOL.RESOLUTION".
// The resolution is taken after the last dot so symbols may contain dots.
func ParseSeriesKey(name string) (SeriesKey, error) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return SeriesKey{}, fmt.Errorf("%w: invalid series key %q", ErrConfig, name)
	}
	return SeriesKey{Symbol: name[:i], Resolution: name[i+1:]}, nil
}

// -----------------------------------------------------------------------------
// Time-Series Types
// -----------------------------------------------------------------------------

// Bar is one OHLCV record.
type Bar struct {
	Timestamp time.Time // Bar open time, ordering key
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// ValidateOrder checks that timestamps are strictly increasing.
func ValidateOrder(bars []Bar) error {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return fmt.Errorf("%w: bar %d at %s does not follow %s",
				ErrUnordered, i, bars[i].Timestamp.Format(time.RFC3339Nano),
				bars[i-1].Timestamp.Format(time.RFC3339Nano))
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Jobs and Reports
// -----------------------------------------------------------------------------

// FetchJob is one unit of work for the worker pool. It must not be
// mutated after it has been enqueued.
type FetchJob struct {
	ID    uuid.UUID
	Key   SeriesKey
	Start *time.Time // Inclusive lower bound, nil = provider default
	End   *time.Time // Inclusive upper bound, nil = open ended
	Extra map[string]string
}

// NewFetchJob creates a job with a fresh ID.
func NewFetchJob(key SeriesKey, start, end *time.Time) FetchJob {
	return FetchJob{
		ID:    uuid.New(),
		Key:   key,
		Start: start,
		End:   end,
	}
}

// SyncReport summarizes a completed merge. Reports are returned to callers
// for logging and chaining; they are never persisted.
type SyncReport struct {
	Key            SeriesKey
	FirstTimestamp time.Time
	LastTimestamp  time.Time
	Inserted       int  // Rows written (batch length)
	Deleted        int  // Stored rows replaced by the batch
	Pages          int  // Provider pages merged into this report
	UpToDate       bool // Update found nothing new
}

// Combine folds another report for the same key into r.
func (r SyncReport) Combine(o SyncReport) SyncReport {
	if o.Inserted == 0 && o.Deleted == 0 && o.FirstTimestamp.IsZero() {
		r.Pages += o.Pages
		return r
	}
	if r.FirstTimestamp.IsZero() || o.FirstTimestamp.Before(r.FirstTimestamp) {
		r.FirstTimestamp = o.FirstTimestamp
	}
	if o.LastTimestamp.After(r.LastTimestamp) {
		r.LastTimestamp = o.LastTimestamp
	}
	r.Inserted += o.Inserted
	r.Deleted += o.Deleted
	r.Pages += o.Pages
	r.UpToDate = false
	if r.Key.IsZero() {
		r.Key = o.Key
	}
	return r
}

// String renders the report the way the collector logs it.
func (r SyncReport) String() string {
	if r.UpToDate {
		return fmt.Sprintf("%s already up to date", r.Key)
	}
	if r.Inserted == 0 && r.FirstTimestamp.IsZero() {
		return fmt.Sprintf("%s no data", r.Key)
	}
	return fmt.Sprintf("%s %s..%s inserted=%d deleted=%d",
		r.Key,
		r.FirstTimestamp.Format(time.RFC3339),
		r.LastTimestamp.Format(time.RFC3339),
		r.Inserted, r.Deleted)
}
