// Package providertest provides an in-memory Provider for tests.
package providertest

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rickgao/barsync/internal/model"
	"github.com/rickgao/barsync/internal/provider"
)

// Series serves fixed bars per key and enforces a page cap the way the
// real provider does: an uncounted request matching more than Cap bars
// fails with code 36.
type Series struct {
	Cap int // 0 = unlimited

	// IgnoreExclusiveStart serves counted pages the way servers that ignore
	// includeFirst do: the count includes the start bar, which the client
	// then drops.
	IgnoreExclusiveStart bool

	mu       sync.Mutex
	bars     map[model.SeriesKey][]model.Bar
	requests []provider.Request
	failures map[model.SeriesKey]error
}

// New creates an empty Series with the given page cap.
func New(cap int) *Series {
	return &Series{
		Cap:      cap,
		bars:     make(map[model.SeriesKey][]model.Bar),
		failures: make(map[model.SeriesKey]error),
	}
}

// Set replaces the bars served for key. bars must be ascending.
func (s *Series) Set(key model.SeriesKey, bars []model.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars[key] = append([]model.Bar(nil), bars...)
}

// Append adds bars to the end of the series for key.
func (s *Series) Append(key model.SeriesKey, bars ...model.Bar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bars[key] = append(s.bars[key], bars...)
}

// Fail makes every fetch for key return err. A nil err clears it.
func (s *Series) Fail(key model.SeriesKey, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, key)
		return
	}
	s.failures[key] = err
}

// Requests returns every request received so far.
func (s *Series) Requests() []provider.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]provider.Request(nil), s.requests...)
}

// Name implements provider.Provider.
func (s *Series) Name() string {
	return "test"
}

// Fetch implements provider.Provider.
func (s *Series) Fetch(ctx context.Context, req provider.Request) ([]model.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if err := s.failures[req.Key]; err != nil {
		return nil, err
	}

	dropStart := req.StartExclusive && req.Start != nil
	keepStart := dropStart && s.IgnoreExclusiveStart && req.Count > 0

	var out []model.Bar
	for _, b := range s.bars[req.Key] {
		if req.Start != nil {
			if b.Timestamp.Before(*req.Start) {
				continue
			}
			if dropStart && !keepStart && b.Timestamp.Equal(*req.Start) {
				continue
			}
		}
		if req.End != nil && b.Timestamp.After(*req.End) {
			break
		}
		out = append(out, b)
	}

	if req.Count > 0 {
		if s.Cap > 0 && req.Count > s.Cap {
			return nil, tooMany()
		}
		if len(out) > req.Count {
			out = out[:req.Count]
		}
		if keepStart && len(out) > 0 && out[0].Timestamp.Equal(*req.Start) {
			out = out[1:]
		}
		return out, nil
	}

	if s.Cap > 0 && len(out) > s.Cap {
		return nil, tooMany()
	}
	return out, nil
}

func tooMany() error {
	return &provider.Error{
		StatusCode: http.StatusBadRequest,
		Code:       provider.CodeTooManyCandles,
		Message:    "Maximum value for 'count' exceeded",
	}
}

// Bars builds n one-minute bars starting at start. Close prices count up
// from 1.
func Bars(start time.Time, n int) []model.Bar {
	out := make([]model.Bar, n)
	for i := range out {
		p := float64(i + 1)
		out[i] = model.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      p,
			High:      p + 0.5,
			Low:       p - 0.5,
			Close:     p,
			Volume:    float64(10 * (i + 1)),
		}
	}
	return out
}
