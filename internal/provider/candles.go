package provider

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rickgao/barsync/internal/model"
)

// candleFormat is fixed: bars are built from bid/ask midpoints.
const candleFormat = "midpoint"

// CandlesResponse is the candles endpoint payload.
type CandlesResponse struct {
	Instrument  string   `json:"instrument"`
	Granularity string   `json:"granularity"`
	Candles     []Candle `json:"candles"`
}

// Candle is one midpoint candle.
type Candle struct {
	Time     string  `json:"time"`
	OpenMid  float64 `json:"openMid"`
	HighMid  float64 `json:"highMid"`
	LowMid   float64 `json:"lowMid"`
	CloseMid float64 `json:"closeMid"`
	Volume   float64 `json:"volume"`
	Complete bool    `json:"complete"`
}

// ToBar converts a candle to a Bar.
func (c Candle) ToBar() (model.Bar, error) {
	ts, err := time.Parse(time.RFC3339Nano, c.Time)
	if err != nil {
		return model.Bar{}, fmt.Errorf("parse candle time %q: %w", c.Time, err)
	}
	return model.Bar{
		Timestamp: ts.UTC(),
		Open:      c.OpenMid,
		High:      c.HighMid,
		Low:       c.LowMid,
		Close:     c.CloseMid,
		Volume:    c.Volume,
	}, nil
}

// GetCandles fetches one page of candles.
func (c *Client) GetCandles(ctx context.Context, req Request) (*CandlesResponse, error) {
	query := url.Values{}
	query.Set("granularity", req.Key.Resolution)
	query.Set("candleFormat", candleFormat)

	if req.Start != nil {
		query.Set("start", req.Start.UTC().Format(time.RFC3339Nano))
		if req.StartExclusive {
			query.Set("includeFirst", "false")
		}
	}
	if req.End != nil {
		query.Set("end", req.End.UTC().Format(time.RFC3339Nano))
	}
	if req.Count > 0 {
		query.Set("count", strconv.Itoa(req.Count))
	}

	var resp CandlesResponse
	path := "/instruments/" + url.PathEscape(req.Key.Symbol) + "/candles"
	if err := c.get(ctx, path, query, &resp); err != nil {
		return nil, fmt.Errorf("get candles %s: %w", req.Key, err)
	}

	return &resp, nil
}

// Fetch implements Provider.
func (c *Client) Fetch(ctx context.Context, req Request) ([]model.Bar, error) {
	resp, err := c.GetCandles(ctx, req)
	if err != nil {
		return nil, err
	}

	bars := make([]model.Bar, 0, len(resp.Candles))
	skipped := 0
	for _, candle := range resp.Candles {
		if !candle.Complete && !c.includeIncomplete {
			skipped++
			continue
		}
		bar, err := candle.ToBar()
		if err != nil {
			return nil, fmt.Errorf("get candles %s: %w", req.Key, err)
		}
		// Guard against servers that ignore includeFirst.
		if req.StartExclusive && req.Start != nil && !bar.Timestamp.After(*req.Start) {
			continue
		}
		bars = append(bars, bar)
	}

	c.logger.Debug("fetched candles",
		"key", req.Key,
		"bars", len(bars),
		"incomplete_skipped", skipped,
	)

	return bars, nil
}
