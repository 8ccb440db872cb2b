package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/rickgao/barsync/internal/model"
	"github.com/rickgao/barsync/internal/store"
)

// Formats.
const (
	FormatParquet = "parquet"
	FormatJSON    = "json"
)

// Row is the exported shape of one bar.
type Row struct {
	Datetime int64   `json:"datetime" parquet:"datetime"` // Unix milliseconds, UTC
	Open     float64 `json:"open" parquet:"open"`
	High     float64 `json:"high" parquet:"high"`
	Low      float64 `json:"low" parquet:"low"`
	Close    float64 `json:"close" parquet:"close"`
	Volume   float64 `json:"volume" parquet:"volume"`
}

// ToRows converts bars to rows.
func ToRows(bars []model.Bar) []Row {
	rows := make([]Row, len(bars))
	for i, b := range bars {
		rows[i] = Row{
			Datetime: b.Timestamp.UnixMilli(),
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
			Volume:   b.Volume,
		}
	}
	return rows
}

// Bar converts a row back to a bar.
func (r Row) Bar() model.Bar {
	return model.Bar{
		Timestamp: time.UnixMilli(r.Datetime).UTC(),
		Open:      r.Open,
		High:      r.High,
		Low:       r.Low,
		Close:     r.Close,
		Volume:    r.Volume,
	}
}

// Encoder writes rows in one format.
type Encoder interface {
	Encode(w io.Writer, rows []Row) error
	Extension() string
}

// ParquetEncoder writes a single parquet file.
type ParquetEncoder struct{}

func (ParquetEncoder) Extension() string { return FormatParquet }

func (ParquetEncoder) Encode(w io.Writer, rows []Row) error {
	return parquet.Write(w, rows)
}

// JSONEncoder writes an indented JSON array.
type JSONEncoder struct{}

func (JSONEncoder) Extension() string { return FormatJSON }

func (JSONEncoder) Encode(w io.Writer, rows []Row) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

// NewEncoder returns the encoder for format.
func NewEncoder(format string) (Encoder, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatParquet:
		return ParquetEncoder{}, nil
	case FormatJSON:
		return JSONEncoder{}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported export format %q (use parquet or json)", model.ErrConfig, format)
	}
}

// Result describes a written file.
type Result struct {
	Key  model.SeriesKey
	Path string
	Rows int
}

// Series writes the stored bars for key within q to dir/<key>.<ext>.
func Series(ctx context.Context, s store.Store, key model.SeriesKey, q store.Query, dir, format string) (Result, error) {
	enc, err := NewEncoder(format)
	if err != nil {
		return Result{}, err
	}

	bars, err := store.FindAll(ctx, s, key, q)
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", key, err)
	}
	if len(bars) == 0 {
		return Result{}, fmt.Errorf("export %s: %w", key, model.ErrNotFound)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, key.String()+"."+enc.Extension())

	f, err := os.Create(path)
	if err != nil {
		return Result{}, fmt.Errorf("create %s: %w", path, err)
	}
	if err := enc.Encode(f, ToRows(bars)); err != nil {
		f.Close()
		return Result{}, fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return Result{}, fmt.Errorf("close %s: %w", path, err)
	}

	return Result{Key: key, Path: path, Rows: len(bars)}, nil
}

// ReadParquet loads rows written by ParquetEncoder.
func ReadParquet(path string) ([]Row, error) {
	return parquet.ReadFile[Row](path)
}

// ReadJSON loads rows written by JSONEncoder.
func ReadJSON(path string) ([]Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
