// Package parquet loads and saves bar history as Parquet files, one file per
// symbol and timeframe, using the polygon-style column layout
// (t in Unix milliseconds, o/h/l/c, v).
package parquet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"trendsignal/internal/model"
)

// Row is the on-disk layout of one bar.
type Row struct {
	Timestamp int64   `parquet:"t"` // Unix milliseconds
	Open      float64 `parquet:"o"`
	High      float64 `parquet:"h"`
	Low       float64 `parquet:"l"`
	Close     float64 `parquet:"c"`
	Volume    int64   `parquet:"v"`
}

func toRow(b model.Bar) Row {
	return Row{Timestamp: b.TS.UnixMilli(), Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
}

func (r Row) bar() model.Bar {
	return model.Bar{TS: time.UnixMilli(r.Timestamp).UTC(), Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume}
}

// ReadFile loads every bar in path, sorted by time.
func ReadFile(path string) ([]model.Bar, error) {
	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	bars := make([]model.Bar, len(rows))
	for i, r := range rows {
		bars[i] = r.bar()
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].TS.Before(bars[j].TS) })
	return bars, nil
}

// WriteFile saves bars to path, replacing any existing file.
func WriteFile(path string, bars []model.Bar) error {
	rows := make([]Row, len(bars))
	for i, b := range bars {
		rows[i] = toRow(b)
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("write parquet %s: %w", path, err)
	}
	return nil
}

// Store keeps one file per symbol/timeframe under Dir. It implements
// model.BarReader and model.BarWriter.
type Store struct {
	Dir string
}

// NewStore creates dir if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{Dir: dir}, nil
}

// Path returns the file holding symbol/tf.
func (s *Store) Path(symbol string, tf model.Timeframe) string {
	return filepath.Join(s.Dir, symbol+"_"+string(tf)+".parquet")
}

// ReadBars returns bars with TS >= from. A missing file yields no bars.
func (s *Store) ReadBars(ctx context.Context, symbol string, tf model.Timeframe, from time.Time) ([]model.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.Path(symbol, tf)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	bars, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	i := sort.Search(len(bars), func(i int) bool { return !bars[i].TS.Before(from) })
	return bars[i:], nil
}

// WriteBars merges bars into the symbol/tf file; a later bar with the same
// timestamp replaces the stored one.
func (s *Store) WriteBars(ctx context.Context, symbol string, tf model.Timeframe, bars []model.Bar) error {
	existing, err := s.ReadBars(ctx, symbol, tf, time.Time{})
	if err != nil {
		return err
	}
	byTS := make(map[int64]model.Bar, len(existing)+len(bars))
	for _, b := range existing {
		byTS[b.TS.UnixMilli()] = b
	}
	for _, b := range bars {
		byTS[b.TS.UnixMilli()] = b
	}
	merged := make([]model.Bar, 0, len(byTS))
	for _, b := range byTS {
		merged = append(merged, b)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].TS.Before(merged[j].TS) })
	return WriteFile(s.Path(symbol, tf), merged)
}

// Close is a no-op; files are opened per call.
func (s *Store) Close() error { return nil }
