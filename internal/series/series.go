// Package series holds the bounded, time-ordered bar history of one
// instrument and timeframe. It is the single source of truth the indicator
// engine and backtests are derived from.
package series

import (
	"fmt"
	"sort"
	"time"

	"trendsignal/internal/model"
	"trendsignal/internal/ringbuf"
)

// PriceSeries is an append-only bar buffer with strictly increasing
// timestamps, bounded to a retention window (oldest evicted first).
// Not safe for concurrent use: one writer at a time.
type PriceSeries struct {
	symbol    string
	timeframe model.Timeframe
	bars      *ringbuf.Ring[model.Bar]
}

// New creates an empty series retaining at most retention bars.
func New(symbol string, tf model.Timeframe, retention int) (*PriceSeries, error) {
	if retention <= 0 {
		return nil, &model.InvalidConfigurationError{Field: "retention_bars", Value: retention, Reason: "must be positive"}
	}
	if !tf.Valid() {
		return nil, &model.InvalidConfigurationError{Field: "timeframe", Value: tf, Reason: "unsupported timeframe"}
	}
	return &PriceSeries{
		symbol:    symbol,
		timeframe: tf,
		bars:      ringbuf.New[model.Bar](retention),
	}, nil
}

// FromBars builds a series holding all of bars, retention = len(bars).
// Every bar goes through Append; the first rejected bar fails the build with
// its index wrapped around the *model.OutOfOrderError or *model.InvalidBarError.
func FromBars(symbol string, tf model.Timeframe, bars []model.Bar) (*PriceSeries, error) {
	retention := len(bars)
	if retention == 0 {
		retention = 1
	}
	s, err := New(symbol, tf, retention)
	if err != nil {
		return nil, err
	}
	for i, b := range bars {
		if err := s.Append(b); err != nil {
			return nil, fmt.Errorf("bar %d: %w", i, err)
		}
	}
	return s, nil
}

// Append adds bar to the end of the series.
// Returns *model.OutOfOrderError if bar.TS is not after the last bar and
// *model.InvalidBarError for unusable bars; the series is unchanged on error.
func (s *PriceSeries) Append(bar model.Bar) error {
	if err := bar.Validate(); err != nil {
		return err
	}
	if last, ok := s.bars.Last(); ok && !bar.TS.After(last.TS) {
		return &model.OutOfOrderError{Symbol: s.symbol, LastTS: last.TS, BarTS: bar.TS}
	}
	s.bars.Push(bar)
	return nil
}

// Slice returns the last n bars (fewer if unavailable), oldest first.
// The returned slice is a copy.
func (s *PriceSeries) Slice(n int) []model.Bar {
	return s.bars.Tail(n)
}

// Bars returns a copy of every retained bar, oldest first.
func (s *PriceSeries) Bars() []model.Bar {
	return s.bars.Tail(s.bars.Len())
}

// At returns the i-th retained bar, oldest first.
func (s *PriceSeries) At(i int) model.Bar { return s.bars.At(i) }

// Last returns the newest bar, or false when empty.
func (s *PriceSeries) Last() (model.Bar, bool) { return s.bars.Last() }

// Len returns the number of retained bars.
func (s *PriceSeries) Len() int { return s.bars.Len() }

// Retention returns the maximum number of retained bars.
func (s *PriceSeries) Retention() int { return s.bars.Cap() }

// Evicted returns how many bars were dropped by the retention limit.
func (s *PriceSeries) Evicted() uint64 { return s.bars.Evicted() }

// Symbol returns the instrument symbol.
func (s *PriceSeries) Symbol() string { return s.symbol }

// Timeframe returns the bar interval.
func (s *PriceSeries) Timeframe() model.Timeframe { return s.timeframe }

// IndexAtOrAfter returns the index of the first bar with TS >= t,
// or Len() when every bar is before t.
func (s *PriceSeries) IndexAtOrAfter(t time.Time) int {
	n := s.bars.Len()
	return sort.Search(n, func(i int) bool {
		return !s.bars.At(i).TS.Before(t)
	})
}
