package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"trendsignal/internal/model"
)

var base = time.Date(2024, 1, 15, 9, 15, 0, 0, time.UTC)

func sineBars(n int) []model.Bar {
	bars := make([]model.Bar, n)
	for i := range bars {
		c := 100 + 10*math.Sin(float64(i)/8) + 0.05*float64(i)
		bars[i] = model.Bar{
			TS:     base.Add(time.Duration(i) * time.Minute),
			Open:   c - 0.2,
			High:   c + 0.5,
			Low:    c - 0.5,
			Close:  c,
			Volume: int64(1000 + (i*37)%500),
		}
	}
	return bars
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestEngine_WarmupReadiness(t *testing.T) {
	e := newEngine(t)
	cfg := DefaultConfig()

	for i, b := range sineBars(60) {
		snap := e.Update(b)
		n := i + 1 // bars fed

		if snap.Index != i {
			t.Fatalf("bar %d: snapshot index %d", i, snap.Index)
		}
		if got, want := snap.RSI.Ready, n > cfg.RSIPeriod; got != want {
			t.Errorf("bar %d: RSI ready=%v, want %v", n, got, want)
		}
		if got, want := snap.MACDLine.Ready, n >= cfg.MACDSlow; got != want {
			t.Errorf("bar %d: MACD line ready=%v, want %v", n, got, want)
		}
		if got, want := snap.Histogram.Ready, n >= cfg.MACDSlow+cfg.MACDSignal-1; got != want {
			t.Errorf("bar %d: histogram ready=%v, want %v", n, got, want)
		}
		if got, want := snap.BollingerMid.Ready, n >= cfg.BollingerPeriod; got != want {
			t.Errorf("bar %d: bollinger ready=%v, want %v", n, got, want)
		}
		if got, want := snap.PriorHigh.Ready, n > cfg.DivergenceLookback; got != want {
			t.Errorf("bar %d: prior high ready=%v, want %v", n, got, want)
		}
	}
	if !e.Warm() {
		t.Error("engine should be warm after 60 bars")
	}
}

func TestEngine_NotReadyValuesAreZero(t *testing.T) {
	e := newEngine(t)
	snap := e.Update(sineBars(1)[0])
	for name, r := range map[string]model.Reading{
		"rsi": snap.RSI, "macd": snap.MACDLine, "signal": snap.SignalLine,
		"hist": snap.Histogram, "upper": snap.BollingerUpper,
	} {
		if r.Ready || r.Value != 0 {
			t.Errorf("%s: expected not-ready zero reading, got %+v", name, r)
		}
	}
}

func TestEngine_IncrementalMatchesRecompute(t *testing.T) {
	bars := sineBars(200)
	e := newEngine(t)
	live := make([]model.IndicatorSnapshot, len(bars))
	for i, b := range bars {
		live[i] = e.Update(b)
	}

	replayed, err := Recompute(DefaultConfig(), bars)
	if err != nil {
		t.Fatal(err)
	}

	for i := range bars {
		if live[i] != replayed[i] {
			t.Fatalf("bar %d: incremental %+v != recompute %+v", i, live[i], replayed[i])
		}
	}
}

func TestEngine_MACDMatchesDirectEMA(t *testing.T) {
	bars := sineBars(120)
	snaps, _ := Recompute(DefaultConfig(), bars)

	// Recompute the MACD line at the last bar straight from the recurrence.
	emaAt := func(period int, upto int) float64 {
		k := 2.0 / float64(period+1)
		var sum float64
		for i := 0; i < period; i++ {
			sum += bars[i].Close
		}
		ema := sum / float64(period)
		for i := period; i <= upto; i++ {
			ema = bars[i].Close*k + ema*(1-k)
		}
		return ema
	}
	last := len(bars) - 1
	want := emaAt(12, last) - emaAt(26, last)
	assertClose(t, "MACD line", snaps[last].MACDLine.Value, want, 1e-9)
}

func TestEngine_RSIAndBandsInvariants(t *testing.T) {
	snaps, _ := Recompute(DefaultConfig(), sineBars(300))
	for _, s := range snaps {
		if s.RSI.Ready && (s.RSI.Value < 0 || s.RSI.Value > 100) {
			t.Fatalf("bar %d: RSI %.4f out of range", s.Index, s.RSI.Value)
		}
		if s.BollingerMid.Ready && (s.BollingerUpper.Value < s.BollingerMid.Value || s.BollingerMid.Value < s.BollingerLower.Value) {
			t.Fatalf("bar %d: bands out of order", s.Index)
		}
	}
}

func TestEngine_PeekDoesNotMutateAndMatchesUpdate(t *testing.T) {
	bars := sineBars(80)
	e := newEngine(t)
	for _, b := range bars[:79] {
		e.Update(b)
	}
	before, _ := e.Last()

	// A wild preview must not leak into state.
	wild := bars[79]
	wild.Close = 999
	e.Peek(wild)
	if after, _ := e.Last(); after != before {
		t.Fatal("Peek mutated engine state")
	}

	peek := e.Peek(bars[79])
	got := e.Update(bars[79])

	if !peek.Live() {
		t.Error("peek snapshot should be marked live")
	}
	assertClose(t, "peek rsi", peek.RSI.Value, got.RSI.Value, 1e-9)
	assertClose(t, "peek macd", peek.MACDLine.Value, got.MACDLine.Value, 1e-9)
	assertClose(t, "peek hist", peek.Histogram.Value, got.Histogram.Value, 1e-9)
	assertClose(t, "peek upper", peek.BollingerUpper.Value, got.BollingerUpper.Value, 1e-9)
	assertClose(t, "peek volume", peek.VolumeSMA.Value, got.VolumeSMA.Value, 1e-9)
	if peek.PriorHigh != got.PriorHigh || peek.PriorLow != got.PriorLow {
		t.Errorf("peek extremes %+v/%+v != update %+v/%+v", peek.PriorHigh, peek.PriorLow, got.PriorHigh, got.PriorLow)
	}
}

func TestEngine_ResetMatchesFreshEngine(t *testing.T) {
	bars := sineBars(100)
	used := newEngine(t)
	for _, b := range sineBars(40) {
		used.Update(b)
	}
	used.Reset()
	if used.Count() != 0 || len(used.History(10)) != 0 {
		t.Fatal("reset must clear count and history")
	}

	fresh := newEngine(t)
	for i, b := range bars {
		if a, f := used.Update(b), fresh.Update(b); a != f {
			t.Fatalf("bar %d: reset engine %+v != fresh %+v", i, a, f)
		}
	}
}

func TestEngine_HistoryBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HistorySize = 16
	e, _ := NewEngine(cfg)
	for _, b := range sineBars(50) {
		e.Update(b)
	}
	h := e.History(100)
	if len(h) != 16 {
		t.Fatalf("expected 16 snapshots kept, got %d", len(h))
	}
	if h[0].Index != 34 || h[15].Index != 49 {
		t.Errorf("unexpected history window %d..%d", h[0].Index, h[15].Index)
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name  string
		mut   func(*Config)
		field string
	}{
		{"zero rsi", func(c *Config) { c.RSIPeriod = 0 }, "rsi_period"},
		{"negative signal", func(c *Config) { c.MACDSignal = -1 }, "macd_signal"},
		{"fast above slow", func(c *Config) { c.MACDFast = 30 }, "macd_fast"},
		{"zero stddev", func(c *Config) { c.BollingerStdDev = 0 }, "bollinger_stddev"},
		{"zero lookback", func(c *Config) { c.DivergenceLookback = 0 }, "divergence_lookback"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mut(&cfg)
			_, err := NewEngine(cfg)
			var cfgErr *model.InvalidConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected InvalidConfigurationError, got %v", err)
			}
			if cfgErr.Field != tc.field {
				t.Errorf("field = %s, want %s", cfgErr.Field, tc.field)
			}
		})
	}
}

func TestConfig_Warmup(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.ReplayWarmup(); got != 35 {
		t.Errorf("ReplayWarmup = %d, want 35", got)
	}
	if got := cfg.Warmup(); got != 34 {
		t.Errorf("Warmup = %d, want 34", got)
	}
}
