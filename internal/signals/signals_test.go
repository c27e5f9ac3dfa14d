package signals

import (
	"errors"
	"testing"
	"time"

	"trendsignal/internal/model"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// neutral returns a fully warm snapshot that triggers nothing on its own.
func neutral(i int) model.IndicatorSnapshot {
	return model.IndicatorSnapshot{
		Index:          i,
		TS:             t0.Add(time.Duration(i) * time.Minute),
		Close:          100,
		Volume:         1000,
		RSI:            model.ReadyReading(50),
		MACDLine:       model.ReadyReading(0.3),
		SignalLine:     model.ReadyReading(0.2),
		Histogram:      model.ReadyReading(0.1),
		BollingerUpper: model.ReadyReading(110),
		BollingerMid:   model.ReadyReading(100),
		BollingerLower: model.ReadyReading(90),
		VolumeSMA:      model.ReadyReading(1000),
		PriorHigh:      model.ReadyReading(105),
		PriorLow:       model.ReadyReading(95),
	}
}

func newGenerator(t *testing.T, cfg Config) *Generator {
	t.Helper()
	g, err := NewGenerator(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func kinds(sigs []model.Signal) []model.SignalKind {
	out := make([]model.SignalKind, len(sigs))
	for i, s := range sigs {
		out[i] = s.Kind
	}
	return out
}

func TestEvaluate_MACDCrossFiresOnce(t *testing.T) {
	g := newGenerator(t, DefaultConfig())

	hists := []float64{-0.2, -0.1, 0.05, 0.2, 0.3}
	fired := 0
	for i, h := range hists {
		s := neutral(i)
		s.Histogram = model.ReadyReading(h)
		sigs := g.Evaluate(s)
		for _, sig := range sigs {
			if sig.Kind == model.SignalMACDBullCross {
				fired++
				if i != 2 {
					t.Errorf("bull cross fired on bar %d, want 2", i)
				}
				if !sig.Bullish() || sig.Strength != 0.5 {
					t.Errorf("unexpected signal %+v", sig)
				}
				if !sig.TS.Equal(s.TS) || sig.Price != s.Close {
					t.Errorf("signal not stamped with bar: %+v", sig)
				}
			}
		}
	}
	if fired != 1 {
		t.Fatalf("bull cross fired %d times, want 1", fired)
	}
}

func TestEvaluate_RSIOverboughtAndOversold(t *testing.T) {
	g := newGenerator(t, DefaultConfig())
	rsis := []float64{65, 71, 75, 69, 72, 40, 29, 25}
	var got []model.SignalKind
	for i, r := range rsis {
		s := neutral(i)
		s.RSI = model.ReadyReading(r)
		got = append(got, kinds(g.Evaluate(s))...)
	}
	want := []model.SignalKind{model.SignalRSIOverbought, model.SignalRSIOverbought, model.SignalRSIOversold}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestEvaluate_BollingerBreakoutBias(t *testing.T) {
	g := newGenerator(t, DefaultConfig())
	g.Evaluate(neutral(0))

	up := neutral(1)
	up.Close = 111
	sigs := g.Evaluate(up)
	if len(sigs) != 1 || sigs[0].Kind != model.SignalBollingerBreakoutUp || !sigs[0].Bearish() {
		t.Fatalf("expected bearish breakout up, got %+v", sigs)
	}

	// Still above: no new edge.
	up2 := neutral(2)
	up2.Close = 112
	if sigs := g.Evaluate(up2); len(sigs) != 0 {
		t.Fatalf("breakout should not repeat, got %+v", sigs)
	}

	g.Evaluate(neutral(3))
	down := neutral(4)
	down.Close = 89
	sigs = g.Evaluate(down)
	if len(sigs) != 1 || sigs[0].Kind != model.SignalBollingerBreakoutDown || !sigs[0].Bullish() {
		t.Fatalf("expected bullish breakout down, got %+v", sigs)
	}
}

func TestEvaluate_CombinedStrengthIsCapped(t *testing.T) {
	g := newGenerator(t, DefaultConfig())
	prev := neutral(0)
	prev.Histogram = model.ReadyReading(-0.1)
	prev.RSI = model.ReadyReading(35)
	g.Evaluate(prev)

	cur := neutral(1)
	cur.Histogram = model.ReadyReading(0.1) // MACD bull 0.5
	cur.RSI = model.ReadyReading(25)        // oversold 0.4
	cur.Close = 88                          // breakout down 0.3
	sigs := g.Evaluate(cur)

	if len(sigs) != 3 {
		t.Fatalf("expected 3 signals, got %v", kinds(sigs))
	}
	for _, s := range sigs {
		if s.Strength != 1 {
			t.Errorf("%s strength = %v, want capped 1", s.Kind, s.Strength)
		}
	}
}

func TestEvaluate_CombinedStrengthSums(t *testing.T) {
	g := newGenerator(t, DefaultConfig())
	g.Evaluate(neutral(0))

	cur := neutral(1)
	cur.RSI = model.ReadyReading(72) // 0.4
	cur.Close = 111                  // 0.3
	sigs := g.Evaluate(cur)
	if len(sigs) != 2 {
		t.Fatalf("expected 2 signals, got %v", kinds(sigs))
	}
	for _, s := range sigs {
		if s.Strength < 0.6999 || s.Strength > 0.7001 {
			t.Errorf("%s strength = %v, want 0.7", s.Kind, s.Strength)
		}
	}
}

func TestEvaluate_BelowMinStrengthSuppressed(t *testing.T) {
	g := newGenerator(t, DefaultConfig())

	// Divergence alone (0.2) stays under 0.3.
	s := neutral(0)
	s.Close = 106
	s.Volume = 500
	if sigs := g.Evaluate(s); len(sigs) != 0 {
		t.Fatalf("weak divergence should be suppressed, got %+v", sigs)
	}

	cfg := DefaultConfig()
	cfg.MinStrength = 0.2
	g = newGenerator(t, cfg)
	sigs := g.Evaluate(s)
	if len(sigs) != 1 || sigs[0].Kind != model.SignalVolumeDivergence || !sigs[0].Bearish() {
		t.Fatalf("expected bearish divergence, got %+v", sigs)
	}

	low := neutral(1)
	low.Close = 94
	low.Volume = 500
	sigs = g.Evaluate(low)
	if len(sigs) != 1 || !sigs[0].Bullish() {
		t.Fatalf("expected bullish divergence at new low, got %+v", sigs)
	}
}

func TestEvaluate_NotReadyNeverFires(t *testing.T) {
	g := newGenerator(t, DefaultConfig())
	for i := 0; i < 5; i++ {
		s := model.IndicatorSnapshot{Index: i, Close: float64(100 + i*10), Volume: 1}
		if sigs := g.Evaluate(s); len(sigs) != 0 {
			t.Fatalf("bar %d: warm-up snapshot produced %+v", i, sigs)
		}
	}
}

func TestPreviewAndReset(t *testing.T) {
	g := newGenerator(t, DefaultConfig())
	prev := neutral(0)
	prev.Histogram = model.ReadyReading(-0.1)
	g.Evaluate(prev)

	cur := neutral(1)
	if sigs := g.Preview(cur); len(sigs) != 1 {
		t.Fatalf("preview should see the cross, got %+v", sigs)
	}
	// Preview did not advance state, so Evaluate still sees the edge.
	if sigs := g.Evaluate(cur); len(sigs) != 1 {
		t.Fatalf("evaluate after preview should fire, got %+v", sigs)
	}

	g.Reset()
	g.Evaluate(prev)
	if sigs := g.Evaluate(cur); len(sigs) != 1 {
		t.Fatalf("after reset edge should fire again, got %+v", sigs)
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinStrength = 1.5
	var cfgErr *model.InvalidConfigurationError
	if _, err := NewGenerator(cfg); !errors.As(err, &cfgErr) || cfgErr.Field != "min_signal_strength" {
		t.Fatalf("expected min_signal_strength error, got %v", err)
	}

	cfg = DefaultConfig()
	cfg.Oversold = 80
	if _, err := NewGenerator(cfg); !errors.As(err, &cfgErr) {
		t.Fatalf("expected config error, got %v", err)
	}
}
