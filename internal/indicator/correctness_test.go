package indicator

import (
	"math"
	"testing"
)

// ────────────────────────────────────────────────────────────
// Helper
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// ────────────────────────────────────────────────────────────
// SMA Correctness
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// Prices: 100, 102, 104, 103, 105
	// SMA after bar 3: (100+102+104)/3 = 102.0000
	// SMA after bar 4: (102+104+103)/3 = 103.0000
	// SMA after bar 5: (104+103+105)/3 = 104.0000

	sma := NewSMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 103.0, 104.0}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		sma.Update(p)
		if sma.Ready() != ready[i] {
			t.Errorf("bar %d: Ready()=%v, want %v", i, sma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "SMA(3)", sma.Value(), expected[i], 0.0001)
		}
	}
}

func TestSMA_Peek_CorrectValue(t *testing.T) {
	sma := NewSMA(3)
	for _, p := range []float64{100, 102, 104} {
		sma.Update(p)
	}
	// Peek with 106 → (102+104+106)/3 = 104
	v, ready := sma.Peek(106)
	if !ready {
		t.Fatal("peek on a full window must be ready")
	}
	assertClose(t, "SMA Peek", v, 104.0, 0.0001)
	assertClose(t, "SMA after Peek", sma.Value(), 102.0, 0.0001)
}

func TestSMA_Peek_CompletesWindow(t *testing.T) {
	sma := NewSMA(3)
	sma.Update(100)
	if _, ready := sma.Peek(102); ready {
		t.Error("two inputs must not complete a 3-window")
	}
	sma.Update(102)
	v, ready := sma.Peek(104)
	if !ready {
		t.Fatal("third input completes the window")
	}
	assertClose(t, "SMA Peek seed", v, 102.0, 0.0001)
}

// ────────────────────────────────────────────────────────────
// EMA Correctness
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// EMA(3): multiplier = 2/(3+1) = 0.5
	// Prices: 100, 102, 104, 103, 105
	//
	// Bar 3: seed = 306/3 = 102.0 (SMA seed)
	// Bar 4: EMA = 103*0.5 + 102.0*0.5 = 102.5
	// Bar 5: EMA = 105*0.5 + 102.5*0.5 = 103.75

	ema := NewEMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 102.5, 103.75}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		ema.Update(p)
		if ema.Ready() != ready[i] {
			t.Errorf("bar %d: Ready()=%v, want %v", i, ema.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "EMA(3)", ema.Value(), expected[i], 0.0001)
		}
	}
}

func TestEMA_Peek(t *testing.T) {
	ema := NewEMA(3)
	ema.Update(100)
	ema.Update(102)

	// Peek on the seeding input returns the SMA seed.
	v, ready := ema.Peek(104)
	if !ready {
		t.Fatal("seeding peek must be ready")
	}
	assertClose(t, "EMA seed peek", v, 102.0, 0.0001)

	ema.Update(104)
	// Peek with 106: EMA = 106*0.5 + 102*0.5 = 104.0
	v, _ = ema.Peek(106)
	assertClose(t, "EMA Peek", v, 104.0, 0.0001)
	assertClose(t, "EMA after Peek", ema.Value(), 102.0, 0.0001)
}

// ────────────────────────────────────────────────────────────
// SMMA Correctness (Wilder's Smoothing)
// ────────────────────────────────────────────────────────────

func TestSMMA_Correctness_Period3(t *testing.T) {
	// Bars 1-3: seed = (100+102+104)/3 = 102.0
	// Bar 4: SMMA = (102.0*2 + 103)/3 = 102.3333
	// Bar 5: SMMA = (102.3333*2 + 105)/3 = 103.2222

	smma := NewSMMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 102.3333, 103.2222}

	for i, p := range prices {
		smma.Update(p)
		if i >= 2 {
			assertClose(t, "SMMA(3)", smma.Value(), expected[i], 0.001)
		}
	}

	v, _ := smma.Peek(106)
	assertClose(t, "SMMA Peek", v, (103.2222*2+106)/3, 0.001)
}

// ────────────────────────────────────────────────────────────
// RSI Correctness (Wilder's Method)
// ────────────────────────────────────────────────────────────

func TestRSI_Correctness_Period5(t *testing.T) {
	// Prices: 44, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84
	//
	// First RSI (after 6 bars, period=5):
	//   sumGain = 0.34+0.72+0.50 = 1.56 → avgGain = 0.312
	//   sumLoss = 0.25+0.48       = 0.73 → avgLoss = 0.146
	//   RSI = 100 - 100/(1+2.13699) = 68.122
	// Bar 7 (45.10): avgGain = 0.3036, avgLoss = 0.1168 → RSI = 72.217
	// Bar 8 (45.42): avgGain = 0.30688, avgLoss = 0.09344 → RSI = 76.658
	// Bar 9 (45.84): avgGain = 0.329504, avgLoss = 0.074752 → RSI = 81.509

	rsi := NewRSI(5)
	prices := []float64{44, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84}
	want := map[int]float64{5: 68.122, 6: 72.217, 7: 76.658, 8: 81.509}

	for i, p := range prices {
		rsi.Update(p)
		if i < 5 && rsi.Ready() {
			t.Fatalf("bar %d: RSI ready before period+1 closes", i)
		}
		if w, ok := want[i]; ok {
			assertClose(t, "RSI(5)", rsi.Value(), w, 0.01)
		}
	}
}

func TestRSI_AllUp_Is100(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(100 + float64(i))
	}
	assertClose(t, "RSI all up", rsi.Value(), 100.0, 0.001)
}

func TestRSI_AllDown_Is0(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(200 - float64(i))
	}
	assertClose(t, "RSI all down", rsi.Value(), 0.0, 0.001)
}

func TestRSI_Flat_IsNeutral(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(100)
	}
	assertClose(t, "RSI flat", rsi.Value(), 50.0, 0.001)
}

func TestRSI_Peek_CorrectDirection(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(100 + float64(i))
	}
	before := rsi.Value()

	peekDown, ready := rsi.Peek(80)
	if !ready {
		t.Fatal("peek must be ready once RSI is warm")
	}
	if peekDown >= before {
		t.Errorf("RSI Peek with lower price should decrease: peek=%.2f, current=%.2f", peekDown, before)
	}
	assertClose(t, "RSI after Peek", rsi.Value(), before, 0.0001)
}

func TestRSI_StaysInRange(t *testing.T) {
	rsi := NewRSI(14)
	for i := 0; i < 500; i++ {
		p := 100 + 30*math.Sin(float64(i)/7) + 5*math.Cos(float64(i)*1.3)
		rsi.Update(p)
		if rsi.Ready() && (rsi.Value() < 0 || rsi.Value() > 100) {
			t.Fatalf("bar %d: RSI out of [0,100]: %.4f", i, rsi.Value())
		}
	}
}

// ────────────────────────────────────────────────────────────
// MACD Correctness
// ────────────────────────────────────────────────────────────

func TestMACD_Warmup(t *testing.T) {
	m := NewMACD(3, 5, 2)
	for i := 1; i <= 7; i++ {
		m.Update(100 + float64(i))
		lineReady := i >= 5
		sigReady := i >= 6 // slow + signal - 1
		if m.Line().Ready != lineReady {
			t.Errorf("bar %d: line ready=%v, want %v", i, m.Line().Ready, lineReady)
		}
		if m.Signal().Ready != sigReady || m.Histogram().Ready != sigReady {
			t.Errorf("bar %d: signal ready=%v, want %v", i, m.Signal().Ready, sigReady)
		}
	}
}

func TestMACD_Correctness(t *testing.T) {
	// fast EMA(2) k=2/3, slow EMA(3) k=1/2, signal EMA(2) k=2/3
	// Prices: 10, 11, 12, 13
	// Bar 2: fast seed = 10.5
	// Bar 3: fast = 12*2/3 + 10.5/3 = 11.5; slow seed = 11.0 → line = 0.5
	// Bar 4: fast = 13*2/3 + 11.5/3 = 12.5; slow = 13*0.5 + 11*0.5 = 12.0 → line = 0.5
	//        signal seed = (0.5+0.5)/2 = 0.5 → hist = 0
	m := NewMACD(2, 3, 2)
	for _, p := range []float64{10, 11, 12, 13} {
		m.Update(p)
	}
	assertClose(t, "MACD line", m.Line().Value, 0.5, 1e-9)
	assertClose(t, "MACD signal", m.Signal().Value, 0.5, 1e-9)
	assertClose(t, "MACD hist", m.Histogram().Value, 0.0, 1e-9)
}

func TestMACD_Peek_MatchesUpdate(t *testing.T) {
	prices := []float64{10, 11, 12, 13, 12.5, 14, 13.2}
	m := NewMACD(2, 3, 2)
	for _, p := range prices[:len(prices)-1] {
		m.Update(p)
	}

	line, sig, hist := m.Peek(prices[len(prices)-1])
	m.Update(prices[len(prices)-1])

	assertClose(t, "peek line", line.Value, m.Line().Value, 1e-12)
	assertClose(t, "peek signal", sig.Value, m.Signal().Value, 1e-12)
	assertClose(t, "peek hist", hist.Value, m.Histogram().Value, 1e-12)
}

// ────────────────────────────────────────────────────────────
// Bollinger Correctness
// ────────────────────────────────────────────────────────────

func TestBollinger_Correctness(t *testing.T) {
	// Window 2, 4, 4, 4, 5, 5, 7, 9: mean 5, population std-dev 2.
	b := NewBollinger(8, 2)
	for _, p := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		b.Update(p)
	}
	upper, mid, lower := b.Bands()
	assertClose(t, "BB mid", mid.Value, 5, 1e-9)
	assertClose(t, "BB upper", upper.Value, 9, 1e-9)
	assertClose(t, "BB lower", lower.Value, 1, 1e-9)
}

func TestBollinger_NotReady(t *testing.T) {
	b := NewBollinger(3, 2)
	b.Update(1)
	b.Update(2)
	if upper, _, _ := b.Bands(); upper.Ready {
		t.Fatal("bands must not be ready before the window fills")
	}
	if upper, mid, _ := b.Peek(3); !upper.Ready || math.Abs(mid.Value-2) > 1e-9 {
		t.Fatalf("peek completing the window should be ready with mid=2, got %+v", mid)
	}
}

func TestBollinger_Ordering(t *testing.T) {
	b := NewBollinger(20, 2)
	for i := 0; i < 300; i++ {
		b.Update(100 + 10*math.Sin(float64(i)/5))
		upper, mid, lower := b.Bands()
		if !upper.Ready {
			continue
		}
		if upper.Value < mid.Value || mid.Value < lower.Value {
			t.Fatalf("bar %d: bands out of order %.4f/%.4f/%.4f", i, upper.Value, mid.Value, lower.Value)
		}
	}
}

// ────────────────────────────────────────────────────────────
// Extremes
// ────────────────────────────────────────────────────────────

func TestExtremes_PriorWindowExcludesLatest(t *testing.T) {
	x := NewExtremes(3)
	for _, v := range []float64{5, 7, 6} {
		x.Update(v)
		if hi, _ := x.Prior(); hi.Ready {
			t.Fatal("prior extremes need a full lookback before the latest input")
		}
	}

	x.Update(10)
	hi, lo := x.Prior()
	if !hi.Ready || hi.Value != 7 || lo.Value != 5 {
		t.Fatalf("expected prior high=7 low=5, got %+v %+v", hi, lo)
	}

	peekHi, peekLo := x.Peek()
	if peekHi.Value != 10 || peekLo.Value != 6 {
		t.Fatalf("expected peek window high=10 low=6, got %+v %+v", peekHi, peekLo)
	}
}
