package indicator

import "trendsignal/internal/model"

// MACD holds the fast/slow EMA pair and the signal EMA over the MACD line.
// The line is ready once the slow EMA is seeded (bar slow); the signal line
// and histogram are ready signal-1 bars later.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA

	line Reading
	sig  Reading
}

// Reading aliases model.Reading for the multi-valued indicators.
type Reading = model.Reading

// NewMACD creates a MACD with the given EMA periods (typically 12, 26, 9).
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fast:   NewEMA(fast),
		slow:   NewEMA(slow),
		signal: NewEMA(signal),
	}
}

func (m *MACD) Name() string { return "MACD" }

// Update feeds the next close.
func (m *MACD) Update(price float64) {
	m.fast.Update(price)
	m.slow.Update(price)
	if !m.slow.Ready() {
		return
	}

	line := m.fast.Value() - m.slow.Value()
	m.line = model.ReadyReading(line)
	m.signal.Update(line)
	if m.signal.Ready() {
		m.sig = model.ReadyReading(m.signal.Value())
	}
}

// Line returns the MACD line (fast EMA - slow EMA).
func (m *MACD) Line() Reading { return m.line }

// Signal returns the signal line (EMA of the MACD line).
func (m *MACD) Signal() Reading { return m.sig }

// Histogram returns line - signal.
func (m *MACD) Histogram() Reading {
	if !m.line.Ready || !m.sig.Ready {
		return Reading{}
	}
	return model.ReadyReading(m.line.Value - m.sig.Value)
}

// Ready reports whether the histogram is available.
func (m *MACD) Ready() bool { return m.sig.Ready }

// Peek returns line, signal and histogram as if price were the next close.
func (m *MACD) Peek(price float64) (line, signal, hist Reading) {
	f, _ := m.fast.Peek(price)
	s, slowReady := m.slow.Peek(price)
	if !slowReady {
		return Reading{}, Reading{}, Reading{}
	}
	l := f - s
	line = model.ReadyReading(l)
	sv, sigReady := m.signal.Peek(l)
	if !sigReady {
		return line, Reading{}, Reading{}
	}
	return line, model.ReadyReading(sv), model.ReadyReading(l - sv)
}

// Reset clears the MACD state for reuse.
func (m *MACD) Reset() {
	m.fast.Reset()
	m.slow.Reset()
	m.signal.Reset()
	m.line = Reading{}
	m.sig = Reading{}
}
