package indicator

import "trendsignal/internal/model"

// Extremes tracks the highest and lowest of the previous lookback inputs,
// excluding the most recent one. A close above PriorHigh is a new local high.
type Extremes struct {
	lookback int
	buf      []float64
	idx      int
	count    int

	high Reading
	low  Reading
}

// NewExtremes creates a tracker over the given lookback (typically 10).
func NewExtremes(lookback int) *Extremes {
	return &Extremes{lookback: lookback, buf: make([]float64, lookback)}
}

func (x *Extremes) Name() string { return "EXTREMES" }

// Update records the prior-window extremes, then feeds v.
func (x *Extremes) Update(v float64) {
	x.high, x.low = x.current()
	x.buf[x.idx] = v
	x.idx = (x.idx + 1) % x.lookback
	x.count++
}

// Prior returns the extremes of the window that preceded the latest input.
func (x *Extremes) Prior() (high, low Reading) { return x.high, x.low }

// Peek returns the extremes a new input would be compared against.
func (x *Extremes) Peek() (high, low Reading) { return x.current() }

// Reset clears the tracker for reuse.
func (x *Extremes) Reset() {
	x.idx = 0
	x.count = 0
	x.high = Reading{}
	x.low = Reading{}
	for i := range x.buf {
		x.buf[i] = 0
	}
}

func (x *Extremes) current() (high, low Reading) {
	if x.count < x.lookback {
		return Reading{}, Reading{}
	}
	hi, lo := x.buf[0], x.buf[0]
	for _, v := range x.buf[1:] {
		if v > hi {
			hi = v
		}
		if v < lo {
			lo = v
		}
	}
	return model.ReadyReading(hi), model.ReadyReading(lo)
}
