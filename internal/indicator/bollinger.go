package indicator

import (
	"math"

	"trendsignal/internal/model"
)

// Bollinger computes Bollinger Bands: an SMA middle band and upper/lower
// bands k population standard deviations away over the same window.
type Bollinger struct {
	sma *SMA
	k   float64
}

// NewBollinger creates bands over period closes at k standard deviations.
func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{sma: NewSMA(period), k: k}
}

func (b *Bollinger) Name() string { return "BB" }

// Update feeds the next close.
func (b *Bollinger) Update(price float64) { b.sma.Update(price) }

// Ready reports whether the window is full.
func (b *Bollinger) Ready() bool { return b.sma.Ready() }

// Bands returns upper, middle and lower bands.
func (b *Bollinger) Bands() (upper, mid, lower Reading) {
	if !b.sma.Ready() {
		return Reading{}, Reading{}, Reading{}
	}
	return b.bands(b.sma.window())
}

// Peek returns the bands as if price were the next close.
func (b *Bollinger) Peek(price float64) (upper, mid, lower Reading) {
	s := b.sma
	if s.count+1 < s.period {
		return Reading{}, Reading{}, Reading{}
	}
	var win []float64
	if s.Ready() {
		win = append(s.window()[1:], price)
	} else {
		win = append(s.buf[:s.count:s.count], price)
	}
	return b.bands(win)
}

// Reset clears the band state for reuse.
func (b *Bollinger) Reset() { b.sma.Reset() }

func (b *Bollinger) bands(win []float64) (upper, mid, lower Reading) {
	m := mean(win)
	dev := b.k * popStdDev(win, m)
	return model.ReadyReading(m + dev), model.ReadyReading(m), model.ReadyReading(m - dev)
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func popStdDev(xs []float64, m float64) float64 {
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)))
}
