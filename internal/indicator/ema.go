package indicator

// EMA calculates Exponential Moving Average.
// Seeded with the simple average of the first period inputs, then
// ema = v*k + ema_prev*(1-k) with k = 2/(period+1).
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return "EMA" }

func (e *EMA) Update(v float64) {
	e.count++

	if e.count <= e.period {
		// Accumulate for initial SMA seed
		e.sum += v
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	e.current = (v * e.multiplier) + (e.current * (1 - e.multiplier))
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count >= e.period }

// Peek computes what Value() would be with v as the next input without mutating state.
func (e *EMA) Peek(v float64) (float64, bool) {
	switch {
	case e.count+1 < e.period:
		return v, false
	case e.count+1 == e.period:
		return (e.sum + v) / float64(e.period), true
	default:
		return (v * e.multiplier) + (e.current * (1 - e.multiplier)), true
	}
}

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
	e.sum = 0
}
