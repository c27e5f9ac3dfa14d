package indicator

// RSI calculates the Relative Strength Index using Wilder's smoothing method.
// Average gain and loss are two SMMAs over the per-bar price changes, so the
// first value needs period+1 closes. Update is O(1) per bar.
type RSI struct {
	period    int
	count     int
	prevClose float64
	avgGain   *SMMA
	avgLoss   *SMMA
	current   float64
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{
		period:  period,
		avgGain: NewSMMA(period),
		avgLoss: NewSMMA(period),
	}
}

func (r *RSI) Name() string { return "RSI" }

func (r *RSI) Update(price float64) {
	r.count++
	if r.count == 1 {
		// First close, no change yet
		r.prevClose = price
		return
	}

	gain, loss := split(price - r.prevClose)
	r.prevClose = price

	r.avgGain.Update(gain)
	r.avgLoss.Update(loss)
	if r.avgGain.Ready() {
		r.current = rsiFrom(r.avgGain.Value(), r.avgLoss.Value())
	}
}

func (r *RSI) Value() float64 { return r.current }
func (r *RSI) Ready() bool    { return r.avgGain.Ready() }

// Peek computes what RSI would be with price as the next close without mutating state.
func (r *RSI) Peek(price float64) (float64, bool) {
	if r.count == 0 {
		return 0, false
	}
	gain, loss := split(price - r.prevClose)
	ag, ready := r.avgGain.Peek(gain)
	al, _ := r.avgLoss.Peek(loss)
	if !ready {
		return 0, false
	}
	return rsiFrom(ag, al), true
}

// Reset clears the RSI state for reuse.
func (r *RSI) Reset() {
	r.count = 0
	r.prevClose = 0
	r.current = 0
	r.avgGain.Reset()
	r.avgLoss.Reset()
}

func split(delta float64) (gain, loss float64) {
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}

// rsiFrom maps average gain/loss to [0,100]. A flat window (no gains and no
// losses) reads as neutral 50.
func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50.0
		}
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}
