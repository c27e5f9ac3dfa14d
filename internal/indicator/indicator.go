// Package indicator provides incremental technical indicators and the engine
// that fuses them into one model.IndicatorSnapshot per bar.
//
// Every indicator is a small carried-state struct updated in O(1) (or
// O(window) for Bollinger and extremes) per input. Feeding the same inputs to
// a fresh instance always reproduces the same values, which is what makes live
// sessions and backtest replays agree.
package indicator

// Indicator is the interface for single-valued indicators fed one input
// (a close price or a volume) per bar.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA", "EMA", "RSI").
	Name() string

	// Update feeds the next input and recalculates.
	Update(v float64)

	// Value returns the current value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Peek computes what Value() would be if v were fed next, WITHOUT
	// mutating internal state. The second result reports whether that
	// value would be ready.
	Peek(v float64) (float64, bool)

	// Reset clears all state for reuse.
	Reset()
}
