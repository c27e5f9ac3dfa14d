package model

import "time"

// SignalKind identifies the condition that produced a Signal.
type SignalKind string

const (
	SignalRSIOverbought         SignalKind = "RSI_OVERBOUGHT"
	SignalRSIOversold           SignalKind = "RSI_OVERSOLD"
	SignalMACDBullCross         SignalKind = "MACD_BULL_CROSS"
	SignalMACDBearCross         SignalKind = "MACD_BEAR_CROSS"
	SignalBollingerBreakoutUp   SignalKind = "BOLLINGER_BREAKOUT_UP"
	SignalBollingerBreakoutDown SignalKind = "BOLLINGER_BREAKOUT_DOWN"
	SignalVolumeDivergence      SignalKind = "VOLUME_DIVERGENCE"
)

// Bias is the trading direction a signal argues for.
type Bias string

const (
	BiasBullish Bias = "BULLISH"
	BiasBearish Bias = "BEARISH"
)

// Signal is a discrete alert emitted for one bar.
// Strength is the combined strength of every condition detected on the bar.
type Signal struct {
	Kind     SignalKind `json:"kind"`
	Bias     Bias       `json:"bias"`
	Strength float64    `json:"strength"`
	TS       time.Time  `json:"ts"`
	Price    float64    `json:"price"`
	Reason   string     `json:"reason"`
}

// Bullish reports whether the signal opens or holds a long position.
func (s Signal) Bullish() bool { return s.Bias == BiasBullish }

// Bearish reports whether the signal closes a long position.
func (s Signal) Bearish() bool { return s.Bias == BiasBearish }
