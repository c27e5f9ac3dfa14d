package model

import (
	"strconv"
	"time"
)

// Reading is a single indicator output. Ready is false until the indicator
// has seen enough history; Value is meaningless in that case.
type Reading struct {
	Value float64
	Ready bool
}

// ReadyReading wraps v as an available reading.
func ReadyReading(v float64) Reading { return Reading{Value: v, Ready: true} }

// MarshalJSON encodes a not-ready reading as null.
func (r Reading) MarshalJSON() ([]byte, error) {
	if !r.Ready {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, r.Value, 'g', -1, 64), nil
}

// UnmarshalJSON accepts a number or null.
func (r *Reading) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = Reading{}
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*r = ReadyReading(v)
	return nil
}

// IndicatorSnapshot holds every indicator value for one bar.
// Index is the 0-based position of the bar in the stream fed to the engine.
type IndicatorSnapshot struct {
	Index  int       `json:"index"`
	TS     time.Time `json:"ts"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`

	RSI Reading `json:"rsi"`

	MACDLine   Reading `json:"macd_line"`
	SignalLine Reading `json:"signal_line"`
	Histogram  Reading `json:"histogram"`

	BollingerUpper Reading `json:"bollinger_upper"`
	BollingerMid   Reading `json:"bollinger_mid"`
	BollingerLower Reading `json:"bollinger_lower"`

	// Inputs for volume-price divergence detection.
	VolumeSMA Reading `json:"volume_sma"`
	PriorHigh Reading `json:"prior_high"` // highest close of the previous N bars
	PriorLow  Reading `json:"prior_low"`  // lowest close of the previous N bars
}

// Live reports whether the snapshot was produced by a preview of a forming bar.
// Preview snapshots carry Index -1.
func (s *IndicatorSnapshot) Live() bool { return s.Index < 0 }
