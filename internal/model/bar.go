package model

import (
	"math"
	"time"
)

// Bar is one OHLCV observation for a fixed interval of a single instrument.
// TS is the bucket start time (UTC). Bars are values: once appended to a
// series they are never mutated.
type Bar struct {
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Validate reports whether the bar is usable as indicator input.
func (b Bar) Validate() error {
	if b.TS.IsZero() {
		return &InvalidBarError{TS: b.TS, Reason: "zero timestamp"}
	}
	for _, p := range [...]float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
			return &InvalidBarError{TS: b.TS, Reason: "price must be finite and positive"}
		}
	}
	if b.High < b.Low {
		return &InvalidBarError{TS: b.TS, Reason: "high below low"}
	}
	if b.Volume < 0 {
		return &InvalidBarError{TS: b.TS, Reason: "negative volume"}
	}
	return nil
}
