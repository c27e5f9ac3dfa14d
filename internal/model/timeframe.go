package model

import (
	"fmt"
	"time"
)

// Timeframe is the bar interval of a series.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
)

// Timeframes lists every supported timeframe, shortest first.
var Timeframes = []Timeframe{TF1m, TF5m, TF15m, TF30m, TF1h}

// Duration returns the bar interval, or 0 for an unknown timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF1m:
		return time.Minute
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF30m:
		return 30 * time.Minute
	case TF1h:
		return time.Hour
	default:
		return 0
	}
}

// Valid reports whether tf is one of the supported timeframes.
func (tf Timeframe) Valid() bool { return tf.Duration() > 0 }

func (tf Timeframe) String() string { return string(tf) }

// ParseTimeframe converts "1m", "5m", "15m", "30m" or "1h" to a Timeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !tf.Valid() {
		return "", &InvalidConfigurationError{Field: "timeframe", Value: s, Reason: fmt.Sprintf("must be one of %v", Timeframes)}
	}
	return tf, nil
}
