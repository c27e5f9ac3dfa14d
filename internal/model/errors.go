package model

import (
	"fmt"
	"time"
)

// OutOfOrderError is returned when a bar does not advance the series clock.
// The series is left unchanged.
type OutOfOrderError struct {
	Symbol string
	LastTS time.Time
	BarTS  time.Time
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("out-of-order bar for %s: ts %s is not after last %s",
		e.Symbol, e.BarTS.Format(time.RFC3339), e.LastTS.Format(time.RFC3339))
}

// InvalidBarError is returned for bars that cannot feed the indicators.
type InvalidBarError struct {
	TS     time.Time
	Reason string
}

func (e *InvalidBarError) Error() string {
	return fmt.Sprintf("invalid bar at %s: %s", e.TS.Format(time.RFC3339), e.Reason)
}

// InsufficientHistoryError is returned when a replay would start before the
// slowest indicator is warm.
type InsufficientHistoryError struct {
	StartIndex int
	Required   int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history: start index %d is before warm-up of %d bars", e.StartIndex, e.Required)
}

// EmptySeriesError is returned when there are no bars to replay.
type EmptySeriesError struct {
	Symbol    string
	StartDate time.Time
}

func (e *EmptySeriesError) Error() string {
	if e.StartDate.IsZero() {
		return fmt.Sprintf("empty series for %s", e.Symbol)
	}
	return fmt.Sprintf("empty series for %s: no bars at or after %s", e.Symbol, e.StartDate.Format(time.RFC3339))
}

// InvalidConfigurationError names the offending configuration field.
type InvalidConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s=%v: %s", e.Field, e.Value, e.Reason)
}
