package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the engine and the live service from concrete
// storage implementations (SQLite, Redis, parquet files).

// BarReader loads historical bars for replay and backtests.
type BarReader interface {
	// ReadBars returns bars for symbol/tf with TS >= from, ordered by TS ascending.
	// A zero from reads everything.
	ReadBars(ctx context.Context, symbol string, tf Timeframe, from time.Time) ([]Bar, error)

	// Close releases underlying resources.
	Close() error
}

// BarWriter persists bars as they are accepted by a live session.
type BarWriter interface {
	// WriteBars upserts bars for symbol/tf.
	WriteBars(ctx context.Context, symbol string, tf Timeframe, bars []Bar) error

	// Close releases underlying resources.
	Close() error
}

// BarSource delivers new bars from an external feed.
type BarSource interface {
	// Consume blocks, sending bars for symbol/tf to out until ctx is done.
	Consume(ctx context.Context, symbol string, tf Timeframe, out chan<- Bar) error
}

// UpdatePublisher pushes per-bar results to downstream consumers. The Redis
// writer implements it.
type UpdatePublisher interface {
	Publish(ctx context.Context, u Update) error
}

// SignalReader loads persisted signals for the API.
type SignalReader interface {
	// ReadSignals returns the most recent limit signals for symbol/tf, oldest first.
	ReadSignals(ctx context.Context, symbol string, tf Timeframe, limit int) ([]Signal, error)
}
