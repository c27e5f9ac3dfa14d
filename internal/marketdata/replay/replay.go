// Package replay turns stored bars into a live-looking feed: bars are read
// from any model.BarReader and emitted at a configurable speed.
package replay

import (
	"context"
	"log/slog"
	"time"

	"trendsignal/internal/model"
)

// maxGap caps a single scaled sleep so overnight gaps do not stall replay.
const maxGap = 5 * time.Second

// Replayer reads historical bars and replays them at a speed multiplier.
// It implements model.BarSource.
type Replayer struct {
	reader model.BarReader
	from   time.Time
	speed  float64
	log    *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Replayer. speed controls the playback rate: 1.0 = real-time,
// 10.0 = 10x, 0 = as fast as possible. from filters bars to TS >= from.
func New(reader model.BarReader, from time.Time, speed float64, log *slog.Logger) *Replayer {
	return &Replayer{
		reader: reader,
		from:   from,
		speed:  speed,
		log:    log.With("component", "replay"),
		sleep:  sleepCtx,
	}
}

// Consume replays every stored bar for symbol/tf into out, then returns nil.
func (r *Replayer) Consume(ctx context.Context, symbol string, tf model.Timeframe, out chan<- model.Bar) error {
	bars, err := r.reader.ReadBars(ctx, symbol, tf, r.from)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		r.log.Warn("no bars to replay", "symbol", symbol, "tf", string(tf))
		return nil
	}
	r.log.Info("replay started", "symbol", symbol, "tf", string(tf), "bars", len(bars), "speed", r.speed)

	var prevTS time.Time
	for i, b := range bars {
		// Simulate time gaps between bars
		if r.speed > 0 && !prevTS.IsZero() {
			if gap := b.TS.Sub(prevTS); gap > 0 {
				scaled := time.Duration(float64(gap) / r.speed)
				if scaled > maxGap {
					scaled = maxGap
				}
				if err := r.sleep(ctx, scaled); err != nil {
					r.log.Info("replay cancelled", "emitted", i)
					return err
				}
			}
		}
		prevTS = b.TS

		select {
		case out <- b:
		case <-ctx.Done():
			r.log.Info("replay cancelled", "emitted", i)
			return ctx.Err()
		}
	}

	r.log.Info("replay completed", "emitted", len(bars))
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
