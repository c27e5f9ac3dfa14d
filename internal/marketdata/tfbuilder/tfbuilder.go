// Package tfbuilder folds feed bars (typically 1m) into the session's
// timeframe. A target bar is finalized as soon as a feed bar covering the end
// of its bucket arrives, or when a later bucket starts; in between, every
// feed bar yields a forming snapshot for previews.
package tfbuilder

import (
	"fmt"
	"log/slog"
	"time"

	"trendsignal/internal/model"
)

// Output is one resampled bar. Forming bars are previews of a bucket that
// has not closed yet.
type Output struct {
	Bar     model.Bar
	Forming bool
}

// Builder resamples a single symbol's feed into one target timeframe.
// Designed to run in a single goroutine (single consumer).
type Builder struct {
	feed   time.Duration
	target time.Duration

	bucket  time.Time // start of the forming bucket
	bar     model.Bar
	forming bool
	lastTS  time.Time

	// Metrics hooks
	OnBar   func(b model.Bar) // called on every finalized bar (optional)
	OnStale func(b model.Bar) // called when a late feed bar is dropped (optional)

	log *slog.Logger
}

// New creates a builder folding feed bars into target bars. target must be a
// whole multiple of feed.
func New(feed, target model.Timeframe, log *slog.Logger) (*Builder, error) {
	if !feed.Valid() || !target.Valid() {
		return nil, &model.InvalidConfigurationError{Field: "timeframe", Value: string(target), Reason: "unknown timeframe"}
	}
	if target.Duration()%feed.Duration() != 0 {
		return nil, &model.InvalidConfigurationError{
			Field:  "timeframe",
			Value:  string(target),
			Reason: fmt.Sprintf("not a multiple of feed timeframe %s", feed),
		}
	}
	return &Builder{
		feed:   feed.Duration(),
		target: target.Duration(),
		log:    log.With("component", "tfbuilder", "tf", string(target)),
	}, nil
}

// Push folds one feed bar and returns what it produced, in order: at most
// one finalized bar for a bucket left behind, then either a finalized bar
// for the bar's own bucket or a forming snapshot of it. Late or duplicate
// feed bars produce nothing.
func (b *Builder) Push(in model.Bar) []Output {
	if !b.lastTS.IsZero() && !in.TS.After(b.lastTS) {
		if b.OnStale != nil {
			b.OnStale(in)
		}
		b.log.Debug("dropping stale feed bar", "ts", in.TS, "last", b.lastTS)
		return nil
	}
	b.lastTS = in.TS

	var out []Output
	bucket := in.TS.Truncate(b.target)

	if b.forming && bucket.After(b.bucket) {
		// Gap in the feed: the previous bucket never saw its last bar.
		out = append(out, b.finalize())
	}

	if !b.forming {
		b.bucket = bucket
		b.bar = model.Bar{TS: bucket, Open: in.Open, High: in.High, Low: in.Low, Close: in.Close, Volume: in.Volume}
		b.forming = true
	} else {
		if in.High > b.bar.High {
			b.bar.High = in.High
		}
		if in.Low < b.bar.Low {
			b.bar.Low = in.Low
		}
		b.bar.Close = in.Close
		b.bar.Volume += in.Volume
	}

	if !in.TS.Add(b.feed).Before(bucket.Add(b.target)) {
		return append(out, b.finalize())
	}
	return append(out, Output{Bar: b.bar, Forming: true})
}

// Flush finalizes the forming bar, if any. Used when the feed ends with a
// bucket still open.
func (b *Builder) Flush() (model.Bar, bool) {
	if !b.forming {
		return model.Bar{}, false
	}
	o := b.finalize()
	return o.Bar, true
}

// Reset discards any forming state.
func (b *Builder) Reset() {
	b.forming = false
	b.bar = model.Bar{}
	b.bucket = time.Time{}
	b.lastTS = time.Time{}
}

func (b *Builder) finalize() Output {
	b.forming = false
	if b.OnBar != nil {
		b.OnBar(b.bar)
	}
	return Output{Bar: b.bar}
}
