package redis

import (
	"context"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trendsignal/internal/model"
)

const (
	signalStreamMaxLen = 5000
	defaultLatestTTL   = 30 * time.Minute
)

// Writer publishes per-bar updates: the latest update is SET for late
// joiners, every update is PUBLISHed for subscribers and each signal is
// XADDed to a trimmed history stream, all in one pipeline.
type Writer struct {
	client *goredis.Client
	log    *slog.Logger

	// OnPublish, when set, receives the latency of each pipeline.
	OnPublish func(time.Duration)
}

// NewWriter wraps a connected client.
func NewWriter(client *goredis.Client, log *slog.Logger) *Writer {
	return &Writer{client: client, log: log.With("component", "redis-writer")}
}

// Publish writes u in one pipeline round trip.
func (w *Writer) Publish(ctx context.Context, u model.Update) error {
	start := time.Now()
	data := string(u.JSON())

	pipe := w.client.Pipeline()
	pipe.Set(ctx, LatestKey(u.Symbol, u.Timeframe), data, defaultLatestTTL)
	pipe.Publish(ctx, UpdateChannel(u.Symbol, u.Timeframe), data)
	for i := range u.Signals {
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: SignalStream(u.Symbol, u.Timeframe),
			MaxLen: signalStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{
				"kind":     string(u.Signals[i].Kind),
				"bias":     string(u.Signals[i].Bias),
				"strength": u.Signals[i].Strength,
				"price":    u.Signals[i].Price,
				"ts":       u.Signals[i].TS.Unix(),
				"reason":   u.Signals[i].Reason,
			},
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error("pipeline failed", "key", u.Key(), "signals", len(u.Signals), "error", err)
		return err
	}
	if w.OnPublish != nil {
		w.OnPublish(time.Since(start))
	}
	return nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
