package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	goredis "github.com/go-redis/redis/v8"

	"trendsignal/internal/model"
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int

	// ConnectTimeout bounds the retried initial ping. Defaults to 30s.
	ConnectTimeout time.Duration
}

// Connect creates a client and pings it with exponential backoff until it
// answers, ConnectTimeout elapses or ctx is done.
func Connect(ctx context.Context, cfg Config, log *slog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	strategy := backoff.NewExponentialBackOff()
	strategy.MaxElapsedTime = cfg.ConnectTimeout
	if strategy.MaxElapsedTime <= 0 {
		strategy.MaxElapsedTime = 30 * time.Second
	}

	attempt := 0
	ping := func() error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		err := client.Ping(pingCtx).Err()
		if err != nil {
			log.Warn("redis ping failed", "component", "redis", "addr", cfg.Addr, "attempt", attempt, "error", err)
		}
		return err
	}
	if err := backoff.Retry(ping, backoff.WithContext(strategy, ctx)); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	log.Info("connected", "component", "redis", "addr", cfg.Addr)
	return client, nil
}

// BarStream is the stream a feed appends closed bars to.
func BarStream(symbol string, tf model.Timeframe) string {
	return "bars:" + string(tf) + ":" + symbol
}

// UpdateChannel is the pub/sub channel carrying every per-bar update.
func UpdateChannel(symbol string, tf model.Timeframe) string {
	return "pub:update:" + string(tf) + ":" + symbol
}

// SignalStream keeps a trimmed history of emitted signals.
func SignalStream(symbol string, tf model.Timeframe) string {
	return "signals:" + string(tf) + ":" + symbol
}

// LatestKey holds the most recent update for late joiners.
func LatestKey(symbol string, tf model.Timeframe) string {
	return "update:latest:" + string(tf) + ":" + symbol
}
