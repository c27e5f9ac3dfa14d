package notification

import (
	"context"
	"errors"
	"log/slog"

	"trendsignal/internal/metrics"
	"trendsignal/internal/model"
)

// Dispatcher turns updates into alerts and delivers them through one
// Notifier, counting outcomes per channel.
type Dispatcher struct {
	n       Notifier
	channel string
	m       *metrics.Metrics
	log     *slog.Logger
}

// NewDispatcher creates a dispatcher; m may be nil.
func NewDispatcher(n Notifier, channel string, m *metrics.Metrics, log *slog.Logger) *Dispatcher {
	return &Dispatcher{n: n, channel: channel, m: m, log: log.With("component", "notify", "channel", channel)}
}

// Dispatch sends an alert for every signal in u. Delivery failures are
// logged and counted, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, u model.Update) {
	for _, a := range FromUpdate(u) {
		status := "sent"
		if err := d.n.Send(ctx, a); err != nil {
			status = "failed"
			if errors.Is(err, ErrRateLimited) {
				status = "rate_limited"
			} else {
				d.log.Warn("alert delivery failed", "title", a.Title, "error", err)
			}
		}
		if d.m != nil {
			d.m.NotificationsTotal.WithLabelValues(d.channel, status).Inc()
		}
	}
}

// Run dispatches updates from ch until it closes or ctx is done.
func (d *Dispatcher) Run(ctx context.Context, ch <-chan model.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-ch:
			if !ok {
				return
			}
			if len(u.Signals) > 0 {
				d.Dispatch(ctx, u)
			}
		}
	}
}
