// Package notification delivers signal alerts to external channels
// (log, Telegram, webhooks).
package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"trendsignal/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// criticalStrength is the combined signal strength at which an alert is
// escalated to CRITICAL.
const criticalStrength = 0.8

// Alert represents a notification to be sent.
type Alert struct {
	Level     AlertLevel      `json:"level"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Symbol    string          `json:"symbol,omitempty"`
	Timeframe model.Timeframe `json:"timeframe,omitempty"`
	TS        time.Time       `json:"ts"`
}

// FromSignal builds the alert for one emitted signal.
func FromSignal(symbol string, tf model.Timeframe, s model.Signal) Alert {
	level := AlertWarning
	if s.Strength >= criticalStrength {
		level = AlertCritical
	}
	return Alert{
		Level:     level,
		Title:     fmt.Sprintf("%s %s %s", symbol, tf, s.Kind),
		Message:   fmt.Sprintf("%s at %.2f (strength %.2f): %s", s.Bias, s.Price, s.Strength, s.Reason),
		Symbol:    symbol,
		Timeframe: tf,
		TS:        s.TS,
	}
}

// FromUpdate returns one alert per signal in u, in signal order.
func FromUpdate(u model.Update) []Alert {
	alerts := make([]Alert, 0, len(u.Signals))
	for _, s := range u.Signals {
		alerts = append(alerts, FromSignal(u.Symbol, u.Timeframe, s))
	}
	return alerts
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to a structured logger (useful for development).
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With("component", "notify")}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	n.log.InfoContext(ctx, "alert",
		"level", alert.Level,
		"title", alert.Title,
		"message", alert.Message,
	)
	return nil
}

// ErrRateLimited is returned by Limited when an alert is dropped.
var ErrRateLimited = errors.New("notification: rate limited")

// Limited drops alerts beyond a token-bucket rate instead of queueing them,
// so a burst of signals never stalls the caller.
type Limited struct {
	next    Notifier
	limiter *rate.Limiter
}

// NewLimited allows perMinute alerts per minute with the given burst.
func NewLimited(next Notifier, perMinute float64, burst int) *Limited {
	return &Limited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perMinute/60), burst),
	}
}

func (l *Limited) Send(ctx context.Context, alert Alert) error {
	if !l.limiter.Allow() {
		return ErrRateLimited
	}
	return l.next.Send(ctx, alert)
}

// Multi sends every alert to all notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
