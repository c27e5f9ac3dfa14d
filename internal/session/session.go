// Package session owns the live state for one instrument and timeframe:
// the bar series, the indicator engine, the trend classifier and the
// signal generator. It is the explicit replacement for process-wide state.
package session

import (
	"context"
	"log/slog"
	"time"

	"trendsignal/internal/indicator"
	"trendsignal/internal/logger"
	"trendsignal/internal/metrics"
	"trendsignal/internal/model"
	"trendsignal/internal/series"
	"trendsignal/internal/signals"
	"trendsignal/internal/trend"
)

// Config is fixed for the lifetime of a Session; Reset only swaps symbol and
// timeframe.
type Config struct {
	Symbol    string
	Timeframe model.Timeframe
	Retention int

	Indicator indicator.Config
	Trend     trend.Config
	Signals   signals.Config
}

// DefaultConfig returns a 1m session retaining 500 bars with default
// indicator, trend and signal settings.
func DefaultConfig(symbol string) Config {
	return Config{
		Symbol:    symbol,
		Timeframe: model.TF1m,
		Retention: 500,
		Indicator: indicator.DefaultConfig(),
		Trend:     trend.DefaultConfig(),
		Signals:   signals.DefaultConfig(),
	}
}

// Session is single-writer: OnNewBar, Peek and Reset must be called from one
// goroutine (or externally serialised).
type Session struct {
	cfg Config
	log *slog.Logger
	m   *metrics.Metrics // optional

	series     *series.PriceSeries
	engine     *indicator.Engine
	classifier *trend.Classifier
	generator  *signals.Generator

	prev   *model.IndicatorSnapshot
	latest *model.Update
}

// New validates cfg and builds an empty session. m may be nil.
func New(cfg Config, log *slog.Logger, m *metrics.Metrics) (*Session, error) {
	cfg.Indicator.HistorySize = cfg.Retention

	s, err := series.New(cfg.Symbol, cfg.Timeframe, cfg.Retention)
	if err != nil {
		return nil, err
	}
	eng, err := indicator.NewEngine(cfg.Indicator)
	if err != nil {
		return nil, err
	}
	cls, err := trend.NewClassifier(cfg.Trend)
	if err != nil {
		return nil, err
	}
	gen, err := signals.NewGenerator(cfg.Signals)
	if err != nil {
		return nil, err
	}

	return &Session{
		cfg:        cfg,
		log:        log.With("component", "session"),
		m:          m,
		series:     s,
		engine:     eng,
		classifier: cls,
		generator:  gen,
	}, nil
}

// OnNewBar appends a closed bar and returns the full derived state for it.
//
// Out-of-order and invalid bars are rejected with *model.OutOfOrderError or
// *model.InvalidBarError; the session is left exactly as it was.
func (s *Session) OnNewBar(bar model.Bar) (model.Update, error) {
	if err := s.series.Append(bar); err != nil {
		if s.m != nil {
			s.m.ObserveReject(err)
		}
		s.log.Warn("bar rejected", "symbol", s.cfg.Symbol, "ts", bar.TS, "error", err)
		return model.Update{}, err
	}

	start := time.Now()
	snap := s.engine.Update(bar)
	tr := s.classifier.Classify(s.prev, snap)
	sigs := s.generator.Evaluate(snap)
	s.prev = &snap

	u := model.Update{
		Symbol:    s.cfg.Symbol,
		Timeframe: s.cfg.Timeframe,
		Bar:       bar,
		Snapshot:  snap,
		Trend:     tr,
		Signals:   sigs,
	}
	s.latest = &u

	if s.m != nil {
		s.m.ObserveUpdate(u, time.Since(start))
	}
	if len(sigs) > 0 {
		ctx := logger.WithTraceID(context.Background(), logger.GenerateTraceID(s.cfg.Symbol, bar.TS))
		for _, sig := range sigs {
			s.log.Info("signal",
				append(logger.LogWithTrace(ctx),
					"kind", sig.Kind,
					"bias", sig.Bias,
					"strength", sig.Strength,
					"price", sig.Price,
					"reason", sig.Reason,
				)...)
		}
	}
	return u, nil
}

// Peek previews a forming bar: the update it would produce if it closed now.
// No state changes.
func (s *Session) Peek(bar model.Bar) (model.Update, error) {
	if err := bar.Validate(); err != nil {
		return model.Update{}, err
	}
	if last, ok := s.series.Last(); ok && !bar.TS.After(last.TS) {
		return model.Update{}, &model.OutOfOrderError{Symbol: s.cfg.Symbol, LastTS: last.TS, BarTS: bar.TS}
	}
	snap := s.engine.Peek(bar)
	return model.Update{
		Symbol:    s.cfg.Symbol,
		Timeframe: s.cfg.Timeframe,
		Bar:       bar,
		Snapshot:  snap,
		Trend:     s.classifier.Classify(s.prev, snap),
		Signals:   s.generator.Preview(snap),
	}, nil
}

// Reset discards every bar and all carried state and retargets the session.
// On error the session is unchanged.
func (s *Session) Reset(symbol string, tf model.Timeframe) error {
	fresh, err := series.New(symbol, tf, s.cfg.Retention)
	if err != nil {
		return err
	}
	s.series = fresh
	s.engine.Reset()
	s.generator.Reset()
	s.prev = nil
	s.latest = nil
	s.cfg.Symbol = symbol
	s.cfg.Timeframe = tf

	if s.m != nil {
		s.m.SessionResets.Inc()
	}
	s.log.Info("session reset", "symbol", symbol, "tf", tf)
	return nil
}

// Latest returns the update for the most recent closed bar.
func (s *Session) Latest() (model.Update, bool) {
	if s.latest == nil {
		return model.Update{}, false
	}
	return *s.latest, true
}

// History returns up to n recent snapshots, oldest first.
func (s *Session) History(n int) []model.IndicatorSnapshot { return s.engine.History(n) }

// Series exposes the bar store, e.g. for a backtest over the session's bars.
func (s *Session) Series() *series.PriceSeries { return s.series }

func (s *Session) Symbol() string             { return s.cfg.Symbol }
func (s *Session) Timeframe() model.Timeframe { return s.cfg.Timeframe }
func (s *Session) Warm() bool                 { return s.engine.Warm() }
