// Package backtest replays a bar history through fresh indicator, trend and
// signal state and simulates a long-only position driven by the signals.
//
// Every bar from the beginning of the history is fed so the indicators are
// warm; trades are only simulated from the first bar at or after the start
// date. A run never touches a live session.
package backtest

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"trendsignal/internal/indicator"
	"trendsignal/internal/model"
	"trendsignal/internal/series"
	"trendsignal/internal/signals"
	"trendsignal/internal/trend"
)

const forcedExitReason = "end of data"

// Config bundles everything a replay needs.
type Config struct {
	Indicator      indicator.Config `yaml:"indicator"`
	Trend          trend.Config     `yaml:"trend"`
	Signals        signals.Config   `yaml:"signals"`
	InitialCapital float64          `yaml:"initial_capital"`
}

// DefaultConfig uses the default indicator, trend and signal settings and a
// capital of 10000.
func DefaultConfig() Config {
	return Config{
		Indicator:      indicator.DefaultConfig(),
		Trend:          trend.DefaultConfig(),
		Signals:        signals.DefaultConfig(),
		InitialCapital: 10000,
	}
}

// Validate checks every nested configuration.
func (c Config) Validate() error {
	if err := c.Indicator.Validate(); err != nil {
		return err
	}
	if err := c.Trend.Validate(); err != nil {
		return err
	}
	if err := c.Signals.Validate(); err != nil {
		return err
	}
	if c.InitialCapital <= 0 {
		return &model.InvalidConfigurationError{Field: "initial_capital", Value: c.InitialCapital, Reason: "must be positive"}
	}
	return nil
}

// Engine runs replays. It holds no per-run state and is safe to share.
type Engine struct {
	cfg Config
	log *slog.Logger
}

// New validates cfg and returns a backtest engine.
func New(cfg Config, log *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, log: log.With("component", "backtest")}, nil
}

// Run replays every bar held by s.
//
// Returns *model.EmptySeriesError when no bar is at or after startDate and
// *model.InsufficientHistoryError when fewer than macd_slow+macd_signal bars
// precede the start bar.
func (e *Engine) Run(s *series.PriceSeries, startDate time.Time) (*model.BacktestResult, error) {
	if n := s.Evicted(); n > 0 {
		e.log.Warn("series has evicted bars, replay starts from the oldest retained bar",
			"symbol", s.Symbol(), "evicted", n, "retention", s.Retention())
	}
	return e.run(s, startDate)
}

// RunBars replays a raw bar history such as a file or database read. The bars
// are checked the same way a live series checks them: each must be valid and
// strictly later than the previous one. The first offending bar fails the run
// with its index and a *model.InvalidBarError or *model.OutOfOrderError.
func (e *Engine) RunBars(symbol string, tf model.Timeframe, bars []model.Bar, startDate time.Time) (*model.BacktestResult, error) {
	s, err := series.FromBars(symbol, tf, bars)
	if err != nil {
		return nil, fmt.Errorf("backtest %s: %w", symbol, err)
	}
	return e.run(s, startDate)
}

func (e *Engine) run(s *series.PriceSeries, startDate time.Time) (*model.BacktestResult, error) {
	symbol, tf := s.Symbol(), s.Timeframe()
	bars := s.Bars()
	start := s.IndexAtOrAfter(startDate)
	if start == len(bars) {
		return nil, &model.EmptySeriesError{Symbol: symbol, StartDate: startDate}
	}
	if required := e.cfg.Indicator.ReplayWarmup(); start < required {
		return nil, &model.InsufficientHistoryError{StartIndex: start, Required: required}
	}

	// Fresh state per run; configs were validated in New.
	ind, _ := indicator.NewEngine(e.cfg.Indicator)
	cls, _ := trend.NewClassifier(e.cfg.Trend)
	gen, _ := signals.NewGenerator(e.cfg.Signals)

	book := newLedger(e.cfg.InitialCapital)
	result := &model.BacktestResult{
		Symbol:       symbol,
		Timeframe:    tf,
		StartDate:    startDate,
		StartIndex:   start,
		BarsReplayed: len(bars) - start,
	}

	var prev *model.IndicatorSnapshot
	for i, bar := range bars {
		snap := ind.Update(bar)
		tr := cls.Classify(prev, snap)
		sigs := gen.Evaluate(snap)
		prev = &snap

		if i < start {
			continue
		}
		result.SignalsSeen += len(sigs)

		switch {
		case book.flat():
			if reason, ok := reasons(sigs, model.Signal.Bullish); ok {
				book.enter(bar.TS, bar.Close, reason)
				e.log.Debug("enter", "ts", bar.TS, "price", bar.Close, "trend", tr.Direction, "reason", reason)
			}
		default:
			if reason, ok := reasons(sigs, model.Signal.Bearish); ok {
				book.exit(bar.TS, bar.Close, reason, false)
				e.log.Debug("exit", "ts", bar.TS, "price", bar.Close, "trend", tr.Direction, "reason", reason)
			}
		}
	}

	if !book.flat() {
		last := bars[len(bars)-1]
		book.exit(last.TS, last.Close, forcedExitReason, true)
	}
	book.summary(result)

	e.log.Info("backtest complete",
		"symbol", symbol,
		"tf", tf,
		"start_index", start,
		"bars", result.BarsReplayed,
		"trades", result.TotalTrades,
		"profitable", result.ProfitableTrades,
		"return_pct", result.TotalReturnPct,
	)
	return result, nil
}

// reasons joins the reasons of the signals matching keep.
func reasons(sigs []model.Signal, keep func(model.Signal) bool) (string, bool) {
	var parts []string
	for _, s := range sigs {
		if keep(s) {
			parts = append(parts, s.Reason)
		}
	}
	return strings.Join(parts, "; "), len(parts) > 0
}
