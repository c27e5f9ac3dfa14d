package live

import (
	"context"
	"time"

	"trendsignal/internal/model"
)

// Latest returns the update of the most recent closed bar.
func (s *Service) Latest(ctx context.Context) (model.Update, bool, error) {
	var (
		u  model.Update
		ok bool
	)
	err := s.do(ctx, func() { u, ok = s.sess.Latest() })
	return u, ok, err
}

// History returns up to n recent snapshots, oldest first.
func (s *Service) History(ctx context.Context, n int) ([]model.IndicatorSnapshot, error) {
	var snaps []model.IndicatorSnapshot
	err := s.do(ctx, func() { snaps = s.sess.History(n) })
	return snaps, err
}

// Signals returns up to n persisted signals for the current symbol and
// timeframe, oldest first. Without a signal store it returns nothing.
func (s *Service) Signals(ctx context.Context, n int) ([]model.Signal, error) {
	if s.deps.Signals == nil {
		return nil, nil
	}
	var (
		symbol string
		tf     model.Timeframe
	)
	if err := s.do(ctx, func() { symbol, tf = s.sess.Symbol(), s.sess.Timeframe() }); err != nil {
		return nil, err
	}
	return s.deps.Signals.ReadSignals(ctx, symbol, tf, n)
}

// Reset retargets the session to symbol/tf, warms it from history and
// restarts the feed. On error nothing changes.
func (s *Service) Reset(ctx context.Context, symbol string, tf model.Timeframe) error {
	if symbol == "" {
		return &model.InvalidConfigurationError{Field: "symbol", Value: symbol, Reason: "must not be empty"}
	}
	if _, err := model.ParseTimeframe(string(tf)); err != nil {
		return err
	}

	var resetErr error
	err := s.do(ctx, func() {
		builder, err := s.newBuilder(tf)
		if err != nil {
			resetErr = err
			return
		}
		if err := s.sess.Reset(symbol, tf); err != nil {
			resetErr = err
			return
		}
		s.builder = builder

		s.stopFeed()
		if s.backfill {
			if err := s.backfillSession(ctx); err != nil {
				s.log.Warn("backfill after reset failed", "symbol", symbol, "error", err)
			}
		}
		s.startFeed(s.runCtx)
	})
	if err != nil {
		return err
	}
	return resetErr
}

// Backtest replays the current symbol/timeframe history from start. Bars come
// from the history store when there is one, else from the session's series.
// The live session is never touched by the replay itself.
func (s *Service) Backtest(ctx context.Context, start time.Time) (*model.BacktestResult, error) {
	var (
		symbol string
		tf     model.Timeframe
		bars   []model.Bar
	)
	err := s.do(ctx, func() {
		symbol, tf = s.sess.Symbol(), s.sess.Timeframe()
		if s.deps.History == nil {
			bars = s.sess.Series().Bars()
		}
	})
	if err != nil {
		return nil, err
	}

	if s.deps.History != nil {
		if bars, err = s.deps.History.ReadBars(ctx, symbol, tf, time.Time{}); err != nil {
			return nil, err
		}
	}

	began := time.Now()
	res, err := s.btEng.RunBars(symbol, tf, bars, start)
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveBacktest(time.Since(began), err)
	}
	return res, err
}
