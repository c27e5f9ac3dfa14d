package live

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"trendsignal/internal/model"
	"trendsignal/internal/notification"
)

// startScheduler registers the periodic backtest report. It returns nil
// when no schedule is configured.
func (s *Service) startScheduler(ctx context.Context) (*cron.Cron, error) {
	expr := s.cfg.Backtest.Cron
	if expr == "" {
		return nil, nil
	}
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(expr, func() { s.ReportBacktest(ctx) }); err != nil {
		return nil, fmt.Errorf("register backtest report %q: %w", expr, err)
	}
	c.Start()
	s.log.Info("backtest report scheduled", "cron", expr, "start_bars", s.cfg.Backtest.StartBars)
	return c, nil
}

// ReportBacktest backtests the last StartBars bars and publishes the
// result to the hub and the notifier.
func (s *Service) ReportBacktest(ctx context.Context) {
	start, ok, err := s.reportStart(ctx)
	if err != nil {
		s.log.Warn("backtest report skipped", "error", err)
		return
	}
	if !ok {
		s.log.Info("backtest report skipped: not enough bars", "start_bars", s.cfg.Backtest.StartBars)
		return
	}

	res, err := s.Backtest(ctx, start)
	if err != nil {
		s.log.Warn("backtest report failed", "error", err)
		return
	}
	s.log.Info("backtest report",
		"symbol", res.Symbol,
		"tf", string(res.Timeframe),
		"bars", res.BarsReplayed,
		"trades", res.TotalTrades,
		"win_rate", res.WinRate(),
		"return_pct", res.TotalReturnPct,
	)
	s.deps.Hub.PublishBacktest(res)

	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.Send(ctx, reportAlert(res)); err != nil {
			s.log.Warn("backtest report delivery failed", "error", err)
		}
	}
}

// reportStart finds the timestamp StartBars bars before the newest bar.
func (s *Service) reportStart(ctx context.Context) (time.Time, bool, error) {
	n := s.cfg.Backtest.StartBars
	var bars []model.Bar
	err := s.do(ctx, func() { bars = s.sess.Series().Slice(n) })
	if err != nil || len(bars) < n {
		return time.Time{}, false, err
	}
	return bars[0].TS, true, nil
}

func reportAlert(res *model.BacktestResult) notification.Alert {
	return notification.Alert{
		Level:     notification.AlertInfo,
		Title:     fmt.Sprintf("%s %s backtest", res.Symbol, res.Timeframe),
		Message:   fmt.Sprintf("%d bars, %d trades, win rate %.0f%%, return %.2f%%, equity %.2f", res.BarsReplayed, res.TotalTrades, res.WinRate()*100, res.TotalReturnPct, res.FinalEquity),
		Symbol:    res.Symbol,
		Timeframe: res.Timeframe,
		TS:        res.StartDate,
	}
}
