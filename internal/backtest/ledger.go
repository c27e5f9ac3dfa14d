package backtest

import (
	"time"

	"trendsignal/internal/model"
)

// ledger tracks a single long-only position and the closed round trips.
// Quantity is one unit; equity compounds the full capital through each trade.
type ledger struct {
	initial float64
	equity  float64
	trades  []model.Trade

	open  bool
	entry model.Trade
}

func newLedger(initialCapital float64) *ledger {
	return &ledger{initial: initialCapital, equity: initialCapital, trades: make([]model.Trade, 0, 16)}
}

func (l *ledger) flat() bool { return !l.open }

func (l *ledger) enter(ts time.Time, price float64, reason string) {
	if l.open {
		return
	}
	l.open = true
	l.entry = model.Trade{EntryTS: ts, EntryPrice: price, EntryReason: reason}
}

func (l *ledger) exit(ts time.Time, price float64, reason string, forced bool) {
	if !l.open {
		return
	}
	t := l.entry
	t.ExitTS = ts
	t.ExitPrice = price
	t.ExitReason = reason
	t.ForcedExit = forced
	t.PnL = price - t.EntryPrice
	t.PnLPct = t.PnL / t.EntryPrice * 100
	l.equity *= price / t.EntryPrice

	l.trades = append(l.trades, t)
	l.open = false
	l.entry = model.Trade{}
}

// summary fills the trade statistics of r.
func (l *ledger) summary(r *model.BacktestResult) {
	r.Trades = l.trades
	r.TotalTrades = len(l.trades)
	r.InitialCapital = l.initial
	r.FinalEquity = l.equity
	for _, t := range l.trades {
		if t.PnL > 0 {
			r.ProfitableTrades++
		}
		r.TotalReturnPct += t.PnLPct
	}
}
