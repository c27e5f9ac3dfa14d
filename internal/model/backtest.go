package model

import "time"

// Trade is one simulated round trip. PnL is per unit of the instrument.
type Trade struct {
	EntryTS     time.Time `json:"entry_ts"`
	EntryPrice  float64   `json:"entry_price"`
	ExitTS      time.Time `json:"exit_ts"`
	ExitPrice   float64   `json:"exit_price"`
	PnL         float64   `json:"pnl"`
	PnLPct      float64   `json:"pnl_pct"`
	EntryReason string    `json:"entry_reason"`
	ExitReason  string    `json:"exit_reason"`
	ForcedExit  bool      `json:"forced_exit"` // closed at end of data
}

// BacktestResult summarises one replay. Built once; never mutated afterwards.
type BacktestResult struct {
	Symbol           string    `json:"symbol"`
	Timeframe        Timeframe `json:"timeframe"`
	StartDate        time.Time `json:"start_date"`
	StartIndex       int       `json:"start_index"`
	BarsReplayed     int       `json:"bars_replayed"`
	SignalsSeen      int       `json:"signals_seen"`
	TotalTrades      int       `json:"total_trades"`
	ProfitableTrades int       `json:"profitable_trades"`
	TotalReturnPct   float64   `json:"total_return_pct"`
	InitialCapital   float64   `json:"initial_capital"`
	FinalEquity      float64   `json:"final_equity"`
	Trades           []Trade   `json:"trade_history"`
}

// WinRate returns profitable / total trades, or 0 with no trades.
func (r *BacktestResult) WinRate() float64 {
	if r.TotalTrades == 0 {
		return 0
	}
	return float64(r.ProfitableTrades) / float64(r.TotalTrades)
}
