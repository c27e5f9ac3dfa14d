package indicator

import (
	"trendsignal/internal/model"
	"trendsignal/internal/ringbuf"
)

// Config specifies the indicator windows used by an Engine.
type Config struct {
	RSIPeriod          int     `yaml:"rsi_period"`
	MACDFast           int     `yaml:"macd_fast"`
	MACDSlow           int     `yaml:"macd_slow"`
	MACDSignal         int     `yaml:"macd_signal"`
	BollingerPeriod    int     `yaml:"bollinger_period"`
	BollingerStdDev    float64 `yaml:"bollinger_stddev"`
	VolumePeriod       int     `yaml:"volume_ma_period"`
	DivergenceLookback int     `yaml:"divergence_lookback"`

	// HistorySize bounds the snapshots kept for charting.
	HistorySize int `yaml:"-"`
}

// DefaultConfig returns the classic 14 / 12-26-9 / 20x2 settings.
func DefaultConfig() Config {
	return Config{
		RSIPeriod:          14,
		MACDFast:           12,
		MACDSlow:           26,
		MACDSignal:         9,
		BollingerPeriod:    20,
		BollingerStdDev:    2,
		VolumePeriod:       20,
		DivergenceLookback: 10,
		HistorySize:        500,
	}
}

// Validate returns *model.InvalidConfigurationError for the first bad field.
func (c Config) Validate() error {
	periods := []struct {
		field string
		v     int
	}{
		{"rsi_period", c.RSIPeriod},
		{"macd_fast", c.MACDFast},
		{"macd_slow", c.MACDSlow},
		{"macd_signal", c.MACDSignal},
		{"bollinger_period", c.BollingerPeriod},
		{"volume_ma_period", c.VolumePeriod},
		{"divergence_lookback", c.DivergenceLookback},
	}
	for _, p := range periods {
		if p.v <= 0 {
			return &model.InvalidConfigurationError{Field: p.field, Value: p.v, Reason: "must be positive"}
		}
	}
	if c.MACDFast >= c.MACDSlow {
		return &model.InvalidConfigurationError{Field: "macd_fast", Value: c.MACDFast, Reason: "must be below macd_slow"}
	}
	if c.BollingerStdDev <= 0 {
		return &model.InvalidConfigurationError{Field: "bollinger_stddev", Value: c.BollingerStdDev, Reason: "must be positive"}
	}
	return nil
}

// ReplayWarmup is the bar count a backtest must skip before trading:
// slow EMA period + signal period.
func (c Config) ReplayWarmup() int { return c.MACDSlow + c.MACDSignal }

// Warmup is the bar count after which every snapshot field is ready.
func (c Config) Warmup() int {
	w := c.MACDSlow + c.MACDSignal - 1
	for _, n := range []int{c.RSIPeriod + 1, c.BollingerPeriod, c.VolumePeriod, c.DivergenceLookback + 1} {
		if n > w {
			w = n
		}
	}
	return w
}

// Engine computes RSI, MACD, Bollinger Bands and the divergence inputs for a
// single bar stream. Not safe for concurrent use.
type Engine struct {
	cfg Config

	rsi      *RSI
	macd     *MACD
	bb       *Bollinger
	volume   *SMA
	extremes *Extremes

	count   int
	history *ringbuf.Ring[model.IndicatorSnapshot]
}

// NewEngine creates an engine after validating cfg.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultConfig().HistorySize
	}
	return &Engine{
		cfg:      cfg,
		rsi:      NewRSI(cfg.RSIPeriod),
		macd:     NewMACD(cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal),
		bb:       NewBollinger(cfg.BollingerPeriod, cfg.BollingerStdDev),
		volume:   NewSMA(cfg.VolumePeriod),
		extremes: NewExtremes(cfg.DivergenceLookback),
		history:  ringbuf.New[model.IndicatorSnapshot](cfg.HistorySize),
	}, nil
}

// Update feeds a closed bar and returns its snapshot.
// Fields whose indicator is not warm yet are returned with Ready=false.
func (e *Engine) Update(bar model.Bar) model.IndicatorSnapshot {
	e.rsi.Update(bar.Close)
	e.macd.Update(bar.Close)
	e.bb.Update(bar.Close)
	e.volume.Update(float64(bar.Volume))
	e.extremes.Update(bar.Close)

	snap := model.IndicatorSnapshot{
		Index:      e.count,
		TS:         bar.TS,
		Close:      bar.Close,
		Volume:     bar.Volume,
		MACDLine:   e.macd.Line(),
		SignalLine: e.macd.Signal(),
		Histogram:  e.macd.Histogram(),
	}
	if e.rsi.Ready() {
		snap.RSI = model.ReadyReading(e.rsi.Value())
	}
	snap.BollingerUpper, snap.BollingerMid, snap.BollingerLower = e.bb.Bands()
	if e.volume.Ready() {
		snap.VolumeSMA = model.ReadyReading(e.volume.Value())
	}
	snap.PriorHigh, snap.PriorLow = e.extremes.Prior()

	e.count++
	e.history.Push(snap)
	return snap
}

// Peek computes the snapshot a forming bar would produce if it closed now.
// Indicator state is not mutated.
func (e *Engine) Peek(bar model.Bar) model.IndicatorSnapshot {
	snap := model.IndicatorSnapshot{
		Index:  -1,
		TS:     bar.TS,
		Close:  bar.Close,
		Volume: bar.Volume,
	}
	if v, ok := e.rsi.Peek(bar.Close); ok {
		snap.RSI = model.ReadyReading(v)
	}
	snap.MACDLine, snap.SignalLine, snap.Histogram = e.macd.Peek(bar.Close)
	snap.BollingerUpper, snap.BollingerMid, snap.BollingerLower = e.bb.Peek(bar.Close)
	if v, ok := e.volume.Peek(float64(bar.Volume)); ok {
		snap.VolumeSMA = model.ReadyReading(v)
	}
	snap.PriorHigh, snap.PriorLow = e.extremes.Peek()
	return snap
}

// Last returns the most recent snapshot, or false before the first bar.
func (e *Engine) Last() (model.IndicatorSnapshot, bool) { return e.history.Last() }

// History returns up to n recent snapshots, oldest first, for charting.
func (e *Engine) History(n int) []model.IndicatorSnapshot { return e.history.Tail(n) }

// Count returns the number of bars fed since creation or the last Reset.
func (e *Engine) Count() int { return e.count }

// Warm reports whether every snapshot field is available.
func (e *Engine) Warm() bool { return e.count >= e.cfg.Warmup() }

// Reset discards all indicator state and history.
func (e *Engine) Reset() {
	e.rsi.Reset()
	e.macd.Reset()
	e.bb.Reset()
	e.volume.Reset()
	e.extremes.Reset()
	e.history.Reset()
	e.count = 0
}

// Recompute rebuilds every snapshot for bars from scratch with a fresh engine.
func Recompute(cfg Config, bars []model.Bar) ([]model.IndicatorSnapshot, error) {
	e, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	out := make([]model.IndicatorSnapshot, len(bars))
	for i, b := range bars {
		out[i] = e.Update(b)
	}
	return out, nil
}
