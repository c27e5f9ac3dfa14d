// Package signals turns consecutive indicator snapshots into discrete,
// edge-triggered alerts.
//
// A condition fires on the bar where it becomes true, not on every bar it
// stays true. All conditions detected on one bar share a combined strength
// (the sum of their base strengths, capped at 1); the bar emits nothing when
// that combined strength is below MinStrength.
package signals

import (
	"fmt"

	"trendsignal/internal/model"
)

// Config holds base strengths per condition, the emission threshold and the
// RSI crossing levels.
type Config struct {
	MinStrength        float64 `yaml:"min_signal_strength"`
	MACDStrength       float64 `yaml:"macd_strength"`
	RSIStrength        float64 `yaml:"rsi_strength"`
	BollingerStrength  float64 `yaml:"bollinger_strength"`
	DivergenceStrength float64 `yaml:"divergence_strength"`
	Overbought         float64 `yaml:"rsi_overbought"`
	Oversold           float64 `yaml:"rsi_oversold"`
}

func DefaultConfig() Config {
	return Config{
		MinStrength:        0.3,
		MACDStrength:       0.5,
		RSIStrength:        0.4,
		BollingerStrength:  0.3,
		DivergenceStrength: 0.2,
		Overbought:         70,
		Oversold:           30,
	}
}

// Validate requires every strength in [0, 1] and oversold < overbought.
func (c Config) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"min_signal_strength", c.MinStrength},
		{"macd_strength", c.MACDStrength},
		{"rsi_strength", c.RSIStrength},
		{"bollinger_strength", c.BollingerStrength},
		{"divergence_strength", c.DivergenceStrength},
	} {
		if f.v < 0 || f.v > 1 {
			return &model.InvalidConfigurationError{Field: f.name, Value: f.v, Reason: "must be in [0, 1]"}
		}
	}
	if c.Oversold >= c.Overbought {
		return &model.InvalidConfigurationError{Field: "rsi_oversold", Value: c.Oversold, Reason: "must be below rsi_overbought"}
	}
	return nil
}

type condition struct {
	kind     model.SignalKind
	bias     model.Bias
	strength float64
	reason   string
}

// Generator remembers only the previous snapshot. Not safe for concurrent use.
type Generator struct {
	cfg  Config
	prev *model.IndicatorSnapshot
}

// NewGenerator validates cfg and returns a generator with no history.
func NewGenerator(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg}, nil
}

// Evaluate detects conditions on cur against the previous snapshot, then
// remembers cur. The returned slice is empty (never nil) when nothing fires.
func (g *Generator) Evaluate(cur model.IndicatorSnapshot) []model.Signal {
	out := g.Preview(cur)
	g.prev = &cur
	return out
}

// Preview is Evaluate without remembering cur, for forming bars.
func (g *Generator) Preview(cur model.IndicatorSnapshot) []model.Signal {
	conds := g.detect(g.prev, cur)
	if len(conds) == 0 {
		return []model.Signal{}
	}

	var combined float64
	for _, c := range conds {
		combined += c.strength
	}
	if combined > 1 {
		combined = 1
	}
	if combined < g.cfg.MinStrength {
		return []model.Signal{}
	}

	out := make([]model.Signal, len(conds))
	for i, c := range conds {
		out[i] = model.Signal{
			Kind:     c.kind,
			Bias:     c.bias,
			Strength: combined,
			TS:       cur.TS,
			Price:    cur.Close,
			Reason:   c.reason,
		}
	}
	return out
}

// Reset forgets the previous snapshot.
func (g *Generator) Reset() { g.prev = nil }

func (g *Generator) detect(prev *model.IndicatorSnapshot, cur model.IndicatorSnapshot) []condition {
	var out []condition

	if prev != nil {
		if prev.Histogram.Ready && cur.Histogram.Ready {
			ph, ch := prev.Histogram.Value, cur.Histogram.Value
			switch {
			case ph <= 0 && ch > 0:
				out = append(out, condition{model.SignalMACDBullCross, model.BiasBullish, g.cfg.MACDStrength,
					fmt.Sprintf("MACD crossed above signal (hist %.4f)", ch)})
			case ph >= 0 && ch < 0:
				out = append(out, condition{model.SignalMACDBearCross, model.BiasBearish, g.cfg.MACDStrength,
					fmt.Sprintf("MACD crossed below signal (hist %.4f)", ch)})
			}
		}

		if prev.RSI.Ready && cur.RSI.Ready {
			pr, cr := prev.RSI.Value, cur.RSI.Value
			switch {
			case pr <= g.cfg.Overbought && cr > g.cfg.Overbought:
				out = append(out, condition{model.SignalRSIOverbought, model.BiasBearish, g.cfg.RSIStrength,
					fmt.Sprintf("RSI %.1f crossed above %.0f", cr, g.cfg.Overbought)})
			case pr >= g.cfg.Oversold && cr < g.cfg.Oversold:
				out = append(out, condition{model.SignalRSIOversold, model.BiasBullish, g.cfg.RSIStrength,
					fmt.Sprintf("RSI %.1f crossed below %.0f", cr, g.cfg.Oversold)})
			}
		}

		if prev.BollingerMid.Ready && cur.BollingerMid.Ready {
			switch {
			case prev.Close <= prev.BollingerUpper.Value && cur.Close > cur.BollingerUpper.Value:
				out = append(out, condition{model.SignalBollingerBreakoutUp, model.BiasBearish, g.cfg.BollingerStrength,
					fmt.Sprintf("close %.2f broke above upper band %.2f", cur.Close, cur.BollingerUpper.Value)})
			case prev.Close >= prev.BollingerLower.Value && cur.Close < cur.BollingerLower.Value:
				out = append(out, condition{model.SignalBollingerBreakoutDown, model.BiasBullish, g.cfg.BollingerStrength,
					fmt.Sprintf("close %.2f broke below lower band %.2f", cur.Close, cur.BollingerLower.Value)})
			}
		}
	}

	// Divergence needs no previous bar.
	if cur.VolumeSMA.Ready && cur.PriorHigh.Ready && float64(cur.Volume) < cur.VolumeSMA.Value {
		switch {
		case cur.Close > cur.PriorHigh.Value:
			out = append(out, condition{model.SignalVolumeDivergence, model.BiasBearish, g.cfg.DivergenceStrength,
				fmt.Sprintf("new high %.2f on volume %d below average %.0f", cur.Close, cur.Volume, cur.VolumeSMA.Value)})
		case cur.Close < cur.PriorLow.Value:
			out = append(out, condition{model.SignalVolumeDivergence, model.BiasBullish, g.cfg.DivergenceStrength,
				fmt.Sprintf("new low %.2f on volume %d below average %.0f", cur.Close, cur.Volume, cur.VolumeSMA.Value)})
		}
	}
	return out
}
