// Package trend fuses one indicator snapshot into a direction with a
// strength and the reasons behind it.
//
// Each rule casts at most one vote. The direction is the majority; a tie or
// no votes at all is SIDEWAYS. Strength is the share of cast votes that agree
// with the direction.
package trend

import (
	"trendsignal/internal/model"
)

// Config holds the RSI levels used by the classifier.
type Config struct {
	Overbought float64 `yaml:"rsi_overbought"`
	Oversold   float64 `yaml:"rsi_oversold"`
}

// DefaultConfig returns 70 / 30.
func DefaultConfig() Config {
	return Config{Overbought: 70, Oversold: 30}
}

// Validate requires 0 < oversold < overbought < 100.
func (c Config) Validate() error {
	if c.Oversold <= 0 || c.Oversold >= 100 {
		return &model.InvalidConfigurationError{Field: "rsi_oversold", Value: c.Oversold, Reason: "must be in (0, 100)"}
	}
	if c.Overbought <= c.Oversold || c.Overbought >= 100 {
		return &model.InvalidConfigurationError{Field: "rsi_overbought", Value: c.Overbought, Reason: "must be in (rsi_oversold, 100)"}
	}
	return nil
}

const (
	ReasonRSIOverbought = "RSI overbought"
	ReasonRSIOversold   = "RSI oversold"
	ReasonMACDBullish   = "MACD above signal, histogram rising"
	ReasonMACDBearish   = "MACD below signal, histogram falling"
	ReasonAboveUpper    = "price above upper band, reversion likely"
	ReasonBelowLower    = "price below lower band, reversion likely"
)

type vote struct {
	bullish bool
	reason  string
}

// Classifier is stateless; the caller supplies the previous snapshot.
type Classifier struct {
	cfg Config
}

// NewClassifier validates cfg and returns a classifier.
func NewClassifier(cfg Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{cfg: cfg}, nil
}

// Classify returns the trend for cur. prev may be nil on the first bar, in
// which case the MACD rule abstains. Fields that are not ready abstain too.
func (c *Classifier) Classify(prev *model.IndicatorSnapshot, cur model.IndicatorSnapshot) model.Trend {
	votes := c.votes(prev, cur)

	var bull, bear int
	for _, v := range votes {
		if v.bullish {
			bull++
		} else {
			bear++
		}
	}

	if bull == bear {
		return model.Trend{Direction: model.DirectionSideways, Strength: 0, Reasons: []string{}}
	}

	dir, agree := model.DirectionUp, bull
	if bear > bull {
		dir, agree = model.DirectionDown, bear
	}

	reasons := make([]string, 0, agree)
	for _, v := range votes {
		if v.bullish == (dir == model.DirectionUp) {
			reasons = append(reasons, v.reason)
		}
	}

	return model.Trend{
		Direction: dir,
		Strength:  clamp01(float64(agree) / float64(len(votes))),
		Reasons:   reasons,
	}
}

// votes evaluates the rules in fixed order: RSI, MACD, Bollinger.
func (c *Classifier) votes(prev *model.IndicatorSnapshot, cur model.IndicatorSnapshot) []vote {
	out := make([]vote, 0, 3)

	if cur.RSI.Ready {
		switch {
		case cur.RSI.Value > c.cfg.Overbought:
			out = append(out, vote{bullish: false, reason: ReasonRSIOverbought})
		case cur.RSI.Value < c.cfg.Oversold:
			out = append(out, vote{bullish: true, reason: ReasonRSIOversold})
		}
	}

	if prev != nil && prev.Histogram.Ready && cur.Histogram.Ready {
		line, sig := cur.MACDLine.Value, cur.SignalLine.Value
		switch {
		case line > sig && cur.Histogram.Value > prev.Histogram.Value:
			out = append(out, vote{bullish: true, reason: ReasonMACDBullish})
		case line < sig && cur.Histogram.Value < prev.Histogram.Value:
			out = append(out, vote{bullish: false, reason: ReasonMACDBearish})
		}
	}

	if cur.BollingerMid.Ready {
		switch {
		case cur.Close > cur.BollingerUpper.Value:
			out = append(out, vote{bullish: false, reason: ReasonAboveUpper})
		case cur.Close < cur.BollingerLower.Value:
			out = append(out, vote{bullish: true, reason: ReasonBelowLower})
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
