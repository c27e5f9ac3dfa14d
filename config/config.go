// Package config loads service configuration: built-in defaults, then an
// optional YAML file, then a .env file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"trendsignal/internal/backtest"
	"trendsignal/internal/indicator"
	"trendsignal/internal/logger"
	"trendsignal/internal/model"
	"trendsignal/internal/session"
	"trendsignal/internal/signals"
	"trendsignal/internal/trend"
)

// Engine is the analysis configuration accepted at session construction.
type Engine struct {
	Symbol        string          `yaml:"symbol"`
	Timeframe     model.Timeframe `yaml:"timeframe"`
	FeedTimeframe model.Timeframe `yaml:"feed_timeframe"`
	RetentionBars int             `yaml:"retention_bars"`

	Indicator indicator.Config `yaml:",inline"`

	RSIOverbought     float64 `yaml:"rsi_overbought"`
	RSIOversold       float64 `yaml:"rsi_oversold"`
	MinSignalStrength float64 `yaml:"min_signal_strength"`

	Strengths struct {
		MACD       float64 `yaml:"macd"`
		RSI        float64 `yaml:"rsi"`
		Bollinger  float64 `yaml:"bollinger"`
		Divergence float64 `yaml:"divergence"`
	} `yaml:"signal_strengths"`
}

// Config holds all application configuration.
type Config struct {
	Service  string `yaml:"service"`
	LogLevel string `yaml:"log_level"`

	Engine Engine `yaml:"engine"`

	Backtest struct {
		InitialCapital float64 `yaml:"initial_capital"`
		Cron           string  `yaml:"cron"`       // empty disables the scheduled report
		StartBars      int     `yaml:"start_bars"` // scheduled run starts this many bars back
	} `yaml:"backtest"`

	Redis struct {
		Addr          string `yaml:"addr"`
		Password      string `yaml:"password"`
		ConsumerGroup string `yaml:"consumer_group"`
		ConsumerName  string `yaml:"consumer_name"`
	} `yaml:"redis"`

	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`

	// Archive is an optional directory of parquet files (SYMBOL_tf.parquet)
	// imported into SQLite at startup.
	Archive struct {
		Dir string `yaml:"dir"`
	} `yaml:"archive"`

	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   int64  `yaml:"chat_id"`
	} `yaml:"telegram"`

	Webhook struct {
		URL string `yaml:"url"`
	} `yaml:"webhook"`

	Alerts struct {
		PerMinute float64 `yaml:"per_minute"`
		Burst     int     `yaml:"burst"`
	} `yaml:"alerts"`

	Replay struct {
		Enabled bool    `yaml:"enabled"`
		Speed   float64 `yaml:"speed"` // 0 = as fast as possible
	} `yaml:"replay"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		Service:     "signald",
		LogLevel:    "info",
		HTTPAddr:    ":9095",
		MetricsAddr: ":9090",
	}

	e := &cfg.Engine
	e.Symbol = "NIFTY"
	e.Timeframe = model.TF1m
	e.FeedTimeframe = model.TF1m
	e.RetentionBars = 500
	e.Indicator = indicator.DefaultConfig()

	sig := signals.DefaultConfig()
	e.RSIOverbought = sig.Overbought
	e.RSIOversold = sig.Oversold
	e.MinSignalStrength = sig.MinStrength
	e.Strengths.MACD = sig.MACDStrength
	e.Strengths.RSI = sig.RSIStrength
	e.Strengths.Bollinger = sig.BollingerStrength
	e.Strengths.Divergence = sig.DivergenceStrength

	cfg.Backtest.InitialCapital = backtest.DefaultConfig().InitialCapital
	cfg.Backtest.Cron = "0 */30 * * * *"
	cfg.Backtest.StartBars = 300

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.ConsumerGroup = "signald"
	cfg.Redis.ConsumerName = "worker-1"
	cfg.SQLite.Path = "data/bars.db"

	cfg.Alerts.PerMinute = 6
	cfg.Alerts.Burst = 3
	return cfg
}

// Load builds the configuration. path defaults to $CONFIG_FILE; a missing
// file is not an error. .env values never override variables already set.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	e := &c.Engine
	str := map[string]*string{
		"SERVICE_NAME":       &c.Service,
		"LOG_LEVEL":          &c.LogLevel,
		"SYMBOL":             &e.Symbol,
		"REDIS_ADDR":         &c.Redis.Addr,
		"REDIS_PASSWORD":     &c.Redis.Password,
		"CONSUMER_GROUP":     &c.Redis.ConsumerGroup,
		"CONSUMER_NAME":      &c.Redis.ConsumerName,
		"SQLITE_PATH":        &c.SQLite.Path,
		"ARCHIVE_DIR":        &c.Archive.Dir,
		"HTTP_ADDR":          &c.HTTPAddr,
		"METRICS_ADDR":       &c.MetricsAddr,
		"TELEGRAM_BOT_TOKEN": &c.Telegram.BotToken,
		"WEBHOOK_URL":        &c.Webhook.URL,
		"BACKTEST_CRON":      &c.Backtest.Cron,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	if v, ok := os.LookupEnv("TIMEFRAME"); ok {
		e.Timeframe = model.Timeframe(v)
	}

	ints := map[string]*int{
		"RETENTION_BARS":      &e.RetentionBars,
		"RSI_PERIOD":          &e.Indicator.RSIPeriod,
		"MACD_FAST":           &e.Indicator.MACDFast,
		"MACD_SLOW":           &e.Indicator.MACDSlow,
		"MACD_SIGNAL":         &e.Indicator.MACDSignal,
		"BOLLINGER_PERIOD":    &e.Indicator.BollingerPeriod,
		"VOLUME_MA_PERIOD":    &e.Indicator.VolumePeriod,
		"DIVERGENCE_LOOKBACK": &e.Indicator.DivergenceLookback,
		"BACKTEST_START_BARS": &c.Backtest.StartBars,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return &model.InvalidConfigurationError{Field: key, Value: v, Reason: "not an integer"}
			}
			*dst = n
		}
	}

	floats := map[string]*float64{
		"BOLLINGER_STDDEV":         &e.Indicator.BollingerStdDev,
		"MIN_SIGNAL_STRENGTH":      &e.MinSignalStrength,
		"RSI_OVERBOUGHT":           &e.RSIOverbought,
		"RSI_OVERSOLD":             &e.RSIOversold,
		"BACKTEST_INITIAL_CAPITAL": &c.Backtest.InitialCapital,
		"REPLAY_SPEED":             &c.Replay.Speed,
	}
	for key, dst := range floats {
		if v, ok := os.LookupEnv(key); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return &model.InvalidConfigurationError{Field: key, Value: v, Reason: "not a number"}
			}
			*dst = f
		}
	}

	if v, ok := os.LookupEnv("TELEGRAM_CHAT_ID"); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return &model.InvalidConfigurationError{Field: "TELEGRAM_CHAT_ID", Value: v, Reason: "not an integer"}
		}
		c.Telegram.ChatID = id
	}
	if v, ok := os.LookupEnv("REPLAY_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &model.InvalidConfigurationError{Field: "REPLAY_ENABLED", Value: v, Reason: "not a boolean"}
		}
		c.Replay.Enabled = b
	}
	return nil
}

// Validate returns *model.InvalidConfigurationError for the first bad field.
func (c *Config) Validate() error {
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return &model.InvalidConfigurationError{Field: "log_level", Value: c.LogLevel, Reason: err.Error()}
	}
	e := c.Engine
	if e.Symbol == "" {
		return &model.InvalidConfigurationError{Field: "symbol", Value: e.Symbol, Reason: "required"}
	}
	if _, err := model.ParseTimeframe(string(e.Timeframe)); err != nil {
		return err
	}
	if _, err := model.ParseTimeframe(string(e.FeedTimeframe)); err != nil {
		return err
	}
	if e.Timeframe.Duration()%e.FeedTimeframe.Duration() != 0 {
		return &model.InvalidConfigurationError{Field: "timeframe", Value: e.Timeframe, Reason: "must be a multiple of feed_timeframe"}
	}
	if e.RetentionBars <= 0 {
		return &model.InvalidConfigurationError{Field: "retention_bars", Value: e.RetentionBars, Reason: "must be positive"}
	}
	if err := c.BacktestConfig().Validate(); err != nil {
		return err
	}
	if c.Backtest.StartBars < 0 {
		return &model.InvalidConfigurationError{Field: "backtest.start_bars", Value: c.Backtest.StartBars, Reason: "must not be negative"}
	}
	if c.Alerts.PerMinute <= 0 || c.Alerts.Burst <= 0 {
		return &model.InvalidConfigurationError{Field: "alerts", Value: c.Alerts, Reason: "per_minute and burst must be positive"}
	}
	if !c.Replay.Enabled && c.Redis.Addr == "" {
		return &model.InvalidConfigurationError{Field: "redis.addr", Value: c.Redis.Addr, Reason: "required unless replay is enabled"}
	}
	if c.Replay.Speed < 0 {
		return &model.InvalidConfigurationError{Field: "replay.speed", Value: c.Replay.Speed, Reason: "must not be negative"}
	}
	return nil
}

// TrendConfig derives the classifier settings.
func (c *Config) TrendConfig() trend.Config {
	return trend.Config{Overbought: c.Engine.RSIOverbought, Oversold: c.Engine.RSIOversold}
}

// SignalsConfig derives the signal generator settings.
func (c *Config) SignalsConfig() signals.Config {
	e := c.Engine
	return signals.Config{
		MinStrength:        e.MinSignalStrength,
		MACDStrength:       e.Strengths.MACD,
		RSIStrength:        e.Strengths.RSI,
		BollingerStrength:  e.Strengths.Bollinger,
		DivergenceStrength: e.Strengths.Divergence,
		Overbought:         e.RSIOverbought,
		Oversold:           e.RSIOversold,
	}
}

// SessionConfig derives the live session settings.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		Symbol:    c.Engine.Symbol,
		Timeframe: c.Engine.Timeframe,
		Retention: c.Engine.RetentionBars,
		Indicator: c.Engine.Indicator,
		Trend:     c.TrendConfig(),
		Signals:   c.SignalsConfig(),
	}
}

// BacktestConfig derives the replay settings.
func (c *Config) BacktestConfig() backtest.Config {
	return backtest.Config{
		Indicator:      c.Engine.Indicator,
		Trend:          c.TrendConfig(),
		Signals:        c.SignalsConfig(),
		InitialCapital: c.Backtest.InitialCapital,
	}
}
