package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"trendsignal/internal/model"
)

// clearEnv unsets variables a developer shell might carry into the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"CONFIG_FILE", "SYMBOL", "TIMEFRAME", "RSI_PERIOD", "MIN_SIGNAL_STRENGTH", "TELEGRAM_CHAT_ID", "LOG_LEVEL", "REDIS_ADDR", "REPLAY_ENABLED", "ARCHIVE_DIR"} {
		if v, ok := os.LookupEnv(k); ok {
			os.Unsetenv(k)
			t.Cleanup(func() { os.Setenv(k, v) })
		}
	}
	// Keep a stray .env in the package dir out of the picture.
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	e := cfg.Engine
	if e.Indicator.RSIPeriod != 14 || e.Indicator.MACDFast != 12 || e.Indicator.MACDSlow != 26 || e.Indicator.MACDSignal != 9 {
		t.Errorf("unexpected indicator defaults %+v", e.Indicator)
	}
	if e.Indicator.BollingerPeriod != 20 || e.Indicator.BollingerStdDev != 2 {
		t.Errorf("unexpected bollinger defaults %+v", e.Indicator)
	}
	if e.MinSignalStrength != 0.3 || e.RetentionBars != 500 || e.Timeframe != model.TF1m {
		t.Errorf("unexpected engine defaults %+v", e)
	}

	sc := cfg.SessionConfig()
	if sc.Signals.Overbought != 70 || sc.Trend.Oversold != 30 || sc.Retention != 500 {
		t.Errorf("unexpected session config %+v", sc)
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "signald.yaml")
	yml := `
engine:
  symbol: BANKNIFTY
  timeframe: 5m
  rsi_period: 10
  macd_fast: 8
  min_signal_strength: 0.5
  signal_strengths:
    divergence: 0.25
backtest:
  initial_capital: 50000
telegram:
  chat_id: 42
archive:
  dir: data/archive
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RSI_PERIOD", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	e := cfg.Engine
	if e.Symbol != "BANKNIFTY" || e.Timeframe != model.TF5m {
		t.Errorf("yaml not applied: %+v", e)
	}
	if e.Indicator.RSIPeriod != 7 {
		t.Errorf("env should override yaml, rsi_period = %d", e.Indicator.RSIPeriod)
	}
	if e.Indicator.MACDFast != 8 || e.Indicator.MACDSlow != 26 {
		t.Errorf("yaml should merge over defaults: %+v", e.Indicator)
	}
	if got := cfg.SignalsConfig(); got.MinStrength != 0.5 || got.DivergenceStrength != 0.25 || got.MACDStrength != 0.5 {
		t.Errorf("unexpected signals config %+v", got)
	}
	if cfg.BacktestConfig().InitialCapital != 50000 || cfg.Telegram.ChatID != 42 || cfg.Archive.Dir != "data/archive" {
		t.Errorf("unexpected backtest/telegram/archive config")
	}
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	if err := os.WriteFile(".env", []byte("SYMBOL=FINNIFTY\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("SYMBOL") })

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.Symbol != "FINNIFTY" {
		t.Errorf("symbol = %q, want FINNIFTY from .env", cfg.Engine.Symbol)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := map[string]struct {
		key, value, field string
	}{
		"bad timeframe":     {"TIMEFRAME", "7m", "timeframe"},
		"not an int":        {"RSI_PERIOD", "fourteen", "RSI_PERIOD"},
		"zero period":       {"RSI_PERIOD", "0", "rsi_period"},
		"strength too high": {"MIN_SIGNAL_STRENGTH", "1.2", "min_signal_strength"},
		"bad log level":     {"LOG_LEVEL", "loud", "log_level"},
		"no redis addr":     {"REDIS_ADDR", "", "redis.addr"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)
			_, err := Load("")
			var cfgErr *model.InvalidConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected InvalidConfigurationError, got %v", err)
			}
			if cfgErr.Field != tc.field {
				t.Errorf("field = %s, want %s", cfgErr.Field, tc.field)
			}
		})
	}
}

func TestLoad_ReplayWithoutRedis(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("REPLAY_ENABLED", "true")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("replay mode should not need redis: %v", err)
	}
	if cfg.Redis.Addr != "" || !cfg.Replay.Enabled {
		t.Errorf("unexpected redis/replay settings: %q %v", cfg.Redis.Addr, cfg.Replay.Enabled)
	}
}

func TestValidate_TimeframeMultiple(t *testing.T) {
	cfg := Default()
	cfg.Engine.FeedTimeframe = model.TF5m
	cfg.Engine.Timeframe = model.TF1m
	if err := cfg.Validate(); err == nil {
		t.Fatal("1m session on a 5m feed should be rejected")
	}
	cfg.Engine.Timeframe = model.TF15m
	if err := cfg.Validate(); err != nil {
		t.Fatalf("15m on 5m feed should be valid: %v", err)
	}
}
