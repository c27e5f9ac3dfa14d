// cmd/backtest replays stored bars through a fresh engine and prints the
// trades a long-only strategy would have taken from a start date.
//
// Usage:
//
//	go run ./cmd/backtest --db=data/bars.db --symbol=NIFTY --tf=5m --start=2024-01-15
//	go run ./cmd/backtest --parquet=NIFTY_5m.parquet --start=2024-01-15T09:15:00Z --json
//	go run ./cmd/backtest --db=data/bars.db --export=data/archive
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"

	"trendsignal/config"
	"trendsignal/internal/backtest"
	"trendsignal/internal/logger"
	"trendsignal/internal/model"
	parquetstore "trendsignal/internal/store/parquet"
	sqlitestore "trendsignal/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "YAML config file for indicator and signal settings")
	dbPath := flag.String("db", "data/bars.db", "Path to SQLite database")
	parquetPath := flag.String("parquet", "", "Read bars from this parquet file instead of SQLite")
	symbol := flag.String("symbol", "", "Symbol to replay (default from config)")
	tfStr := flag.String("tf", "", "Timeframe to replay (default from config)")
	startStr := flag.String("start", "", "First trading bar: RFC3339 or YYYY-MM-DD")
	capital := flag.Float64("capital", 0, "Initial capital (default from config)")
	asJSON := flag.Bool("json", false, "Print the full result as JSON")
	export := flag.String("export", "", "Also merge the loaded bars into the parquet archive in this directory")
	flag.Parse()

	if err := run(*configPath, *dbPath, *parquetPath, *symbol, *tfStr, *startStr, *capital, *asJSON, *export); err != nil {
		fmt.Fprintln(os.Stderr, "backtest:", err)
		var histErr *model.InsufficientHistoryError
		var emptyErr *model.EmptySeriesError
		var orderErr *model.OutOfOrderError
		var barErr *model.InvalidBarError
		if errors.As(err, &histErr) || errors.As(err, &emptyErr) ||
			errors.As(err, &orderErr) || errors.As(err, &barErr) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(configPath, dbPath, parquetPath, symbol, tfStr, startStr string, capital float64, asJSON bool, export string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	level, _ := logger.ParseLevel(cfg.LogLevel)
	log := logger.New(os.Stderr, "backtest", level)

	if symbol == "" {
		symbol = cfg.Engine.Symbol
	}
	tf := cfg.Engine.Timeframe
	if tfStr != "" {
		if tf, err = model.ParseTimeframe(tfStr); err != nil {
			return err
		}
	}
	start, err := parseStart(startStr)
	if err != nil {
		return err
	}

	bars, err := loadBars(dbPath, parquetPath, symbol, tf)
	if err != nil {
		return err
	}
	log.Info("bars loaded", "symbol", symbol, "tf", string(tf), "bars", len(bars))

	if export != "" {
		archive, err := parquetstore.NewStore(export)
		if err != nil {
			return err
		}
		if err := exportBars(archive, symbol, tf, bars); err != nil {
			return err
		}
		log.Info("bars exported", "path", archive.Path(symbol, tf))
	}

	btCfg := cfg.BacktestConfig()
	if capital > 0 {
		btCfg.InitialCapital = capital
	}
	engine, err := backtest.New(btCfg, log)
	if err != nil {
		return err
	}

	res, err := engine.RunBars(symbol, tf, bars, start)
	if err != nil {
		return err
	}

	if asJSON {
		out, err := sonic.ConfigStd.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	printSummary(res)
	return nil
}

func loadBars(dbPath, parquetPath, symbol string, tf model.Timeframe) ([]model.Bar, error) {
	if parquetPath != "" {
		return parquetstore.ReadFile(parquetPath)
	}
	reader, err := sqlitestore.NewReader(dbPath, logger.Nop())
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return reader.ReadBars(context.Background(), symbol, tf, time.Time{})
}

// exportBars stores bars in dst; an archive keeps one merged file per
// symbol and timeframe.
func exportBars(dst model.BarWriter, symbol string, tf model.Timeframe, bars []model.Bar) error {
	defer dst.Close()
	if err := dst.WriteBars(context.Background(), symbol, tf, bars); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	return nil
}

func parseStart(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --start %q: want RFC3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

func printSummary(res *model.BacktestResult) {
	fmt.Println("═══════════════════════════════════════════")
	fmt.Printf("  Backtest %s %s\n", res.Symbol, res.Timeframe)
	fmt.Println("═══════════════════════════════════════════")
	fmt.Printf("  Start:            %s (bar %d)\n", res.StartDate.Format(time.RFC3339), res.StartIndex)
	fmt.Printf("  Bars replayed:    %d\n", res.BarsReplayed)
	fmt.Printf("  Signals seen:     %d\n", res.SignalsSeen)
	fmt.Printf("  Trades:           %d (%d profitable, win rate %.1f%%)\n", res.TotalTrades, res.ProfitableTrades, res.WinRate()*100)
	fmt.Printf("  Total return:     %.2f%%\n", res.TotalReturnPct)
	fmt.Printf("  Equity:           %.2f -> %.2f\n", res.InitialCapital, res.FinalEquity)

	if len(res.Trades) == 0 {
		return
	}
	fmt.Println("───────────────────────────────────────────")
	for i, tr := range res.Trades {
		exit := tr.ExitReason
		if tr.ForcedExit {
			exit += " (forced)"
		}
		fmt.Printf("  #%-3d %s %.2f -> %s %.2f  %+.2f%%\n      in: %s\n      out: %s\n",
			i+1,
			tr.EntryTS.Format("2006-01-02 15:04"), tr.EntryPrice,
			tr.ExitTS.Format("2006-01-02 15:04"), tr.ExitPrice,
			tr.PnLPct, tr.EntryReason, exit)
	}
}
