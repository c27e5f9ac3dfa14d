// Command signald runs the live trend and signal engine for one instrument:
// bars in from a Redis stream (or a SQLite replay), updates out to Redis,
// SQLite, WebSocket clients and alert channels.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trendsignal/config"
	"trendsignal/internal/live"
	"trendsignal/internal/logger"
	"trendsignal/internal/marketdata/replay"
	"trendsignal/internal/metrics"
	"trendsignal/internal/model"
	"trendsignal/internal/notification"
	parquetstore "trendsignal/internal/store/parquet"
	redisstore "trendsignal/internal/store/redis"
	sqlitestore "trendsignal/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (default $CONFIG_FILE)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("signald failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	processStart := time.Now()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	level, _ := logger.ParseLevel(cfg.LogLevel) // validated by Load
	log := logger.Init(cfg.Service, level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prom := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus()

	// ---- SQLite ----
	if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{
		DBPath:   cfg.SQLite.Path,
		OnCommit: func(d time.Duration) { prom.SQLiteCommitDur.Observe(d.Seconds()) },
	}, log)
	if err != nil {
		return err
	}
	defer sqlWriter.Close()

	if cfg.Archive.Dir != "" {
		archive, err := parquetstore.NewStore(cfg.Archive.Dir)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		n, err := sqlWriter.Import(ctx, archive, cfg.Engine.Symbol, cfg.Engine.Timeframe)
		if err != nil {
			return fmt.Errorf("import archive: %w", err)
		}
		log.Info("archive checked", "dir", cfg.Archive.Dir, "imported", n)
	}

	sqlReader, err := sqlitestore.NewReader(cfg.SQLite.Path, log)
	if err != nil {
		return err
	}
	defer sqlReader.Close()
	health.SetSQLiteOK(true)

	// ---- Redis ----
	var rdb *goredis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		}, log)
		if err != nil {
			if !cfg.Replay.Enabled {
				return fmt.Errorf("redis: %w", err)
			}
			log.Warn("redis unavailable, continuing in replay mode without it", "error", err)
			rdb = nil
		} else {
			defer rdb.Close()
			health.SetRedisConnected(true)
		}
	}

	// ---- Bar source ----
	var source model.BarSource
	if cfg.Replay.Enabled {
		source = replay.New(sqlReader, time.Time{}, cfg.Replay.Speed, log)
	} else {
		consumer := redisstore.NewConsumer(rdb, redisstore.ConsumerConfig{
			ConsumerGroup: cfg.Redis.ConsumerGroup,
			ConsumerName:  cfg.Redis.ConsumerName,
		}, log)
		source = consumer
	}

	// ---- Alerts ----
	alerts := buildNotifier(cfg, log)

	svc, err := live.New(cfg, live.Deps{
		Source:   source,
		History:  sqlReader,
		Signals:  sqlReader,
		Notifier: alerts,
		Metrics:  prom,
		Health:   health,
	}, log)
	if err != nil {
		return err
	}

	// ---- Sinks ----
	svc.AddSink("sqlite", sqlWriter)
	if rdb != nil {
		bw := redisSink(ctx, rdb, prom, log)
		svc.AddSink("redis", bw)
		go reportRedis(ctx, bw, prom, health)
	}
	svc.AddSink("notify", notification.NewDispatcher(alerts, "alerts", prom, log))

	// ---- HTTP ----
	health.StartLivenessChecker(ctx, rdb, sqlWriter.DB(), 10*time.Second)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, log)
	metricsSrv.Start()

	apiSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           svc.Handler(processStart),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("api listening", "addr", cfg.HTTPAddr)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("api server failed", "error", err)
			stop()
		}
	}()

	runErr := svc.Run(ctx)

	// ---- Graceful shutdown ----
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	svc.Hub().Close()
	if err := apiSrv.Shutdown(shutCtx); err != nil {
		log.Warn("api shutdown", "error", err)
	}
	if err := metricsSrv.Stop(shutCtx); err != nil {
		log.Warn("metrics shutdown", "error", err)
	}
	log.Info("shutdown complete")
	return runErr
}

// redisSink publishes updates through a circuit breaker, buffering while
// Redis is down.
func redisSink(ctx context.Context, rdb *goredis.Client, prom *metrics.Metrics, log *slog.Logger) *redisstore.BufferedWriter {
	w := redisstore.NewWriter(rdb, log)
	w.OnPublish = func(d time.Duration) { prom.RedisPublishDur.Observe(d.Seconds()) }

	cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
	cb.OnStateChange = func(from, to redisstore.State) {
		prom.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			prom.RedisCircuitBreakerTrips.Inc()
		}
		log.Warn("redis circuit breaker", "from", from.String(), "to", to.String())
	}

	bw := redisstore.NewBufferedWriter(ctx, w, cb, 10000, log)
	bw.OnFlush = func(n int) { log.Info("flushed buffered updates", "count", n) }
	return bw
}

// reportRedis exports the publish path state every few seconds.
func reportRedis(ctx context.Context, bw *redisstore.BufferedWriter, prom *metrics.Metrics, health *metrics.HealthStatus) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := bw.Stats()
			prom.RedisBufferedUpdates.Set(float64(st.Pending))
			health.SetRedisPublisher(st.State.String(), st.Trips, st.Pending)
		}
	}
}

// buildNotifier always logs alerts; Telegram and webhook delivery are added
// when configured. External channels share one rate limit.
func buildNotifier(cfg *config.Config, log *slog.Logger) notification.Notifier {
	var external notification.Multi
	if cfg.Telegram.BotToken != "" {
		tg, err := notification.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			log.Warn("telegram disabled", "error", err)
		} else {
			external = append(external, tg)
		}
	}
	if cfg.Webhook.URL != "" {
		external = append(external, notification.NewWebhookNotifier(cfg.Webhook.URL))
	}

	all := notification.Multi{notification.NewLogNotifier(log)}
	if len(external) > 0 {
		all = append(all, notification.NewLimited(external, cfg.Alerts.PerMinute, cfg.Alerts.Burst))
	}
	return all
}
