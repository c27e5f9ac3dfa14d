package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trendsignal/internal/model"
)

// Metrics holds all Prometheus metrics for the signal engine.
type Metrics struct {
	BarsTotal    *prometheus.CounterVec // labels: symbol, tf
	BarsRejected *prometheus.CounterVec // labels: reason=out_of_order|invalid|stale
	TFBarsTotal  *prometheus.CounterVec // labels: tf

	IndicatorComputeDur prometheus.Histogram
	SignalsTotal        *prometheus.CounterVec // labels: kind
	TrendDirection      *prometheus.GaugeVec   // labels: symbol; 1=up, 0=sideways, -1=down
	TrendStrength       *prometheus.GaugeVec   // labels: symbol
	SessionResets       prometheus.Counter

	BacktestRuns *prometheus.CounterVec // labels: result=ok|error
	BacktestDur  prometheus.Histogram

	// Sinks
	FanoutDropsTotal     *prometheus.CounterVec // labels: subscriber
	ChannelSaturationPct *prometheus.GaugeVec   // labels: subscriber
	RedisBufferedUpdates prometheus.Gauge
	RedisPublishDur      prometheus.Histogram
	SQLiteCommitDur      prometheus.Histogram
	NotificationsTotal   *prometheus.CounterVec // labels: channel, status
	WSClients            prometheus.Gauge

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
}

var fastBuckets = []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001}

// NewMetrics creates all metrics and registers them with reg.
// A nil reg uses the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		BarsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_bars_total",
			Help: "Closed bars accepted by the session",
		}, []string{"symbol", "tf"}),
		BarsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_bars_rejected_total",
			Help: "Bars rejected by the session (out of order or invalid)",
		}, []string{"reason"}),
		TFBarsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_tf_bars_total",
			Help: "Resampled bars emitted by the timeframe builder",
		}, []string{"tf"}),

		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signald_indicator_compute_duration_seconds",
			Help:    "Indicator, trend and signal latency per bar",
			Buckets: fastBuckets,
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_signals_total",
			Help: "Signals emitted by kind",
		}, []string{"kind"}),
		TrendDirection: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signald_trend_direction",
			Help: "Current trend (1=up, 0=sideways, -1=down)",
		}, []string{"symbol"}),
		TrendStrength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signald_trend_strength",
			Help: "Current trend strength in [0,1]",
		}, []string{"symbol"}),
		SessionResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signald_session_resets_total",
			Help: "Session resets (symbol or timeframe change)",
		}),

		BacktestRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_backtest_runs_total",
			Help: "Backtest runs by result",
		}, []string{"result"}),
		BacktestDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signald_backtest_duration_seconds",
			Help:    "Backtest replay latency",
			Buckets: prometheus.DefBuckets,
		}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_fanout_drops_total",
			Help: "Updates dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signald_channel_saturation_pct",
			Help: "Fill level of each sink channel in percent",
		}, []string{"subscriber"}),
		RedisBufferedUpdates: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signald_redis_buffered_updates",
			Help: "Updates held locally while the Redis circuit is open",
		}),
		RedisPublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signald_redis_publish_duration_seconds",
			Help:    "Redis publish latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signald_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signald_notifications_total",
			Help: "Alert deliveries by channel and status",
		}, []string{"channel", "status"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signald_ws_clients",
			Help: "Connected dashboard WebSocket clients",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signald_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signald_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
	}

	reg.MustRegister(
		m.BarsTotal,
		m.BarsRejected,
		m.TFBarsTotal,
		m.IndicatorComputeDur,
		m.SignalsTotal,
		m.TrendDirection,
		m.TrendStrength,
		m.SessionResets,
		m.BacktestRuns,
		m.BacktestDur,
		m.FanoutDropsTotal,
		m.ChannelSaturationPct,
		m.RedisBufferedUpdates,
		m.RedisPublishDur,
		m.SQLiteCommitDur,
		m.NotificationsTotal,
		m.WSClients,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
	)

	return m
}

// ObserveUpdate records the outputs of one processed bar.
func (m *Metrics) ObserveUpdate(u model.Update, took time.Duration) {
	m.BarsTotal.WithLabelValues(u.Symbol, string(u.Timeframe)).Inc()
	m.IndicatorComputeDur.Observe(took.Seconds())
	for _, s := range u.Signals {
		m.SignalsTotal.WithLabelValues(string(s.Kind)).Inc()
	}
	var dir float64
	switch u.Trend.Direction {
	case model.DirectionUp:
		dir = 1
	case model.DirectionDown:
		dir = -1
	}
	m.TrendDirection.WithLabelValues(u.Symbol).Set(dir)
	m.TrendStrength.WithLabelValues(u.Symbol).Set(u.Trend.Strength)
}

// ObserveReject classifies a rejected bar by its error type.
func (m *Metrics) ObserveReject(err error) {
	var ooo *model.OutOfOrderError
	reason := "invalid"
	if errors.As(err, &ooo) {
		reason = "out_of_order"
	}
	m.BarsRejected.WithLabelValues(reason).Inc()
}

// ObserveBacktest records one backtest run.
func (m *Metrics) ObserveBacktest(took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.BacktestRuns.WithLabelValues(result).Inc()
	m.BacktestDur.Observe(took.Seconds())
}

// ObserveChannel records how full a buffered channel is.
func (m *Metrics) ObserveChannel(name string, length, capacity int) {
	if capacity <= 0 {
		return
	}
	m.ChannelSaturationPct.WithLabelValues(name).Set(float64(length) / float64(capacity) * 100)
}

// HealthStatus represents the service health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastBarTime    time.Time `json:"last_bar_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	SessionWarm    bool      `json:"session_warm"`

	RedisBreaker    string    `json:"redis_breaker"`
	RedisTrips      int       `json:"redis_breaker_trips"`
	RedisBuffered   int       `json:"redis_buffered"`
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus creates a health tracker. Dependencies that are not
// configured should be marked healthy by the caller.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastBarTime(t time.Time) {
	h.mu.Lock()
	h.LastBarTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

// SetRedisPublisher records the circuit breaker state and buffer depth of
// the Redis publish path.
func (h *HealthStatus) SetRedisPublisher(breaker string, trips, buffered int) {
	h.mu.Lock()
	h.RedisBreaker = breaker
	h.RedisTrips = trips
	h.RedisBuffered = buffered
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSessionWarm(v bool) {
	h.mu.Lock()
	h.SessionWarm = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Nil clients are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(checkCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(checkCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.FeedConnected || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.FeedConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	barAge := ""
	if !h.LastBarTime.IsZero() {
		barAge = time.Since(h.LastBarTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		FeedConnected   bool    `json:"feed_connected"`
		LastBarTime     string  `json:"last_bar_time"`
		BarAge          string  `json:"bar_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		RedisBreaker    string  `json:"redis_breaker,omitempty"`
		RedisTrips      int     `json:"redis_breaker_trips"`
		RedisBuffered   int     `json:"redis_buffered"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		SessionWarm     bool    `json:"session_warm"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastBarTime:     h.LastBarTime.Format(time.RFC3339),
		BarAge:          barAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		RedisBreaker:    h.RedisBreaker,
		RedisTrips:      h.RedisTrips,
		RedisBuffered:   h.RedisBuffered,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		SessionWarm:     h.SessionWarm,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
	log  *slog.Logger
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus, log *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
		log:  log.With("component", "metrics"),
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
