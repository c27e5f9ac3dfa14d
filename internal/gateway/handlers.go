package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"trendsignal/internal/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Service is the live engine as seen by the API. Implementations serialise
// these calls with bar ingestion.
type Service interface {
	Latest(ctx context.Context) (model.Update, bool, error)
	History(ctx context.Context, n int) ([]model.IndicatorSnapshot, error)
	Signals(ctx context.Context, n int) ([]model.Signal, error)
	Reset(ctx context.Context, symbol string, tf model.Timeframe) error
	Backtest(ctx context.Context, start time.Time) (*model.BacktestResult, error)
}

// ResetRequest is the body of POST /api/reset.
type ResetRequest struct {
	Symbol    string          `json:"symbol"`
	Timeframe model.Timeframe `json:"timeframe"`
}

// BacktestRequest is the body of POST /api/backtest.
type BacktestRequest struct {
	Start time.Time `json:"start"`
}

// Stats is the response of GET /api/stats.
type Stats struct {
	Clients        int              `json:"clients"`
	ChannelSeqs    map[string]int64 `json:"channel_seqs"`
	LatencySamples int              `json:"latency_samples"`
	LatencyP50     float64          `json:"latency_p50_ms"`
	LatencyP95     float64          `json:"latency_p95_ms"`
	LatencyP99     float64          `json:"latency_p99_ms"`
	Goroutines     int              `json:"goroutines"`
	HeapAllocMB    float64          `json:"heap_alloc_mb"`
	SysMB          float64          `json:"sys_mb"`
	GCRuns         uint32           `json:"gc_runs"`
	UptimeSec      int64            `json:"uptime_sec"`
}

type errorBody struct {
	Error string `json:"error"`
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	var (
		cfgErr   *model.InvalidConfigurationError
		histErr  *model.InsufficientHistoryError
		emptyErr *model.EmptySeriesError
		orderErr *model.OutOfOrderError
		barErr   *model.InvalidBarError
	)
	switch {
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest
	case errors.As(err, &histErr), errors.As(err, &emptyErr),
		errors.As(err, &orderErr), errors.As(err, &barErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// countParam reads the ?n= query parameter, writing a 400 when it is not a
// positive integer.
func countParam(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	v := r.URL.Query().Get("n")
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "n must be a positive integer"})
		return 0, false
	}
	return n, true
}

// RegisterRoutes registers the WebSocket and REST routes on mux.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, svc Service, processStart time.Time, log *slog.Logger) {
	log = log.With("component", "api")

	// WebSocket endpoint; ?channels=update,signal limits the subscription.
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("ws upgrade failed", "error", err)
			return
		}
		var channels []string
		if q := r.URL.Query().Get("channels"); q != "" {
			channels = strings.Split(q, ",")
		}
		hub.register(conn, channels)
	})

	mux.HandleFunc("GET /api/latest", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		u, ok, err := svc.Latest(r.Context())
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		if !ok {
			writeJSON(w, http.StatusNotFound, errorBody{Error: "no bars yet"})
			return
		}
		writeJSON(w, http.StatusOK, u)
	})

	mux.HandleFunc("GET /api/history", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		n, ok := countParam(w, r, 100)
		if !ok {
			return
		}
		snaps, err := svc.History(r.Context(), n)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		if snaps == nil {
			snaps = []model.IndicatorSnapshot{}
		}
		writeJSON(w, http.StatusOK, snaps)
	})

	mux.HandleFunc("GET /api/signals", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		n, ok := countParam(w, r, 50)
		if !ok {
			return
		}
		sigs, err := svc.Signals(r.Context(), n)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		if sigs == nil {
			sigs = []model.Signal{}
		}
		writeJSON(w, http.StatusOK, sigs)
	})

	mux.HandleFunc("POST /api/reset", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		var req ResetRequest
		if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON"})
			return
		}
		if err := svc.Reset(r.Context(), req.Symbol, req.Timeframe); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		log.Info("session reset", "symbol", req.Symbol, "tf", string(req.Timeframe))
		writeJSON(w, http.StatusOK, req)
	})

	mux.HandleFunc("POST /api/backtest", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		var req BacktestRequest
		if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON"})
			return
		}
		res, err := svc.Backtest(r.Context(), req.Start)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	// Gap backfill: /api/missed?channel=update&from=10&to=20
	mux.HandleFunc("GET /api/missed", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		q := r.URL.Query()
		channel := q.Get("channel")
		from, err1 := strconv.ParseInt(q.Get("from"), 10, 64)
		to, err2 := strconv.ParseInt(q.Get("to"), 10, 64)
		if channel == "" || err1 != nil || err2 != nil || from > to {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "channel, from and to are required"})
			return
		}
		envelopes := hub.GetReplayRange(channel, from, to)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte{'['})
		for i, e := range envelopes {
			if i > 0 {
				w.Write([]byte{','})
			}
			w.Write(e)
		}
		w.Write([]byte{']'})
	})

	mux.HandleFunc("GET /api/stats", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		writeJSON(w, http.StatusOK, collectStats(hub, processStart))
	})
}

func collectStats(hub *Hub, start time.Time) Stats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s := Stats{
		Clients:        hub.ClientCount(),
		ChannelSeqs:    make(map[string]int64, 4),
		LatencySamples: hub.Latency.Count(),
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocMB:    float64(ms.HeapAlloc) / 1024 / 1024,
		SysMB:          float64(ms.Sys) / 1024 / 1024,
		GCRuns:         ms.NumGC,
		UptimeSec:      int64(time.Since(start).Seconds()),
	}
	for _, ch := range []string{ChannelUpdate, ChannelPreview, ChannelSignal, ChannelBacktest} {
		s.ChannelSeqs[ch] = hub.GetChannelSeq(ch)
	}
	s.LatencyP50, s.LatencyP95, s.LatencyP99 = hub.Latency.Percentiles()
	return s
}
