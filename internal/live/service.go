// Package live runs one analysis session against a bar feed: it resamples
// feed bars, drives the session from a single goroutine, fans updates out
// to sinks and answers API commands between bars.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"trendsignal/config"
	"trendsignal/internal/backtest"
	"trendsignal/internal/gateway"
	"trendsignal/internal/marketdata/bus"
	"trendsignal/internal/marketdata/tfbuilder"
	"trendsignal/internal/metrics"
	"trendsignal/internal/model"
	"trendsignal/internal/notification"
	"trendsignal/internal/session"
)

const (
	feedBuffer    = 1000
	busBuffer     = 1000
	drainTimeout  = 10 * time.Second
	replaySize    = 500
	sinkBufferCap = 1000
	statsInterval = 5 * time.Second
)

// Sink consumes the stream of closed-bar updates until the channel closes.
type Sink interface {
	Run(ctx context.Context, ch <-chan model.Update)
}

// Deps are the collaborators of a Service. Only Source is required.
type Deps struct {
	Source   model.BarSource
	History  model.BarReader       // startup backfill and backtests
	Signals  model.SignalReader    // GET /api/signals
	Notifier notification.Notifier // backtest reports
	Hub      *gateway.Hub
	Metrics  *metrics.Metrics
	Health   *metrics.HealthStatus
}

// Service is the live engine. All session access happens on the goroutine
// running Run; other goroutines go through the command channel.
type Service struct {
	cfg  *config.Config
	deps Deps
	log  *slog.Logger

	sess    *session.Session
	builder *tfbuilder.Builder
	btEng   *backtest.Engine
	fanout  *bus.FanOut
	sinks   map[string]Sink

	cmds    chan func()
	updates chan model.Update

	// Feed state, owned by the Run goroutine.
	runCtx     context.Context
	feed       chan model.Bar
	feedCancel context.CancelFunc
	feedWG     sync.WaitGroup

	backfill bool
}

// New builds the session and resampler described by cfg.
func New(cfg *config.Config, deps Deps, log *slog.Logger) (*Service, error) {
	if deps.Source == nil {
		return nil, errors.New("live: bar source is required")
	}
	if deps.Hub == nil {
		deps.Hub = gateway.NewHub(replaySize, log)
	}
	if deps.Health == nil {
		deps.Health = metrics.NewHealthStatus()
	}
	log = log.With("component", "live")

	sess, err := session.New(cfg.SessionConfig(), log, deps.Metrics)
	if err != nil {
		return nil, err
	}
	btEng, err := backtest.New(cfg.BacktestConfig(), log)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:      cfg,
		deps:     deps,
		log:      log,
		sess:     sess,
		btEng:    btEng,
		fanout:   bus.New(sinkBufferCap, log),
		sinks:    make(map[string]Sink),
		cmds:     make(chan func()),
		updates:  make(chan model.Update, busBuffer),
		backfill: !cfg.Replay.Enabled,
	}
	if s.builder, err = s.newBuilder(cfg.Engine.Timeframe); err != nil {
		return nil, err
	}
	s.sinks["ws"] = deps.Hub

	if m := deps.Metrics; m != nil {
		s.fanout.OnDrop = func(name string) { m.FanoutDropsTotal.WithLabelValues(name).Inc() }
		deps.Hub.OnClients = func(n int) { m.WSClients.Set(float64(n)) }
	}
	return s, nil
}

func (s *Service) newBuilder(tf model.Timeframe) (*tfbuilder.Builder, error) {
	b, err := tfbuilder.New(s.cfg.Engine.FeedTimeframe, tf, s.log)
	if err != nil {
		return nil, err
	}
	if m := s.deps.Metrics; m != nil {
		b.OnBar = func(model.Bar) { m.TFBarsTotal.WithLabelValues(string(tf)).Inc() }
		b.OnStale = func(model.Bar) { m.BarsRejected.WithLabelValues("stale").Inc() }
	}
	return b, nil
}

// AddSink registers a named consumer of closed-bar updates. Call before Run.
func (s *Service) AddSink(name string, sink Sink) {
	s.sinks[name] = sink
}

// Hub returns the WebSocket hub updates are pushed to.
func (s *Service) Hub() *gateway.Hub { return s.deps.Hub }

// Handler returns the HTTP API: WebSocket plus REST.
func (s *Service) Handler(processStart time.Time) http.Handler {
	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, s.deps.Hub, s, processStart, s.log)
	return mux
}

// Run backfills the session, starts the feed, sinks and scheduler, then
// processes bars and commands until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.backfill {
		if err := s.backfillSession(ctx); err != nil {
			return fmt.Errorf("backfill: %w", err)
		}
	}

	sinkCtx, cancelSinks := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelSinks()
	var sinkWG sync.WaitGroup
	for name, sink := range s.sinks {
		ch := s.fanout.Subscribe(name)
		sinkWG.Add(1)
		go func() {
			defer sinkWG.Done()
			sink.Run(sinkCtx, ch)
		}()
	}
	busDone := make(chan struct{})
	go func() {
		s.fanout.Run(sinkCtx, s.updates)
		close(busDone)
	}()

	if s.deps.Metrics != nil {
		go s.monitorBus(ctx)
	}

	sched, err := s.startScheduler(ctx)
	if err != nil {
		return err
	}

	s.runCtx = ctx
	s.startFeed(ctx)
	s.log.Info("live service running",
		"symbol", s.sess.Symbol(),
		"tf", string(s.sess.Timeframe()),
		"feed_tf", string(s.cfg.Engine.FeedTimeframe),
		"sinks", len(s.sinks),
	)

	s.loop(ctx)

	// ---- Graceful shutdown ----
	if sched != nil {
		<-sched.Stop().Done()
	}
	s.stopFeed()
	close(s.updates)

	drained := make(chan struct{})
	go func() {
		<-busDone
		sinkWG.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainTimeout):
		s.log.Warn("sinks did not drain in time")
		cancelSinks()
		<-drained
	}
	s.log.Info("live service stopped")
	return nil
}

func (s *Service) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-s.cmds:
			cmd()
		case bar, ok := <-s.feed:
			if !ok {
				// Feed finished (replay); close the open bucket and keep
				// serving commands.
				s.feed = nil
				if fb, ok := s.builder.Flush(); ok {
					s.handle(ctx, tfbuilder.Output{Bar: fb})
				}
				continue
			}
			s.deps.Health.SetLastBarTime(time.Now())
			for _, o := range s.builder.Push(bar) {
				s.handle(ctx, o)
			}
		}
	}
}

// handle runs one resampled bar through the session. Closed bars go to the
// bus; forming previews go to the hub only.
func (s *Service) handle(ctx context.Context, o tfbuilder.Output) {
	if o.Forming {
		u, err := s.sess.Peek(o.Bar)
		if err != nil {
			return
		}
		s.deps.Hub.PublishUpdate(u)
		return
	}

	start := time.Now()
	u, err := s.sess.OnNewBar(o.Bar)
	if err != nil {
		return // logged and counted by the session
	}
	s.deps.Hub.Latency.Observe(time.Since(start))
	s.deps.Health.SetSessionWarm(s.sess.Warm())

	select {
	case s.updates <- u:
	case <-ctx.Done():
	}
}

// monitorBus exports sink channel saturation until ctx is done.
func (s *Service) monitorBus(ctx context.Context) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reportSaturation()
		}
	}
}

func (s *Service) reportSaturation() {
	for _, st := range s.fanout.ChannelStats() {
		s.deps.Metrics.ObserveChannel(st.Name, st.Len, st.Cap)
	}
}

// backfillSession replays stored bars into the session without publishing.
func (s *Service) backfillSession(ctx context.Context) error {
	if s.deps.History == nil {
		return nil
	}
	bars, err := s.deps.History.ReadBars(ctx, s.sess.Symbol(), s.sess.Timeframe(), time.Time{})
	if err != nil {
		return err
	}
	accepted := 0
	for _, b := range bars {
		if _, err := s.sess.OnNewBar(b); err == nil {
			accepted++
		}
	}
	s.deps.Health.SetSessionWarm(s.sess.Warm())
	if accepted > 0 {
		s.log.Info("session backfilled", "bars", accepted, "warm", s.sess.Warm())
	}
	return nil
}

func (s *Service) startFeed(ctx context.Context) {
	feedCtx, cancel := context.WithCancel(ctx)
	ch := make(chan model.Bar, feedBuffer)
	s.feed = ch
	s.feedCancel = cancel

	symbol, feedTF := s.sess.Symbol(), s.cfg.Engine.FeedTimeframe
	s.feedWG.Add(1)
	go func() {
		defer s.feedWG.Done()
		defer close(ch)
		s.deps.Health.SetFeedConnected(true)
		err := s.deps.Source.Consume(feedCtx, symbol, feedTF, ch)
		s.deps.Health.SetFeedConnected(false)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("feed stopped", "symbol", symbol, "error", err)
		}
	}()
}

func (s *Service) stopFeed() {
	if s.feedCancel != nil {
		s.feedCancel()
		s.feedWG.Wait()
		s.feedCancel = nil
	}
}

// do runs fn on the session goroutine and waits for it.
func (s *Service) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case s.cmds <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
