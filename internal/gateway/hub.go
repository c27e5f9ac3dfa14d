// Package gateway pushes session updates to dashboard clients over
// WebSocket and serves the REST API of the live service.
package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"trendsignal/internal/model"
)

// Channel names carried in every envelope.
const (
	ChannelUpdate   = "update"   // closed bar with indicators, trend and signals
	ChannelPreview  = "preview"  // forming bar preview
	ChannelSignal   = "signal"   // one message per emitted signal
	ChannelBacktest = "backtest" // scheduled backtest reports
)

// Hub manages WebSocket clients, the latest message per channel and the
// per-channel replay buffers used for gap backfill.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	// Per-channel monotonic sequence numbers for gap detection
	channelSeqs map[string]int64
	replayBufs  map[string]*ReplayBuffer
	replaySize  int

	// Latency of the ingestion loop, reported by /api/stats.
	Latency *LatencyTracker

	// OnClients is called with the client count after every connect and
	// disconnect (optional).
	OnClients func(n int)

	log *slog.Logger
}

type latestEntry struct {
	Data []byte // full envelope
	TS   time.Time
	Seq  int64
}

// NewHub creates a hub keeping replaySize envelopes per channel.
func NewHub(replaySize int, log *slog.Logger) *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		replaySize:  replaySize,
		Latency:     NewLatencyTracker(10000),
		log:         log.With("component", "gateway"),
	}
}

// Run broadcasts updates from the bus until ctx is done or updates closes.
func (h *Hub) Run(ctx context.Context, updates <-chan model.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			h.PublishUpdate(u)
		}
	}
}

// PublishUpdate broadcasts u on the update or preview channel, then each of
// its signals on the signal channel.
func (h *Hub) PublishUpdate(u model.Update) {
	channel := ChannelUpdate
	if u.Snapshot.Live() {
		channel = ChannelPreview
	}
	h.Broadcast(channel, u.JSON())
	for _, s := range u.Signals {
		data, err := sonic.Marshal(signalMsg{Symbol: u.Symbol, Timeframe: u.Timeframe, Signal: s})
		if err != nil {
			h.log.Error("marshal signal", "error", err)
			continue
		}
		h.Broadcast(ChannelSignal, data)
	}
}

// PublishBacktest broadcasts a backtest report.
func (h *Hub) PublishBacktest(res *model.BacktestResult) {
	data, err := sonic.Marshal(res)
	if err != nil {
		h.log.Error("marshal backtest", "error", err)
		return
	}
	h.Broadcast(ChannelBacktest, data)
}

type signalMsg struct {
	Symbol    string          `json:"symbol"`
	Timeframe model.Timeframe `json:"timeframe"`
	model.Signal
}

// register adds a websocket connection as a client and starts its pumps.
func (h *Hub) register(conn *websocket.Conn, channels []string) *Client {
	c := newClient(conn, h, channels)

	h.mu.Lock()
	h.clients[c] = true
	c.queueLatest()
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info("ws client connected", "clients", count)
	if h.OnClients != nil {
		h.OnClients(count)
	}

	go c.writePump()
	go c.readPump()
	return c
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()

	h.log.Info("ws client disconnected", "clients", count)
	if h.OnClients != nil {
		h.OnClients(count)
	}
}

// GetReplayRange returns buffered envelopes for a channel in [fromSeq, toSeq].
// Used by the /api/missed REST endpoint for client gap backfill.
func (h *Hub) GetReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	result := make([][]byte, len(entries))
	for i, e := range entries {
		result[i] = e.Data
	}
	return result
}

// GetChannelSeq returns the current sequence number for a channel.
func (h *Hub) GetChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.RemoveClient(c)
	}
}
