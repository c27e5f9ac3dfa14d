package gateway

import (
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 256
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Subscribed channels; empty means everything.
	subMu sync.RWMutex
	subs  map[string]bool
}

// clientMsg is any message a client may send.
type clientMsg struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels,omitempty"`
	Ping     int64    `json:"ping,omitempty"`
}

type pongMsg struct {
	Type     string `json:"type"`
	Ping     int64  `json:"ping"`
	ServerTS int64  `json:"server_ts"`
}

func newClient(conn *websocket.Conn, hub *Hub, channels []string) *Client {
	c := &Client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		hub:  hub,
		subs: make(map[string]bool, len(channels)),
	}
	for _, ch := range channels {
		c.subs[ch] = true
	}
	return c
}

// wants reports whether the client is subscribed to channel.
func (c *Client) wants(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subs) == 0 || c.subs[channel]
}

// queueLatest queues the last envelope of every subscribed channel so a new
// client renders immediately. Caller holds hub.mu.
func (c *Client) queueLatest() {
	for channel, entry := range c.hub.latest {
		if !c.wants(channel) {
			continue
		}
		select {
		case c.send <- entry.Data:
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Write coalescing: batch queued messages into a single frame
			// with newline separators.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(next)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg clientMsg
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "SUBSCRIBE":
			c.subMu.Lock()
			for _, ch := range msg.Channels {
				c.subs[ch] = true
			}
			c.subMu.Unlock()
		case "UNSUBSCRIBE":
			c.subMu.Lock()
			for _, ch := range msg.Channels {
				delete(c.subs, ch)
			}
			c.subMu.Unlock()
		case "PING":
			pong, _ := sonic.Marshal(pongMsg{Type: "PONG", Ping: msg.Ping, ServerTS: time.Now().UnixMilli()})
			c.enqueue(pong)
		}
	}
}

// enqueue sends data to the client unless it has been removed or is full.
func (c *Client) enqueue(data []byte) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
