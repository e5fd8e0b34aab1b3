// Package monitor streams the instrument's live state to WebSocket clients.
//
// A Hub tracks connected clients, each with its own write pump so one slow
// client cannot stall the others. The broadcaster is the only reader of the
// instrument's change feed: it keeps the latest snapshot for new clients,
// coalesces bellows frames, and fans everything out through the hub.
//
// Messages are JSON text frames with an envelope: {type, ts, data}.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// envelope is the wire format for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

// ============================================================================
// Hub
// ============================================================================

// Hub fans the instrument's encoded frames out to every connected viewer.
type Hub struct {
	logger *slog.Logger

	// Encoded envelopes from the broadcaster.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	// Closed when Run returns; later registrations and unregistrations
	// must not wait on a hub nobody serves.
	done chan struct{}

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size. Zero uses a default.
	SendBuf int

	// BroadcastBuf is the hub inbound queue size. Zero uses a default.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled, then disconnects all
// clients.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("monitor hub starting")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("monitor hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("monitor client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// A viewer that fell behind on bellows frames is evicted; removal
			// takes the lock again.
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.closeSend()
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		// Closing send tells writePump to exit.
		c.closeSend()

		h.logger.Info("monitor client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

// addClient hands c to the hub. It reports false, after closing c, when
// the hub has stopped.
func (h *Hub) addClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		h.dropClient(c)
		return false
	}
}

// dropClient asks the hub to forget c. After the hub has stopped it closes
// c directly.
func (h *Hub) dropClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.closeSend()
	}
}

// BroadcastBytes enqueues a serialized frame for every client. It never
// blocks; a full hub queue drops the frame.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("monitor hub queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

// Client is one monitor viewer: a dashboard or harmonium-monitor watching the
// bellows and the sounding notes.
type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	closeOnce  sync.Once
	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a viewer whose queue holds the hub's SendBuf frames.
// At 50 ms bellows coalescing that is well over a second of backlog.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() { close(c.send) })
}

// Bellows frames are small; a viewer that cannot take one in writeWait is
// treated as gone.
const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// closeStatus extracts the websocket close code and text when present.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump, cause string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("monitor "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Info("monitor "+pump+" exiting ("+cause+")", "remote_addr", c.remoteAddr, "error", err)
}

// writePump sends the viewer its state_init, bellows, notes and sensor
// frames plus keepalive pings. It exits on write error or when the hub
// closes send.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Evicted or the instrument is shutting down.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", "write error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", "ping error", err)
				return
			}
		}
	}
}

// readPump keeps the connection's pong deadline fresh. Viewers cannot steer
// the instrument over the monitor, so data frames are ignored. The client is
// dropped from the hub on exit.
func (c *Client) readPump(ctx context.Context) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", "read error", err)
			if c.hub != nil {
				c.hub.dropClient(c)
			}
			return
		}
	}
}
