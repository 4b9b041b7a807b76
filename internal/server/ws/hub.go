// Package ws pushes live monitor events to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/kandelwatch/internal/domain"
	"github.com/alanyoungcy/kandelwatch/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// Channels are the signal bus channels relayed to clients.
var Channels = []string{
	service.ChannelReport,
	service.ChannelExecutions,
	service.ChannelArbitrage,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API is read-only and key-protected; browsers on any origin may
	// watch it.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Frame is what clients receive. Type is "status" once on connect, then
// "event" with the source channel.
type Frame struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// control lets a client change its channel set, for example
// {"action":"unsubscribe","channels":["kandel:report"]}.
type control struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// StatusFunc returns the value sent to each client on connect.
type StatusFunc func() any

// Hub relays signal bus channels to connected clients.
type Hub struct {
	bus    domain.SignalBus
	status StatusFunc
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub returns a Hub reading from bus. status may be nil.
func NewHub(bus domain.SignalBus, status StatusFunc, logger *slog.Logger) *Hub {
	return &Hub{
		bus:     bus,
		status:  status,
		logger:  logger.With(slog.String("component", "ws")),
		clients: make(map[*client]struct{}),
	}
}

// Run relays every channel in Channels until ctx ends, then disconnects all
// clients.
func (h *Hub) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, ch := range Channels {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.relay(ctx, ch)
		}()
	}
	<-ctx.Done()
	wg.Wait()

	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		c.close()
	}
	clear(h.clients)
	h.mu.Unlock()
	return ctx.Err()
}

func (h *Hub) relay(ctx context.Context, channel string) {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.ErrorContext(ctx, "subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("subscription closed", slog.String("channel", channel))
				return
			}
			h.broadcast(channel, data)
		}
	}
}

func (h *Hub) broadcast(channel string, data []byte) {
	frame, err := json.Marshal(Frame{Type: "event", Channel: channel, Payload: data})
	if err != nil {
		h.logger.Warn("dropping non-JSON event", slog.String("channel", channel))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.wants(channel) && !c.offer(frame) {
			h.logger.Warn("client too slow, frame dropped", slog.String("channel", channel))
		}
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.logger.Info("client connected", slog.Int("clients", len(h.clients)))
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.close()
	h.logger.Info("client disconnected", slog.Int("clients", len(h.clients)))
}

// HandleWS upgrades the request and subscribes the client to every channel.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufferSize), subs: make(map[string]bool)}
	for _, ch := range Channels {
		c.subs[ch] = true
	}
	c.offer(h.statusFrame())
	if !h.add(c) {
		_ = conn.Close()
		return
	}

	go c.writeLoop()
	go func() {
		c.readLoop(h.logger)
		h.remove(c)
	}()
}

func (h *Hub) statusFrame() []byte {
	var v any = struct{}{}
	if h.status != nil {
		v = h.status()
	}
	payload, err := json.Marshal(v)
	if err != nil {
		payload = []byte("{}")
	}
	frame, _ := json.Marshal(Frame{Type: "status", Payload: payload})
	return frame
}

type client struct {
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	subs     map[string]bool
	closeOne sync.Once
}

// offer queues frame without blocking. Callers hold the hub lock, which
// keeps offer and close from racing.
func (c *client) offer(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.closeOne.Do(func() { close(c.send) })
}

// wants matches exact names and trailing-* prefixes such as "kandel:*".
func (c *client) wants(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.subs[channel] {
		return true
	}
	for sub := range c.subs {
		if prefix, ok := strings.CutSuffix(sub, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}

func (c *client) apply(ctl control) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch strings.ToLower(ctl.Action) {
	case "subscribe":
		for _, ch := range ctl.Channels {
			c.subs[ch] = true
		}
	case "unsubscribe":
		for _, ch := range ctl.Channels {
			delete(c.subs, ch)
		}
	}
}

func (c *client) readLoop(logger *slog.Logger) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var ctl control
		if json.Unmarshal(msg, &ctl) == nil && ctl.Action != "" {
			c.apply(ctl)
		}
	}
}

func (c *client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
