// Package realtime streams scoring events to WebSocket clients: trust
// updates as sellers are scored, graph refreshes and newly detected rings.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mbd888/trustra/internal/idgen"
	"github.com/mbd888/trustra/internal/metrics"
)

const (
	// MaxClients caps concurrent WebSocket connections.
	MaxClients = 10000

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
	queueSize      = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     sameOrigin,
}

// sameOrigin admits non-browser clients (no Origin) and pages served from
// the same host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// EventType names a realtime event.
type EventType string

const (
	EventTrustUpdate    EventType = "trust_update"
	EventGraphRefreshed EventType = "graph_refreshed"
	EventFraudRings     EventType = "fraud_rings"
)

// Event is one message pushed to clients.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	SellerID  string    `json:"seller_id,omitempty"`
	RiskLevel string    `json:"risk_level,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Subscription filters what a client receives. Clients replace it by
// sending a JSON subscription message. The zero value receives everything.
type Subscription struct {
	AllEvents  bool        `json:"all_events"`
	EventTypes []EventType `json:"event_types"`
	SellerIDs  []string    `json:"seller_ids"`
	RiskLevels []string    `json:"risk_levels"`
}

// Matches reports whether ev passes the filter. Seller and risk filters
// only narrow trust updates.
func (s Subscription) Matches(ev *Event) bool {
	switch {
	case s.AllEvents:
		return true
	case len(s.EventTypes) > 0 && !slices.Contains(s.EventTypes, ev.Type):
		return false
	case ev.Type != EventTrustUpdate:
		return true
	case len(s.SellerIDs) > 0 && !slices.Contains(s.SellerIDs, ev.SellerID):
		return false
	case len(s.RiskLevels) > 0 && !slices.Contains(s.RiskLevels, ev.RiskLevel):
		return false
	}
	return true
}

// Client is one WebSocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	mu   sync.RWMutex
	sub  Subscription
}

func (c *Client) subscription() Subscription {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sub
}

func (c *Client) subscribe(sub Subscription) {
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
}

// Stats are the hub's connection and delivery counters.
type Stats struct {
	ConnectedClients int   `json:"connected_clients"`
	TotalEvents      int64 `json:"total_events"`
	DroppedEvents    int64 `json:"dropped_events"`
	TotalClients     int64 `json:"total_clients"`
	PeakClients      int64 `json:"peak_clients"`
}

// Hub fans events out to connected clients. All membership changes happen
// on the Run goroutine.
type Hub struct {
	logger     *slog.Logger
	maxClients int

	clients    map[*Client]struct{}
	mu         sync.RWMutex
	events     chan *Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	delivered atomic.Int64
	dropped   atomic.Int64
	joined    atomic.Int64
	peak      atomic.Int64
}

// NewHub creates a hub. Call Run to start it.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:     logger,
		maxClients: MaxClients,
		clients:    make(map[*Client]struct{}),
		events:     make(chan *Event, queueSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run delivers events until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("realtime hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("realtime hub stopped")
			return
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case ev := <-h.events:
			h.fanOut(ev)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.joined.Add(1)
	if int64(n) > h.peak.Load() {
		h.peak.Store(int64(n))
	}
	metrics.ActiveWebSocketClients.Set(float64(n))
	h.logger.Debug("client connected", "total", n)
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	h.drop(c)
	n := len(h.clients)
	h.mu.Unlock()

	metrics.ActiveWebSocketClients.Set(float64(n))
	h.logger.Debug("client disconnected", "total", n)
}

// drop closes c's queue once. Caller holds h.mu.
func (h *Hub) drop(c *Client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		h.drop(c)
	}
	h.mu.Unlock()
	metrics.ActiveWebSocketClients.Set(0)
}

// fanOut sends ev to every matching client. Clients whose queue is full are
// disconnected rather than blocking the hub.
func (h *Hub) fanOut(ev *Event) {
	h.delivered.Add(1)
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("encode realtime event", "type", ev.Type, "error", err)
		return
	}

	var slow []*Client
	h.mu.RLock()
	for c := range h.clients {
		if !c.subscription().Matches(ev) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	if len(slow) == 0 {
		return
	}
	h.mu.Lock()
	for _, c := range slow {
		h.drop(c)
	}
	h.mu.Unlock()
	h.logger.Warn("disconnected slow websocket clients", "count", len(slow))
}

// Broadcast queues ev for delivery, filling in its id and timestamp. A full
// queue drops the event.
func (h *Hub) Broadcast(ev *Event) {
	if ev.ID == "" {
		ev.ID = idgen.WithPrefix("evt_")
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	select {
	case h.events <- ev:
	default:
		h.dropped.Add(1)
		h.logger.Warn("realtime queue full, dropping event", "type", ev.Type)
	}
}

// PublishTrustUpdate pushes a seller's freshly computed score.
func (h *Hub) PublishTrustUpdate(sellerID, riskLevel string, result any) {
	h.Broadcast(&Event{
		Type:      EventTrustUpdate,
		SellerID:  sellerID,
		RiskLevel: riskLevel,
		Data:      result,
	})
}

// PublishGraphRefreshed announces a new graph generation.
func (h *Hub) PublishGraphRefreshed(stats any) {
	h.Broadcast(&Event{Type: EventGraphRefreshed, Data: stats})
}

// PublishFraudRings announces the rings found in a generation.
func (h *Hub) PublishFraudRings(rings any) {
	h.Broadcast(&Event{Type: EventFraudRings, Data: rings})
}

// Stats returns a snapshot of the hub counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	n := len(h.clients)
	h.mu.RUnlock()
	return Stats{
		ConnectedClients: n,
		TotalEvents:      h.delivered.Load(),
		DroppedEvents:    h.dropped.Load(),
		TotalClients:     h.joined.Load(),
		PeakClients:      h.peak.Load(),
	}
}

// HandleWebSocket upgrades the request and registers the client.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}
	if h.Stats().ConnectedClients >= h.maxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	h.register <- c
	go c.writeLoop()
	go c.readLoop()
}

// readLoop applies subscription messages until the connection closes.
// Messages that are not valid subscriptions are ignored.
func (c *Client) readLoop() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		var sub Subscription
		if err := json.Unmarshal(msg, &sub); err != nil {
			c.hub.logger.Debug("ignoring websocket message", "error", err)
			continue
		}
		c.subscribe(sub)
	}
}

// writeLoop drains the send queue and keeps the connection alive with
// pings. A closed queue ends the connection with a close frame.
func (c *Client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.logger.Warn("websocket write error", "error", err)
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.logger.Debug("websocket ping failed", "error", err)
				return
			}
		}
	}
}
