package alert

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"travelguard/antifraud/internal/domain"
	"travelguard/antifraud/internal/metrics"
)

// HubID is the observer ID of the websocket hub.
const HubID = "websocket"

// normalCloseCodes are close codes of an expected disconnect.
var normalCloseCodes = []int{
	websocket.CloseNormalClosure,
	websocket.CloseGoingAway,
	websocket.CloseNoStatusReceived,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser clients
		}
		host := r.Host
		return origin == "http://"+host || origin == "https://"+host
	},
}

// Filter narrows the alerts a dashboard client receives. Clients update it
// by sending a JSON Filter message.
type Filter struct {
	MinScore        int                     `json:"min_score"`
	Recommendations []domain.Recommendation `json:"recommendations"`
}

func (f Filter) match(a *domain.Alert) bool {
	if a.Result.TotalScore < f.MinScore {
		return false
	}
	if len(f.Recommendations) == 0 {
		return true
	}
	for _, r := range f.Recommendations {
		if r == a.Result.Recommendation {
			return true
		}
	}
	return false
}

// client is one websocket connection.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.RWMutex
	filter Filter
}

func (c *client) wants(a *domain.Alert) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter.match(a)
}

// MaxClients caps concurrent websocket connections.
const MaxClients = 1000

// Hub streams alerts to connected dashboard clients. It is an Observer whose
// delivery never fails; slow or broken clients are dropped instead.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan *domain.Alert
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
	logger     *slog.Logger
	done       chan struct{} // closed when Run exits
	maxClients int

	totalAlerts  atomic.Int64
	totalClients atomic.Int64
}

// NewHub creates a hub. Call Run before serving connections.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan *domain.Alert, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger.With("component", "alert_hub"),
		done:       make(chan struct{}),
		maxClients: MaxClients,
	}
}

func (h *Hub) ID() string { return HubID }

// Deliver queues the alert for broadcast. A full queue drops the alert for
// dashboards only; the hub stays subscribed.
func (h *Hub) Deliver(_ context.Context, a domain.Alert) error {
	select {
	case h.broadcast <- &a:
	default:
		h.logger.Warn("broadcast queue full, dropping alert", "alert_id", a.ID)
	}
	return nil
}

// Run owns the client set until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("alert hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send) // writePump sends a close frame
				delete(h.clients, c)
			}
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(0)
			h.logger.Info("alert hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.totalClients.Add(1)
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Info("dashboard connected", "total", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.ActiveWebSocketClients.Set(float64(n))
			h.logger.Info("dashboard disconnected", "total", n)

		case a := <-h.broadcast:
			h.totalAlerts.Add(1)
			msg, err := json.Marshal(a)
			if err != nil {
				h.logger.Error("marshal alert", "error", err)
				continue
			}
			h.mu.RLock()
			var slow []*client
			for c := range h.clients {
				if !c.wants(a) {
					continue
				}
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			if len(slow) > 0 {
				h.mu.Lock()
				for _, c := range slow {
					if _, ok := h.clients[c]; ok {
						close(c.send)
						delete(h.clients, c)
					}
				}
				n := len(h.clients)
				h.mu.Unlock()
				metrics.ActiveWebSocketClients.Set(float64(n))
				h.logger.Warn("dropped slow dashboards", "count", len(slow))
			}
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns hub counters.
func (h *Hub) Stats() map[string]any {
	return map[string]any{
		"connected_clients": h.Clients(),
		"total_alerts":      h.totalAlerts.Load(),
		"total_clients":     h.totalClients.Load(),
	}
}

// HandleWebSocket upgrades the request and streams alerts to it.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}
	if h.Clients() >= h.maxClients {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, 64)}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump applies filter updates and detects disconnects.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4 << 10)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, normalCloseCodes...) {
				c.hub.logger.Debug("websocket read error", "error", err)
			}
			return
		}
		var f Filter
		if err := json.Unmarshal(message, &f); err == nil {
			c.mu.Lock()
			c.filter = f
			c.mu.Unlock()
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Debug("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
