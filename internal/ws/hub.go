// Package ws streams alert and re-entry lifecycle frames to WebSocket
// clients. One hub goroutine owns the client set; per-client send buffers
// decouple broadcast from slow consumers, and a consumer that falls behind
// is dropped rather than allowed to stall the hub. Clients may narrow their
// stream with a subscribe frame carrying a minimum risk tier and satellite
// id list.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/alert"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/metrics"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/reentry"
	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/risk"
)

// Frame is the outbound wire envelope. Type mirrors the lifecycle event
// names, plus "connected" for the greeting.
type Frame struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// SubscribeFilter narrows what a client receives. Zero values match
// everything.
type SubscribeFilter struct {
	MinRiskTier  string `json:"min_risk_tier,omitempty"`
	SatelliteIDs []int  `json:"satellite_ids,omitempty"`
}

// outbound carries one marshaled frame plus the metadata the hub needs to
// apply per-client filters without re-parsing the payload.
type outbound struct {
	frame   []byte
	typ     string
	tier    risk.Tier
	hasTier bool
	sats    []int
}

// Hub owns the client set and fans broadcast frames out to it.
type Hub struct {
	logger     *slog.Logger
	limiter    *connLimiter
	upgrader   websocket.Upgrader
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan outbound
	done       chan struct{}
	now        func() time.Time
}

// NewHub creates a hub limited to maxPerIP concurrent connections per
// client IP.
func NewHub(maxPerIP int, logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		limiter: newConnLimiter(maxPerIP),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan outbound, 64),
		done:       make(chan struct{}),
		now:        time.Now,
	}
}

// Run owns the client set until ctx is cancelled. All map access happens on
// this goroutine.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
				metrics.WSClientDisconnected()
			}
			return

		case c := <-h.register:
			h.clients[c] = true
			metrics.WSClientConnected()

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				metrics.WSClientDisconnected()
			}

		case out := <-h.broadcast:
			metrics.RecordWSEvent(out.typ)
			for c := range h.clients {
				if !c.wants(out) {
					continue
				}
				select {
				case c.send <- out.frame:
				default:
					delete(h.clients, c)
					close(c.send)
					metrics.WSClientDisconnected()
					h.logger.Warn("ws client dropped, send buffer full", "remote_ip", c.ip)
				}
			}
		}
	}
}

// BroadcastAlert publishes one alert lifecycle frame. It satisfies the
// alert manager's subscriber signature.
func (h *Hub) BroadcastAlert(e alert.Event) {
	payload, err := json.Marshal(e.Alert)
	if err != nil {
		h.logger.Error("alert frame marshal failed", "alert", e.Alert.ID, "error", err)
		return
	}
	h.send(outbound{
		frame:   h.envelope(string(e.Type), payload, e.At),
		typ:     string(e.Type),
		tier:    e.Alert.Assessment.Tier,
		hasTier: true,
		sats:    []int{e.Alert.Assessment.IDA, e.Alert.Assessment.IDB},
	})
}

// BroadcastReentry publishes one re-entry lifecycle frame. It satisfies the
// re-entry registry's sink signature.
func (h *Hub) BroadcastReentry(e reentry.Event) {
	payload, err := json.Marshal(e.Prediction)
	if err != nil {
		h.logger.Error("reentry frame marshal failed", "norad_id", e.Prediction.NoradID, "error", err)
		return
	}
	h.send(outbound{
		frame: h.envelope(string(e.Type), payload, e.At),
		typ:   string(e.Type),
		sats:  []int{e.Prediction.NoradID},
	})
}

func (h *Hub) envelope(typ string, payload json.RawMessage, at time.Time) []byte {
	buf, _ := json.Marshal(Frame{Type: typ, Payload: payload, Timestamp: at})
	return buf
}

func (h *Hub) send(out outbound) {
	select {
	case h.broadcast <- out:
	case <-h.done:
	}
}

// ServeHTTP upgrades the connection and hands it to the pump goroutines.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !h.limiter.acquire(ip) {
		h.logger.Warn("ws connection limit exceeded", "remote_ip", ip)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "too many concurrent connections"})
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.limiter.release(ip)
		h.logger.Warn("ws upgrade failed", "remote_ip", ip, "error", err)
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer), ip: ip}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		h.limiter.release(ip)
		return
	}

	greeting, _ := json.Marshal(map[string]any{"server_time": h.now().UTC()})
	c.send <- h.envelope("connected", greeting, h.now())

	h.logger.Info("ws client connected", "remote_ip", ip)
	go c.writePump()
	go c.readPump()
}
