package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/abdullahmohammed1234/AstraShield-sub000/internal/risk"
)

const (
	// sendBuffer is the per-client outbound queue; a client that lets it
	// fill is dropped by the hub.
	sendBuffer = 32

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxInboundBytes bounds subscribe frames; anything larger is abuse.
	maxInboundBytes = 4096
)

// inbound is the client→server frame shape. Only "subscribe" is understood.
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// client is one WebSocket connection. The read pump owns the filter; wants
// is called from the hub goroutine, so filter access is guarded.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	ip   string

	mu     sync.Mutex
	filter SubscribeFilter
}

// wants applies the client's subscribe filter to one broadcast frame.
// The greeting and frames without tier metadata always pass the tier check.
func (c *client) wants(out outbound) bool {
	c.mu.Lock()
	f := c.filter
	c.mu.Unlock()

	if f.MinRiskTier != "" && out.hasTier {
		if out.tier.Rank() < risk.Tier(f.MinRiskTier).Rank() {
			return false
		}
	}
	if len(f.SatelliteIDs) > 0 && len(out.sats) > 0 {
		matched := false
		for _, want := range f.SatelliteIDs {
			for _, got := range out.sats {
				if want == got {
					matched = true
				}
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func (c *client) setFilter(f SubscribeFilter) {
	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
}

// readPump consumes inbound frames until the connection dies, then tears the
// client down. It is the only reader of the connection.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
		c.hub.limiter.release(c.ip)
		c.hub.logger.Info("ws client disconnected", "remote_ip", c.ip)
	}()

	c.conn.SetReadLimit(maxInboundBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("ws read error", "remote_ip", c.ip, "error", err)
			}
			return
		}

		var in inbound
		if err := json.Unmarshal(msg, &in); err != nil || in.Type != "subscribe" {
			continue
		}
		var f SubscribeFilter
		if err := json.Unmarshal(in.Payload, &f); err != nil {
			c.hub.logger.Debug("ws subscribe payload rejected", "remote_ip", c.ip, "error", err)
			continue
		}
		c.setFilter(f)
	}
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with pings. It is the only writer of the connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel: it dropped or shut down this client.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
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
