package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shatzii/sentinel/internal/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Clients only send small filter updates.
	maxMessageSize = 4 * 1024
)

var severityRank = map[models.Severity]int{
	models.SeverityLow:      0,
	models.SeverityMedium:   1,
	models.SeverityHigh:     2,
	models.SeverityCritical: 3,
}

// Client is one dashboard connection.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	id   string

	mu          sync.RWMutex
	minSeverity models.Severity
}

func newClient(hub *Hub, conn *websocket.Conn, id string, minSeverity models.Severity) *Client {
	return &Client{
		conn:        conn,
		send:        make(chan []byte, 256),
		hub:         hub,
		id:          id,
		minSeverity: minSeverity,
	}
}

func (c *Client) wants(sev models.Severity) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.minSeverity == "" {
		return true
	}
	return severityRank[sev] >= severityRank[c.minSeverity]
}

// filterUpdate is the only message clients send: {"minSeverity":"high"}.
type filterUpdate struct {
	MinSeverity string `json:"minSeverity"`
}

func (c *Client) handleMessage(message []byte) {
	var f filterUpdate
	if err := json.Unmarshal(message, &f); err != nil {
		c.hub.log.Debug("ignoring malformed websocket message", zap.String("client_id", c.id), zap.Error(err))
		return
	}
	sev := models.Severity("")
	if f.MinSeverity != "" {
		parsed, err := models.ParseSeverity(f.MinSeverity)
		if err != nil {
			c.hub.log.Debug("ignoring unknown severity filter", zap.String("client_id", c.id), zap.String("severity", f.MinSeverity))
			return
		}
		sev = parsed
	}
	c.mu.Lock()
	c.minSeverity = sev
	c.mu.Unlock()
}

// readPump reads filter updates until the connection drops.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("websocket read error", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
		c.handleMessage(message)
	}
}

// writePump forwards hub messages, one frame per event, and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
