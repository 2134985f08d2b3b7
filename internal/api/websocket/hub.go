// Package websocket streams alert events to dashboard clients.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shatzii/sentinel/internal/alert"
	"github.com/shatzii/sentinel/internal/models"
	"github.com/shatzii/sentinel/internal/pkg/metrics"
)

// Message is the frame sent to clients.
type Message struct {
	Type      string               `json:"type"`
	Alert     models.SecurityAlert `json:"alert"`
	Timestamp time.Time            `json:"timestamp"`
}

type outbound struct {
	severity models.Severity
	data     []byte
}

// Hub maintains active WebSocket connections and broadcasts alert events.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client

	mu  sync.RWMutex
	log *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(ctx context.Context, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	hubCtx, cancel := context.WithCancel(ctx)
	return &Hub{
		broadcast:  make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		log:        log,
		ctx:        hubCtx,
		cancel:     cancel,
	}
}

// Run starts the hub; it returns when the hub context is done.
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			metrics.WebSocketConnectionsActive.Inc()

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			var slow []*Client
			h.mu.RLock()
			for client := range h.clients {
				if !client.wants(msg.severity) {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()
			for _, c := range slow {
				h.log.Warn("dropping slow websocket client", zap.String("client_id", c.id))
				h.remove(c)
			}
		}
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		metrics.WebSocketConnectionsActive.Dec()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
		metrics.WebSocketConnectionsActive.Dec()
	}
}

// Stop stops the hub and disconnects every client.
func (h *Hub) Stop() {
	h.cancel()
}

// Publish is an alert.Listener. It never blocks the caller: when the
// broadcast queue is full the event is dropped and logged.
func (h *Hub) Publish(e alert.Event) {
	data, err := json.Marshal(Message{Type: string(e.Kind), Alert: e.Alert, Timestamp: time.Now().UTC()})
	if err != nil {
		h.log.Error("failed to encode alert event", zap.String("alert_id", e.Alert.ID), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- outbound{severity: e.Alert.Severity, data: data}:
	case <-h.ctx.Done():
	default:
		h.log.Warn("websocket broadcast queue full, dropping event", zap.String("alert_id", e.Alert.ID))
	}
}

// GetClientCount returns the number of connected clients.
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
