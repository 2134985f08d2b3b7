package websocket

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shatzii/sentinel/internal/models"
)

// Handler upgrades /alerts/stream requests and registers the client with the hub.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewHandler accepts connections from allowedOrigins; an empty list or "*"
// allows any origin.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[strings.TrimSuffix(o, "/")] = true
	}
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(origins) == 0 || origins["*"] || origins[origin]
			},
		},
	}
}

// ServeWS handles websocket requests. ?severity= sets the initial minimum severity.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	var minSeverity models.Severity
	if s := r.URL.Query().Get("severity"); s != "" {
		sev, err := models.ParseSeverity(s)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"Invalid severity"}`))
			return
		}
		minSeverity = sev
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(h.hub, conn, uuid.New().String(), minSeverity)
	select {
	case h.hub.register <- client:
	case <-h.hub.ctx.Done():
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()

	h.hub.log.Debug("websocket client connected", zap.String("client_id", client.id))
}
