package server

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/handlocator/internal/metrics"
)

const writeTimeout = 2 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// PositionsHandler streams tracker positions to WebSocket clients.
type PositionsHandler struct {
	tracker Tracker
	metrics *metrics.Metrics
}

// NewPositionsHandler creates a new PositionsHandler. metrics may be nil.
func NewPositionsHandler(t Tracker, m *metrics.Metrics) *PositionsHandler {
	return &PositionsHandler{tracker: t, metrics: m}
}

// ServeHTTP upgrades the connection and forwards every position until the
// client disconnects.
func (h *PositionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if h.metrics != nil {
		h.metrics.ActiveClients.Add(1)
		defer h.metrics.ActiveClients.Add(-1)
	}

	positions, cancel := h.tracker.Subscribe()
	defer cancel()

	// Reads detect client disconnects
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case pos, ok := <-positions:
			if !ok {
				err := conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "tracker closed"),
					time.Now().Add(writeTimeout))
				if err != nil {
					log.Printf("websocket close error: %v", err)
				}
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Printf("websocket deadline error: %v", err)
				return
			}
			if err := conn.WriteJSON(pos); err != nil {
				return
			}
		}
	}
}
