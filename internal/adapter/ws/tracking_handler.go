package ws

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shoply/tracking/internal/adapter/logger"
	"github.com/shoply/tracking/internal/domain"
	"github.com/shoply/tracking/internal/interfaces"
)

const sendBufferSize = 64

// client owns one tracking connection. All writes go through the buffered
// send channel and the write pump so observer callbacks never block fan-out.
type client struct {
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// enqueue reports false when the client is gone or cannot keep up.
func (c *client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// TrackingHandler upgrades GET /ws/orders/{orderID} and bridges the
// connection into the tracker's subscription fan-out.
type TrackingHandler struct {
	tracker  interfaces.OrderTracker
	logger   logger.Logger
	upgrader websocket.Upgrader
}

func NewTrackingHandler(tracker interfaces.OrderTracker, lgr logger.Logger) *TrackingHandler {
	return &TrackingHandler{
		tracker: tracker,
		logger:  lgr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (h *TrackingHandler) HandleTracking(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimPrefix(r.URL.Path, "/ws/orders/")
	if orderID == "" || strings.Contains(orderID, "/") {
		http.Error(w, "Invalid order id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws_upgrade_failed", "Failed to upgrade tracking connection", orderID, nil, err)
		return
	}

	observerID := uuid.NewString()
	c := newClient(conn)

	h.logger.Debug("ws_connected", "Tracking client connected", orderID, map[string]interface{}{
		"observer_id": observerID,
		"remote_addr": r.RemoteAddr,
	})

	h.tracker.Subscribe(r.Context(), orderID, observerID, func(status domain.OrderStatus) {
		data, err := json.Marshal(status)
		if err != nil {
			h.logger.Error("ws_marshal_failed", "Failed to marshal status push", orderID, nil, err)
			return
		}
		if !c.enqueue(data) {
			// Client cannot keep up; force the read loop to exit.
			conn.Close()
		}
	})

	go func() {
		defer func() {
			h.tracker.Unsubscribe(orderID, observerID)
			c.close()
			h.logger.Debug("ws_disconnected", "Tracking client disconnected", orderID, map[string]interface{}{
				"observer_id": observerID,
			})
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
