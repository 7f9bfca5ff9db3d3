package status

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hexmodal/marathon/pkg/logging"
)

const (
	// sendBuffer is the per-subscriber event buffer; when it fills the
	// subscriber is lagging and further events are dropped for it.
	sendBuffer = 100

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Hub fans status events out to all connected websocket observers.
// It implements Notifier.
type Hub struct {
	logger *logging.Logger

	mu          sync.RWMutex
	subscribers map[*subscriber]bool
	upgrader    websocket.Upgrader
}

type subscriber struct {
	conn    *websocket.Conn
	send    chan Event
	writeMu sync.Mutex
}

// NewHub creates an event hub with no subscribers.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:      logger,
		subscribers: make(map[*subscriber]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Emit delivers an event to every connected subscriber. Subscribers whose
// buffers are full are skipped; Emit never blocks.
func (h *Hub) Emit(message string, severity Severity) {
	event := Event{
		Message:   message,
		Type:      severity,
		Timestamp: time.Now(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers {
		select {
		case sub.send <- event:
		default:
			h.logger.Warnf("subscriber lagging, dropping event: %s", message)
		}
	}
}

// HandleWebSocket upgrades the request and registers the client as an
// observer. The connection receives every event emitted after it joins.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("websocket upgrade failed: %v", err)
		return
	}

	sub := &subscriber{
		conn: conn,
		send: make(chan Event, sendBuffer),
	}

	// Greeting lets the client confirm the stream is live. Queued before
	// the subscriber is visible to Shutdown, which closes send channels of
	// registered subscribers.
	sub.send <- Event{Message: "Connected to server", Type: SeveritySuccess, Timestamp: time.Now()}

	h.mu.Lock()
	h.subscribers[sub] = true
	h.mu.Unlock()

	h.logger.Infof("observer connected from %s", r.RemoteAddr)

	go sub.writePump()
	go h.readPump(sub)
}

// readPump drains (and discards) client messages so pongs are processed,
// and tears the subscriber down when the connection drops.
func (h *Hub) readPump(sub *subscriber) {
	defer func() {
		h.removeSubscriber(sub)
		sub.writeMu.Lock()
		sub.conn.Close()
		sub.writeMu.Unlock()
	}()

	sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		sub.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.Warnf("websocket read error: %v", err)
			}
			return
		}
	}
}

// writePump sends buffered events and keepalive pings to the client.
func (sub *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-sub.send:
			if !ok {
				sub.writeMu.Lock()
				_ = sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				sub.writeMu.Unlock()
				return
			}

			sub.writeMu.Lock()
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := sub.conn.WriteJSON(event)
			sub.writeMu.Unlock()
			if err != nil {
				return
			}

		case <-ticker.C:
			sub.writeMu.Lock()
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := sub.conn.WriteMessage(websocket.PingMessage, nil)
			sub.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (h *Hub) removeSubscriber(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subscribers[sub] {
		delete(h.subscribers, sub)
		close(sub.send)
		h.logger.Infof("observer disconnected")
	}
}

// ActiveConnections returns the number of connected observers.
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Shutdown closes every observer connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subscribers {
		sub.conn.Close()
		close(sub.send)
	}
	h.subscribers = make(map[*subscriber]bool)
}
