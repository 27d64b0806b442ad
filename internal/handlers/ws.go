package handlers

import (
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/asad-bukhari/task-flow-organizer/internal/models"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsSendBuffer   = 16
)

// wsClient is one subscriber. Only its write pump writes to conn.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// WSHub fans task events out to every connected websocket client.
type WSHub struct {
	connections    map[*wsClient]bool
	mutex          sync.Mutex
	allowedOrigins []string
	upgrader       websocket.Upgrader
	logger         logrus.FieldLogger
}

// NewWSHub accepts upgrades from the given origins. An empty list, or one
// containing "*", allows any origin.
func NewWSHub(allowedOrigins []string, logger logrus.FieldLogger) *WSHub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	h := &WSHub{
		connections:    make(map[*wsClient]bool),
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: h.checkOrigin,
		Error: func(w http.ResponseWriter, r *http.Request, status int, reason error) {
			sendError(w, reason.Error(), status)
		},
	}
	return h
}

func (h *WSHub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.allowedOrigins) == 0 || slices.Contains(h.allowedOrigins, "*") {
		return true
	}
	origin = strings.TrimSuffix(origin, "/")
	for _, allowed := range h.allowedOrigins {
		if strings.EqualFold(strings.TrimSuffix(strings.TrimSpace(allowed), "/"), origin) {
			return true
		}
	}
	return false
}

// Publish queues the event for every client without blocking. A client whose
// queue is full is dropped.
func (h *WSHub) Publish(event models.TaskEvent) {
	message, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Error("marshal task event")
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for c := range h.connections {
		select {
		case c.send <- message:
		default:
			h.logger.WithField("event", event.Event).Warn("dropping slow websocket client")
			delete(h.connections, c)
			close(c.send)
		}
	}
}

func (h *WSHub) register(conn *websocket.Conn) *wsClient {
	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	h.mutex.Lock()
	h.connections[c] = true
	h.mutex.Unlock()
	go h.writePump(c)
	return c
}

func (h *WSHub) unregister(c *wsClient) {
	h.mutex.Lock()
	if h.connections[c] {
		delete(h.connections, c)
		close(c.send)
	}
	h.mutex.Unlock()
}

// writePump writes queued messages until the client is unregistered, then
// sends a close frame and closes the connection.
func (h *WSHub) writePump(c *wsClient) {
	defer c.conn.Close()
	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			h.logger.WithError(err).Debug("dropping websocket connection")
			h.unregister(c)
			return
		}
	}
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func (h *WSHub) Len() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.connections)
}

// Close unregisters every client. Their write pumps send a close frame.
func (h *WSHub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for c := range h.connections {
		delete(h.connections, c)
		close(c.send)
	}
}

// HandleWebSocket upgrades the request and streams task events until the
// client goes away. Headers already set by the middleware are sent with the
// 101 response. Messages from the client are read and discarded.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.WSHub.upgrader.Upgrade(w, r, w.Header())
	if err != nil {
		// Upgrade has already written the error response
		h.logger().WithError(err).Debug("websocket upgrade failed")
		return
	}
	client := h.WSHub.register(conn)
	defer h.WSHub.unregister(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
