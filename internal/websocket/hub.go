// Package websocket pushes editor notifications to the browser tabs watching a session.
package websocket

import (
	"encoding/json"
	"net/http"
	"sync"

	"backoffice/internal/lineeditor"
	"backoffice/internal/logger"
	"backoffice/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS is enforced on the REST routes; the socket only carries toasts.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Event is the frame sent to subscribers.
type Event struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id"`
	Level     lineeditor.Level `json:"level,omitempty"`
	Message   string           `json:"message,omitempty"`
}

const EventNotification = "notification"

// Client is one connected socket subscribed to a single session.
type Client struct {
	Hub       *Hub
	Conn      *websocket.Conn
	Send      chan []byte
	SessionID string
}

type message struct {
	sessionID string
	data      []byte
}

// Hub routes messages to the clients of each session.
type Hub struct {
	log        *logger.Logger
	sessions   map[string]map[*Client]bool
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}
	mu         sync.Mutex
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:        log,
		sessions:   make(map[string]map[*Client]bool),
		broadcast:  make(chan message, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
	}
}

// Run dispatches hub events until done is closed.
func (h *Hub) Run(done <-chan struct{}) {
	for {
		select {
		case <-done:
			h.closeAll()
			close(h.stopped)
			return
		case client := <-h.register:
			h.mu.Lock()
			clients, ok := h.sessions[client.SessionID]
			if !ok {
				clients = make(map[*Client]bool)
				h.sessions[client.SessionID] = clients
			}
			clients[client] = true
			h.mu.Unlock()
			h.log.Debugw("websocket client connected", "session_id", client.SessionID)
		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
			h.log.Debugw("websocket client disconnected", "session_id", client.SessionID)
		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.sessions[msg.sessionID] {
				select {
				case client.Send <- msg.data:
				default:
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove drops client and closes its send channel. Callers hold h.mu.
func (h *Hub) remove(client *Client) {
	clients, ok := h.sessions[client.SessionID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.sessions, client.SessionID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.sessions {
		for client := range clients {
			h.remove(client)
		}
	}
}

// Subscribers returns the number of clients watching sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions[sessionID])
}

// Publish queues n for every client of sessionID. It never blocks the caller;
// when the queue is full the notification is dropped.
func (h *Hub) Publish(sessionID string, n lineeditor.Notification) {
	data, err := json.Marshal(Event{
		Type:      EventNotification,
		SessionID: sessionID,
		Level:     n.Level,
		Message:   n.Message,
	})
	if err != nil {
		h.log.Errorw("failed to encode websocket event", "error", err)
		return
	}
	select {
	case h.broadcast <- message{sessionID: sessionID, data: data}:
	default:
		h.log.Warnw("websocket queue full, notification dropped", "session_id", sessionID)
	}
}

// Notifier returns a lineeditor.Notifier publishing to sessionID.
func (h *Hub) Notifier(sessionID string) lineeditor.Notifier {
	return lineeditor.NotifierFunc(func(n lineeditor.Notification) {
		h.Publish(sessionID, n)
	})
}

func (c *Client) writePump() {
	defer func() {
		_ = c.Conn.Close()
	}()
	for data := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.stopped:
		}
		_ = c.Conn.Close()
	}()
	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Warnw("websocket read failed", "session_id", c.SessionID, "error", err)
			}
			return
		}
	}
}

// SessionAuthorizer reports whether userID may watch sessionID.
type SessionAuthorizer func(sessionID, userID string) bool

// ServeWs upgrades an authenticated request and subscribes it to the session
// named by the "session" query parameter. The token comes from the "token"
// query parameter since browsers cannot set headers on websocket requests.
// Unknown sessions and sessions of other users are answered with 404.
func ServeWs(hub *Hub, c *gin.Context, secret []byte, authorize SessionAuthorizer) {
	sessionID := c.Query("session")
	if sessionID == "" {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	tokenString := c.Query("token")
	if tokenString == "" {
		hub.log.Infow("websocket connection rejected: missing token")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	claims, err := middleware.ParseToken(tokenString, secret)
	if err != nil {
		hub.log.Infow("websocket connection rejected: invalid token", "error", err)
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	if !authorize(sessionID, middleware.SubjectOf(claims)) {
		hub.log.Infow("websocket connection rejected: session not available", "session_id", sessionID)
		c.AbortWithStatus(http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.Warnw("websocket upgrade failed", "error", err)
		return
	}
	client := &Client{Hub: hub, Conn: conn, Send: make(chan []byte, 256), SessionID: sessionID}
	select {
	case hub.register <- client:
	case <-hub.stopped:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
