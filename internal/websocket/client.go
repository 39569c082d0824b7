package websocket

import (
	"fmt"
	"sync"
	"time"

	"github.com/suryadevkumar/SheSecure-sub000/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	// Buffer size for client send channel
	sendBufferSize = 256
)

var newline = []byte{'\n'}

// Roles bound to a connection at upgrade time
const (
	RoleUser      = "user"
	RoleCounselor = "counselor"
)

// Router dispatches inbound intents to the lifecycle controllers
type Router interface {
	Route(c *Client, e *Event)
}

// Client represents one authenticated WebSocket connection
type Client struct {
	Conn *websocket.Conn
	Hub  *Hub

	// Buffered channel of outbound payloads
	Send chan []byte

	UserID      string
	Role        string
	IsCounselor bool
	IP          string

	ConnectedAt time.Time

	router Router

	mu       sync.RWMutex
	rooms    map[string]bool
	lastPong time.Time
}

// NewClient creates a new client bound to a user id and role
func NewClient(conn *websocket.Conn, hub *Hub, router Router, userID, role string) *Client {
	return &Client{
		Conn:        conn,
		Hub:         hub,
		Send:        make(chan []byte, sendBufferSize),
		UserID:      userID,
		Role:        role,
		IsCounselor: role == RoleCounselor,
		ConnectedAt: time.Now(),
		router:      router,
		rooms:       make(map[string]bool),
		lastPong:    time.Now(),
	}
}

// ReadPump pumps events from the WebSocket connection to the router.
// Events on one connection are dispatched in arrival order.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.lastPong = time.Now()
		c.mu.Unlock()
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.WithFields(map[string]interface{}{
					"user_id": c.UserID,
					"error":   err.Error(),
				}).Error("WebSocket read error")
			}
			break
		}

		event, err := FromJSON(payload)
		if err != nil {
			c.SendError(CodeValidationError, fmt.Sprintf("invalid event format: %v", err))
			continue
		}

		if err := event.Validate(); err != nil {
			c.SendError(CodeValidationError, err.Error())
			continue
		}

		event.From = c.UserID
		c.router.Route(c, event)
	}
}

// WritePump pumps payloads from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(payload)

			// Drain queued payloads into the same frame
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendEvent sends an event to this connection
func (c *Client) SendEvent(e *Event) error {
	payload, err := e.ToJSON()
	if err != nil {
		return err
	}

	select {
	case c.Send <- payload:
		return nil
	default:
		return fmt.Errorf("client send buffer full")
	}
}

// SendError reports an error to this connection only
func (c *Client) SendError(code, message string) {
	c.SendEvent(NewErrorEvent(code, message))
}

// Rooms returns a snapshot of the topics this connection belongs to
func (c *Client) Rooms() map[string]bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rooms := make(map[string]bool, len(c.rooms))
	for roomID := range c.rooms {
		rooms[roomID] = true
	}
	return rooms
}

// InRoom checks membership in a topic
func (c *Client) InRoom(roomID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[roomID]
}

// LastPong returns the time of the last pong from the peer
func (c *Client) LastPong() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPong
}

func (c *Client) addRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[roomID] = true
}

func (c *Client) removeRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, roomID)
}
