package websocket

import (
	"sync"
	"time"

	"github.com/suryadevkumar/SheSecure-sub000/internal/presence"
	"github.com/suryadevkumar/SheSecure-sub000/pkg/logger"
)

// Hub maintains the set of active connections and the topic membership
// table. A topic is the set of connections subscribed to broadcasts for a
// given session or room id.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Clients organized by user ID
	userClients map[string]*Client

	// Clients organized by topic ID
	roomClients map[string]map[*Client]bool

	// Counselor clients, addressed as a group for chat request fan-out
	counselorClients map[*Client]bool

	// Unregister requests from clients
	Unregister chan *Client

	// Presence tracker, updated on connect/disconnect
	tracker *presence.Tracker

	// Cadence of the typing-indicator TTL sweep
	typingSweepInterval time.Duration

	mu sync.RWMutex
}

// NewHub creates a new hub backed by the given presence tracker
func NewHub(tracker *presence.Tracker, typingSweepInterval time.Duration) *Hub {
	return &Hub{
		clients:             make(map[*Client]bool),
		userClients:         make(map[string]*Client),
		roomClients:         make(map[string]map[*Client]bool),
		counselorClients:    make(map[*Client]bool),
		Unregister:          make(chan *Client),
		tracker:             tracker,
		typingSweepInterval: typingSweepInterval,
	}
}

// Run starts the hub and handles client unregistration
func (h *Hub) Run() {
	go h.startPeriodicTasks()

	for client := range h.Unregister {
		h.unregisterClient(client)
	}
}

// RegisterClient installs a connection synchronously. Registration must
// complete before the caller issues room joins for the same user, or a
// reconnecting participant's resubscription silently misses the new
// connection.
func (h *Hub) RegisterClient(client *Client) {
	h.registerClient(client)
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()

	// A reconnecting user replaces their previous connection
	if prev, ok := h.userClients[client.UserID]; ok && prev != client {
		h.dropClientLocked(prev)
	}

	h.clients[client] = true
	h.userClients[client.UserID] = client
	if client.IsCounselor {
		h.counselorClients[client] = true
	}

	total := len(h.clients)
	h.mu.Unlock()

	h.tracker.SetOnline(client.UserID)

	logger.WithFields(map[string]interface{}{
		"user_id":       client.UserID,
		"role":          client.Role,
		"total_clients": total,
	}).Info("Client registered")

	// New connection receives the full online-user set
	client.SendEvent(NewEvent(EventOnlineUsers, map[string]interface{}{
		"users": h.tracker.OnlineUsers(),
	}))

	h.EmitToAll(EventUserStatusChange, map[string]interface{}{
		"user_id": client.UserID,
		"online":  true,
	})
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	h.dropClientLocked(client)
	total := len(h.clients)
	h.mu.Unlock()

	clearedRooms := h.tracker.SetOffline(client.UserID)

	logger.WithFields(map[string]interface{}{
		"user_id":       client.UserID,
		"total_clients": total,
	}).Info("Client unregistered")

	// Disconnect is a terminal event for any typing indicator the user held
	for _, roomID := range clearedRooms {
		h.EmitToRoom(roomID, EventUserStoppedTyping, map[string]interface{}{
			"user_id": client.UserID,
		})
	}

	record := h.tracker.Record(client.UserID)
	h.EmitToAll(EventUserStatusChange, map[string]interface{}{
		"user_id":      client.UserID,
		"online":       false,
		"last_seen_at": record.LastSeenAt,
	})
}

// dropClientLocked removes a client from every table; caller holds h.mu
func (h *Hub) dropClientLocked(client *Client) {
	delete(h.clients, client)
	if h.userClients[client.UserID] == client {
		delete(h.userClients, client.UserID)
	}
	delete(h.counselorClients, client)

	for roomID := range client.Rooms() {
		if members, ok := h.roomClients[roomID]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.roomClients, roomID)
			}
		}
	}

	close(client.Send)
}

// Topic membership

// JoinRoom subscribes a user's connection to a topic. Unknown or offline
// users are a no-op; membership is re-established on reconnect.
func (h *Hub) JoinRoom(userID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.userClients[userID]
	if !ok {
		return
	}
	h.joinLocked(client, roomID)
}

// JoinClient subscribes a specific connection to a topic
func (h *Hub) JoinClient(client *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joinLocked(client, roomID)
}

func (h *Hub) joinLocked(client *Client, roomID string) {
	if h.roomClients[roomID] == nil {
		h.roomClients[roomID] = make(map[*Client]bool)
	}
	h.roomClients[roomID][client] = true
	client.addRoom(roomID)

	logger.LogUserAction(client.UserID, "topic_joined", map[string]interface{}{
		"room_id":   roomID,
		"room_size": len(h.roomClients[roomID]),
	})
}

// LeaveRoom removes a user's connection from a topic
func (h *Hub) LeaveRoom(userID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, ok := h.userClients[userID]
	if !ok {
		return
	}

	if members, ok := h.roomClients[roomID]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.roomClients, roomID)
		}
	}
	client.removeRoom(roomID)
}

// CloseRoom tears down a topic, dropping all member subscriptions
func (h *Hub) CloseRoom(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.roomClients[roomID] {
		client.removeRoom(roomID)
	}
	delete(h.roomClients, roomID)
}

// RoomUsers returns the user ids subscribed to a topic
func (h *Hub) RoomUsers(roomID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]string, 0, len(h.roomClients[roomID]))
	for client := range h.roomClients[roomID] {
		users = append(users, client.UserID)
	}
	return users
}

// IsUserOnline checks if a user has a live connection
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, exists := h.userClients[userID]
	return exists
}

// Broadcasting. Emits are synchronous with respect to the caller so that
// an emit followed by CloseRoom cannot outrun its own delivery; the per
// client Send buffer decouples the actual network write.

// EmitToRoom broadcasts an event to every topic member
func (h *Hub) EmitToRoom(roomID string, event EventType, data map[string]interface{}) {
	h.emitToRoom(roomID, "", event, data)
}

// EmitToRoomExcept broadcasts an event to every topic member except one user
func (h *Hub) EmitToRoomExcept(roomID, excludeUserID string, event EventType, data map[string]interface{}) {
	h.emitToRoom(roomID, excludeUserID, event, data)
}

func (h *Hub) emitToRoom(roomID, excludeUserID string, event EventType, data map[string]interface{}) {
	e := NewEvent(event, data)
	e.RoomID = roomID

	payload, err := e.ToJSON()
	if err != nil {
		logger.WithError(err).Error("Failed to marshal room event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.roomClients[roomID] {
		if excludeUserID != "" && client.UserID == excludeUserID {
			continue
		}
		h.sendLocked(client, payload)
	}
}

// EmitToUser sends an event to a specific user's connection
func (h *Hub) EmitToUser(userID string, event EventType, data map[string]interface{}) {
	payload, err := NewEvent(event, data).ToJSON()
	if err != nil {
		logger.WithError(err).Error("Failed to marshal user event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if client, ok := h.userClients[userID]; ok {
		h.sendLocked(client, payload)
	}
}

// EmitToCounselors broadcasts an event to all connected counselors
func (h *Hub) EmitToCounselors(event EventType, data map[string]interface{}) {
	payload, err := NewEvent(event, data).ToJSON()
	if err != nil {
		logger.WithError(err).Error("Failed to marshal counselor event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.counselorClients {
		h.sendLocked(client, payload)
	}
}

// EmitToAll broadcasts an event to every connected client
func (h *Hub) EmitToAll(event EventType, data map[string]interface{}) {
	payload, err := NewEvent(event, data).ToJSON()
	if err != nil {
		logger.WithError(err).Error("Failed to marshal broadcast event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		h.sendLocked(client, payload)
	}
}

// sendLocked delivers payload to one client; caller holds h.mu. A client
// whose send buffer is full is evicted rather than allowed to stall the
// whole topic.
func (h *Hub) sendLocked(client *Client, payload []byte) {
	select {
	case client.Send <- payload:
	default:
		go func() { h.Unregister <- client }()
	}
}

// Periodic tasks

func (h *Hub) startPeriodicTasks() {
	typingTicker := time.NewTicker(h.typingSweepInterval)
	cleanupTicker := time.NewTicker(time.Minute)
	defer typingTicker.Stop()
	defer cleanupTicker.Stop()

	for {
		select {
		case <-typingTicker.C:
			for _, exp := range h.tracker.SweepTyping() {
				h.EmitToRoom(exp.RoomID, EventUserStoppedTyping, map[string]interface{}{
					"user_id": exp.UserID,
					"expired": true,
				})
			}

		case <-cleanupTicker.C:
			h.cleanupInactiveClients()
		}
	}
}

// cleanupInactiveClients evicts connections that stopped answering pings
func (h *Hub) cleanupInactiveClients() {
	h.mu.RLock()
	var stale []*Client
	for client := range h.clients {
		if time.Since(client.LastPong()) > pongWait {
			stale = append(stale, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range stale {
		logger.WithFields(map[string]interface{}{
			"user_id":   client.UserID,
			"last_pong": client.LastPong(),
		}).Info("Removing inactive client")

		h.Unregister <- client
	}
}
