// Package presence tracks the connected-user set, last-seen timestamps and
// the ephemeral per-room indicators (typing, unread counts, room focus).
// Everything here is rebuilt from live connections; nothing is persisted
// beyond last-seen.
package presence

import (
	"sync"
	"time"

	"github.com/suryadevkumar/SheSecure-sub000/internal/models"
)

type typingState struct {
	userID string
	since  time.Time
}

// Tracker is the process-wide presence table
type Tracker struct {
	mu         sync.RWMutex
	online     map[string]bool
	lastSeen   map[string]time.Time
	typing     map[string]typingState    // roomID -> currently typing user (at most one)
	unread     map[string]map[string]int // userID -> roomID -> count
	activeRoom map[string]string         // userID -> room currently in view
	typingTTL  time.Duration
}

// NewTracker creates an empty tracker. typingTTL bounds how long a typing
// indicator survives without an explicit stop event.
func NewTracker(typingTTL time.Duration) *Tracker {
	return &Tracker{
		online:     make(map[string]bool),
		lastSeen:   make(map[string]time.Time),
		typing:     make(map[string]typingState),
		unread:     make(map[string]map[string]int),
		activeRoom: make(map[string]string),
		typingTTL:  typingTTL,
	}
}

// SetOnline marks a user connected
func (t *Tracker) SetOnline(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.online[userID] = true
	t.lastSeen[userID] = time.Now()
}

// SetOffline marks a user disconnected and clears their ephemeral state.
// It returns the rooms whose typing indicator the user held, so callers can
// notify subscribers; a disconnect is a terminal event for those indicators.
func (t *Tracker) SetOffline(userID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.online, userID)
	t.lastSeen[userID] = time.Now()
	delete(t.activeRoom, userID)

	var cleared []string
	for roomID, state := range t.typing {
		if state.userID == userID {
			delete(t.typing, roomID)
			cleared = append(cleared, roomID)
		}
	}
	return cleared
}

// IsOnline reports whether the user has a live connection
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.online[userID]
}

// OnlineUsers returns a snapshot of all connected user ids
func (t *Tracker) OnlineUsers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	users := make([]string, 0, len(t.online))
	for userID := range t.online {
		users = append(users, userID)
	}
	return users
}

// Record returns the presence record for a user
func (t *Tracker) Record(userID string) models.PresenceRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return models.PresenceRecord{
		UserID:     userID,
		Online:     t.online[userID],
		LastSeenAt: t.lastSeen[userID],
	}
}

// Typing indicators

// SetTyping records userID as the (single) typer in a room
func (t *Tracker) SetTyping(roomID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.typing[roomID] = typingState{userID: userID, since: time.Now()}
}

// ClearTyping removes the typing indicator for a room. When userID is
// non-empty the indicator is only cleared if that user holds it.
func (t *Tracker) ClearTyping(roomID, userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if state, ok := t.typing[roomID]; ok {
		if userID == "" || state.userID == userID {
			delete(t.typing, roomID)
		}
	}
}

// TypingUser returns the user currently typing in a room, if any
func (t *Tracker) TypingUser(roomID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, ok := t.typing[roomID]
	if !ok {
		return "", false
	}
	return state.userID, true
}

// TypingExpiry identifies a typing indicator the sweep cleared
type TypingExpiry struct {
	RoomID string
	UserID string
}

// SweepTyping clears indicators older than the TTL and returns who was
// cleared where, so the hub can tell subscribers whose indicator expired.
func (t *Tracker) SweepTyping() []TypingExpiry {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Now().Add(-t.typingTTL)
	var expired []TypingExpiry
	for roomID, state := range t.typing {
		if state.since.Before(cutoff) {
			delete(t.typing, roomID)
			expired = append(expired, TypingExpiry{RoomID: roomID, UserID: state.userID})
		}
	}
	return expired
}

// Unread counters and room focus

// SetActiveRoom marks the room a user is currently viewing and resets
// that room's unread counter for the user.
func (t *Tracker) SetActiveRoom(userID, roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.activeRoom[userID] = roomID
	if counts, ok := t.unread[userID]; ok {
		delete(counts, roomID)
	}
}

// ActiveRoom returns the room the user is currently viewing
func (t *Tracker) ActiveRoom(userID string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.activeRoom[userID]
}

// IncrementUnread bumps the unread counter unless the user is viewing the
// room, and returns the new count.
func (t *Tracker) IncrementUnread(userID, roomID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.activeRoom[userID] == roomID {
		return 0
	}

	if t.unread[userID] == nil {
		t.unread[userID] = make(map[string]int)
	}
	t.unread[userID][roomID]++
	return t.unread[userID][roomID]
}

// UnreadCount returns the unread counter for a user and room
func (t *Tracker) UnreadCount(userID, roomID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.unread[userID][roomID]
}
