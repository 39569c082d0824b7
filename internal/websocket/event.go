package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EventType names a real-time event on the wire
type EventType string

const (
	// SOS events
	EventStartSOS       EventType = "startSOS"
	EventJoinSOS        EventType = "joinSOS"
	EventUpdateLocation EventType = "updateLocation"
	EventKeepAlive      EventType = "keepAlive"
	EventLeaveSOS       EventType = "leaveSOS"

	// Location-share events
	EventLocationStart  EventType = "location:start"
	EventLocationJoin   EventType = "location:join"
	EventLocationUpdate EventType = "location:update"
	EventLocationEnd    EventType = "location:end_session"

	// Session broadcasts
	EventSOSStarted    EventType = "sosStarted"
	EventShareStarted  EventType = "shareStarted"
	EventLocationPoint EventType = "locationUpdate"
	EventPathUpdate    EventType = "pathUpdate"
	EventStatusUpdate  EventType = "statusUpdate"

	// Chat intents
	EventCreateChatRequest EventType = "create_chat_request"
	EventAcceptChatRequest EventType = "accept_chat_request"
	EventSendMessage       EventType = "send_message"
	EventRequestEndChat    EventType = "request_end_chat"
	EventEndChatResponse   EventType = "end_chat_response"
	EventMarkRead          EventType = "mark_read"
	EventMarkRoomActive    EventType = "mark_room_active"

	// Chat broadcasts
	EventNewChatRequest      EventType = "new_chat_request"
	EventChatRequestAccepted EventType = "chat_request_accepted"
	EventChatRoomCreated     EventType = "chat_room_created"
	EventNewMessage          EventType = "new_message"
	EventMessageSent         EventType = "message_sent"
	EventEndChatRequest      EventType = "end_chat_request"
	EventEndChatDeclined     EventType = "end_chat_declined"
	EventChatEnded           EventType = "chat_ended"
	EventMessagesRead        EventType = "messages_read"
	EventUnreadCount         EventType = "unread_count"

	// Presence and indicators
	EventUserStatusChange  EventType = "user_status_change"
	EventOnlineUsers       EventType = "online_users"
	EventUserTyping        EventType = "user_typing"
	EventUserStoppedTyping EventType = "user_stopped_typing"

	// Errors
	EventError EventType = "error"
)

// Error codes carried in the error event payload
const (
	CodeSessionNotFound   = "SESSION_NOT_FOUND"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeValidationError   = "VALIDATION_ERROR"
	CodeUnauthorized      = "UNAUTHORIZED"
)

// Event is the JSON envelope carried over every connection
type Event struct {
	ID        string                 `json:"id"`
	Event     EventType              `json:"event"`
	Data      map[string]interface{} `json:"data,omitempty"`
	From      string                 `json:"from,omitempty"`
	RoomID    string                 `json:"room_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewEvent creates a new event envelope
func NewEvent(event EventType, data map[string]interface{}) *Event {
	return &Event{
		ID:        primitive.NewObjectID().Hex(),
		Event:     event,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// NewErrorEvent creates an error event with a stable code and message
func NewErrorEvent(code, message string) *Event {
	return NewEvent(EventError, map[string]interface{}{
		"code":    code,
		"message": message,
	})
}

// ToJSON converts the event to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON creates an event from JSON bytes
func FromJSON(data []byte) (*Event, error) {
	var e Event
	err := json.Unmarshal(data, &e)
	return &e, err
}

// Validate validates the envelope structure
func (e *Event) Validate() error {
	if e.Event == "" {
		return fmt.Errorf("event type is required")
	}
	return nil
}

// Str extracts a string field from the event payload
func (e *Event) Str(key string) string {
	if e.Data == nil {
		return ""
	}
	if v, ok := e.Data[key].(string); ok {
		return v
	}
	return ""
}

// Float extracts a numeric field from the event payload
func (e *Event) Float(key string) (float64, bool) {
	if e.Data == nil {
		return 0, false
	}
	switch v := e.Data[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// Bool extracts a boolean field from the event payload
func (e *Event) Bool(key string) (bool, bool) {
	if e.Data == nil {
		return false, false
	}
	if v, ok := e.Data[key].(bool); ok {
		return v, true
	}
	return false, false
}
