package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChatRequestStatus is the lifecycle of a counseling request
type ChatRequestStatus string

const (
	RequestPending  ChatRequestStatus = "pending"
	RequestAccepted ChatRequestStatus = "accepted"
	RequestRejected ChatRequestStatus = "rejected"
)

// ChatRoomStatus is the lifecycle of a counseling room
type ChatRoomStatus string

const (
	RoomActive    ChatRoomStatus = "active"
	RoomCompleted ChatRoomStatus = "completed"
)

// ChatRequest is a user's plea for a counselor; consumed by exactly one
// counselor, terminal once Accepted or Rejected.
type ChatRequest struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	RequestID   string             `bson:"request_id" json:"request_id"`
	UserID      string             `bson:"user_id" json:"user_id"`
	ProblemType string             `bson:"problem_type" json:"problem_type"`
	Brief       string             `bson:"brief" json:"brief"`
	Status      ChatRequestStatus  `bson:"status" json:"status"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}

// ChatRoom pairs a user with the counselor who accepted their request.
// PendingEndRequest marks an in-flight end negotiation.
type ChatRoom struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	RoomID            string             `bson:"room_id" json:"room_id"`
	RequestID         string             `bson:"request_id" json:"request_id"`
	UserID            string             `bson:"user_id" json:"user_id"`
	CounselorID       string             `bson:"counselor_id" json:"counselor_id"`
	Status            ChatRoomStatus     `bson:"status" json:"status"`
	PendingEndRequest bool               `bson:"pending_end_request" json:"pending_end_request"`
	CreatedAt         time.Time          `bson:"created_at" json:"created_at"`
	EndedAt           *time.Time         `bson:"ended_at,omitempty" json:"ended_at,omitempty"`
}

// Active reports whether messages may still flow through the room
func (r *ChatRoom) Active() bool {
	return r.Status == RoomActive
}

// Participant reports whether userID belongs to the room
func (r *ChatRoom) Participant(userID string) bool {
	return r.UserID == userID || r.CounselorID == userID
}

// Other returns the opposite participant
func (r *ChatRoom) Other(userID string) string {
	if userID == r.UserID {
		return r.CounselorID
	}
	return r.UserID
}

// Message is immutable once created except for ReadBy accretion
type Message struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	MessageID string             `bson:"message_id" json:"message_id"`
	RoomID    string             `bson:"room_id" json:"room_id"`
	SenderID  string             `bson:"sender_id" json:"sender_id"`
	Content   string             `bson:"content" json:"content"`
	IsSystem  bool               `bson:"is_system" json:"is_system"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	ReadBy    []string           `bson:"read_by" json:"read_by"`
}

// MarkRead appends userID to ReadBy once; idempotent
func (m *Message) MarkRead(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return false
		}
	}
	m.ReadBy = append(m.ReadBy, userID)
	return true
}
