package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SessionKind distinguishes the registries a session lives in
type SessionKind string

const (
	KindSOS           SessionKind = "sos"
	KindLocationShare SessionKind = "location_share"
)

// LocationPoint is a single tracked position
type LocationPoint struct {
	Latitude  float64   `bson:"latitude" json:"latitude"`
	Longitude float64   `bson:"longitude" json:"longitude"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// SOSSession is a distress broadcast session. A user has at most one
// Active SOS session; starting a new one supersedes the previous.
type SOSSession struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	SessionID       string             `bson:"session_id" json:"session_id"`
	OwnerUserID     string             `bson:"owner_user_id" json:"owner_user_id"`
	ShareableLink   string             `bson:"shareable_link" json:"shareable_link"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
	EndedAt         *time.Time         `bson:"ended_at,omitempty" json:"ended_at,omitempty"`
	LastActivityAt  time.Time          `bson:"last_activity_at" json:"last_activity_at"`
	LocationHistory []LocationPoint    `bson:"location_history" json:"location_history"`
}

// Active reports whether the session is still broadcasting
func (s *SOSSession) Active() bool {
	return s.EndedAt == nil
}

// LocationShareSession is a live-location share session, keyed separately
// from SOS so one of each kind may run concurrently for a user.
type LocationShareSession struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	ShareID           string             `bson:"share_id" json:"share_id"`
	OwnerUserID       string             `bson:"owner_user_id" json:"owner_user_id"`
	ShareableLink     string             `bson:"shareable_link" json:"shareable_link"`
	CreatedAt         time.Time          `bson:"created_at" json:"created_at"`
	EndedAt           *time.Time         `bson:"ended_at,omitempty" json:"ended_at,omitempty"`
	LastActivityAt    time.Time          `bson:"last_activity_at" json:"last_activity_at"`
	LastKnownPosition *LocationPoint     `bson:"last_known_position,omitempty" json:"last_known_position,omitempty"`
	LocationHistory   []LocationPoint    `bson:"location_history" json:"location_history"`
}

// Active reports whether the share is still live
func (s *LocationShareSession) Active() bool {
	return s.EndedAt == nil
}

// PresenceRecord tracks a user's online state; rebuilt on reconnect,
// nothing beyond last-seen survives a restart.
type PresenceRecord struct {
	UserID     string    `json:"user_id"`
	Online     bool      `json:"online"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
