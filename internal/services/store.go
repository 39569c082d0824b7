package services

import (
	"context"
	"errors"

	"github.com/suryadevkumar/SheSecure-sub000/internal/models"
)

// ErrNotFound is returned by stores when no document matches
var ErrNotFound = errors.New("document not found")

// SessionStore persists durable SOS and location-share facts. The
// in-memory registries stay authoritative for live state; the store holds
// what must survive a restart and is read lazily, never eagerly hydrated.
type SessionStore interface {
	SaveSOS(ctx context.Context, session *models.SOSSession) error
	UpdateSOS(ctx context.Context, session *models.SOSSession) error
	FindSOS(ctx context.Context, sessionID string) (*models.SOSSession, error)
	FindActiveSOSByUser(ctx context.Context, userID string) (*models.SOSSession, error)

	SaveShare(ctx context.Context, share *models.LocationShareSession) error
	UpdateShare(ctx context.Context, share *models.LocationShareSession) error
	FindShare(ctx context.Context, shareID string) (*models.LocationShareSession, error)
	FindActiveShareByUser(ctx context.Context, userID string) (*models.LocationShareSession, error)
}

// ChatStore persists chat requests, rooms and messages
type ChatStore interface {
	SaveRequest(ctx context.Context, request *models.ChatRequest) error
	UpdateRequestStatus(ctx context.Context, requestID string, status models.ChatRequestStatus) error

	SaveRoom(ctx context.Context, room *models.ChatRoom) error
	UpdateRoom(ctx context.Context, room *models.ChatRoom) error
	FindActiveRoomsByUser(ctx context.Context, userID string) ([]models.ChatRoom, error)

	SaveMessage(ctx context.Context, message *models.Message) error
	MarkMessagesRead(ctx context.Context, roomID, userID string) error
}
