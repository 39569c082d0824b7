package services

import (
	"context"
	"fmt"
	"time"

	"github.com/suryadevkumar/SheSecure-sub000/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const storeTimeout = 10 * time.Second

// MongoStore implements SessionStore and ChatStore on MongoDB
type MongoStore struct {
	sosSessions    *mongo.Collection
	locationShares *mongo.Collection
	chatRequests   *mongo.Collection
	chatRooms      *mongo.Collection
	messages       *mongo.Collection
}

// NewMongoStore creates a store bound to the application database
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		sosSessions:    db.Collection("sos_sessions"),
		locationShares: db.Collection("location_shares"),
		chatRequests:   db.Collection("chat_requests"),
		chatRooms:      db.Collection("chat_rooms"),
		messages:       db.Collection("messages"),
	}
}

// SOS sessions

func (s *MongoStore) SaveSOS(ctx context.Context, session *models.SOSSession) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	_, err := s.sosSessions.InsertOne(ctx, session)
	if err != nil {
		return fmt.Errorf("failed to save SOS session: %w", err)
	}
	return nil
}

func (s *MongoStore) UpdateSOS(ctx context.Context, session *models.SOSSession) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"ended_at":         session.EndedAt,
			"last_activity_at": session.LastActivityAt,
			"location_history": session.LocationHistory,
		},
	}

	_, err := s.sosSessions.UpdateOne(ctx, bson.M{"session_id": session.SessionID}, update)
	if err != nil {
		return fmt.Errorf("failed to update SOS session: %w", err)
	}
	return nil
}

func (s *MongoStore) FindSOS(ctx context.Context, sessionID string) (*models.SOSSession, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	var session models.SOSSession
	err := s.sosSessions.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find SOS session: %w", err)
	}
	return &session, nil
}

func (s *MongoStore) FindActiveSOSByUser(ctx context.Context, userID string) (*models.SOSSession, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	var session models.SOSSession
	err := s.sosSessions.FindOne(ctx, bson.M{
		"owner_user_id": userID,
		"ended_at":      nil,
	}).Decode(&session)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find active SOS session: %w", err)
	}
	return &session, nil
}

// Location shares

func (s *MongoStore) SaveShare(ctx context.Context, share *models.LocationShareSession) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	_, err := s.locationShares.InsertOne(ctx, share)
	if err != nil {
		return fmt.Errorf("failed to save location share: %w", err)
	}
	return nil
}

func (s *MongoStore) UpdateShare(ctx context.Context, share *models.LocationShareSession) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"ended_at":            share.EndedAt,
			"last_activity_at":    share.LastActivityAt,
			"last_known_position": share.LastKnownPosition,
			"location_history":    share.LocationHistory,
		},
	}

	_, err := s.locationShares.UpdateOne(ctx, bson.M{"share_id": share.ShareID}, update)
	if err != nil {
		return fmt.Errorf("failed to update location share: %w", err)
	}
	return nil
}

func (s *MongoStore) FindShare(ctx context.Context, shareID string) (*models.LocationShareSession, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	var share models.LocationShareSession
	err := s.locationShares.FindOne(ctx, bson.M{"share_id": shareID}).Decode(&share)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find location share: %w", err)
	}
	return &share, nil
}

func (s *MongoStore) FindActiveShareByUser(ctx context.Context, userID string) (*models.LocationShareSession, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	var share models.LocationShareSession
	err := s.locationShares.FindOne(ctx, bson.M{
		"owner_user_id": userID,
		"ended_at":      nil,
	}).Decode(&share)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find active location share: %w", err)
	}
	return &share, nil
}

// Chat requests

func (s *MongoStore) SaveRequest(ctx context.Context, request *models.ChatRequest) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	_, err := s.chatRequests.InsertOne(ctx, request)
	if err != nil {
		return fmt.Errorf("failed to save chat request: %w", err)
	}
	return nil
}

func (s *MongoStore) UpdateRequestStatus(ctx context.Context, requestID string, status models.ChatRequestStatus) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	_, err := s.chatRequests.UpdateOne(ctx,
		bson.M{"request_id": requestID},
		bson.M{"$set": bson.M{"status": status}},
	)
	if err != nil {
		return fmt.Errorf("failed to update chat request: %w", err)
	}
	return nil
}

// Chat rooms

func (s *MongoStore) SaveRoom(ctx context.Context, room *models.ChatRoom) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	_, err := s.chatRooms.InsertOne(ctx, room)
	if err != nil {
		return fmt.Errorf("failed to save chat room: %w", err)
	}
	return nil
}

func (s *MongoStore) UpdateRoom(ctx context.Context, room *models.ChatRoom) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"status":              room.Status,
			"pending_end_request": room.PendingEndRequest,
			"ended_at":            room.EndedAt,
		},
	}

	_, err := s.chatRooms.UpdateOne(ctx, bson.M{"room_id": room.RoomID}, update)
	if err != nil {
		return fmt.Errorf("failed to update chat room: %w", err)
	}
	return nil
}

func (s *MongoStore) FindActiveRoomsByUser(ctx context.Context, userID string) ([]models.ChatRoom, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	filter := bson.M{
		"status": models.RoomActive,
		"$or": []bson.M{
			{"user_id": userID},
			{"counselor_id": userID},
		},
	}

	cursor, err := s.chatRooms.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find active rooms: %w", err)
	}
	defer cursor.Close(ctx)

	var rooms []models.ChatRoom
	if err = cursor.All(ctx, &rooms); err != nil {
		return nil, fmt.Errorf("failed to decode rooms: %w", err)
	}
	return rooms, nil
}

// Messages

func (s *MongoStore) SaveMessage(ctx context.Context, message *models.Message) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	_, err := s.messages.InsertOne(ctx, message)
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

func (s *MongoStore) MarkMessagesRead(ctx context.Context, roomID, userID string) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	// $addToSet keeps readBy accretion idempotent
	_, err := s.messages.UpdateMany(ctx,
		bson.M{"room_id": roomID, "sender_id": bson.M{"$ne": userID}},
		bson.M{"$addToSet": bson.M{"read_by": userID}},
	)
	if err != nil {
		return fmt.Errorf("failed to mark messages read: %w", err)
	}
	return nil
}
