package services

import (
	"context"
	"time"

	"github.com/suryadevkumar/SheSecure-sub000/internal/models"
	"github.com/suryadevkumar/SheSecure-sub000/internal/presence"
	"github.com/suryadevkumar/SheSecure-sub000/internal/registry"
	ws "github.com/suryadevkumar/SheSecure-sub000/internal/websocket"
	"github.com/suryadevkumar/SheSecure-sub000/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChatService is the lifecycle controller for counselor chats: request
// intake, room creation on accept, message delivery, and the negotiated
// two-party end protocol. Only a counselor may initiate an end; the user
// must consent or decline.
type ChatService struct {
	requests *registry.Registry[models.ChatRequest]
	rooms    *registry.Registry[models.ChatRoom]
	store    ChatStore
	bus      Bus
	tracker  *presence.Tracker
}

// NewChatService creates the chat controller with empty registries
func NewChatService(store ChatStore, bus Bus, tracker *presence.Tracker) *ChatService {
	return &ChatService{
		requests: registry.New[models.ChatRequest](),
		rooms:    registry.New[models.ChatRoom](),
		store:    store,
		bus:      bus,
		tracker:  tracker,
	}
}

// CreateRequest inserts a Pending request, fans it out to all connected
// counselors and echoes it to the requester.
func (s *ChatService) CreateRequest(ctx context.Context, userID, problemType, brief string) (*models.ChatRequest, error) {
	if userID == "" || problemType == "" {
		return nil, Invalid("user id and problem type are required")
	}

	request := &models.ChatRequest{
		RequestID:   primitive.NewObjectID().Hex(),
		UserID:      userID,
		ProblemType: problemType,
		Brief:       brief,
		Status:      models.RequestPending,
		CreatedAt:   time.Now(),
	}

	if err := s.store.SaveRequest(ctx, request); err != nil {
		logger.LogError(err, "persist chat request", map[string]interface{}{
			"request_id": request.RequestID,
		})
	}

	if err := s.requests.Create(request.RequestID, request); err != nil {
		return nil, err
	}

	payload := map[string]interface{}{"request": request}
	s.bus.EmitToCounselors(ws.EventNewChatRequest, payload)
	s.bus.EmitToUser(userID, ws.EventNewChatRequest, payload)

	logger.LogChatEvent("chat_request_created", "", userID, map[string]interface{}{
		"request_id":   request.RequestID,
		"problem_type": problemType,
	})
	return request, nil
}

// AcceptRequest flips a Pending request to Accepted, creates the room and
// subscribes both parties to its topic. A request that is no longer
// Pending cannot be accepted again.
func (s *ChatService) AcceptRequest(ctx context.Context, counselorID, requestID string) (*models.ChatRoom, error) {
	if counselorID == "" {
		return nil, Invalid("counselor id is required")
	}

	var notPending bool
	request, err := s.requests.Mutate(requestID, func(req *models.ChatRequest) {
		if req.Status != models.RequestPending {
			notPending = true
			return
		}
		req.Status = models.RequestAccepted
	})
	if err != nil {
		return nil, NotFound("chat request not found")
	}
	if notPending {
		return nil, InvalidTransition("chat request is not pending")
	}

	if err := s.store.UpdateRequestStatus(ctx, requestID, models.RequestAccepted); err != nil {
		logger.LogError(err, "persist request accept", map[string]interface{}{
			"request_id": requestID,
		})
	}

	room := &models.ChatRoom{
		RoomID:      primitive.NewObjectID().Hex(),
		RequestID:   requestID,
		UserID:      request.UserID,
		CounselorID: counselorID,
		Status:      models.RoomActive,
		CreatedAt:   time.Now(),
	}

	if err := s.store.SaveRoom(ctx, room); err != nil {
		logger.LogError(err, "persist chat room", map[string]interface{}{
			"room_id": room.RoomID,
		})
	}

	if err := s.rooms.Create(room.RoomID, room); err != nil {
		return nil, err
	}

	s.bus.JoinRoom(room.UserID, room.RoomID)
	s.bus.JoinRoom(counselorID, room.RoomID)

	s.bus.EmitToUser(room.UserID, ws.EventChatRequestAccepted, map[string]interface{}{"room": room})
	s.bus.EmitToUser(counselorID, ws.EventChatRoomCreated, map[string]interface{}{"room": room})

	logger.LogChatEvent("chat_request_accepted", room.RoomID, counselorID, map[string]interface{}{
		"request_id": requestID,
		"user_id":    room.UserID,
	})
	return room, nil
}

// SendMessage persists a message, broadcasts it to the room topic and
// acknowledges the sender. A Completed room rejects messages. Recipients
// not currently viewing the room accrue unread counts.
func (s *ChatService) SendMessage(ctx context.Context, roomID, senderID, content string) (*models.Message, error) {
	if content == "" {
		return nil, Invalid("message content is required")
	}

	room, err := s.rooms.Get(roomID)
	if err != nil {
		return nil, NotFound("chat room not found")
	}
	if !room.Participant(senderID) {
		return nil, Unauthorized("sender is not a room participant")
	}
	if !room.Active() {
		return nil, InvalidTransition("chat room has ended")
	}

	// Sending a message is a terminal event for the sender's typing state
	s.tracker.ClearTyping(roomID, senderID)

	message := s.persistMessage(ctx, roomID, senderID, content, false)

	s.bus.EmitToRoom(roomID, ws.EventNewMessage, map[string]interface{}{"message": message})
	s.bus.EmitToUser(senderID, ws.EventMessageSent, map[string]interface{}{"message": message})

	recipient := room.Other(senderID)
	if count := s.tracker.IncrementUnread(recipient, roomID); count > 0 {
		s.bus.EmitToUser(recipient, ws.EventUnreadCount, map[string]interface{}{
			"room_id": roomID,
			"count":   count,
		})
	}

	logger.LogChatEvent("message_sent", roomID, senderID, map[string]interface{}{
		"message_id": message.MessageID,
	})
	return message, nil
}

// RequestEnd starts the end negotiation. Counselor-only. Re-requesting
// while a request is already pending is accepted idempotently, producing
// no duplicate system message.
func (s *ChatService) RequestEnd(ctx context.Context, roomID, actorID string) error {
	var notCounselor, ended, pending bool
	room, err := s.rooms.Mutate(roomID, func(r *models.ChatRoom) {
		switch {
		case actorID != r.CounselorID:
			notCounselor = true
		case !r.Active():
			ended = true
		case r.PendingEndRequest:
			pending = true
		default:
			r.PendingEndRequest = true
		}
	})
	if err != nil {
		return NotFound("chat room not found")
	}
	if notCounselor {
		return Unauthorized("only the counselor may request to end the chat")
	}
	if ended {
		return InvalidTransition("chat room has ended")
	}
	if pending {
		// double-click before the first request round-trips; no duplicate
		// system message
		return nil
	}

	if err := s.store.UpdateRoom(ctx, room); err != nil {
		logger.LogError(err, "persist end request", map[string]interface{}{
			"room_id": roomID,
		})
	}

	system := s.persistMessage(ctx, roomID, actorID, "The counselor has requested to end this chat.", true)
	s.bus.EmitToRoom(roomID, ws.EventNewMessage, map[string]interface{}{"message": system})
	s.bus.EmitToUser(room.UserID, ws.EventEndChatRequest, map[string]interface{}{"room_id": roomID})

	logger.LogChatEvent("end_chat_requested", roomID, actorID, nil)
	return nil
}

// RespondEnd resolves a pending end negotiation. User-only. Acceptance
// completes the room; declining clears the pending flag and leaves the
// room Active, free for the counselor to re-request.
func (s *ChatService) RespondEnd(ctx context.Context, roomID, actorID string, accepted bool) error {
	now := time.Now()
	var notUser, ended, noRequest bool
	room, err := s.rooms.Mutate(roomID, func(r *models.ChatRoom) {
		switch {
		case actorID != r.UserID:
			notUser = true
		case !r.Active():
			ended = true
		case !r.PendingEndRequest:
			noRequest = true
		case accepted:
			r.Status = models.RoomCompleted
			r.EndedAt = &now
			r.PendingEndRequest = false
		default:
			r.PendingEndRequest = false
		}
	})
	if err != nil {
		return NotFound("chat room not found")
	}
	if notUser {
		return Unauthorized("only the user may respond to an end request")
	}
	if ended {
		return InvalidTransition("chat room has ended")
	}
	if noRequest {
		return InvalidTransition("no end request is pending")
	}

	if accepted {
		if err := s.store.UpdateRoom(ctx, room); err != nil {
			logger.LogError(err, "persist chat end", map[string]interface{}{
				"room_id": roomID,
			})
		}

		s.tracker.ClearTyping(roomID, "")

		system := s.persistMessage(ctx, roomID, actorID, "This chat has ended.", true)
		s.bus.EmitToRoom(roomID, ws.EventNewMessage, map[string]interface{}{"message": system})
		s.bus.EmitToRoom(roomID, ws.EventChatEnded, map[string]interface{}{
			"room_id":  roomID,
			"ended_at": now,
		})
		s.bus.CloseRoom(roomID)

		logger.LogChatEvent("chat_ended", roomID, actorID, nil)
		return nil
	}

	if err := s.store.UpdateRoom(ctx, room); err != nil {
		logger.LogError(err, "persist end decline", map[string]interface{}{
			"room_id": roomID,
		})
	}

	system := s.persistMessage(ctx, roomID, actorID, "The request to end this chat was declined.", true)
	s.bus.EmitToRoom(roomID, ws.EventNewMessage, map[string]interface{}{"message": system})
	s.bus.EmitToRoom(roomID, ws.EventEndChatDeclined, map[string]interface{}{"room_id": roomID})

	logger.LogChatEvent("end_chat_declined", roomID, actorID, nil)
	return nil
}

// MarkRead records that a user has read the room's messages and notifies
// the other participant. Idempotent; read receipts only accrete.
func (s *ChatService) MarkRead(ctx context.Context, roomID, userID string) error {
	room, err := s.rooms.Get(roomID)
	if err != nil {
		return NotFound("chat room not found")
	}
	if !room.Participant(userID) {
		return Unauthorized("reader is not a room participant")
	}

	if err := s.store.MarkMessagesRead(ctx, roomID, userID); err != nil {
		logger.LogError(err, "persist read receipts", map[string]interface{}{
			"room_id": roomID,
		})
	}

	s.bus.EmitToRoomExcept(roomID, userID, ws.EventMessagesRead, map[string]interface{}{
		"room_id": roomID,
		"user_id": userID,
	})
	return nil
}

// MarkRoomActive records the room a user is viewing, resetting its unread
// counter.
func (s *ChatService) MarkRoomActive(userID, roomID string) {
	s.tracker.SetActiveRoom(userID, roomID)
}

// Typing relays fire-and-forget typing indicators to the other room
// members. Indicators are never persisted.
func (s *ChatService) Typing(roomID, userID string, typing bool) error {
	room, err := s.rooms.Get(roomID)
	if err != nil {
		return NotFound("chat room not found")
	}
	if !room.Participant(userID) {
		return Unauthorized("typist is not a room participant")
	}

	event := ws.EventUserStoppedTyping
	if typing {
		s.tracker.SetTyping(roomID, userID)
		event = ws.EventUserTyping
	} else {
		s.tracker.ClearTyping(roomID, userID)
	}

	s.bus.EmitToRoomExcept(roomID, userID, event, map[string]interface{}{
		"room_id": roomID,
		"user_id": userID,
	})
	return nil
}

// PendingRequests returns the requests still awaiting a counselor
func (s *ChatService) PendingRequests() []models.ChatRequest {
	var pending []models.ChatRequest
	for _, requestID := range s.requests.Keys() {
		request, err := s.requests.Get(requestID)
		if err != nil {
			continue
		}
		if request.Status == models.RequestPending {
			pending = append(pending, *request)
		}
	}
	return pending
}

// ActiveRoomsForUser returns the rooms a reconnecting participant should
// re-join, checking the registry first and the store as fallback.
func (s *ChatService) ActiveRoomsForUser(ctx context.Context, userID string) []models.ChatRoom {
	var active []models.ChatRoom
	for _, roomID := range s.rooms.Keys() {
		room, err := s.rooms.Get(roomID)
		if err != nil {
			continue
		}
		if room.Active() && room.Participant(userID) {
			active = append(active, *room)
		}
	}
	if len(active) > 0 {
		return active
	}

	stored, err := s.store.FindActiveRoomsByUser(ctx, userID)
	if err != nil {
		return nil
	}
	return stored
}

// Resubscribe re-joins a reconnecting user to all their active rooms
func (s *ChatService) Resubscribe(ctx context.Context, userID string) {
	for _, room := range s.ActiveRoomsForUser(ctx, userID) {
		s.bus.JoinRoom(userID, room.RoomID)
	}
}

func (s *ChatService) persistMessage(ctx context.Context, roomID, senderID, content string, isSystem bool) *models.Message {
	message := &models.Message{
		MessageID: primitive.NewObjectID().Hex(),
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		IsSystem:  isSystem,
		CreatedAt: time.Now(),
		ReadBy:    []string{senderID},
	}

	if err := s.store.SaveMessage(ctx, message); err != nil {
		logger.LogError(err, "persist message", map[string]interface{}{
			"room_id":    roomID,
			"message_id": message.MessageID,
		})
	}
	return message
}
