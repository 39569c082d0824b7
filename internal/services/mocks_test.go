package services

import (
	"context"
	"sync"

	"github.com/suryadevkumar/SheSecure-sub000/internal/models"
	ws "github.com/suryadevkumar/SheSecure-sub000/internal/websocket"
)

// emission records one broadcast observed by the fake bus
type emission struct {
	target  string // room, roomExcept, user, counselors
	id      string
	exclude string
	event   ws.EventType
	data    map[string]interface{}
}

type membership struct {
	userID string
	roomID string
}

// fakeBus records transport activity for assertions
type fakeBus struct {
	mu        sync.Mutex
	joins     []membership
	leaves    []membership
	closed    []string
	emissions []emission
}

func newFakeBus() *fakeBus {
	return &fakeBus{}
}

func (b *fakeBus) JoinRoom(userID, roomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.joins = append(b.joins, membership{userID, roomID})
}

func (b *fakeBus) LeaveRoom(userID, roomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.leaves = append(b.leaves, membership{userID, roomID})
}

func (b *fakeBus) CloseRoom(roomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = append(b.closed, roomID)
}

func (b *fakeBus) EmitToRoom(roomID string, event ws.EventType, data map[string]interface{}) {
	b.record(emission{target: "room", id: roomID, event: event, data: data})
}

func (b *fakeBus) EmitToRoomExcept(roomID, excludeUserID string, event ws.EventType, data map[string]interface{}) {
	b.record(emission{target: "roomExcept", id: roomID, exclude: excludeUserID, event: event, data: data})
}

func (b *fakeBus) EmitToUser(userID string, event ws.EventType, data map[string]interface{}) {
	b.record(emission{target: "user", id: userID, event: event, data: data})
}

func (b *fakeBus) EmitToCounselors(event ws.EventType, data map[string]interface{}) {
	b.record(emission{target: "counselors", event: event, data: data})
}

func (b *fakeBus) record(e emission) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emissions = append(b.emissions, e)
}

// roomEvents returns the events broadcast to a room, in order
func (b *fakeBus) roomEvents(roomID string) []ws.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()

	var events []ws.EventType
	for _, e := range b.emissions {
		if (e.target == "room" || e.target == "roomExcept") && e.id == roomID {
			events = append(events, e.event)
		}
	}
	return events
}

// userEvents returns the events sent to a user, in order
func (b *fakeBus) userEvents(userID string) []ws.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()

	var events []ws.EventType
	for _, e := range b.emissions {
		if e.target == "user" && e.id == userID {
			events = append(events, e.event)
		}
	}
	return events
}

// counselorEvents returns the events fanned out to counselors
func (b *fakeBus) counselorEvents() []ws.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()

	var events []ws.EventType
	for _, e := range b.emissions {
		if e.target == "counselors" {
			events = append(events, e.event)
		}
	}
	return events
}

// lastUserEmission returns the most recent emission of event to userID
func (b *fakeBus) lastUserEmission(userID string, event ws.EventType) (emission, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := len(b.emissions) - 1; i >= 0; i-- {
		e := b.emissions[i]
		if e.target == "user" && e.id == userID && e.event == event {
			return e, true
		}
	}
	return emission{}, false
}

// lastRoomEmission returns the most recent emission of event to roomID
func (b *fakeBus) lastRoomEmission(roomID string, event ws.EventType) (emission, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := len(b.emissions) - 1; i >= 0; i-- {
		e := b.emissions[i]
		if (e.target == "room" || e.target == "roomExcept") && e.id == roomID && e.event == event {
			return e, true
		}
	}
	return emission{}, false
}

func (b *fakeBus) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emissions = nil
	b.joins = nil
	b.leaves = nil
	b.closed = nil
}

// fakeSessionStore is an in-memory SessionStore
type fakeSessionStore struct {
	mu     sync.Mutex
	sos    map[string]*models.SOSSession
	shares map[string]*models.LocationShareSession
	errOn  string // method name that should fail
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{
		sos:    make(map[string]*models.SOSSession),
		shares: make(map[string]*models.LocationShareSession),
	}
}

func (s *fakeSessionStore) SaveSOS(_ context.Context, session *models.SOSSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errOn == "SaveSOS" {
		return ErrNotFound
	}
	copied := *session
	s.sos[session.SessionID] = &copied
	return nil
}

func (s *fakeSessionStore) UpdateSOS(_ context.Context, session *models.SOSSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.sos[session.SessionID] = &copied
	return nil
}

func (s *fakeSessionStore) FindSOS(_ context.Context, sessionID string) (*models.SOSSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sos[sessionID]; ok {
		return session, nil
	}
	return nil, ErrNotFound
}

func (s *fakeSessionStore) FindActiveSOSByUser(_ context.Context, userID string) (*models.SOSSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sos {
		if session.OwnerUserID == userID && session.Active() {
			return session, nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeSessionStore) SaveShare(_ context.Context, share *models.LocationShareSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *share
	s.shares[share.ShareID] = &copied
	return nil
}

func (s *fakeSessionStore) UpdateShare(_ context.Context, share *models.LocationShareSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *share
	s.shares[share.ShareID] = &copied
	return nil
}

func (s *fakeSessionStore) FindShare(_ context.Context, shareID string) (*models.LocationShareSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if share, ok := s.shares[shareID]; ok {
		return share, nil
	}
	return nil, ErrNotFound
}

func (s *fakeSessionStore) FindActiveShareByUser(_ context.Context, userID string) (*models.LocationShareSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, share := range s.shares {
		if share.OwnerUserID == userID && share.Active() {
			return share, nil
		}
	}
	return nil, ErrNotFound
}

// fakeChatStore is an in-memory ChatStore
type fakeChatStore struct {
	mu       sync.Mutex
	requests map[string]*models.ChatRequest
	rooms    map[string]*models.ChatRoom
	messages []models.Message
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{
		requests: make(map[string]*models.ChatRequest),
		rooms:    make(map[string]*models.ChatRoom),
	}
}

func (s *fakeChatStore) SaveRequest(_ context.Context, request *models.ChatRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *request
	s.requests[request.RequestID] = &copied
	return nil
}

func (s *fakeChatStore) UpdateRequestStatus(_ context.Context, requestID string, status models.ChatRequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if request, ok := s.requests[requestID]; ok {
		request.Status = status
	}
	return nil
}

func (s *fakeChatStore) SaveRoom(_ context.Context, room *models.ChatRoom) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *room
	s.rooms[room.RoomID] = &copied
	return nil
}

func (s *fakeChatStore) UpdateRoom(_ context.Context, room *models.ChatRoom) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *room
	s.rooms[room.RoomID] = &copied
	return nil
}

func (s *fakeChatStore) FindActiveRoomsByUser(_ context.Context, userID string) ([]models.ChatRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rooms []models.ChatRoom
	for _, room := range s.rooms {
		if room.Status == models.RoomActive && room.Participant(userID) {
			rooms = append(rooms, *room)
		}
	}
	return rooms, nil
}

func (s *fakeChatStore) SaveMessage(_ context.Context, message *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, *message)
	return nil
}

func (s *fakeChatStore) MarkMessagesRead(_ context.Context, roomID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].RoomID == roomID && s.messages[i].SenderID != userID {
			s.messages[i].MarkRead(userID)
		}
	}
	return nil
}

// systemMessages counts persisted system messages for a room
func (s *fakeChatStore) systemMessages(roomID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, message := range s.messages {
		if message.RoomID == roomID && message.IsSystem {
			count++
		}
	}
	return count
}
