package services

import (
	"context"
	"fmt"
	"time"

	"github.com/suryadevkumar/SheSecure-sub000/internal/config"
	"github.com/suryadevkumar/SheSecure-sub000/internal/models"
	"github.com/suryadevkumar/SheSecure-sub000/internal/registry"
	ws "github.com/suryadevkumar/SheSecure-sub000/internal/websocket"
	"github.com/suryadevkumar/SheSecure-sub000/pkg/logger"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SOSService is the lifecycle controller for distress broadcast sessions.
// States: Inactive -> Active -> Ended (terminal). Starting a new session
// supersedes any Active session the owner already has.
type SOSService struct {
	registry *registry.Registry[models.SOSSession]
	store    SessionStore
	bus      Bus
	cfg      config.SessionConfig
	domain   string
}

// NewSOSService creates the SOS controller with an empty registry
func NewSOSService(store SessionStore, bus Bus, cfg config.SessionConfig, domain string) *SOSService {
	return &SOSService{
		registry: registry.New[models.SOSSession](),
		store:    store,
		bus:      bus,
		cfg:      cfg,
		domain:   domain,
	}
}

// Start opens a new SOS session for the owner, superseding any prior
// Active one, and subscribes the owner to the session topic. The returned
// session carries the shareable emergency link.
func (s *SOSService) Start(ctx context.Context, ownerUserID string, lat, lng float64) (*models.SOSSession, error) {
	if ownerUserID == "" {
		return nil, Invalid("owner user id is required")
	}

	// At most one Active SOS per owner: end and tear down the old one
	if prevID, _, err := s.registry.Find(func(sess *models.SOSSession) bool {
		return sess.OwnerUserID == ownerUserID && sess.Active()
	}); err == nil {
		s.endSession(ctx, prevID, "superseded")
		s.bus.CloseRoom(prevID)
		s.registry.Remove(prevID)
	}

	now := time.Now()
	session := &models.SOSSession{
		SessionID:      primitive.NewObjectID().Hex(),
		OwnerUserID:    ownerUserID,
		CreatedAt:      now,
		LastActivityAt: now,
		LocationHistory: []models.LocationPoint{
			{Latitude: lat, Longitude: lng, Timestamp: now},
		},
	}
	session.ShareableLink = fmt.Sprintf("https://%s/sos/%s?token=%s", s.domain, session.SessionID, uuid.NewString())

	if err := s.store.SaveSOS(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist SOS session: %w", err)
	}

	if err := s.registry.Create(session.SessionID, session); err != nil {
		return nil, err
	}

	s.bus.JoinRoom(ownerUserID, session.SessionID)
	s.bus.EmitToRoom(session.SessionID, ws.EventStatusUpdate, map[string]interface{}{
		"session_id": session.SessionID,
		"status":     "active",
		"start_time": session.CreatedAt,
	})

	logger.LogSessionEvent("sos_started", string(models.KindSOS), session.SessionID, ownerUserID, nil)
	return session, nil
}

// UpdateLocation appends a point to an Active session's history and
// broadcasts the point plus the full capped path to the topic. Updates for
// an Ended or unknown session fail and must be reported to the sender only.
func (s *SOSService) UpdateLocation(ctx context.Context, sessionID string, lat, lng float64) error {
	var ended bool
	session, err := s.registry.Mutate(sessionID, func(sess *models.SOSSession) {
		if !sess.Active() {
			ended = true
			return
		}
		sess.LocationHistory = append(sess.LocationHistory, models.LocationPoint{
			Latitude:  lat,
			Longitude: lng,
			Timestamp: time.Now(),
		})
		if len(sess.LocationHistory) > s.cfg.MaxLocationHistory {
			sess.LocationHistory = sess.LocationHistory[len(sess.LocationHistory)-s.cfg.MaxLocationHistory:]
		}
		sess.LastActivityAt = time.Now()
	})
	if err != nil {
		return NotFound("SOS session not found")
	}
	if ended {
		return InvalidTransition("SOS session has ended")
	}

	point := session.LocationHistory[len(session.LocationHistory)-1]
	s.bus.EmitToRoom(sessionID, ws.EventLocationPoint, map[string]interface{}{
		"latitude":  point.Latitude,
		"longitude": point.Longitude,
		"timestamp": point.Timestamp,
	})
	s.bus.EmitToRoom(sessionID, ws.EventPathUpdate, map[string]interface{}{
		"path": session.LocationHistory,
	})
	return nil
}

// KeepAlive refreshes the session's activity timestamp. Unknown or ended
// sessions are a no-op; a keep-alive never resurrects an ended session.
func (s *SOSService) KeepAlive(sessionID string) {
	s.registry.Mutate(sessionID, func(sess *models.SOSSession) {
		if sess.Active() {
			sess.LastActivityAt = time.Now()
		}
	})
}

// End terminates a session and broadcasts the terminal status. The topic
// stays open for a grace period so late joiners still receive the final
// status before the topic is discarded. Ending an already-ended session
// is a no-op.
func (s *SOSService) End(ctx context.Context, sessionID string) error {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return NotFound("SOS session not found")
	}
	if !session.Active() {
		return nil
	}

	s.endSession(ctx, sessionID, "ended")

	time.AfterFunc(s.cfg.EndGracePeriod, func() {
		s.bus.CloseRoom(sessionID)
		s.registry.Remove(sessionID)
	})
	return nil
}

// endSession marks a session Ended, persists the final document and
// broadcasts the terminal status update. The transition happens inside a
// single Mutate so a racing end is a no-op.
func (s *SOSService) endSession(ctx context.Context, sessionID, reason string) {
	now := time.Now()
	var alreadyEnded bool
	session, err := s.registry.Mutate(sessionID, func(sess *models.SOSSession) {
		if !sess.Active() {
			alreadyEnded = true
			return
		}
		sess.EndedAt = &now
	})
	if err != nil || alreadyEnded {
		return
	}

	if err := s.store.UpdateSOS(ctx, session); err != nil {
		logger.LogError(err, "persist SOS end", map[string]interface{}{
			"session_id": sessionID,
		})
	}

	s.bus.EmitToRoom(sessionID, ws.EventStatusUpdate, map[string]interface{}{
		"session_id": sessionID,
		"status":     "inactive",
		"start_time": session.CreatedAt,
		"end_time":   now,
	})

	logger.LogSessionEvent("sos_ended", string(models.KindSOS), sessionID, session.OwnerUserID, map[string]interface{}{
		"reason": reason,
	})
}

// Join subscribes a read-only viewer (e.g. a rescuer following the
// shareable link) to the session topic and replays the current state.
func (s *SOSService) Join(ctx context.Context, viewerUserID, sessionID string) error {
	if session, err := s.registry.Get(sessionID); err == nil {
		s.bus.JoinRoom(viewerUserID, sessionID)

		if session.Active() {
			s.bus.EmitToUser(viewerUserID, ws.EventStatusUpdate, map[string]interface{}{
				"session_id": sessionID,
				"status":     "active",
				"start_time": session.CreatedAt,
			})
			s.bus.EmitToUser(viewerUserID, ws.EventPathUpdate, map[string]interface{}{
				"path": session.LocationHistory,
			})
		} else {
			s.bus.EmitToUser(viewerUserID, ws.EventStatusUpdate, map[string]interface{}{
				"session_id": sessionID,
				"status":     "inactive",
				"start_time": session.CreatedAt,
				"end_time":   session.EndedAt,
			})
		}
		return nil
	}

	// Not live: durable facts are read lazily, never eagerly hydrated
	session, err := s.store.FindSOS(ctx, sessionID)
	if err != nil {
		return NotFound("SOS session not found")
	}

	s.bus.EmitToUser(viewerUserID, ws.EventStatusUpdate, map[string]interface{}{
		"session_id": sessionID,
		"status":     "inactive",
		"start_time": session.CreatedAt,
		"end_time":   session.EndedAt,
	})
	return nil
}

// Leave unsubscribes a connection from the session topic
func (s *SOSService) Leave(viewerUserID, sessionID string) {
	s.bus.LeaveRoom(viewerUserID, sessionID)
}

// IsOwner reports whether the user owns the live session
func (s *SOSService) IsOwner(sessionID, userID string) bool {
	session, err := s.registry.Get(sessionID)
	return err == nil && session.OwnerUserID == userID
}

// ActiveSessionForUser returns the user's Active session, checking the
// registry first and falling back to the store. Used by the recovery
// query after a client lost its local handle.
func (s *SOSService) ActiveSessionForUser(ctx context.Context, userID string) (*models.SOSSession, error) {
	if _, session, err := s.registry.Find(func(sess *models.SOSSession) bool {
		return sess.OwnerUserID == userID && sess.Active()
	}); err == nil {
		return session, nil
	}

	session, err := s.store.FindActiveSOSByUser(ctx, userID)
	if err != nil {
		return nil, NotFound("no active SOS session")
	}
	return session, nil
}

// Sweep ends Active sessions whose last activity is older than the TTL.
// From the client's perspective this is indistinguishable from an
// explicit end.
func (s *SOSService) Sweep(ctx context.Context) int {
	cutoff := time.Now().Add(-s.cfg.TTL)
	swept := 0

	for _, sessionID := range s.registry.Keys() {
		session, err := s.registry.Get(sessionID)
		if err != nil {
			continue
		}
		if session.Active() && session.LastActivityAt.Before(cutoff) {
			if err := s.End(ctx, sessionID); err == nil {
				swept++
			}
		}
	}
	return swept
}
