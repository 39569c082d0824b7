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

// LocationService is the lifecycle controller for live-location share
// sessions. Same supersede-on-start and capped-history semantics as SOS,
// but keyed in a disjoint registry so a user may run one of each kind.
type LocationService struct {
	registry *registry.Registry[models.LocationShareSession]
	store    SessionStore
	bus      Bus
	cfg      config.SessionConfig
	domain   string
}

// NewLocationService creates the location-share controller
func NewLocationService(store SessionStore, bus Bus, cfg config.SessionConfig, domain string) *LocationService {
	return &LocationService{
		registry: registry.New[models.LocationShareSession](),
		store:    store,
		bus:      bus,
		cfg:      cfg,
		domain:   domain,
	}
}

// Start opens a new share session, superseding any Active one the owner
// already has.
func (s *LocationService) Start(ctx context.Context, ownerUserID string, lat, lng float64) (*models.LocationShareSession, error) {
	if ownerUserID == "" {
		return nil, Invalid("owner user id is required")
	}

	if prevID, _, err := s.registry.Find(func(sess *models.LocationShareSession) bool {
		return sess.OwnerUserID == ownerUserID && sess.Active()
	}); err == nil {
		s.endShare(ctx, prevID, "superseded")
		s.bus.CloseRoom(prevID)
		s.registry.Remove(prevID)
	}

	now := time.Now()
	point := models.LocationPoint{Latitude: lat, Longitude: lng, Timestamp: now}
	share := &models.LocationShareSession{
		ShareID:           primitive.NewObjectID().Hex(),
		OwnerUserID:       ownerUserID,
		CreatedAt:         now,
		LastActivityAt:    now,
		LastKnownPosition: &point,
		LocationHistory:   []models.LocationPoint{point},
	}
	share.ShareableLink = fmt.Sprintf("https://%s/track/%s?token=%s", s.domain, share.ShareID, uuid.NewString())

	if err := s.store.SaveShare(ctx, share); err != nil {
		return nil, fmt.Errorf("failed to persist location share: %w", err)
	}

	if err := s.registry.Create(share.ShareID, share); err != nil {
		return nil, err
	}

	s.bus.JoinRoom(ownerUserID, share.ShareID)
	s.bus.EmitToRoom(share.ShareID, ws.EventStatusUpdate, map[string]interface{}{
		"session_id": share.ShareID,
		"status":     "active",
		"start_time": share.CreatedAt,
	})

	logger.LogSessionEvent("share_started", string(models.KindLocationShare), share.ShareID, ownerUserID, nil)
	return share, nil
}

// Join subscribes a connection to the share topic and replays current state
func (s *LocationService) Join(ctx context.Context, viewerUserID, shareID string) error {
	share, err := s.registry.Get(shareID)
	if err != nil {
		return NotFound("location share not found")
	}

	s.bus.JoinRoom(viewerUserID, shareID)

	if share.Active() {
		s.bus.EmitToUser(viewerUserID, ws.EventStatusUpdate, map[string]interface{}{
			"session_id": shareID,
			"status":     "active",
			"start_time": share.CreatedAt,
		})
		s.bus.EmitToUser(viewerUserID, ws.EventPathUpdate, map[string]interface{}{
			"path": share.LocationHistory,
		})
	} else {
		s.bus.EmitToUser(viewerUserID, ws.EventStatusUpdate, map[string]interface{}{
			"session_id": shareID,
			"status":     "inactive",
			"start_time": share.CreatedAt,
			"end_time":   share.EndedAt,
		})
	}
	return nil
}

// Update appends a point to an Active share and broadcasts it
func (s *LocationService) Update(ctx context.Context, shareID string, lat, lng float64) error {
	var ended bool
	share, err := s.registry.Mutate(shareID, func(sess *models.LocationShareSession) {
		if !sess.Active() {
			ended = true
			return
		}
		point := models.LocationPoint{Latitude: lat, Longitude: lng, Timestamp: time.Now()}
		sess.LocationHistory = append(sess.LocationHistory, point)
		if len(sess.LocationHistory) > s.cfg.MaxLocationHistory {
			sess.LocationHistory = sess.LocationHistory[len(sess.LocationHistory)-s.cfg.MaxLocationHistory:]
		}
		sess.LastKnownPosition = &point
		sess.LastActivityAt = point.Timestamp
	})
	if err != nil {
		return NotFound("location share not found")
	}
	if ended {
		return InvalidTransition("location share has ended")
	}

	point := share.LastKnownPosition
	s.bus.EmitToRoom(shareID, ws.EventLocationPoint, map[string]interface{}{
		"latitude":  point.Latitude,
		"longitude": point.Longitude,
		"timestamp": point.Timestamp,
	})
	s.bus.EmitToRoom(shareID, ws.EventPathUpdate, map[string]interface{}{
		"path": share.LocationHistory,
	})
	return nil
}

// KeepAlive refreshes the share's activity timestamp; no-op when unknown
// or already ended.
func (s *LocationService) KeepAlive(shareID string) {
	s.registry.Mutate(shareID, func(sess *models.LocationShareSession) {
		if sess.Active() {
			sess.LastActivityAt = time.Now()
		}
	})
}

// Leave unsubscribes a connection from the share topic
func (s *LocationService) Leave(viewerUserID, shareID string) {
	s.bus.LeaveRoom(viewerUserID, shareID)
}

// IsOwner reports whether the user owns the live share
func (s *LocationService) IsOwner(shareID, userID string) bool {
	share, err := s.registry.Get(shareID)
	return err == nil && share.OwnerUserID == userID
}

// End terminates a share session; idempotent on an already-ended share
func (s *LocationService) End(ctx context.Context, shareID string) error {
	share, err := s.registry.Get(shareID)
	if err != nil {
		return NotFound("location share not found")
	}
	if !share.Active() {
		return nil
	}

	s.endShare(ctx, shareID, "ended")

	time.AfterFunc(s.cfg.EndGracePeriod, func() {
		s.bus.CloseRoom(shareID)
		s.registry.Remove(shareID)
	})
	return nil
}

// endShare marks a share Ended inside a single Mutate, persists the final
// document and broadcasts the terminal status. A racing end is a no-op.
func (s *LocationService) endShare(ctx context.Context, shareID, reason string) {
	now := time.Now()
	var alreadyEnded bool
	share, err := s.registry.Mutate(shareID, func(sess *models.LocationShareSession) {
		if !sess.Active() {
			alreadyEnded = true
			return
		}
		sess.EndedAt = &now
	})
	if err != nil || alreadyEnded {
		return
	}

	if err := s.store.UpdateShare(ctx, share); err != nil {
		logger.LogError(err, "persist share end", map[string]interface{}{
			"share_id": shareID,
		})
	}

	s.bus.EmitToRoom(shareID, ws.EventStatusUpdate, map[string]interface{}{
		"session_id": shareID,
		"status":     "inactive",
		"start_time": share.CreatedAt,
		"end_time":   now,
	})

	logger.LogSessionEvent("share_ended", string(models.KindLocationShare), shareID, share.OwnerUserID, map[string]interface{}{
		"reason": reason,
	})
}

// ActiveShareForUser returns the user's Active share for recovery queries
func (s *LocationService) ActiveShareForUser(ctx context.Context, userID string) (*models.LocationShareSession, error) {
	if _, share, err := s.registry.Find(func(sess *models.LocationShareSession) bool {
		return sess.OwnerUserID == userID && sess.Active()
	}); err == nil {
		return share, nil
	}

	share, err := s.store.FindActiveShareByUser(ctx, userID)
	if err != nil {
		return nil, NotFound("no active location share")
	}
	return share, nil
}

// Sweep ends Active shares whose last activity is older than the TTL
func (s *LocationService) Sweep(ctx context.Context) int {
	cutoff := time.Now().Add(-s.cfg.TTL)
	swept := 0

	for _, shareID := range s.registry.Keys() {
		share, err := s.registry.Get(shareID)
		if err != nil {
			continue
		}
		if share.Active() && share.LastActivityAt.Before(cutoff) {
			if err := s.End(ctx, shareID); err == nil {
				swept++
			}
		}
	}
	return swept
}
