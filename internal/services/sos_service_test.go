package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suryadevkumar/SheSecure-sub000/internal/config"
	"github.com/suryadevkumar/SheSecure-sub000/internal/models"
	ws "github.com/suryadevkumar/SheSecure-sub000/internal/websocket"
)

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		KeepAliveInterval:  30 * time.Second,
		TTL:                90 * time.Second,
		SweepInterval:      60 * time.Second,
		MaxLocationHistory: 5,
		EndGracePeriod:     10 * time.Millisecond,
	}
}

func newTestSOSService() (*SOSService, *fakeBus, *fakeSessionStore) {
	bus := newFakeBus()
	store := newFakeSessionStore()
	return NewSOSService(store, bus, testSessionConfig(), "shesecure.app"), bus, store
}

func TestSOSStart(t *testing.T) {
	svc, bus, store := newTestSOSService()

	session, err := svc.Start(context.Background(), "user-1", 28.61, 77.20)
	require.NoError(t, err)

	assert.NotEmpty(t, session.SessionID)
	assert.Contains(t, session.ShareableLink, "https://shesecure.app/sos/"+session.SessionID)
	assert.True(t, session.Active())
	require.Len(t, session.LocationHistory, 1)
	assert.Equal(t, 28.61, session.LocationHistory[0].Latitude)

	// owner is subscribed and the topic saw the active status
	require.Len(t, bus.joins, 1)
	assert.Equal(t, membership{"user-1", session.SessionID}, bus.joins[0])
	assert.Equal(t, []ws.EventType{ws.EventStatusUpdate}, bus.roomEvents(session.SessionID))

	// persisted before going live
	_, err = store.FindSOS(context.Background(), session.SessionID)
	assert.NoError(t, err)
}

func TestSOSStartRequiresOwner(t *testing.T) {
	svc, _, _ := newTestSOSService()

	_, err := svc.Start(context.Background(), "", 0, 0)
	require.Error(t, err)
	assert.Equal(t, ws.CodeValidationError, ErrorCode(err))
}

func TestSOSStartSupersedesPrevious(t *testing.T) {
	svc, bus, _ := newTestSOSService()
	ctx := context.Background()

	first, err := svc.Start(ctx, "user-1", 1, 1)
	require.NoError(t, err)

	second, err := svc.Start(ctx, "user-1", 2, 2)
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)

	// the superseded session's topic got the terminal status and closed
	events := bus.roomEvents(first.SessionID)
	require.NotEmpty(t, events)
	assert.Equal(t, ws.EventStatusUpdate, events[len(events)-1])
	last, ok := bus.lastRoomEmission(first.SessionID, ws.EventStatusUpdate)
	require.True(t, ok)
	assert.Equal(t, "inactive", last.data["status"])
	assert.Contains(t, bus.closed, first.SessionID)

	// updates to the superseded session no longer apply
	err = svc.UpdateLocation(ctx, first.SessionID, 3, 3)
	require.Error(t, err)
	assert.Equal(t, ws.CodeSessionNotFound, ErrorCode(err))

	// the new session is the one the recovery query finds
	recovered, err := svc.ActiveSessionForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, second.SessionID, recovered.SessionID)
}

func TestSOSUpdateLocation(t *testing.T) {
	svc, bus, _ := newTestSOSService()
	ctx := context.Background()

	session, err := svc.Start(ctx, "user-1", 1, 1)
	require.NoError(t, err)
	bus.reset()

	require.NoError(t, svc.UpdateLocation(ctx, session.SessionID, 2, 2))

	// one point, then the full path
	assert.Equal(t, []ws.EventType{ws.EventLocationPoint, ws.EventPathUpdate}, bus.roomEvents(session.SessionID))
	point, ok := bus.lastRoomEmission(session.SessionID, ws.EventLocationPoint)
	require.True(t, ok)
	assert.Equal(t, 2.0, point.data["latitude"])
}

func TestSOSLocationHistoryCapped(t *testing.T) {
	svc, _, _ := newTestSOSService()
	ctx := context.Background()

	session, err := svc.Start(ctx, "user-1", 0, 0)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.NoError(t, svc.UpdateLocation(ctx, session.SessionID, float64(i), float64(i)))
	}

	current, err := svc.registry.Get(session.SessionID)
	require.NoError(t, err)
	assert.Len(t, current.LocationHistory, 5)
	// oldest points were evicted first
	assert.Equal(t, 19.0, current.LocationHistory[4].Latitude)
}

func TestSOSUpdateAfterEnd(t *testing.T) {
	svc, _, _ := newTestSOSService()
	ctx := context.Background()

	session, err := svc.Start(ctx, "user-1", 1, 1)
	require.NoError(t, err)
	require.NoError(t, svc.End(ctx, session.SessionID))

	err = svc.UpdateLocation(ctx, session.SessionID, 2, 2)
	require.Error(t, err)
	assert.Equal(t, ws.CodeInvalidTransition, ErrorCode(err))
}

func TestSOSEnd(t *testing.T) {
	svc, bus, store := newTestSOSService()
	ctx := context.Background()

	session, err := svc.Start(ctx, "user-1", 1, 1)
	require.NoError(t, err)
	bus.reset()

	require.NoError(t, svc.End(ctx, session.SessionID))

	last, ok := bus.lastRoomEmission(session.SessionID, ws.EventStatusUpdate)
	require.True(t, ok)
	assert.Equal(t, "inactive", last.data["status"])
	assert.Equal(t, session.SessionID, last.data["session_id"])
	assert.NotNil(t, last.data["end_time"])

	// ending again is a no-op
	assert.NoError(t, svc.End(ctx, session.SessionID))

	stored, err := store.FindSOS(ctx, session.SessionID)
	require.NoError(t, err)
	assert.False(t, stored.Active())

	// topic closes and the registry entry is discarded after the grace period
	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.closed) == 1
	}, time.Second, 5*time.Millisecond)
	_, err = svc.registry.Get(session.SessionID)
	assert.Error(t, err)
}

func TestSOSJoinReplaysState(t *testing.T) {
	svc, bus, _ := newTestSOSService()
	ctx := context.Background()

	session, err := svc.Start(ctx, "user-1", 1, 1)
	require.NoError(t, err)
	require.NoError(t, svc.UpdateLocation(ctx, session.SessionID, 2, 2))
	bus.reset()

	require.NoError(t, svc.Join(ctx, "rescuer-1", session.SessionID))

	assert.Contains(t, bus.joins, membership{"rescuer-1", session.SessionID})
	assert.Equal(t, []ws.EventType{ws.EventStatusUpdate, ws.EventPathUpdate}, bus.userEvents("rescuer-1"))
	_, replayedToRoom := bus.lastRoomEmission(session.SessionID, ws.EventPathUpdate)
	assert.False(t, replayedToRoom, "replay goes to the joiner, not the room")
}

func TestSOSJoinEndedSession(t *testing.T) {
	svc, bus, _ := newTestSOSService()
	ctx := context.Background()

	session, err := svc.Start(ctx, "user-1", 1, 1)
	require.NoError(t, err)
	require.NoError(t, svc.End(ctx, session.SessionID))

	// wait for the grace period to evict the registry entry, then join
	// through the store fallback
	require.Eventually(t, func() bool {
		_, err := svc.registry.Get(session.SessionID)
		return err != nil
	}, time.Second, 5*time.Millisecond)
	bus.reset()

	require.NoError(t, svc.Join(ctx, "rescuer-1", session.SessionID))
	events := bus.userEvents("rescuer-1")
	require.Len(t, events, 1)
	assert.Equal(t, ws.EventStatusUpdate, events[0])

	// the replay must name the session so a client holding a stale
	// handle can drop it
	replay, ok := bus.lastUserEmission("rescuer-1", ws.EventStatusUpdate)
	require.True(t, ok)
	assert.Equal(t, session.SessionID, replay.data["session_id"])
	assert.Equal(t, "inactive", replay.data["status"])
}

func TestSOSJoinUnknownSession(t *testing.T) {
	svc, _, _ := newTestSOSService()

	err := svc.Join(context.Background(), "rescuer-1", "missing")
	require.Error(t, err)
	assert.Equal(t, ws.CodeSessionNotFound, ErrorCode(err))
}

func TestSOSSweepExpiresStaleSessions(t *testing.T) {
	svc, bus, _ := newTestSOSService()
	ctx := context.Background()

	stale, err := svc.Start(ctx, "user-1", 1, 1)
	require.NoError(t, err)
	fresh, err := svc.Start(ctx, "user-2", 2, 2)
	require.NoError(t, err)

	// age the first session past the TTL
	_, err = svc.registry.Mutate(stale.SessionID, func(s *models.SOSSession) {
		s.LastActivityAt = time.Now().Add(-2 * testSessionConfig().TTL)
	})
	require.NoError(t, err)
	bus.reset()

	assert.Equal(t, 1, svc.Sweep(ctx))

	last, ok := bus.lastRoomEmission(stale.SessionID, ws.EventStatusUpdate)
	require.True(t, ok)
	assert.Equal(t, "inactive", last.data["status"])

	// the fresh session is untouched
	current, err := svc.registry.Get(fresh.SessionID)
	require.NoError(t, err)
	assert.True(t, current.Active())
}

func TestSOSKeepAliveRefreshesActivity(t *testing.T) {
	svc, _, _ := newTestSOSService()
	ctx := context.Background()

	session, err := svc.Start(ctx, "user-1", 1, 1)
	require.NoError(t, err)

	_, err = svc.registry.Mutate(session.SessionID, func(s *models.SOSSession) {
		s.LastActivityAt = time.Now().Add(-2 * testSessionConfig().TTL)
	})
	require.NoError(t, err)

	svc.KeepAlive(session.SessionID)
	assert.Equal(t, 0, svc.Sweep(ctx), "keep-alive resets the TTL clock")

	// unknown session is a silent no-op
	svc.KeepAlive("missing")
}

func TestSOSActiveSessionForUserStoreFallback(t *testing.T) {
	svc, _, store := newTestSOSService()
	ctx := context.Background()

	session, err := svc.Start(ctx, "user-1", 1, 1)
	require.NoError(t, err)

	// simulate a restart: registry is empty, store still holds the session
	svc.registry.Remove(session.SessionID)
	_, err = store.FindActiveSOSByUser(ctx, "user-1")
	require.NoError(t, err)

	recovered, err := svc.ActiveSessionForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, session.SessionID, recovered.SessionID)

	_, err = svc.ActiveSessionForUser(ctx, "nobody")
	require.Error(t, err)
	assert.Equal(t, ws.CodeSessionNotFound, ErrorCode(err))
}

func TestUpdateLocationConcurrentSenders(t *testing.T) {
	svc, bus, _ := newTestSOSService()
	ctx := context.Background()
	session, err := svc.Start(ctx, "user-1", 0, 0)
	require.NoError(t, err)

	// two connections stream updates while a viewer keeps replaying state
	var wg sync.WaitGroup
	for g := 0; g < 2; g++ {
		wg.Add(1)
		go func(base float64) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				assert.NoError(t, svc.UpdateLocation(ctx, session.SessionID, base+float64(i), 80.9))
			}
		}(float64(g) * 1000)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			assert.NoError(t, svc.Join(ctx, "viewer-1", session.SessionID))
		}
	}()
	wg.Wait()

	last, ok := bus.lastRoomEmission(session.SessionID, ws.EventPathUpdate)
	require.True(t, ok)
	path, isPath := last.data["path"].([]models.LocationPoint)
	require.True(t, isPath)
	assert.NotEmpty(t, path)
	assert.LessOrEqual(t, len(path), testSessionConfig().MaxLocationHistory)
}
