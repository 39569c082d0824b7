package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suryadevkumar/SheSecure-sub000/internal/models"
	ws "github.com/suryadevkumar/SheSecure-sub000/internal/websocket"
)

func newTestLocationService() (*LocationService, *fakeBus, *fakeSessionStore) {
	bus := newFakeBus()
	store := newFakeSessionStore()
	return NewLocationService(store, bus, testSessionConfig(), "shesecure.app"), bus, store
}

func TestLocationShareStart(t *testing.T) {
	svc, bus, _ := newTestLocationService()

	share, err := svc.Start(context.Background(), "user-1", 12.97, 77.59)
	require.NoError(t, err)

	assert.Contains(t, share.ShareableLink, "https://shesecure.app/track/"+share.ShareID)
	assert.True(t, share.Active())
	require.NotNil(t, share.LastKnownPosition)
	assert.Equal(t, 12.97, share.LastKnownPosition.Latitude)
	assert.Contains(t, bus.joins, membership{"user-1", share.ShareID})
}

func TestLocationShareIndependentOfSOS(t *testing.T) {
	// one share and one SOS session may run concurrently for the same user
	shareSvc, _, _ := newTestLocationService()
	sosSvc, _, _ := newTestSOSService()
	ctx := context.Background()

	share, err := shareSvc.Start(ctx, "user-1", 1, 1)
	require.NoError(t, err)
	session, err := sosSvc.Start(ctx, "user-1", 2, 2)
	require.NoError(t, err)

	gotShare, err := shareSvc.ActiveShareForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, share.ShareID, gotShare.ShareID)

	gotSOS, err := sosSvc.ActiveSessionForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, session.SessionID, gotSOS.SessionID)
}

func TestLocationShareSupersedesPrevious(t *testing.T) {
	svc, bus, _ := newTestLocationService()
	ctx := context.Background()

	first, err := svc.Start(ctx, "user-1", 1, 1)
	require.NoError(t, err)
	second, err := svc.Start(ctx, "user-1", 2, 2)
	require.NoError(t, err)

	assert.Contains(t, bus.closed, first.ShareID)
	err = svc.Update(ctx, first.ShareID, 3, 3)
	require.Error(t, err)
	assert.Equal(t, ws.CodeSessionNotFound, ErrorCode(err))

	recovered, err := svc.ActiveShareForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, second.ShareID, recovered.ShareID)
}

func TestLocationShareUpdate(t *testing.T) {
	svc, bus, _ := newTestLocationService()
	ctx := context.Background()

	share, err := svc.Start(ctx, "user-1", 1, 1)
	require.NoError(t, err)
	bus.reset()

	require.NoError(t, svc.Update(ctx, share.ShareID, 2, 2))

	assert.Equal(t, []ws.EventType{ws.EventLocationPoint, ws.EventPathUpdate}, bus.roomEvents(share.ShareID))

	current, err := svc.registry.Get(share.ShareID)
	require.NoError(t, err)
	require.NotNil(t, current.LastKnownPosition)
	assert.Equal(t, 2.0, current.LastKnownPosition.Latitude)
}

func TestLocationShareUpdateAfterEnd(t *testing.T) {
	svc, _, _ := newTestLocationService()
	ctx := context.Background()

	share, err := svc.Start(ctx, "user-1", 1, 1)
	require.NoError(t, err)
	require.NoError(t, svc.End(ctx, share.ShareID))

	err = svc.Update(ctx, share.ShareID, 2, 2)
	require.Error(t, err)
	assert.Equal(t, ws.CodeInvalidTransition, ErrorCode(err))
}

func TestLocationShareEnd(t *testing.T) {
	svc, bus, store := newTestLocationService()
	ctx := context.Background()

	share, err := svc.Start(ctx, "user-1", 1, 1)
	require.NoError(t, err)
	bus.reset()

	require.NoError(t, svc.End(ctx, share.ShareID))
	assert.NoError(t, svc.End(ctx, share.ShareID), "ending twice is a no-op")

	last, ok := bus.lastRoomEmission(share.ShareID, ws.EventStatusUpdate)
	require.True(t, ok)
	assert.Equal(t, "inactive", last.data["status"])
	assert.Equal(t, share.ShareID, last.data["session_id"])

	stored, err := store.FindShare(ctx, share.ShareID)
	require.NoError(t, err)
	assert.False(t, stored.Active())

	require.Eventually(t, func() bool {
		_, err := svc.registry.Get(share.ShareID)
		return err != nil
	}, time.Second, 5*time.Millisecond)
}

func TestLocationShareJoinReplaysState(t *testing.T) {
	svc, bus, _ := newTestLocationService()
	ctx := context.Background()

	share, err := svc.Start(ctx, "user-1", 1, 1)
	require.NoError(t, err)
	bus.reset()

	require.NoError(t, svc.Join(ctx, "viewer-1", share.ShareID))

	assert.Contains(t, bus.joins, membership{"viewer-1", share.ShareID})
	assert.Equal(t, []ws.EventType{ws.EventStatusUpdate, ws.EventPathUpdate}, bus.userEvents("viewer-1"))
}

func TestLocationShareSweep(t *testing.T) {
	svc, _, _ := newTestLocationService()
	ctx := context.Background()

	share, err := svc.Start(ctx, "user-1", 1, 1)
	require.NoError(t, err)

	_, err = svc.registry.Mutate(share.ShareID, func(s *models.LocationShareSession) {
		s.LastActivityAt = time.Now().Add(-2 * testSessionConfig().TTL)
	})
	require.NoError(t, err)

	assert.Equal(t, 1, svc.Sweep(ctx))

	// swept shares read back as ended
	current, err := svc.registry.Get(share.ShareID)
	require.NoError(t, err)
	assert.False(t, current.Active())
}
