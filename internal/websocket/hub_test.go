package websocket

import (
	"testing"
	"time"

	"github.com/suryadevkumar/SheSecure-sub000/internal/presence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub() *Hub {
	h := NewHub(presence.NewTracker(10*time.Second), time.Minute)
	go h.Run()
	return h
}

// barrier blocks until the hub loop has finished every operation queued
// before it. Unregistering a client the hub never saw is a no-op.
func barrier(h *Hub) {
	h.Unregister <- NewClient(nil, h, nil, "", RoleUser)
}

func connect(h *Hub, userID, role string) *Client {
	c := NewClient(nil, h, nil, userID, role)
	h.RegisterClient(c)
	return c
}

// drain empties a client's send buffer and decodes every queued payload
func drain(t *testing.T, c *Client) []*Event {
	t.Helper()

	var events []*Event
	for {
		select {
		case payload, ok := <-c.Send:
			if !ok {
				return events
			}
			e, err := FromJSON(payload)
			require.NoError(t, err)
			events = append(events, e)
		default:
			return events
		}
	}
}

func findEvent(events []*Event, event EventType) *Event {
	for _, e := range events {
		if e.Event == event {
			return e
		}
	}
	return nil
}

func TestHubRegisterAnnouncesPresence(t *testing.T) {
	h := newTestHub()

	alice := connect(h, "alice", RoleUser)
	require.True(t, h.IsUserOnline("alice"))

	events := drain(t, alice)

	snapshot := findEvent(events, EventOnlineUsers)
	require.NotNil(t, snapshot, "new connection should receive the online-user set")
	assert.Contains(t, snapshot.Data["users"], "alice")

	status := findEvent(events, EventUserStatusChange)
	require.NotNil(t, status)
	assert.Equal(t, "alice", status.Str("user_id"))
	online, _ := status.Bool("online")
	assert.True(t, online)
}

func TestHubReconnectReplacesConnection(t *testing.T) {
	h := newTestHub()

	first := connect(h, "alice", RoleUser)
	second := connect(h, "alice", RoleUser)

	// The stale connection is closed, the user stays online
	drain(t, first)
	_, open := <-first.Send
	assert.False(t, open)
	assert.True(t, h.IsUserOnline("alice"))

	drain(t, second)
	h.EmitToUser("alice", EventKeepAlive, nil)
	assert.NotNil(t, findEvent(drain(t, second), EventKeepAlive))
}

func TestHubUnregisterBroadcastsLastSeen(t *testing.T) {
	h := newTestHub()

	alice := connect(h, "alice", RoleUser)
	bob := connect(h, "bob", RoleUser)
	drain(t, alice)

	h.Unregister <- bob
	barrier(h)

	assert.False(t, h.IsUserOnline("bob"))

	status := findEvent(drain(t, alice), EventUserStatusChange)
	require.NotNil(t, status)
	assert.Equal(t, "bob", status.Str("user_id"))
	online, _ := status.Bool("online")
	assert.False(t, online)
	assert.Contains(t, status.Data, "last_seen_at")
}

func TestHubRoomFanout(t *testing.T) {
	h := newTestHub()

	alice := connect(h, "alice", RoleUser)
	bob := connect(h, "bob", RoleUser)
	carol := connect(h, "carol", RoleUser)

	h.JoinRoom("alice", "room-1")
	h.JoinRoom("bob", "room-1")
	drain(t, alice)
	drain(t, bob)
	drain(t, carol)

	h.EmitToRoom("room-1", EventNewMessage, map[string]interface{}{"content": "hi"})

	assert.NotNil(t, findEvent(drain(t, alice), EventNewMessage))
	assert.NotNil(t, findEvent(drain(t, bob), EventNewMessage))
	assert.Nil(t, findEvent(drain(t, carol), EventNewMessage))

	assert.ElementsMatch(t, []string{"alice", "bob"}, h.RoomUsers("room-1"))
}

func TestHubEmitToRoomExceptSkipsSender(t *testing.T) {
	h := newTestHub()

	alice := connect(h, "alice", RoleUser)
	bob := connect(h, "bob", RoleUser)

	h.JoinRoom("alice", "room-1")
	h.JoinRoom("bob", "room-1")
	drain(t, alice)
	drain(t, bob)

	h.EmitToRoomExcept("room-1", "alice", EventUserTyping, map[string]interface{}{"user_id": "alice"})

	assert.Nil(t, findEvent(drain(t, alice), EventUserTyping))
	assert.NotNil(t, findEvent(drain(t, bob), EventUserTyping))
}

func TestHubLeaveRoomStopsDelivery(t *testing.T) {
	h := newTestHub()

	alice := connect(h, "alice", RoleUser)
	h.JoinRoom("alice", "room-1")
	drain(t, alice)

	h.LeaveRoom("alice", "room-1")
	h.EmitToRoom("room-1", EventNewMessage, nil)

	assert.Nil(t, findEvent(drain(t, alice), EventNewMessage))
	assert.Empty(t, h.RoomUsers("room-1"))
}

func TestHubCloseRoomClearsMembership(t *testing.T) {
	h := newTestHub()

	alice := connect(h, "alice", RoleUser)
	bob := connect(h, "bob", RoleUser)
	h.JoinRoom("alice", "room-1")
	h.JoinRoom("bob", "room-1")
	drain(t, alice)
	drain(t, bob)

	h.CloseRoom("room-1")

	assert.Empty(t, h.RoomUsers("room-1"))
	h.EmitToRoom("room-1", EventNewMessage, nil)
	assert.Nil(t, findEvent(drain(t, alice), EventNewMessage))
	assert.Nil(t, findEvent(drain(t, bob), EventNewMessage))
}

func TestHubEmitToCounselors(t *testing.T) {
	h := newTestHub()

	user := connect(h, "alice", RoleUser)
	counselor := connect(h, "dr-lee", RoleCounselor)
	drain(t, user)
	drain(t, counselor)

	h.EmitToCounselors(EventNewChatRequest, map[string]interface{}{"request_id": "req-1"})

	assert.Nil(t, findEvent(drain(t, user), EventNewChatRequest))
	got := findEvent(drain(t, counselor), EventNewChatRequest)
	require.NotNil(t, got)
	assert.Equal(t, "req-1", got.Str("request_id"))
}

func TestHubRegisterThenJoinRoomIsImmediate(t *testing.T) {
	h := newTestHub()

	// the connection handler joins rooms right after registering; the
	// join must observe the connection without any settling delay
	alice := connect(h, "alice", RoleUser)
	h.JoinRoom("alice", "room-1")

	h.EmitToRoom("room-1", EventNewMessage, map[string]interface{}{"content": "hi"})

	assert.NotNil(t, findEvent(drain(t, alice), EventNewMessage))
	assert.ElementsMatch(t, []string{"alice"}, h.RoomUsers("room-1"))
}

func TestHubRejoinAfterReconnectReceivesRoomTraffic(t *testing.T) {
	h := newTestHub()

	first := connect(h, "alice", RoleUser)
	h.JoinRoom("alice", "room-1")

	h.Unregister <- first
	barrier(h)
	require.False(t, h.IsUserOnline("alice"))

	second := connect(h, "alice", RoleUser)
	h.JoinRoom("alice", "room-1")
	drain(t, second)

	h.EmitToRoom("room-1", EventNewMessage, map[string]interface{}{"content": "wb"})
	got := findEvent(drain(t, second), EventNewMessage)
	require.NotNil(t, got)
	assert.Equal(t, "wb", got.Str("content"))
}

func TestHubEvictsSlowConsumer(t *testing.T) {
	h := newTestHub()

	connect(h, "alice", RoleUser)

	// Never reading fills the send buffer and forces an eviction
	for i := 0; i < sendBufferSize+1; i++ {
		h.EmitToUser("alice", EventKeepAlive, nil)
	}

	require.Eventually(t, func() bool {
		return !h.IsUserOnline("alice")
	}, time.Second, 5*time.Millisecond)
}
