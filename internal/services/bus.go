package services

import (
	ws "github.com/suryadevkumar/SheSecure-sub000/internal/websocket"
)

// Bus is the transport surface the lifecycle controllers drive. The hub
// satisfies it; tests substitute a recorder.
type Bus interface {
	JoinRoom(userID, roomID string)
	LeaveRoom(userID, roomID string)
	CloseRoom(roomID string)

	EmitToRoom(roomID string, event ws.EventType, data map[string]interface{})
	EmitToRoomExcept(roomID, excludeUserID string, event ws.EventType, data map[string]interface{})
	EmitToUser(userID string, event ws.EventType, data map[string]interface{})
	EmitToCounselors(event ws.EventType, data map[string]interface{})
}
