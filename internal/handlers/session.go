package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/suryadevkumar/SheSecure-sub000/internal/services"
	"github.com/suryadevkumar/SheSecure-sub000/internal/utils"
	"github.com/suryadevkumar/SheSecure-sub000/pkg/database"
)

// SessionHandler serves the recovery query a client falls back to when it
// reconnects without a usable local session handle.
type SessionHandler struct {
	sos      *services.SOSService
	location *services.LocationService
	chat     *services.ChatService
}

func NewSessionHandler(sos *services.SOSService, location *services.LocationService, chat *services.ChatService) *SessionHandler {
	return &SessionHandler{
		sos:      sos,
		location: location,
		chat:     chat,
	}
}

// GetActiveSessions returns the caller's live sessions across all kinds
func (h *SessionHandler) GetActiveSessions(c *gin.Context) {
	userID := c.GetString("user_id")

	data := gin.H{}
	if session, err := h.sos.ActiveSessionForUser(c.Request.Context(), userID); err == nil {
		data["sos"] = session
	}
	if share, err := h.location.ActiveShareForUser(c.Request.Context(), userID); err == nil {
		data["location_share"] = share
	}
	if rooms := h.chat.ActiveRoomsForUser(c.Request.Context(), userID); len(rooms) > 0 {
		data["chat_rooms"] = rooms
	}

	utils.SuccessResponse(c, data)
}

// GetPendingRequests returns the chat requests awaiting a counselor.
// Counselor-only; the dashboard polls this on load to catch requests
// fanned out before the counselor connected.
func (h *SessionHandler) GetPendingRequests(c *gin.Context) {
	utils.SuccessResponse(c, gin.H{
		"requests": h.chat.PendingRequests(),
	})
}

// Health reports process and database liveness
func Health(c *gin.Context) {
	utils.SuccessResponse(c, gin.H{
		"status":   "ok",
		"database": database.HealthCheck(),
	})
}
