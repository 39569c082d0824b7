package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"

	"github.com/suryadevkumar/SheSecure-sub000/internal/config"
	"github.com/suryadevkumar/SheSecure-sub000/internal/services"
	"github.com/suryadevkumar/SheSecure-sub000/internal/utils"
	ws "github.com/suryadevkumar/SheSecure-sub000/internal/websocket"
	"github.com/suryadevkumar/SheSecure-sub000/pkg/logger"
)

// WebSocketHandler upgrades authenticated connections and hands them to
// the hub. Identity is checked once per connection; every event on the
// socket afterwards is attributed to the bound user.
type WebSocketHandler struct {
	hub      *ws.Hub
	router   ws.Router
	chat     *services.ChatService
	jwtCfg   config.JWTConfig
	upgrader gorilla.Upgrader
}

func NewWebSocketHandler(hub *ws.Hub, router ws.Router, chat *services.ChatService, cfg *config.Config) *WebSocketHandler {
	allowed := cfg.Server.CORS.AllowedOrigins
	return &WebSocketHandler{
		hub:    hub,
		router: router,
		chat:   chat,
		jwtCfg: cfg.JWT,
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  cfg.Server.WebSocket.ReadBufferSize,
			WriteBufferSize: cfg.Server.WebSocket.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				for _, a := range allowed {
					if a == "*" || a == origin {
						return true
					}
				}
				return false
			},
		},
	}
}

// HandleConnection authenticates and upgrades a WebSocket connection
func (h *WebSocketHandler) HandleConnection(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		utils.UnauthorizedResponse(c, "Auth token required")
		return
	}

	claims, err := utils.ValidateToken(h.jwtCfg, token)
	if err != nil {
		logger.WithError(err).Warn("Rejected WebSocket connection with invalid token")
		utils.UnauthorizedResponse(c, "Invalid auth token")
		return
	}

	role := claims.Role
	if role != ws.RoleCounselor {
		role = ws.RoleUser
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WithError(err).Error("Failed to upgrade WebSocket connection")
		return
	}

	client := ws.NewClient(conn, h.hub, h.router, claims.UserID, role)
	client.IP = c.ClientIP()

	// registration is synchronous so the resubscription below observes
	// the new connection
	h.hub.RegisterClient(client)

	// a reconnecting participant picks their chat rooms back up without
	// re-sending join intents
	h.chat.Resubscribe(context.Background(), claims.UserID)

	go client.WritePump()
	go client.ReadPump()

	logger.WithFields(map[string]interface{}{
		"user_id": claims.UserID,
		"role":    role,
		"ip":      client.IP,
	}).Info("WebSocket connection established")
}
