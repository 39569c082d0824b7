package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/suryadevkumar/SheSecure-sub000/internal/config"
	"github.com/suryadevkumar/SheSecure-sub000/internal/handlers"
	"github.com/suryadevkumar/SheSecure-sub000/internal/middleware"
	"github.com/suryadevkumar/SheSecure-sub000/internal/services"
	"github.com/suryadevkumar/SheSecure-sub000/internal/utils"
	ws "github.com/suryadevkumar/SheSecure-sub000/internal/websocket"
)

// Setup wires the WebSocket endpoint and the HTTP API
func Setup(
	router *gin.Engine,
	cfg *config.Config,
	hub *ws.Hub,
	sos *services.SOSService,
	location *services.LocationService,
	chat *services.ChatService,
) {
	eventRouter := handlers.NewEventRouter(sos, location, chat)
	wsHandler := handlers.NewWebSocketHandler(hub, eventRouter, chat, cfg)
	sessionHandler := handlers.NewSessionHandler(sos, location, chat)

	router.Use(middleware.CORS(cfg.Server.CORS))

	router.GET("/health", handlers.Health)

	// the socket carries its token as a query parameter; auth happens in
	// the handler itself, once per connection
	router.GET("/ws", middleware.WebSocketRateLimit(), wsHandler.HandleConnection)

	api := router.Group("/api", middleware.Auth(cfg.JWT), middleware.RateLimit())
	{
		api.GET("/sessions/active", sessionHandler.GetActiveSessions)
		api.GET("/chat/requests/pending", middleware.RequireCounselor(), sessionHandler.GetPendingRequests)
	}

	router.NoRoute(func(c *gin.Context) {
		utils.NotFoundResponse(c, "Route not found")
	})
}
