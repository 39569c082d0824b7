package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/suryadevkumar/SheSecure-sub000/internal/config"
	"github.com/suryadevkumar/SheSecure-sub000/internal/presence"
	"github.com/suryadevkumar/SheSecure-sub000/internal/routes"
	"github.com/suryadevkumar/SheSecure-sub000/internal/services"
	"github.com/suryadevkumar/SheSecure-sub000/internal/websocket"
	"github.com/suryadevkumar/SheSecure-sub000/pkg/database"
	"github.com/suryadevkumar/SheSecure-sub000/pkg/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize logger
	logger.Init()

	// Load configuration
	cfg := config.Load()

	// Initialize database
	if err := database.InitMongoDB(cfg.MongoDB); err != nil {
		logger.Fatal("Failed to connect to MongoDB: " + err.Error())
	}
	defer database.Disconnect()

	// Presence tracker and WebSocket hub
	tracker := presence.NewTracker(cfg.Presence.TypingTTL)
	hub := websocket.NewHub(tracker, cfg.Presence.SweepInterval)
	go hub.Run()

	// Durable store and lifecycle controllers
	store := services.NewMongoStore(database.GetDatabase())
	sos := services.NewSOSService(store, hub, cfg.Session, cfg.App.Domain)
	location := services.NewLocationService(store, hub, cfg.Session, cfg.App.Domain)
	chat := services.NewChatService(store, hub, tracker)

	// Abandoned-session sweep
	supervisor := services.NewSupervisor(sos, location, cfg.Session)
	go supervisor.Run(context.Background())

	// HTTP and WebSocket surface
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	routes.Setup(router, cfg, hub, sos, location, chat)

	logger.Info("Server starting on port: " + cfg.App.Port)
	if err := router.Run(":" + cfg.App.Port); err != nil {
		logger.Fatal("Failed to start server: " + err.Error())
	}
}
