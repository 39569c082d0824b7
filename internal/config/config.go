package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full application configuration, loaded from environment
// variables with sensible defaults for development.
type Config struct {
	App      AppConfig
	Server   ServerConfig
	MongoDB  MongoConfig
	JWT      JWTConfig
	Session  SessionConfig
	Presence PresenceConfig
}

// AppConfig holds application level settings
type AppConfig struct {
	Name        string
	Version     string
	Environment string
	Domain      string
	Port        string
	Debug       bool
}

// ServerConfig holds HTTP and WebSocket server settings
type ServerConfig struct {
	HTTP      HTTPConfig
	WebSocket WebSocketConfig
	CORS      CORSConfig
}

type HTTPConfig struct {
	Port         string
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type WebSocketConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	PingPeriod      time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	MaxMessageSize  int64
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
}

// MongoConfig holds MongoDB connection settings
type MongoConfig struct {
	URI                    string
	Database               string
	MaxPoolSize            uint64
	MinPoolSize            uint64
	ConnectTimeout         time.Duration
	ServerSelectionTimeout time.Duration
}

// JWTConfig holds token validation settings
type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

// SessionConfig holds session coordination settings: heartbeat cadence,
// abandoned-session expiry and location history bounds.
type SessionConfig struct {
	KeepAliveInterval  time.Duration
	TTL                time.Duration // Active sessions older than this without activity are ended
	SweepInterval      time.Duration
	MaxLocationHistory int
	EndGracePeriod     time.Duration // topic stays open this long after end for late joiners
}

// PresenceConfig holds presence and ephemeral indicator settings
type PresenceConfig struct {
	TypingTTL     time.Duration
	SweepInterval time.Duration
}

// Load builds the configuration from environment variables
func Load() *Config {
	return &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "SheSecure"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
			Environment: getEnv("APP_ENV", "development"),
			Domain:      getEnv("APP_DOMAIN", "localhost"),
			Port:        getEnv("PORT", "8080"),
			Debug:       getEnvAsBool("DEBUG", false),
		},
		Server: ServerConfig{
			HTTP: HTTPConfig{
				Port:         getEnv("HTTP_PORT", "8080"),
				Host:         getEnv("HTTP_HOST", "0.0.0.0"),
				ReadTimeout:  getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: getEnvAsDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
				IdleTimeout:  getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			},
			WebSocket: WebSocketConfig{
				ReadBufferSize:  getEnvAsInt("WS_READ_BUFFER_SIZE", 1024),
				WriteBufferSize: getEnvAsInt("WS_WRITE_BUFFER_SIZE", 1024),
				PingPeriod:      getEnvAsDuration("WS_PING_PERIOD", 54*time.Second),
				PongWait:        getEnvAsDuration("WS_PONG_WAIT", 60*time.Second),
				WriteWait:       getEnvAsDuration("WS_WRITE_WAIT", 10*time.Second),
				MaxMessageSize:  int64(getEnvAsInt("WS_MAX_MESSAGE_SIZE", 64*1024)),
			},
			CORS: CORSConfig{
				AllowedOrigins:   getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
				AllowedMethods:   getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
				AllowedHeaders:   getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Authorization"}),
				AllowCredentials: getEnvAsBool("CORS_ALLOW_CREDENTIALS", true),
			},
		},
		MongoDB: MongoConfig{
			URI:                    getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:               getEnv("MONGODB_DATABASE", "shesecure"),
			MaxPoolSize:            uint64(getEnvAsInt("MONGODB_MAX_POOL_SIZE", 100)),
			MinPoolSize:            uint64(getEnvAsInt("MONGODB_MIN_POOL_SIZE", 5)),
			ConnectTimeout:         getEnvAsDuration("MONGODB_CONNECT_TIMEOUT", 10*time.Second),
			ServerSelectionTimeout: getEnvAsDuration("MONGODB_SERVER_SELECTION_TIMEOUT", 5*time.Second),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", "dev-secret-change-me"),
			Issuer:     getEnv("JWT_ISSUER", "shesecure"),
			Expiration: getEnvAsDuration("JWT_EXPIRATION", 24*time.Hour),
		},
		Session: SessionConfig{
			KeepAliveInterval:  getEnvAsDuration("SESSION_KEEPALIVE_INTERVAL", 30*time.Second),
			TTL:                getEnvAsDuration("SESSION_TTL", 90*time.Second),
			SweepInterval:      getEnvAsDuration("SESSION_SWEEP_INTERVAL", 60*time.Second),
			MaxLocationHistory: getEnvAsInt("SESSION_MAX_LOCATION_HISTORY", 1000),
			EndGracePeriod:     getEnvAsDuration("SESSION_END_GRACE_PERIOD", 30*time.Second),
		},
		Presence: PresenceConfig{
			TypingTTL:     getEnvAsDuration("TYPING_TTL", 10*time.Second),
			SweepInterval: getEnvAsDuration("PRESENCE_SWEEP_INTERVAL", 5*time.Second),
		},
	}
}

// Environment helpers

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsSlice(key string, fallback []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return fallback
}
