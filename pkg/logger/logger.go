package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger represents the application logger
type Logger struct {
	*logrus.Logger
	mu sync.RWMutex
}

// LogLevel represents log levels
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
	FatalLevel LogLevel = "fatal"
)

// LogFormat represents log output formats
type LogFormat string

const (
	JSONFormat LogFormat = "json"
	TextFormat LogFormat = "text"
)

// Config represents logger configuration
type Config struct {
	Level  LogLevel
	Format LogFormat
	Output string // file path or "stdout"
}

var (
	instance *Logger
	once     sync.Once
)

// Init initializes the global logger
func Init() {
	once.Do(func() {
		config := getLoggerConfig()
		instance = NewLogger(config)
	})
}

// NewLogger creates a new logger instance
func NewLogger(config Config) *Logger {
	logger := &Logger{
		Logger: logrus.New(),
	}

	logger.SetLevel(getLogrusLevel(config.Level))

	if config.Format == JSONFormat {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				filename := filepath.Base(f.File)
				return fmt.Sprintf("%s()", f.Function), fmt.Sprintf("%s:%d", filename, f.Line)
			},
		})
	}

	if config.Output == "stdout" || config.Output == "" {
		logger.SetOutput(os.Stdout)
	} else {
		logDir := filepath.Dir(config.Output)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			log.Printf("Failed to create log directory: %v", err)
			logger.SetOutput(os.Stdout)
		} else {
			writer, err := setupFileOutput(config)
			if err != nil {
				log.Printf("Failed to setup file output: %v", err)
				logger.SetOutput(os.Stdout)
			} else {
				logger.SetOutput(writer)
			}
		}
	}

	return logger
}

// setupFileOutput sets up file output
func setupFileOutput(config Config) (io.Writer, error) {
	file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, err
	}

	// Mirror to stdout in development
	if os.Getenv("APP_ENV") == "development" {
		return io.MultiWriter(file, os.Stdout), nil
	}

	return file, nil
}

// getLoggerConfig returns logger configuration from environment
func getLoggerConfig() Config {
	config := Config{
		Level:  InfoLevel,
		Format: JSONFormat,
		Output: "stdout",
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Level = LogLevel(strings.ToLower(level))
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Format = LogFormat(strings.ToLower(format))
	}

	if output := os.Getenv("LOG_OUTPUT"); output != "" {
		config.Output = output
	}

	if os.Getenv("APP_ENV") == "production" && config.Output == "stdout" {
		config.Output = "logs/app.log"
	}

	return config
}

// getLogrusLevel converts LogLevel to logrus.Level
func getLogrusLevel(level LogLevel) logrus.Level {
	switch level {
	case DebugLevel:
		return logrus.DebugLevel
	case InfoLevel:
		return logrus.InfoLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	case FatalLevel:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// Global logger functions

// Debug logs a debug message
func Debug(args ...interface{}) {
	if instance != nil {
		instance.Debug(args...)
	}
}

// Debugf logs a formatted debug message
func Debugf(format string, args ...interface{}) {
	if instance != nil {
		instance.Debugf(format, args...)
	}
}

// Info logs an info message
func Info(args ...interface{}) {
	if instance != nil {
		instance.Info(args...)
	}
}

// Infof logs a formatted info message
func Infof(format string, args ...interface{}) {
	if instance != nil {
		instance.Infof(format, args...)
	}
}

// Warn logs a warning message
func Warn(args ...interface{}) {
	if instance != nil {
		instance.Warn(args...)
	}
}

// Error logs an error message
func Error(args ...interface{}) {
	if instance != nil {
		instance.Error(args...)
	}
}

// Fatal logs a fatal message and exits
func Fatal(args ...interface{}) {
	if instance != nil {
		instance.Fatal(args...)
	}
}

// WithField creates a logger with a field
func WithField(key string, value interface{}) *logrus.Entry {
	if instance != nil {
		return instance.WithField(key, value)
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// WithFields creates a logger with multiple fields
func WithFields(fields logrus.Fields) *logrus.Entry {
	if instance != nil {
		return instance.WithFields(fields)
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// WithError creates a logger with an error field
func WithError(err error) *logrus.Entry {
	if instance != nil {
		return instance.WithError(err)
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

// Context-aware logging functions

// LogUserAction logs user actions
func LogUserAction(userID, action string, metadata map[string]interface{}) {
	fields := logrus.Fields{
		"user_id": userID,
		"action":  action,
		"type":    "user_action",
	}

	for k, v := range metadata {
		fields[k] = v
	}

	WithFields(fields).Info("User Action")
}

// LogSessionEvent logs SOS and location-share session events
func LogSessionEvent(event, kind, sessionID, userID string, metadata map[string]interface{}) {
	fields := logrus.Fields{
		"event":      event,
		"kind":       kind,
		"session_id": sessionID,
		"user_id":    userID,
		"type":       "session_event",
	}

	for k, v := range metadata {
		fields[k] = v
	}

	WithFields(fields).Info("Session Event")
}

// LogChatEvent logs chat-related events
func LogChatEvent(event, roomID, userID string, metadata map[string]interface{}) {
	fields := logrus.Fields{
		"event":   event,
		"room_id": roomID,
		"user_id": userID,
		"type":    "chat_event",
	}

	for k, v := range metadata {
		fields[k] = v
	}

	WithFields(fields).Info("Chat Event")
}

// LogError logs detailed error information
func LogError(err error, context string, metadata map[string]interface{}) {
	fields := logrus.Fields{
		"error":   err.Error(),
		"context": context,
		"type":    "error_detail",
	}

	for k, v := range metadata {
		fields[k] = v
	}

	WithFields(fields).Error("Application Error")
}

// SetLevel changes the logger level at runtime
func SetLevel(level LogLevel) {
	if instance != nil {
		instance.mu.Lock()
		defer instance.mu.Unlock()
		instance.SetLevel(getLogrusLevel(level))
	}
}
