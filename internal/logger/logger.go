package logger

import (
	"log/slog"
	"os"
	"strings"

	"elearning-platform/internal/config"
)

var Logger *slog.Logger

// InitLogger initializes structured logging based on configuration and
// installs it as the slog default. LOG_LEVEL wins over GIN_MODE.
func InitLogger(cfg *config.Config) *slog.Logger {
	level := parseLevel(cfg.LogLevel, cfg.GinMode)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.GinMode == "debug", // Only add source in debug mode
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	Logger = slog.New(handler).With("service", cfg.ServiceName)
	slog.SetDefault(Logger)

	Logger.Info("Structured logging initialized", "level", level.String())
	return Logger
}

func parseLevel(logLevel, ginMode string) slog.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	if ginMode == "debug" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// Helper functions for common log operations
func Info(msg string, args ...any) {
	if Logger != nil {
		Logger.Info(msg, args...)
	}
}

func Error(msg string, args ...any) {
	if Logger != nil {
		Logger.Error(msg, args...)
	}
}

func Debug(msg string, args ...any) {
	if Logger != nil {
		Logger.Debug(msg, args...)
	}
}

func Warn(msg string, args ...any) {
	if Logger != nil {
		Logger.Warn(msg, args...)
	}
}

// Get returns the configured logger, or slog's default before InitLogger runs.
func Get() *slog.Logger {
	if Logger != nil {
		return Logger
	}
	return slog.Default()
}
