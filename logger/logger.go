// Package logger configures the process-wide slog logger.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"
)

type Config struct {
	DataDir string
	DevMode bool

	// Level, Format and File fall back to LOG_LEVEL, LOG_FORMAT and LOG_FILE.
	Level  string
	Format string
	File   string

	// Console receives logs when no file is used. Defaults to stdout; the MCP
	// server sets stderr because stdout carries the protocol.
	Console io.Writer
}

// Init initializes the global slog logger.
// In production (DevMode=false), logs are written to dataDir/server.log.
// In development (DevMode=true), logs are written to the console.
func Init(cfg Config) {
	level := parseLevel(firstNonEmpty(cfg.Level, os.Getenv("LOG_LEVEL")))
	opts := &slog.HandlerOptions{Level: level}

	w := cfg.Console
	if w == nil {
		w = os.Stdout
	}

	logFile := firstNonEmpty(cfg.File, os.Getenv("LOG_FILE"))
	if logFile == "" && !cfg.DevMode && cfg.DataDir != "" {
		logFile = filepath.Join(cfg.DataDir, "server.log")
	}

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
			slog.Error("failed to create log directory, using console only", "file", logFile, "error", err)
		} else {
			f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				slog.Error("failed to open log file, using console only", "file", logFile, "error", err)
			} else {
				w = f
			}
		}
	}

	slog.SetDefault(slog.New(newHandler(w, firstNonEmpty(cfg.Format, os.Getenv("LOG_FORMAT")), opts)))
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// NewRequestLogger creates a logger with a unique requestId for API handlers.
func NewRequestLogger() *slog.Logger {
	return slog.With("requestId", uuid.Must(uuid.NewV7()).String())
}

// LogPanic logs a recovered panic value with its stack trace.
func LogPanic(recovered any, msg string, args ...any) {
	args = append(args,
		"panic", fmt.Sprint(recovered),
		"stack", string(debug.Stack()),
	)
	slog.Error(msg, args...)
}
