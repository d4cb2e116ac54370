// Package logger provides the engine's structured logging, built on
// slog with an optional lumberjack-rotated file target. Every
// long-lived component holds a logger scoped with .With("component",
// ...); the debug HTTP API additionally scopes requests by a
// correlation ID carried through the request context.
package logger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ContextKey is the type for context keys carried on a request context.
type ContextKey string

const (
	// CorrelationIDKey is the context key for the debug API's
	// per-request correlation ID.
	CorrelationIDKey ContextKey = "correlation_id"

	// NodeIDKey is the context key for the worker node ID a log
	// record pertains to; FromContext adds it to a logger as node_id.
	NodeIDKey ContextKey = "node_id"
)

// Config holds logger configuration, loaded from config.LogConfig.
type Config struct {
	Level      string
	Format     string
	Output     string
	Filename   string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

// NewLogger creates a new structured logger based on configuration
func NewLogger(cfg Config) *slog.Logger {
	level := ParseLevel(cfg.Level)
	writer := SetupWriter(cfg)

	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: level,
		AddSource: level == slog.LevelDebug,
	}

	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	return slog.New(handler)
}

// ParseLevel parses string log level to slog.Level
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupWriter configures the output writer based on configuration
func SetupWriter(cfg Config) io.Writer {
	switch strings.ToLower(cfg.Output) {
	case "file":
		if cfg.Filename == "" {
			return os.Stdout
		}
		return &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,    // megabytes
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,     // days
			Compress:   cfg.Compress,
		}
	case "stderr":
		return os.Stderr
	case "stdout", "":
		return os.Stdout
	default:
		return os.Stdout
	}
}

// GenerateCorrelationID generates a unique ID for a debug API request.
func GenerateCorrelationID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("corr_%d", time.Now().UnixNano())
	}
	return "corr_" + hex.EncodeToString(b)
}

// WithCorrelationID adds a correlation ID to ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, id)
}

// CorrelationIDFromContext extracts the correlation ID from ctx, if any.
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return id
	}
	return ""
}

// WithNodeID adds a worker node ID to ctx.
func WithNodeID(ctx context.Context, nodeID string) context.Context {
	return context.WithValue(ctx, NodeIDKey, nodeID)
}

// NodeIDFromContext extracts the worker node ID from ctx, if any.
func NodeIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(NodeIDKey).(string); ok {
		return id
	}
	return ""
}

// RequestLoggingMiddleware returns HTTP middleware for the debug API
// that assigns a correlation ID to each request and logs method,
// path, status, and duration on completion.
func RequestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			correlationID := r.Header.Get("X-Correlation-ID")
			if correlationID == "" {
				correlationID = GenerateCorrelationID()
			}

			ctx := WithCorrelationID(r.Context(), correlationID)
			r = r.WithContext(ctx)
			w.Header().Set("X-Correlation-ID", correlationID)

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			logger.Info("debug api request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.statusCode,
				"duration", time.Since(start),
				"correlation_id", correlationID,
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// FromContext returns logger scoped with whatever correlation/node IDs
// are present on ctx.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := CorrelationIDFromContext(ctx); id != "" {
		logger = logger.With("correlation_id", id)
	}
	if id := NodeIDFromContext(ctx); id != "" {
		logger = logger.With("node_id", id)
	}
	return logger
}
