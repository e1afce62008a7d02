// Package logger wraps log/slog with the request and synthesis-job context used across the service.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

type contextKey string

const (
	// RequestIDKey is the context key for inbound request IDs.
	RequestIDKey contextKey = "request_id"
	// JobIDKey is the context key for synthesis job IDs.
	JobIDKey contextKey = "job_id"
)

// Logger wraps slog.Logger.
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// Format is the output format (json, text).
	Format string
	// Output defaults to os.Stdout.
	Output      io.Writer
	AddSource   bool
	ServiceName string
}

// New creates a new Logger with the given configuration.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     parseLevel(cfg.Level),
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339Nano))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}

	if cfg.ServiceName != "" {
		handler = handler.WithAttrs([]slog.Attr{
			slog.String("service", cfg.ServiceName),
		})
	}

	return &Logger{Logger: slog.New(handler)}
}

// NewDefault creates an info-level JSON logger on stdout.
func NewDefault() *Logger {
	return New(Config{Level: "info", Format: "json", ServiceName: "avatar-api"})
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return New(Config{Output: io.Discard})
}

// WithRequestID returns a new logger with the request ID attached.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("request_id", requestID))}
}

// WithJobID returns a new logger with the synthesis job ID attached.
func (l *Logger) WithJobID(jobID string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("job_id", jobID))}
}

// WithComponent returns a new logger with the component name attached.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("component", component))}
}

// WithError returns a new logger with the error attached.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return &Logger{Logger: l.Logger.With(slog.String("error", err.Error()))}
}

// FromContext returns a logger enriched with the request and job IDs found in ctx.
func (l *Logger) FromContext(ctx context.Context) *Logger {
	result := l
	if reqID, ok := ctx.Value(RequestIDKey).(string); ok && reqID != "" {
		result = result.WithRequestID(reqID)
	}
	if jobID, ok := ctx.Value(JobIDKey).(string); ok && jobID != "" {
		result = result.WithJobID(jobID)
	}
	return result
}

// LogFatal logs a fatal error and exits.
func (l *Logger) LogFatal(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	l.Error(msg, args...)
	os.Exit(1)
}

// ContextWithRequestID adds a request ID to the context.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// ContextWithJobID adds a synthesis job ID to the context.
func ContextWithJobID(ctx context.Context, jobID string) context.Context {
	return context.WithValue(ctx, JobIDKey, jobID)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
