package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

type ctxKey struct{}

// Config controls the handler built by New
type Config struct {
	// Level is one of debug, info, warn or error. Anything else means info.
	Level string
	// JSON selects the JSON handler; otherwise logfmt-style text is written
	JSON bool
	// Output defaults to os.Stderr
	Output    io.Writer
	AddSource bool
}

// DefaultConfig logs JSON at info level to stderr
func DefaultConfig() Config {
	return Config{Level: "info", JSON: true, Output: os.Stderr}
}

// Logger is a slog.Logger carrying the helpers the HTTP and relay layers use
type Logger struct {
	*slog.Logger
}

var global atomic.Pointer[Logger]

// New builds a Logger from config. The first logger built also becomes the
// global one unless SetGlobal is called later.
func New(config Config) *Logger {
	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(config.Level))); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: config.AddSource}
	var h slog.Handler = slog.NewTextHandler(out, opts)
	if config.JSON {
		h = slog.NewJSONHandler(out, opts)
	}

	l := &Logger{Logger: slog.New(h)}
	global.CompareAndSwap(nil, l)
	return l
}

// Discard drops everything. Used by tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func SetGlobal(l *Logger) {
	global.Store(l)
}

// GetGlobal returns the process logger, creating a default one on first use
func GetGlobal() *Logger {
	if l := global.Load(); l != nil {
		return l
	}
	global.CompareAndSwap(nil, New(DefaultConfig()))
	return global.Load()
}

// LogError logs msg at error level with err flattened into an "error" field
func (l *Logger) LogError(err error, msg string, args ...any) {
	text := "<nil>"
	if err != nil {
		text = err.Error()
	}
	l.Error(msg, append([]any{"error", text}, args...)...)
}

func (l *Logger) with(key, value string) *Logger {
	if value == "" {
		return l
	}
	return &Logger{Logger: l.With(key, value)}
}

func (l *Logger) WithRequestID(requestID string) *Logger { return l.with("request_id", requestID) }

func (l *Logger) WithUserID(userID string) *Logger { return l.with("user_id", userID) }

// NewContext stores the logger in ctx
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the request-scoped logger stored in ctx, or the global one
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*Logger); ok && l != nil {
			return l
		}
	}
	return GetGlobal()
}

// LogRequest writes the access-log line for one HTTP request
func (l *Logger) LogRequest(method, path string, status int, latency time.Duration) {
	l.Info("request completed",
		"method", method,
		"path", path,
		"status", status,
		"latency_ms", latency.Milliseconds(),
	)
}
