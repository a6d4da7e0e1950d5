// Package logger provides structured logging for the QChat service.
// It wraps log/slog with a JSON handler, enriches records from the request
// context, and can ship logs to Better Stack in the background.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	slogbetterstack "github.com/samber/slog-betterstack"
)

// Logger is the application logger.
type Logger struct {
	*slog.Logger
	level slog.Level
}

// Options configures Setup.
type Options struct {
	Level            string
	Writer           io.Writer
	BetterstackToken string
	Async            AsyncOptions
}

// New creates a logger writing JSON to stdout.
func New(level string) *Logger {
	return NewWithWriter(level, os.Stdout)
}

// NewWithWriter creates a logger writing JSON to w.
func NewWithWriter(level string, w io.Writer) *Logger {
	lvl := ParseLevel(level)
	return &Logger{
		Logger: slog.New(NewContextHandler(newJSONHandler(w, lvl))),
		level:  lvl,
	}
}

// Setup builds the production logger: JSON to the writer, plus an async
// Better Stack sink when a token is configured. The returned shutdown func
// drains pending remote records.
func Setup(opts Options) (*Logger, func(context.Context) error) {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	lvl := ParseLevel(opts.Level)

	handlers := []slog.Handler{newJSONHandler(w, lvl)}
	var async *AsyncHandler
	if opts.BetterstackToken != "" {
		remote := slogbetterstack.Option{
			Level: lvl,
			Token: opts.BetterstackToken,
		}.NewBetterstackHandler()
		async = NewAsyncHandler(remote, opts.Async)
		handlers = append(handlers, async)
	}

	log := &Logger{
		Logger: slog.New(NewContextHandler(NewMultiHandler(handlers...))),
		level:  lvl,
	}
	return log, async.Shutdown
}

// ParseLevel maps a config string to a slog level. Unknown values mean info.
func ParseLevel(level string) slog.Level {
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

func newJSONHandler(w io.Writer, lvl slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       lvl,
		ReplaceAttr: replaceAttr,
	})
}

func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.TimeKey:
		a.Key = "timestamp"
	case slog.LevelKey:
		lvl := a.Value.String()
		if lvl == "WARN" {
			lvl = "warning"
		}
		a.Value = slog.StringValue(strings.ToLower(lvl))
	case slog.MessageKey:
		a.Key = "message"
	}
	return a
}

// Level returns the minimum enabled level.
func (l *Logger) Level() slog.Level {
	return l.level
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.With(args...), level: l.level}
}

// WithModule tags records with the emitting package.
func (l *Logger) WithModule(module string) *Logger {
	return l.with("module", module)
}

// WithRequestID tags records with a request ID.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.with("request_id", requestID)
}

// WithError attaches an error.
func (l *Logger) WithError(err error) *Logger {
	return l.with("error", err)
}

// WithField attaches a single field.
func (l *Logger) WithField(key string, value any) *Logger {
	return l.with(key, value)
}

// WithFields attaches multiple fields.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return l.with(args...)
}

// Discard returns a logger that drops everything. Used in tests.
func Discard() *Logger {
	return NewWithWriter("error", io.Discard)
}
