// Package logging is the process-wide slog logger. Simulation packages log
// loop progress at Debug, caps and aborts at Warn and conservation faults at
// Error. Context variants add the run and request ids carried by ctx.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type contextKey string

const (
	requestIDKey contextKey = "requestID"
	runIDKey     contextKey = "runID"
)

var (
	logger *slog.Logger
	output io.Writer = os.Stdout
)

func init() {
	SetLevel(slog.LevelInfo)
}

// SetOutput redirects log output. Call SetLevel or SetJSONOutput afterwards
// to rebuild the handler.
func SetOutput(w io.Writer) {
	output = w
}

// ParseLevel maps a verbosity name to a level. Unknown names give Info.
func ParseLevel(name string) slog.Level {
	switch name {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// SetLevel installs the compact console handler at level.
func SetLevel(level slog.Level) {
	logger = slog.New(NewCompactHandler(output, &slog.HandlerOptions{Level: level}))
}

// SetJSONOutput installs a JSON handler at level, for log collectors.
func SetJSONOutput(level slog.Level) {
	logger = slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level}))
}

// WithRequestID tags ctx with the id of an HTTP request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns the request id in ctx, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithRunID tags ctx with the id of a simulation run.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// GetRunID returns the run id in ctx, or "".
func GetRunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}

// contextArgs puts the ids found in ctx in front of args.
func contextArgs(ctx context.Context, args []any) []any {
	var ids []any
	if id := GetRequestID(ctx); id != "" {
		ids = append(ids, "requestID", id)
	}
	if id := GetRunID(ctx); id != "" {
		ids = append(ids, "runID", id)
	}
	if ids == nil {
		return args
	}
	return append(ids, args...)
}

func log(ctx context.Context, level slog.Level, msg string, args []any) {
	logger.Log(ctx, level, msg, contextArgs(ctx, args)...)
}

// Trace is for per-vessel detail inside a solve.
func Trace(msg string, args ...any) { log(context.Background(), LevelTrace, msg, args) }

func Debug(msg string, args ...any) { log(context.Background(), slog.LevelDebug, msg, args) }
func Info(msg string, args ...any)  { log(context.Background(), slog.LevelInfo, msg, args) }
func Warn(msg string, args ...any)  { log(context.Background(), slog.LevelWarn, msg, args) }
func Error(msg string, args ...any) { log(context.Background(), slog.LevelError, msg, args) }

func DebugContext(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelDebug, msg, args)
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelInfo, msg, args)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelWarn, msg, args)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	log(ctx, slog.LevelError, msg, args)
}

// Fatal logs at Error and exits with status 1.
func Fatal(msg string, args ...any) {
	Error(msg, args...)
	os.Exit(1)
}
