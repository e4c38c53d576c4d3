package errors

import (
	"context"
	"log/slog"

	"github.com/go-drift/pushbridge/pkg/logger"
)

// LogHandler is an ErrorHandler that writes through a structured logger.
// Stale handles and protocol violations are expected under races with script
// teardown and are logged at warn; everything else at error.
type LogHandler struct {
	// Logger overrides logger.Default().
	Logger *logger.Logger
	// Verbose adds stack traces.
	Verbose bool
}

func (h *LogHandler) log() *logger.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return logger.Default()
}

// HandleError logs a BridgeError.
func (h *LogHandler) HandleError(err *BridgeError) {
	if err == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("op", err.Op),
		slog.String("kind", err.Kind.String()),
	}
	if err.Category != "" {
		attrs = append(attrs, slog.String("category", err.Category))
	}
	if err.Handle != "" {
		attrs = append(attrs, slog.String("handle", err.Handle))
	}
	if err.Notification != "" {
		attrs = append(attrs, slog.String("notification_id", err.Notification))
	}
	if err.Command != "" {
		attrs = append(attrs, slog.String("command", err.Command))
	}
	if err.Err != nil {
		attrs = append(attrs, slog.String("error", err.Err.Error()))
	}
	if h.Verbose && err.StackTrace != "" {
		attrs = append(attrs, slog.String("stack", err.StackTrace))
	}

	level := slog.LevelError
	switch err.Kind {
	case KindStaleHandle, KindProtocolViolation:
		level = slog.LevelWarn
	}
	h.log().LogAttrs(context.Background(), level, "bridge error", attrs...)
}

// HandlePanic logs a PanicError.
func (h *LogHandler) HandlePanic(err *PanicError) {
	if err == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("op", err.Op),
		slog.Any("value", err.Value),
	}
	if h.Verbose && err.StackTrace != "" {
		attrs = append(attrs, slog.String("stack", err.StackTrace))
	}
	h.log().LogAttrs(context.Background(), slog.LevelError, "bridge panic", attrs...)
}
