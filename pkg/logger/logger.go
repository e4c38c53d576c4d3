// Package logger configures structured logging for the bridge.
//
// Text output goes through tint for readable terminal logs; the json format
// is meant for hosts that ship logs to a collector.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

// Config holds the configuration of the logger.
type Config struct {
	Level  slog.Level
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// Logger wraps slog.Logger.
type Logger struct {
	*slog.Logger
}

// New creates a new logger with the given config.
func New(config Config) *Logger {
	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	if config.Format == "json" {
		opts := &slog.HandlerOptions{
			Level: config.Level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey {
					return slog.Attr{
						Key:   a.Key,
						Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
					}
				}
				return a
			},
		}
		return &Logger{Logger: slog.New(slog.NewJSONHandler(out, opts))}
	}

	return &Logger{Logger: slog.New(tint.NewHandler(out, &tint.Options{
		Level:      config.Level,
		TimeFormat: time.Kitchen,
	}))}
}

// FromConfig creates a logger configuration from string settings.
// Unknown levels fall back to info and unknown formats to text.
func FromConfig(level, format string) Config {
	config := Config{
		Level:  slog.LevelInfo,
		Format: "text",
	}

	switch strings.ToLower(level) {
	case "debug":
		config.Level = slog.LevelDebug
	case "warn", "warning":
		config.Level = slog.LevelWarn
	case "error":
		config.Level = slog.LevelError
	}

	if strings.ToLower(format) == "json" {
		config.Format = "json"
	}
	return config
}

// WithComponent returns a logger tagged with a component name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("component", name))}
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = New(Config{Level: slog.LevelInfo, Format: "text"})
)

// Default returns the process-wide logger.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault replaces the process-wide logger. Passing nil restores a text
// logger at info level.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if l == nil {
		l = New(Config{Level: slog.LevelInfo, Format: "text"})
	}
	defaultLogger = l
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
