// Package logging configures colored structured logging with tint.
//
// Usage:
//
//	logging.Setup("debug")                   // level from configuration
//	logging.SetupWithLevel(slog.LevelDebug)  // explicit level override
//
// Levels: debug, info, warn, error (default: info).
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Setup configures colored logging at the named level. Unknown names fall
// back to INFO and are reported once the logger is installed.
func Setup(level string) {
	lvl, err := ParseLevel(level)
	SetupWithLevel(lvl)
	if err != nil {
		slog.Warn("Falling back to info logging", "error", err)
	}
}

// SetupWithLevel configures colored logging at the given level.
func SetupWithLevel(level slog.Level) {
	slog.SetDefault(slog.New(NewHandler(os.Stderr, level)))
}

// NewHandler returns the tint handler used by Setup, writing to w.
func NewHandler(w io.Writer, level slog.Level) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		AddSource:  true,
		NoColor:    w != os.Stderr && w != os.Stdout,
	})
}

// ParseLevel maps debug, info, warn and error to slog levels. The empty
// string is INFO.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
