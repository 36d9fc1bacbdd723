// Package logging holds the process-wide default logger used by the engine packages.
// Components that accept a WithLogger option prefer the injected logger and fall back to Logger().
package logging

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
)

// nopHandler discards every record; Enabled reports false so callers skip formatting.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(Nop())
}

// Nop returns a logger that discards all output.
//
// Returns:
//   - *slog.Logger: a silent logger
func Nop() *slog.Logger {
	return slog.New(nopHandler{})
}

// SetLogger replaces the default logger. Passing nil restores the silent default.
// Safe for concurrent use.
//
// Parameters:
//   - l: the logger to install, or nil
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = Nop()
	}
	loggerPtr.Store(l)
}

// Logger returns the current default logger.
//
// Returns:
//   - *slog.Logger: the active logger (never nil)
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// Or returns l when it is non-nil and the default logger otherwise.
//
// Parameters:
//   - l: an optional injected logger
//
// Returns:
//   - *slog.Logger: l or the default logger
func Or(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return Logger()
}

// NewText builds a text logger writing to stderr at the given level name
// ("debug", "info", "warn", "error"). Unknown names map to info.
//
// Parameters:
//   - level: the minimum level name
//
// Returns:
//   - *slog.Logger: the configured logger
func NewText(level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
//
// Parameters:
//   - level: the level name
//
// Returns:
//   - slog.Level: the parsed level
func ParseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
