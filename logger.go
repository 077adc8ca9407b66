// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package vision

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

var (
	sinksMu sync.RWMutex
	sinks   []LoggerSetter
)

func init() {
	loggerPtr.Store(newNopLogger())
}

// LoggerSetter is implemented by components that keep their own logger,
// such as GPU backends. Registered setters receive every SetLogger call.
type LoggerSetter interface {
	SetLogger(*slog.Logger)
}

// SetLogger configures the logger for vision and all its sub-packages.
// By default, vision produces no log output. Call SetLogger to enable logging.
//
// SetLogger is safe for concurrent use. Pass nil to restore the default
// silent behavior.
//
// Log levels used by vision:
//   - [slog.LevelDebug]: per-call diagnostics (program compiled, slot moved, encoder resized)
//   - [slog.LevelInfo]: lifecycle events (backend initialized, context restored)
//   - [slog.LevelWarn]: degradations (context lost, capacity clamped, sync readback fallback)
//
// Example:
//
//	vision.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	sinksMu.RLock()
	defer sinksMu.RUnlock()
	for _, s := range sinks {
		s.SetLogger(l)
	}
}

// Logger returns the current logger used by vision.
// Sub-packages call this to share the same logger configuration.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// RegisterLoggerSetter adds s to the set of components notified by SetLogger
// and immediately hands it the current logger.
func RegisterLoggerSetter(s LoggerSetter) {
	if s == nil {
		return
	}
	sinksMu.Lock()
	sinks = append(sinks, s)
	sinksMu.Unlock()
	s.SetLogger(Logger())
}

// UnregisterLoggerSetter removes s from the notification set.
func UnregisterLoggerSetter(s LoggerSetter) {
	sinksMu.Lock()
	defer sinksMu.Unlock()
	for i, v := range sinks {
		if v == s {
			sinks = append(sinks[:i], sinks[i+1:]...)
			return
		}
	}
}
