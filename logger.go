package fractal

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for fractal and its device packages.
// By default nothing is logged. Pass nil to restore the silent default.
// Dispatchers already returned by Open and not yet closed receive the new
// logger too.
//
// Log levels used:
//   - [slog.LevelDebug]: per-render timings, buffer sizes, kernel source
//   - [slog.LevelInfo]: device selection, kernel compilation
//   - [slog.LevelWarn]: failed renders, resource release errors
//
// Example:
//
//	fractal.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	for _, d := range liveDispatchers() {
		propagateLogger(d, l)
	}
}

// Logger returns the current logger. Device packages call this to share
// the same configuration without import cycles.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by dispatchers that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// propagateLogger passes l to d if d accepts a logger.
func propagateLogger(d Dispatcher, l *slog.Logger) {
	if ls, ok := d.(loggerSetter); ok {
		ls.SetLogger(l.With("device", d.Name()))
	}
}
