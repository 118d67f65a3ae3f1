package renderthread

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/renderthread/compositor"
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

// SetLogger configures the logger for renderthread and its sub-packages.
// By default nothing is logged.
//
// SetLogger is safe for concurrent use. Pass nil to restore silence.
//
// Log levels used:
//   - [slog.LevelDebug]: per-frame diagnostics (skipped frames, drained queues)
//   - [slog.LevelInfo]: lifecycle (start, shutdown, compositor selected)
//   - [slog.LevelWarn]: non-fatal problems (backend failed, context lost, device reset)
//
// Example:
//
//	renderthread.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	compositor.SetLogger(l)
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
