package renderthread

import (
	"errors"
	"fmt"
)

var (
	// ErrShutdown is returned when posting to a render thread that has shut
	// down, and by memory-report futures whose worker is gone.
	ErrShutdown = errors.New("renderthread: shut down")

	// ErrAlreadyStarted is returned by Start while a render thread exists.
	ErrAlreadyStarted = errors.New("renderthread: already started")

	// ErrTooManyPendingFrames is returned by IncPendingFrameCount when the
	// window is at its pending-frame ceiling. Producers should check
	// TooManyPendingFrames first.
	ErrTooManyPendingFrames = errors.New("renderthread: too many pending frames")

	// ErrWindowDestroyed is returned when requesting a frame for a destroyed
	// window.
	ErrWindowDestroyed = errors.New("renderthread: window destroyed")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("renderthread: invalid config")

	// ErrNoRecorder is returned when no composition recorder is attached to
	// a window.
	ErrNoRecorder = errors.New("renderthread: no composition recorder")
)

// RenderErrorKind classifies unrecoverable renderer failures.
type RenderErrorKind uint8

const (
	// RenderErrorInitialize means a renderer failed to initialize.
	RenderErrorInitialize RenderErrorKind = iota

	// RenderErrorMakeCurrent means the GPU context could not be made current.
	RenderErrorMakeCurrent

	// RenderErrorRender means a composite failed.
	RenderErrorRender

	// RenderErrorNewSurface means no compositor surface could be created.
	RenderErrorNewSurface
)

// String returns the error kind name.
func (k RenderErrorKind) String() string {
	switch k {
	case RenderErrorInitialize:
		return "initialize"
	case RenderErrorMakeCurrent:
		return "make-current"
	case RenderErrorRender:
		return "render"
	case RenderErrorNewSurface:
		return "new-surface"
	default:
		return fmt.Sprintf("RenderErrorKind(%d)", uint8(k))
	}
}

// wrongThread panics for a worker-only call made outside a worker task.
func wrongThread(op string) {
	panic("renderthread: " + op + " called outside the render worker")
}
