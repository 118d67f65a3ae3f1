// Package frames tracks in-flight frame requests per window.
//
// Each window owns a FIFO queue of pending frame records bounded by a
// ceiling. Producers check TooMany before requesting a frame; the render
// thread reports document arrivals for the front record and composites once
// every contributing document has arrived.
package frames

import (
	"errors"
	"sync"
	"time"
)

// DefaultCeiling is the pending-frame limit used when none is configured.
const DefaultCeiling = 3

var (
	// ErrTooMany is returned by Inc when the window is at its ceiling.
	ErrTooMany = errors.New("frames: too many pending frames")

	// ErrDestroyed is returned by Inc for a destroyed window.
	ErrDestroyed = errors.New("frames: window destroyed")
)

// Record is one pending frame request.
type Record struct {
	StartVsync  uint64
	Start       time.Time
	NeedsRender bool

	// Docs is the number of documents contributing to the frame.
	Docs int
	// Seen counts the documents that reported so far.
	Seen int
}

type window struct {
	pending   []Record
	builds    int
	destroyed bool
	// retired is set by Remove. The window stays destroyed until Add.
	retired bool
}

// Tracker holds the frame state of every window. It is safe for concurrent
// use; the lock is held only for map and queue mutation.
type Tracker struct {
	mu      sync.Mutex
	ceiling int
	windows map[uint64]*window
}

// New creates a tracker with the given ceiling. Values below 1 select
// DefaultCeiling.
func New(ceiling int) *Tracker {
	if ceiling < 1 {
		ceiling = DefaultCeiling
	}
	return &Tracker{ceiling: ceiling, windows: make(map[uint64]*window)}
}

// Ceiling returns the pending-frame limit.
func (t *Tracker) Ceiling() int { return t.ceiling }

// Add creates the state of a window if it does not exist yet. A window
// retired by Remove starts over with fresh state.
func (t *Tracker) Add(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok := t.windows[id]; ok && w.retired {
		delete(t.windows, id)
	}
	t.getLocked(id)
}

// Remove frees the queue of a window and leaves it destroyed, so late
// requests for it are rejected instead of recreating it.
func (t *Tracker) Remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.windows[id] = &window{destroyed: true, retired: true}
}

func (t *Tracker) getLocked(id uint64) *window {
	w, ok := t.windows[id]
	if !ok {
		w = &window{}
		t.windows[id] = w
	}
	return w
}

// Inc appends a frame record with NeedsRender false and bumps the build
// count. docs below 1 mean a single document. No record is added when the
// window is destroyed or at its ceiling.
func (t *Tracker) Inc(id, vsync uint64, start time.Time, docs int) error {
	if docs < 1 {
		docs = 1
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	w := t.getLocked(id)
	if w.destroyed {
		return ErrDestroyed
	}
	if len(w.pending) >= t.ceiling {
		return ErrTooMany
	}
	w.pending = append(w.pending, Record{StartVsync: vsync, Start: start, Docs: docs})
	w.builds++
	return nil
}

// TooMany reports whether the window's queue is at the ceiling.
func (t *Tracker) TooMany(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.windows[id]
	return ok && len(w.pending) >= t.ceiling
}

// DecBuild matches a scene-build increment made by Inc.
func (t *Tracker) DecBuild(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok := t.windows[id]; ok && w.builds > 0 {
		w.builds--
	}
}

// Builds returns the outstanding scene-build count.
func (t *Tracker) Builds(id uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok := t.windows[id]; ok {
		return w.builds
	}
	return 0
}

// Pending returns the queue length of a window.
func (t *Tracker) Pending(id uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok := t.windows[id]; ok {
		return len(w.pending)
	}
	return 0
}

// Snapshot returns a copy of a window's queue, front first.
func (t *Tracker) Snapshot(id uint64) []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.windows[id]
	if !ok {
		return nil
	}
	return append([]Record(nil), w.pending...)
}

// IsDestroyed reports whether the window was torn down. Unknown windows
// count as destroyed.
func (t *Tracker) IsDestroyed(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.windows[id]
	return !ok || w.destroyed
}

// MarkedDestroyed reports whether the window is known and marked
// destroyed. Unlike IsDestroyed it is false for unknown windows.
func (t *Tracker) MarkedDestroyed(id uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	w, ok := t.windows[id]
	return ok && w.destroyed
}

// SetDestroyed marks a window destroyed. The mark is terminal.
func (t *Tracker) SetDestroyed(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.getLocked(id).destroyed = true
}

// FrameOneDoc records one document arrival for the front frame, ORing render
// into its NeedsRender flag. When every contributing document has arrived
// it returns the completed record and true; the record stays at the front
// until PopFront. For a destroyed window the completed record is dropped
// and ready is false.
func (t *Tracker) FrameOneDoc(id uint64, render bool) (rec Record, ready bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.windows[id]
	if !ok || len(w.pending) == 0 {
		return Record{}, false
	}
	front := &w.pending[0]
	front.NeedsRender = front.NeedsRender || render
	front.Seen++
	if front.Seen < front.Docs {
		return Record{}, false
	}
	if w.destroyed {
		w.pending = w.pending[1:]
		return Record{}, false
	}
	return *front, true
}

// PopFront removes the front record after its composite finished.
func (t *Tracker) PopFront(id uint64) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.windows[id]
	if !ok || len(w.pending) == 0 {
		return Record{}, false
	}
	rec := w.pending[0]
	w.pending = w.pending[1:]
	return rec, true
}
