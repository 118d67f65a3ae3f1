package renderthread

import (
	"fmt"
	"time"

	"github.com/gogpu/renderthread/compositor"
	"github.com/gogpu/renderthread/recording"
)

// SetCompositionRecorder attaches rec to window; every composited frame of
// the window is captured until the recorder is replaced or the renderer is
// removed. A nil rec detaches.
func (w *Worker) SetCompositionRecorder(window WindowID, rec *recording.Recorder) {
	w.mustBeWorker("SetCompositionRecorder")
	if rec == nil {
		delete(w.recorders, window)
		return
	}
	w.recorders[window] = rec
}

// WriteCollectedFrames exports the frames recorded for window as PNG files
// into dir and resets the recorder.
func (w *Worker) WriteCollectedFrames(window WindowID, dir string) ([]string, error) {
	w.mustBeWorker("WriteCollectedFrames")
	rec, ok := w.recorders[window]
	if !ok {
		return nil, fmt.Errorf("%w for window %d", ErrNoRecorder, window)
	}
	paths, err := rec.WriteFrames(dir, "png")
	if err != nil {
		return paths, err
	}
	rec.Reset()
	return paths, nil
}

// CollectedFrames decodes the frames recorded for window and resets the
// recorder.
func (w *Worker) CollectedFrames(window WindowID) ([]recording.Frame, error) {
	w.mustBeWorker("CollectedFrames")
	rec, ok := w.recorders[window]
	if !ok {
		return nil, fmt.Errorf("%w for window %d", ErrNoRecorder, window)
	}
	frames, err := rec.Frames()
	if err != nil {
		return nil, err
	}
	rec.Reset()
	return frames, nil
}

// recordFrame captures the last composite of c for window's recorder.
func (w *Worker) recordFrame(window WindowID, c compositor.Compositor, at time.Time) {
	rec, ok := w.recorders[window]
	if !ok || c == nil {
		return
	}
	rb, ok := c.(compositor.Readbacker)
	if !ok {
		return
	}
	size := rb.FrameSize()
	if size.X <= 0 || size.Y <= 0 {
		return
	}
	pool := w.SharedSurfacePool()
	img := pool.Get(size)
	defer pool.Put(img)
	if rb.Readback(img) {
		rec.Record(img, at)
	}
}
