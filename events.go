package renderthread

import (
	"context"
	"image"

	"github.com/gogpu/renderthread/texture"
)

// Event is work scheduled on the render worker for one window.
//
// Events travel through the same ordered queue as scene updates and frame
// notifications, so they run in submission order relative to them.
type Event interface {
	Run(w *Worker, window WindowID)
}

// EventFunc adapts a function to Event.
type EventFunc func(w *Worker, window WindowID)

// Run calls f.
func (f EventFunc) Run(w *Worker, window WindowID) { f(w, window) }

// HandleFrameOneDoc reports that one document contributing to window's
// front pending frame is ready. render tells whether that document needs
// the frame drawn. Once every contributing document reported, the worker
// composites the frame if any of them asked for it and retires the record.
func (rt *RenderThread) HandleFrameOneDoc(window WindowID, render bool) error {
	return rt.post(window, func(w *Worker) {
		w.handleFrameOneDoc(window, render)
	})
}

// WakeUp asks the worker to update window's renderer without a new frame.
func (rt *RenderThread) WakeUp(window WindowID) error {
	return rt.post(window, func(w *Worker) {
		if rt.frames.MarkedDestroyed(uint64(window)) {
			return
		}
		if st, ok := w.renderers[window]; ok {
			st.renderer.Update()
		}
	})
}

// PipelineSizeChanged forwards a pipeline resize to window's renderer if it
// implements PipelineResizer.
func (rt *RenderThread) PipelineSizeChanged(window WindowID, pipeline uint64, size image.Point) error {
	return rt.post(window, func(w *Worker) {
		if rt.frames.MarkedDestroyed(uint64(window)) {
			return
		}
		st, ok := w.renderers[window]
		if !ok {
			return
		}
		if pr, ok := st.renderer.(PipelineResizer); ok {
			pr.PipelineSizeChanged(pipeline, size)
		}
	})
}

// RunEvent schedules ev for window on the worker. Events for destroyed
// windows are dropped.
func (rt *RenderThread) RunEvent(window WindowID, ev Event) error {
	return rt.post(window, func(w *Worker) {
		if rt.frames.MarkedDestroyed(uint64(window)) {
			return
		}
		ev.Run(w, window)
	})
}

// PostSceneUpdate delivers update to window's renderer in queue order.
func (rt *RenderThread) PostSceneUpdate(window WindowID, update any) error {
	return rt.post(window, func(w *Worker) {
		if rt.frames.MarkedDestroyed(uint64(window)) {
			return
		}
		if st, ok := w.renderers[window]; ok {
			st.renderer.ApplySceneUpdate(update)
		}
	})
}

// RunSync runs ev on the worker and blocks until it finished. Unlike
// RunEvent it also runs for windows that are not rendering, which makes it
// the way to add renderers. If ctx ends first the event still runs later
// and RunSync returns ctx.Err().
func (rt *RenderThread) RunSync(ctx context.Context, window WindowID, ev Event) error {
	done := make(chan struct{})
	if err := rt.post(window, func(w *Worker) {
		defer close(done)
		ev.Run(w, window)
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// External images. Registration and unregistration take effect on the
// registry immediately; the rest is ordered with frames through the queue.

// RegisterExternalImage registers host under id. Registering an id twice
// without unregistering it panics.
func (rt *RenderThread) RegisterExternalImage(id uint64, host texture.Host) {
	rt.textures.Register(id, host)
}

// UnregisterExternalImage removes id. The host is destroyed on the worker
// once no render holds it any more.
func (rt *RenderThread) UnregisterExternalImage(id uint64) {
	if !rt.textures.Unregister(id) {
		return
	}
	// The registry still holds the host; a shut down queue means the
	// shutdown task already released it.
	_ = rt.post(0, func(w *Worker) {
		rt.textures.DrainDeferred()
	})
}

// PrepareForUse stages id so that its preparation hook runs on the worker
// before the next composite locks it.
func (rt *RenderThread) PrepareForUse(id uint64) error {
	return rt.post(0, func(w *Worker) {
		rt.textures.PrepareForUse(id)
	})
}

// NotifyNotUsed tells id's host that it will not be locked this frame.
func (rt *RenderThread) NotifyNotUsed(id uint64) error {
	return rt.post(0, func(w *Worker) {
		rt.textures.NotifyNotUsed(id)
	})
}

// ExternalImageCount returns the number of registered external images.
func (rt *RenderThread) ExternalImageCount() int {
	return rt.textures.Len()
}
