package renderthread

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/renderthread/compositor"
	"github.com/gogpu/renderthread/recording"
	"github.com/gogpu/renderthread/texture"
)

// Worker is the render worker's side of the render thread.
//
// Every task running on the worker (events, RunSync callbacks,
// Renderer.Render) receives its own *Worker, valid until the task returns.
// Its methods may only be called while that task runs; a call through a
// *Worker kept past its task panics, even while the worker is busy with
// another task.
type Worker struct {
	*workerState
	live atomic.Bool
}

// workerState is owned by the worker goroutine and shared by the per-task
// Worker values.
type workerState struct {
	rt *RenderThread

	renderers map[WindowID]*rendererState
	recorders map[WindowID]*recording.Recorder

	sharedContext gpucontext.DeviceProvider
	surfacePool   *compositor.SurfacePool
}

type rendererState struct {
	renderer Renderer
	paused   bool
}

func newWorkerState(rt *RenderThread) *workerState {
	return &workerState{
		rt:        rt,
		renderers: make(map[WindowID]*rendererState),
		recorders: make(map[WindowID]*recording.Recorder),
	}
}

func (s *workerState) run(t task) {
	w := &Worker{workerState: s}
	w.live.Store(true)
	defer w.live.Store(false)
	t.fn(w)
}

func (w *Worker) mustBeWorker(op string) {
	if !w.live.Load() {
		wrongThread(op)
	}
}

// RenderThread returns the render thread the worker belongs to.
func (w *Worker) RenderThread() *RenderThread { return w.rt }

func (w *Worker) initDevice() {
	w.sharedContext = w.rt.opts.provider
	w.surfacePool = compositor.NewSurfacePool()
}

func (w *Worker) shutdown() {
	w.mustBeWorker("shutdown")

	w.rt.textures.Shutdown()
	if hook := w.rt.opts.shutdownHook; hook != nil {
		hook(w)
	}
	for window := range w.renderers {
		w.RemoveRenderer(window)
	}
	clear(w.recorders)
	w.rt.textures.ReleaseAll()
	w.ClearSharedContext()
	w.ClearSharedSurfacePool()
}

// Renderers.

// AddRenderer makes r the renderer of window. Adding a second renderer for
// the same window panics.
func (w *Worker) AddRenderer(window WindowID, r Renderer) {
	w.mustBeWorker("AddRenderer")
	if r == nil {
		panic(fmt.Sprintf("renderthread: AddRenderer(%d) with nil renderer", window))
	}
	if _, dup := w.renderers[window]; dup {
		panic(fmt.Sprintf("renderthread: window %d already has a renderer", window))
	}
	w.renderers[window] = &rendererState{renderer: r}
	w.rt.renderers.Add(1)
	w.rt.frames.Add(uint64(window))
	if w.rt.cfg.RecordFrames {
		w.recorders[window] = recording.NewRecorder(0)
	}
	Logger().Debug("renderthread: renderer added", "window", window)
}

// RemoveRenderer closes and forgets window's renderer and its frame state.
// Once the last renderer is gone, device-reset and render-error handling
// end: the owner is expected to have rebuilt the pipeline.
func (w *Worker) RemoveRenderer(window WindowID) {
	w.mustBeWorker("RemoveRenderer")
	st, ok := w.renderers[window]
	if !ok {
		return
	}
	delete(w.renderers, window)
	delete(w.recorders, window)
	w.rt.renderers.Add(-1)
	w.rt.frames.Remove(uint64(window))
	st.renderer.Close()

	if len(w.renderers) == 0 {
		if w.rt.handlingReset.Load() {
			w.ClearSharedContext()
		}
		w.rt.handlingReset.Store(false)
		w.rt.handlingError.Store(false)
	}
	Logger().Debug("renderthread: renderer removed", "window", window)
}

// Renderer returns window's renderer, or nil.
func (w *Worker) Renderer(window WindowID) Renderer {
	w.mustBeWorker("Renderer")
	if st, ok := w.renderers[window]; ok {
		return st.renderer
	}
	return nil
}

// CreateCompositor constructs a compositor for widget from the configured
// registry, by name if the config forces one, by priority otherwise. The
// shared surface pool is handed to the backend. When no backend can be
// built, render-error handling starts with RenderErrorNewSurface.
func (w *Worker) CreateCompositor(widget compositor.Widget) (compositor.Compositor, error) {
	w.mustBeWorker("CreateCompositor")

	reg := w.rt.opts.compositors
	pool := w.SharedSurfacePool()

	var (
		c   compositor.Compositor
		err error
	)
	if name := w.rt.cfg.Compositor; name != "" {
		c, err = reg.CreateByName(name, widget, pool)
	} else {
		c, err = reg.Create(widget, pool)
	}
	if err != nil {
		Logger().Warn("renderthread: no compositor", "err", err)
		w.HandleRenderError(RenderErrorNewSurface)
		return nil, err
	}
	return c, nil
}

// Frames.

func (w *Worker) handleFrameOneDoc(window WindowID, render bool) {
	rec, ready := w.rt.frames.FrameOneDoc(uint64(window), render)
	if !ready {
		return
	}
	w.UpdateAndRender(window, rec.StartVsync, rec.Start, rec.NeedsRender, nil)
	w.rt.frames.PopFront(uint64(window))
}

// UpdateAndRender executes one frame for window. Staged external image
// preparations and deferred destructions run first. The renderer composites
// only if render is true and no device reset is being handled; otherwise it
// is only updated. The compositor's context is checked afterwards, even for
// skipped frames, and a lost context starts device-reset handling.
func (w *Worker) UpdateAndRender(window WindowID, vsync uint64, start time.Time, render bool, rb *Readback) {
	w.mustBeWorker("UpdateAndRender")

	st, ok := w.renderers[window]
	if !ok {
		return
	}
	w.handleTextureOps()

	stats := FrameStats{StartVsync: vsync, Start: start}
	switch {
	case w.rt.handlingReset.Load():
		st.renderer.Update()
		stats.SkippedForReset = true
		Logger().Debug("renderthread: frame skipped for device reset", "window", window, "vsync", vsync)
	case !render:
		st.renderer.Update()
	default:
		frame := FrameInfo{Window: window, StartVsync: vsync, Start: start}
		if err := st.renderer.Render(w, frame, rb); err != nil {
			Logger().Warn("renderthread: render failed", "window", window, "vsync", vsync, "err", err)
			w.HandleRenderError(RenderErrorRender)
		} else {
			stats.Rendered = true
		}
	}
	stats.End = time.Now()

	c := st.renderer.Compositor()
	if stats.Rendered {
		w.recordFrame(window, c, stats.End)
	}
	if c != nil && !w.rt.handlingReset.Load() && c.IsContextLost() {
		w.HandleDeviceReset("UpdateAndRender", true)
	}

	if obs := w.rt.opts.observer; obs != nil {
		obs.DidRender(window, stats)
	}
}

// handleTextureOps runs staged preparations and releases deferred hosts.
func (w *Worker) handleTextureOps() {
	prepared := w.rt.textures.RunPrepared()
	released := w.rt.textures.DrainDeferred()
	if prepared > 0 || released > 0 {
		Logger().Debug("renderthread: texture ops", "prepared", prepared, "released", released)
	}
}

// Pause tells window's renderer to stop using the GPU.
func (w *Worker) Pause(window WindowID) {
	w.mustBeWorker("Pause")
	if st, ok := w.renderers[window]; ok {
		st.renderer.Pause()
		st.paused = true
	}
}

// Resume resumes window's renderer. It returns false if the window has no
// renderer, device-reset handling is active, or the renderer cannot resume.
func (w *Worker) Resume(window WindowID) bool {
	w.mustBeWorker("Resume")
	st, ok := w.renderers[window]
	if !ok || w.rt.handlingReset.Load() {
		return false
	}
	if !st.renderer.Resume() {
		return false
	}
	st.paused = false
	return true
}

// IsPaused reports whether window's renderer is paused.
func (w *Worker) IsPaused(window WindowID) bool {
	w.mustBeWorker("IsPaused")
	st, ok := w.renderers[window]
	return ok && st.paused
}

// External images.

// RenderTexture returns a reference to the host registered under id, or nil.
// The caller must Release it. Hosts staged with PrepareForUse have been
// prepared by the time a frame renders.
func (w *Worker) RenderTexture(id uint64) *texture.Handle {
	w.mustBeWorker("RenderTexture")
	return w.rt.textures.Lookup(id)
}

// UnregisterExternalImageDuringShutdown removes id and destroys its host
// immediately. It is only valid during Shutdown, from a shutdown hook.
func (w *Worker) UnregisterExternalImageDuringShutdown(id uint64) {
	w.mustBeWorker("UnregisterExternalImageDuringShutdown")
	w.rt.textures.UnregisterDuringShutdown(id)
}

// Shared resources.

// SharedContext returns the shared GPU context, or nil after a device reset.
// References must not be kept across a reset.
func (w *Worker) SharedContext() gpucontext.DeviceProvider {
	w.mustBeWorker("SharedContext")
	return w.sharedContext
}

// ClearSharedContext drops the shared GPU context and destroys its device.
func (w *Worker) ClearSharedContext() {
	w.mustBeWorker("ClearSharedContext")
	p := w.sharedContext
	if p == nil {
		return
	}
	w.sharedContext = nil
	if d, ok := p.Device().(interface{ Destroy() }); ok {
		d.Destroy()
	}
}

// SharedSurfacePool returns the surface pool shared by compositors,
// creating it if needed.
func (w *Worker) SharedSurfacePool() *compositor.SurfacePool {
	w.mustBeWorker("SharedSurfacePool")
	if w.surfacePool == nil {
		w.surfacePool = compositor.NewSurfacePool()
	}
	return w.surfacePool
}

// ClearSharedSurfacePool drops the pooled buffers and the pool.
func (w *Worker) ClearSharedSurfacePool() {
	w.mustBeWorker("ClearSharedSurfacePool")
	if w.surfacePool != nil {
		w.surfacePool.Clear()
		w.surfacePool = nil
	}
}

// RendererCount returns the number of live renderers.
func (w *Worker) RendererCount() int {
	w.mustBeWorker("RendererCount")
	return len(w.renderers)
}
