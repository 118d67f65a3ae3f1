package renderthread

// HandleDeviceReset starts device-reset handling after a GPU context loss.
// where names the detection site. It is idempotent while handling is
// active.
//
// The flag is set first, so every later frame is skipped. The owner is then
// notified if notify is set, synchronously or on the notifier goroutine as
// configured. Finally every GPU-bound resource is released before returning:
// the shared context, the shared surface pool, and the prepare and deferred
// queues of the external image registry, whose unregistered hosts are
// destroyed regardless of outstanding references.
func (w *Worker) HandleDeviceReset(where string, notify bool) {
	w.mustBeWorker("HandleDeviceReset")
	if !w.rt.handlingReset.CompareAndSwap(false, true) {
		return
	}
	Logger().Warn("renderthread: device reset", "where", where)

	if notify {
		if fn := w.rt.opts.onReset; fn != nil {
			w.notify(func() { fn(where) })
		}
	}

	w.ClearSharedContext()
	w.ClearSharedSurfacePool()
	released := w.rt.textures.ForceRelease()
	Logger().Debug("renderthread: device reset released textures", "count", released)
}

// IsHandlingDeviceReset reports whether device-reset handling is active.
func (w *Worker) IsHandlingDeviceReset() bool {
	return w.rt.handlingReset.Load()
}

// HandleRenderError reports an unrecoverable renderer failure. The first
// call notifies the error handler, drops the cached GPU resources of all
// external images and releases the deferred queue; later calls are ignored
// until the last renderer is removed.
func (w *Worker) HandleRenderError(kind RenderErrorKind) {
	w.mustBeWorker("HandleRenderError")
	if w.rt.handlingError.Load() {
		return
	}
	Logger().Warn("renderthread: render error", "kind", kind.String())

	if fn := w.rt.opts.onError; fn != nil {
		w.notify(func() { fn(kind) })
	}
	w.rt.textures.ClearCachedResources()
	w.rt.handlingError.Store(true)
}

// IsHandlingRenderError reports whether render-error handling is active.
func (w *Worker) IsHandlingRenderError() bool {
	w.mustBeWorker("IsHandlingRenderError")
	return w.rt.handlingError.Load()
}

// notify runs fn according to the configured notification mode.
func (w *Worker) notify(fn func()) {
	if w.rt.cfg.ResetNotification == NotifySync {
		fn()
		return
	}
	w.rt.notes.push(fn)
}
