// Package renderthread coordinates all GPU-facing work of a multi-window
// renderer on one dedicated worker.
//
// # Overview
//
// A single render thread exists per process. [Start] creates it, [Get]
// returns it from any goroutine, and [Shutdown] tears it down:
//
//	rt, err := renderthread.Start(renderthread.WithConfig(cfg))
//	if err != nil {
//	    return err
//	}
//	defer renderthread.Shutdown()
//
// # Two faces
//
// [*RenderThread] holds what any goroutine may call: frame pacing, external
// image registration, notifications and memory reports. [*Worker] holds what
// only the render worker may call: renderer lifecycle, frame execution,
// device-reset handling and access to the shared GPU context. A *Worker is
// only reachable from inside a task the worker runs:
//
//	err := rt.RunSync(ctx, window, renderthread.EventFunc(func(w *renderthread.Worker, id renderthread.WindowID) {
//	    c, err := w.CreateCompositor(widget)
//	    if err != nil {
//	        return
//	    }
//	    w.AddRenderer(id, newRenderer(c))
//	}))
//
// # Ordering
//
// Notifications, scene updates and events share one FIFO queue, so the
// worker sees them in submission order. There is no other way to post work
// to the worker.
//
// # Frame pacing
//
// Producers call [RenderThread.TooManyPendingFrames] before requesting a
// frame with [RenderThread.IncPendingFrameCount]. Each contributing document
// then reports through [RenderThread.HandleFrameOneDoc]; once all did, the
// worker composites the frame if any document asked for it.
//
// # Device reset
//
// A lost GPU context, detected after every frame through the compositor,
// starts device-reset handling: frames are skipped, the shared context and
// surface pool are dropped and external image queues are force-released.
// Handling ends when the owner removed every renderer.
package renderthread
