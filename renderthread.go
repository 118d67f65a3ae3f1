package renderthread

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gogpu/renderthread/internal/frames"
	"github.com/gogpu/renderthread/internal/parallel"
	"github.com/gogpu/renderthread/texture"
)

// ThreadPool is a scene-build pool. Composition never runs on it.
type ThreadPool = parallel.Pool

var (
	singletonMu sync.Mutex
	singleton   atomic.Pointer[RenderThread]
)

// RenderThread is the process-wide render coordinator.
//
// Its methods are safe to call from any goroutine. Work that must happen on
// the render worker is posted through one ordered queue; the worker hands a
// *Worker to every task it runs, and only that value exposes worker-only
// operations.
type RenderThread struct {
	cfg  Config
	opts options

	tasks    chan task
	notes    *notifyQueue
	closeMu  sync.RWMutex
	closed   bool
	group    *errgroup.Group
	stopOnce sync.Once

	frames   *frames.Tracker
	textures *texture.Registry
	pool     *ThreadPool
	poolLP   *ThreadPool

	worker *workerState

	handlingReset atomic.Bool
	handlingError atomic.Bool
	renderers     atomic.Int32
}

type task struct {
	window WindowID
	fn     func(w *Worker)
}

// Start creates the render thread: it spawns the worker and the two
// scene-build pools, then runs device initialization on the worker and
// waits for it. It fails with ErrAlreadyStarted while another render thread
// is running.
func Start(opts ...Option) (*RenderThread, error) {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	if singleton.Load() != nil {
		return nil, ErrAlreadyStarted
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.config.Validate(); err != nil {
		return nil, err
	}

	rt := newRenderThread(o)
	if err := rt.RunSync(context.Background(), 0, EventFunc(func(w *Worker, _ WindowID) {
		w.initDevice()
	})); err != nil {
		rt.stop()
		return nil, fmt.Errorf("renderthread: init: %w", err)
	}

	singleton.Store(rt)
	Logger().Info("renderthread: started",
		"pool", rt.pool.Workers(),
		"pool_lp", rt.poolLP.Workers(),
		"max_pending_frames", rt.cfg.MaxPendingFrames)
	return rt, nil
}

// Get returns the running render thread, or nil before Start and after
// Shutdown.
func Get() *RenderThread {
	return singleton.Load()
}

// Shutdown tears the render thread down: it runs the shutdown task on the
// worker, drains the queue, stops the worker and the pools, and clears the
// handle returned by Get. It must not be called from a worker task, which
// would deadlock. Shutdown without a running render thread is a no-op.
func Shutdown() error {
	singletonMu.Lock()
	defer singletonMu.Unlock()

	rt := singleton.Swap(nil)
	if rt == nil {
		return nil
	}

	err := rt.RunSync(context.Background(), 0, EventFunc(func(w *Worker, _ WindowID) {
		w.shutdown()
	}))
	if stopErr := rt.stop(); err == nil {
		err = stopErr
	}
	Logger().Info("renderthread: shut down")
	return err
}

func newRenderThread(o options) *RenderThread {
	rt := &RenderThread{
		cfg:      o.config,
		opts:     o,
		tasks:    make(chan task, o.config.QueueSize),
		notes:    newNotifyQueue(),
		frames:   frames.New(o.config.MaxPendingFrames),
		textures: texture.NewRegistry(),
		pool:     parallel.New("RenderThreadPool", parallel.PriorityDefault, o.config.ThreadPoolWorkers),
		poolLP:   parallel.New("RenderThreadPoolLP", parallel.PriorityLow, o.config.LowPriorityWorkers),
	}
	rt.worker = newWorkerState(rt)

	rt.group = new(errgroup.Group)
	rt.group.Go(rt.loop)
	rt.group.Go(rt.notifier)
	return rt
}

// loop is the render worker. It runs tasks strictly in queue order.
func (rt *RenderThread) loop() error {
	defer rt.notes.close()
	for t := range rt.tasks {
		rt.worker.run(t)
	}
	return nil
}

// notifier delivers deferred handler calls in order, off the worker.
func (rt *RenderThread) notifier() error {
	rt.notes.run()
	return nil
}

// notifyQueue is an unbounded FIFO of handler calls, so a slow handler
// never blocks the worker.
type notifyQueue struct {
	mu     sync.Mutex
	fns    []func()
	closed bool
	wake   chan struct{}
}

func newNotifyQueue() *notifyQueue {
	return &notifyQueue{wake: make(chan struct{}, 1)}
}

// push appends fn. Calls after close are dropped.
func (q *notifyQueue) push(fn func()) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.fns = append(q.fns, fn)
	q.mu.Unlock()
	q.signal()
}

func (q *notifyQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *notifyQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// run calls queued functions in order until the queue is closed and empty.
func (q *notifyQueue) run() {
	for {
		q.mu.Lock()
		fns, closed := q.fns, q.closed
		q.fns = nil
		q.mu.Unlock()

		for _, fn := range fns {
			fn()
		}
		if closed {
			return
		}
		if len(fns) == 0 {
			<-q.wake
		}
	}
}

// stop closes the queue, waits for the worker and the notifier, and closes
// the pools.
func (rt *RenderThread) stop() error {
	var err error
	rt.stopOnce.Do(func() {
		rt.closeMu.Lock()
		rt.closed = true
		close(rt.tasks)
		rt.closeMu.Unlock()

		err = rt.group.Wait()
		rt.pool.Close()
		rt.poolLP.Close()
	})
	return err
}

// post appends a task to the ordered queue. It blocks while the queue is
// full and fails with ErrShutdown once the render thread stopped.
func (rt *RenderThread) post(window WindowID, fn func(*Worker)) error {
	rt.closeMu.RLock()
	defer rt.closeMu.RUnlock()

	if rt.closed {
		return ErrShutdown
	}
	rt.tasks <- task{window: window, fn: fn}
	return nil
}

// Config returns the settings the render thread runs with.
func (rt *RenderThread) Config() Config { return rt.cfg }

// ThreadPool returns the default-priority scene-build pool.
func (rt *RenderThread) ThreadPool() *ThreadPool { return rt.pool }

// ThreadPoolLP returns the low-priority scene-build pool.
func (rt *RenderThread) ThreadPoolLP() *ThreadPool { return rt.poolLP }

// RendererCount returns the number of live renderers.
func (rt *RenderThread) RendererCount() int { return int(rt.renderers.Load()) }

// IsHandlingDeviceReset reports whether device-reset handling is active.
func (rt *RenderThread) IsHandlingDeviceReset() bool { return rt.handlingReset.Load() }

// SimulateDeviceReset posts a device reset without notifying the owner.
// It is a fault-injection hook for tests.
func (rt *RenderThread) SimulateDeviceReset() error {
	return rt.post(0, func(w *Worker) {
		w.HandleDeviceReset("SimulateDeviceReset", false)
	})
}

// Frame pacing. These are safe from any goroutine and never touch the
// worker.

// IncPendingFrameCount records a frame request for window. docs is the
// number of documents that will report through HandleFrameOneDoc before the
// frame is composited; values below 1 mean one. It fails with
// ErrTooManyPendingFrames at the ceiling and ErrWindowDestroyed for a
// destroyed window, adding nothing in both cases.
func (rt *RenderThread) IncPendingFrameCount(window WindowID, vsync uint64, start time.Time, docs int) error {
	switch err := rt.frames.Inc(uint64(window), vsync, start, docs); err {
	case nil:
		return nil
	case frames.ErrTooMany:
		return ErrTooManyPendingFrames
	case frames.ErrDestroyed:
		return ErrWindowDestroyed
	default:
		return err
	}
}

// DecPendingFrameBuildCount matches the scene-build increment of an earlier
// IncPendingFrameCount.
func (rt *RenderThread) DecPendingFrameBuildCount(window WindowID) {
	rt.frames.DecBuild(uint64(window))
}

// PendingFrameBuildCount returns the outstanding scene builds of window.
func (rt *RenderThread) PendingFrameBuildCount(window WindowID) int {
	return rt.frames.Builds(uint64(window))
}

// TooManyPendingFrames reports whether window is at its pending-frame
// ceiling. Producers must not request frames while it is true.
func (rt *RenderThread) TooManyPendingFrames(window WindowID) bool {
	return rt.frames.TooMany(uint64(window))
}

// PendingFrameCount returns the length of window's pending-frame queue.
func (rt *RenderThread) PendingFrameCount(window WindowID) int {
	return rt.frames.Pending(uint64(window))
}

// IsDestroyed reports whether window was torn down or never rendered.
func (rt *RenderThread) IsDestroyed(window WindowID) bool {
	return rt.frames.IsDestroyed(uint64(window))
}

// SetDestroyed marks window destroyed. Events still queued for it become
// no-ops.
func (rt *RenderThread) SetDestroyed(window WindowID) {
	rt.frames.SetDestroyed(uint64(window))
}
