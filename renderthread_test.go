package renderthread

import (
	"context"
	"errors"
	"fmt"
	"image"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/renderthread/internal/parallel"
)

// =============================================================================
// Lifecycle
// =============================================================================

func TestStartShutdown(t *testing.T) {
	if Get() != nil {
		t.Fatal("Get() before Start should be nil")
	}
	rt, err := Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = Shutdown() })
	if Get() != rt {
		t.Error("Get() did not return the started render thread")
	}
	if err := Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if Get() != nil {
		t.Error("Get() after Shutdown should be nil")
	}
	if err := Shutdown(); err != nil {
		t.Errorf("second Shutdown = %v, want nil", err)
	}
}

func TestStartTwice(t *testing.T) {
	startRenderThread(t)
	if _, err := Start(); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
}

func TestStartAfterShutdown(t *testing.T) {
	first, err := Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = Shutdown() })
	if err := Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	second := startRenderThread(t)
	if second == first {
		t.Error("restart returned the old render thread")
	}
}

func TestStartInvalidConfig(t *testing.T) {
	_, err := Start(WithConfig(Config{}))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("Start = %v, want ErrInvalidConfig", err)
	}
	if Get() != nil {
		t.Error("failed Start left a render thread behind")
	}
}

func TestPostAfterShutdown(t *testing.T) {
	rt, err := Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = Shutdown() })
	if err := Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if err := rt.HandleFrameOneDoc(1, true); !errors.Is(err, ErrShutdown) {
		t.Errorf("HandleFrameOneDoc = %v, want ErrShutdown", err)
	}
	if err := rt.WakeUp(1); !errors.Is(err, ErrShutdown) {
		t.Errorf("WakeUp = %v, want ErrShutdown", err)
	}
	if err := rt.RunSync(context.Background(), 0, EventFunc(func(*Worker, WindowID) {})); !errors.Is(err, ErrShutdown) {
		t.Errorf("RunSync = %v, want ErrShutdown", err)
	}
	if err := rt.SimulateDeviceReset(); !errors.Is(err, ErrShutdown) {
		t.Errorf("SimulateDeviceReset = %v, want ErrShutdown", err)
	}
	if err := rt.ThreadPool().Go(func() {}); !errors.Is(err, parallel.ErrClosed) {
		t.Errorf("ThreadPool().Go = %v, want parallel.ErrClosed", err)
	}
}

func TestShutdownClosesRenderers(t *testing.T) {
	p := &mockProvider{device: &mockDevice{}}
	rt, err := Start(WithDeviceProvider(p))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = Shutdown() })
	r1 := newMockRenderer(nil)
	r2 := newMockRenderer(nil)
	onWorker(t, rt, func(w *Worker) {
		w.AddRenderer(1, r1)
		w.AddRenderer(2, r2)
	})
	if got := rt.RendererCount(); got != 2 {
		t.Fatalf("RendererCount = %d, want 2", got)
	}

	if err := Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	for i, r := range []*mockRenderer{r1, r2} {
		if _, _, closed := r.counts(); closed != 1 {
			t.Errorf("renderer %d closed %d times, want 1", i+1, closed)
		}
	}
	if rt.RendererCount() != 0 {
		t.Errorf("RendererCount after Shutdown = %d", rt.RendererCount())
	}
	if got := p.device.destroyCount(); got != 1 {
		t.Errorf("device destroyed %d times, want 1", got)
	}
}

func TestThreadPools(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ThreadPoolWorkers = 3
	cfg.LowPriorityWorkers = 1
	rt := startRenderThread(t, WithConfig(cfg))

	if rt.ThreadPool().Name() != "RenderThreadPool" || rt.ThreadPool().Workers() != 3 {
		t.Errorf("ThreadPool = %s/%d", rt.ThreadPool().Name(), rt.ThreadPool().Workers())
	}
	if rt.ThreadPoolLP().Name() != "RenderThreadPoolLP" || rt.ThreadPoolLP().Priority() != parallel.PriorityLow {
		t.Errorf("ThreadPoolLP = %s/%v", rt.ThreadPoolLP().Name(), rt.ThreadPoolLP().Priority())
	}

	var mu sync.Mutex
	sum := 0
	tasks := make([]func(context.Context) error, 10)
	for i := range tasks {
		tasks[i] = func(context.Context) error {
			mu.Lock()
			sum += i
			mu.Unlock()
			return nil
		}
	}
	if err := rt.ThreadPool().Execute(context.Background(), tasks); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if sum != 45 {
		t.Errorf("sum = %d, want 45", sum)
	}
}

// =============================================================================
// Worker-only operations
// =============================================================================

func TestWorkerOnlyOutsideTaskPanics(t *testing.T) {
	rt := startRenderThread(t)

	var leaked *Worker
	onWorker(t, rt, func(w *Worker) { leaked = w })

	ops := map[string]func(){
		"AddRenderer":        func() { leaked.AddRenderer(1, newMockRenderer(nil)) },
		"RemoveRenderer":     func() { leaked.RemoveRenderer(1) },
		"UpdateAndRender":    func() { leaked.UpdateAndRender(1, 0, time.Now(), true, nil) },
		"HandleDeviceReset":  func() { leaked.HandleDeviceReset("test", false) },
		"SharedContext":      func() { leaked.SharedContext() },
		"SharedSurfacePool":  func() { leaked.SharedSurfacePool() },
		"HandleRenderError":  func() { leaked.HandleRenderError(RenderErrorRender) },
		"RenderTexture":      func() { leaked.RenderTexture(1) },
		"CreateCompositor":   func() { _, _ = leaked.CreateCompositor(sizedWidget{}) },
		"ClearSharedContext": func() { leaked.ClearSharedContext() },
	}
	for name, fn := range ops {
		t.Run(name, func(t *testing.T) {
			defer func() {
				r := recover()
				if r == nil {
					t.Fatalf("%s outside the worker did not panic", name)
				}
				msg := fmt.Sprint(r)
				if !strings.Contains(msg, name) || !strings.Contains(msg, "outside the render worker") {
					t.Errorf("panic = %q", msg)
				}
			}()
			fn()
		})
	}

	// The worker is unaffected by the rejected calls.
	onWorker(t, rt, func(w *Worker) {
		if w.RendererCount() != 0 {
			t.Errorf("RendererCount = %d, want 0", w.RendererCount())
		}
	})
}

func TestWorkerFromEarlierTaskPanicsWhileWorkerBusy(t *testing.T) {
	rt := startRenderThread(t)

	var leaked *Worker
	onWorker(t, rt, func(w *Worker) { leaked = w })

	entered := make(chan struct{})
	release := make(chan struct{})
	if err := rt.RunEvent(1, EventFunc(func(*Worker, WindowID) {
		close(entered)
		<-release
	})); err != nil {
		t.Fatalf("RunEvent: %v", err)
	}
	<-entered

	panicked := func() (p bool) {
		defer func() { p = recover() != nil }()
		leaked.AddRenderer(9, newMockRenderer(nil))
		return false
	}()
	close(release)

	if !panicked {
		t.Error("AddRenderer through a stale Worker did not panic while another task ran")
	}
	onWorker(t, rt, func(w *Worker) {
		if w.Renderer(9) != nil {
			t.Error("stale Worker added a renderer")
		}
	})
}

func TestAddRendererTwicePanics(t *testing.T) {
	rt := startRenderThread(t)
	onWorker(t, rt, func(w *Worker) {
		w.AddRenderer(7, newMockRenderer(nil))
		defer func() {
			if recover() == nil {
				t.Error("second AddRenderer did not panic")
			}
		}()
		w.AddRenderer(7, newMockRenderer(nil))
	})
}

func TestRemoveRenderer(t *testing.T) {
	rt := startRenderThread(t)
	r := newMockRenderer(nil)
	onWorker(t, rt, func(w *Worker) {
		w.AddRenderer(3, r)
		w.RemoveRenderer(3)
		w.RemoveRenderer(3)
		if w.Renderer(3) != nil {
			t.Error("Renderer(3) after RemoveRenderer is not nil")
		}
	})
	if _, _, closed := r.counts(); closed != 1 {
		t.Errorf("Close called %d times, want 1", closed)
	}
	if !rt.IsDestroyed(3) {
		t.Error("removed window should count as destroyed")
	}
}

func TestRemovedWindowRejectsLateFrames(t *testing.T) {
	rt := startRenderThread(t)
	onWorker(t, rt, func(w *Worker) { w.AddRenderer(7, newMockRenderer(nil)) })
	rt.SetDestroyed(7)
	onWorker(t, rt, func(w *Worker) { w.RemoveRenderer(7) })

	for vsync := uint64(1); vsync <= 4; vsync++ {
		if err := rt.IncPendingFrameCount(7, vsync, time.Now(), 1); !errors.Is(err, ErrWindowDestroyed) {
			t.Fatalf("IncPendingFrameCount(%d) = %v, want ErrWindowDestroyed", vsync, err)
		}
	}
	if rt.PendingFrameCount(7) != 0 || rt.TooManyPendingFrames(7) || !rt.IsDestroyed(7) {
		t.Errorf("removed window: pending=%d tooMany=%v destroyed=%v",
			rt.PendingFrameCount(7), rt.TooManyPendingFrames(7), rt.IsDestroyed(7))
	}

	// A new renderer for the id starts a new window.
	onWorker(t, rt, func(w *Worker) { w.AddRenderer(7, newMockRenderer(nil)) })
	if err := rt.IncPendingFrameCount(7, 5, time.Now(), 1); err != nil {
		t.Errorf("IncPendingFrameCount after re-add = %v", err)
	}
}

func TestPauseResume(t *testing.T) {
	rt := startRenderThread(t)
	r := newMockRenderer(nil)
	onWorker(t, rt, func(w *Worker) {
		w.AddRenderer(1, r)
		w.Pause(1)
		if !w.IsPaused(1) {
			t.Error("IsPaused after Pause = false")
		}
		if !w.Resume(1) {
			t.Error("Resume = false")
		}
		if w.IsPaused(1) {
			t.Error("IsPaused after Resume = true")
		}
		if w.Resume(99) {
			t.Error("Resume of unknown window = true")
		}

		r.resumeOK = false
		w.Pause(1)
		if w.Resume(1) {
			t.Error("Resume should report the renderer's failure")
		}
		if !w.IsPaused(1) {
			t.Error("failed Resume cleared the paused state")
		}
	})
}

// =============================================================================
// Ordering
// =============================================================================

func TestEventsRunInSubmissionOrder(t *testing.T) {
	rt := startRenderThread(t)
	r := newMockRenderer(nil)
	onWorker(t, rt, func(w *Worker) { w.AddRenderer(1, r) })

	var mu sync.Mutex
	var seen []int
	const n = 200
	for i := range n {
		if i%2 == 0 {
			if err := rt.PostSceneUpdate(1, i); err != nil {
				t.Fatal(err)
			}
			continue
		}
		if err := rt.RunEvent(1, EventFunc(func(w *Worker, window WindowID) {
			mu.Lock()
			defer mu.Unlock()
			// Every update posted before this event has been applied.
			if got := len(r.scene); got != (i+1)/2 {
				t.Errorf("event %d saw %d updates, want %d", i, got, (i+1)/2)
			}
			seen = append(seen, i)
		})); err != nil {
			t.Fatal(err)
		}
	}
	flush(t, rt)

	if len(seen) != n/2 || !slices.IsSorted(seen) {
		t.Errorf("events out of order: %v", seen)
	}
	for i, u := range r.scene {
		if u.(int) != 2*i {
			t.Fatalf("update %d = %v, want %d", i, u, 2*i)
		}
	}
}

func TestConcurrentProducersKeepPerProducerOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueSize = 4
	rt := startRenderThread(t, WithConfig(cfg))

	const producers, perProducer = 8, 100
	got := make([][]int, producers)

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				err := rt.RunSync(context.Background(), 0, EventFunc(func(*Worker, WindowID) {
					got[p] = append(got[p], i)
				}))
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	for p, seq := range got {
		if len(seq) != perProducer || !slices.IsSorted(seq) {
			t.Errorf("producer %d: %d events, sorted=%v", p, len(seq), slices.IsSorted(seq))
		}
	}
}

func TestRunSyncContextCanceled(t *testing.T) {
	rt := startRenderThread(t)

	release := make(chan struct{})
	if err := rt.RunEvent(0, EventFunc(func(*Worker, WindowID) { <-release })); err != nil {
		// Window 0 has no renderer and is not marked destroyed.
		t.Fatal(err)
	}

	ran := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := rt.RunSync(ctx, 0, EventFunc(func(*Worker, WindowID) { close(ran) }))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("RunSync = %v, want DeadlineExceeded", err)
	}

	close(release)
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("abandoned RunSync event never ran")
	}
}

func TestEventsForDestroyedWindowAreDropped(t *testing.T) {
	rt := startRenderThread(t)
	r := newMockRenderer(nil)
	onWorker(t, rt, func(w *Worker) { w.AddRenderer(4, r) })

	rt.SetDestroyed(4)

	ran := false
	_ = rt.RunEvent(4, EventFunc(func(*Worker, WindowID) { ran = true }))
	_ = rt.PostSceneUpdate(4, "ignored")
	_ = rt.WakeUp(4)
	_ = rt.PipelineSizeChanged(4, 1, image.Pt(10, 10))
	flush(t, rt)

	if ran {
		t.Error("event ran for a destroyed window")
	}
	_, updates, _ := r.counts()
	if updates != 0 || len(r.scene) != 0 || len(r.resized) != 0 {
		t.Errorf("destroyed window reached renderer: updates=%d scene=%v resized=%v", updates, r.scene, r.resized)
	}
	if err := rt.IncPendingFrameCount(4, 1, time.Now(), 1); !errors.Is(err, ErrWindowDestroyed) {
		t.Errorf("IncPendingFrameCount = %v, want ErrWindowDestroyed", err)
	}
}

func TestWakeUpAndPipelineSizeChanged(t *testing.T) {
	rt := startRenderThread(t)
	r := newMockRenderer(nil)
	onWorker(t, rt, func(w *Worker) { w.AddRenderer(1, r) })

	_ = rt.WakeUp(1)
	_ = rt.PipelineSizeChanged(1, 9, image.Pt(640, 480))
	_ = rt.WakeUp(2)
	flush(t, rt)

	if _, updates, _ := r.counts(); updates != 1 {
		t.Errorf("updates = %d, want 1", updates)
	}
	if len(r.resized) != 1 || r.resized[0] != image.Pt(640, 480) {
		t.Errorf("resized = %v", r.resized)
	}
}
