package renderthread

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/renderthread/compositor"
)

// startRenderThread starts the singleton and shuts it down at cleanup.
func startRenderThread(t *testing.T, opts ...Option) *RenderThread {
	t.Helper()
	rt, err := Start(opts...)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		if err := Shutdown(); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	})
	return rt
}

// onWorker runs fn on the render worker and waits for it.
func onWorker(t *testing.T, rt *RenderThread, fn func(w *Worker)) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.RunSync(ctx, 0, EventFunc(func(w *Worker, _ WindowID) { fn(w) })); err != nil {
		t.Fatalf("RunSync: %v", err)
	}
}

// flush waits until every task posted so far ran.
func flush(t *testing.T, rt *RenderThread) {
	t.Helper()
	onWorker(t, rt, func(*Worker) {})
}

type sizedWidget struct{ size image.Point }

func (w sizedWidget) ClientSize() image.Point { return w.size }

// mockRenderer records every call. When it has a compositor, Render draws
// one opaque tile of the current scene color.
type mockRenderer struct {
	mu sync.Mutex

	comp     compositor.Compositor
	color    color.RGBA
	surface  bool
	renders  []FrameInfo
	updates  int
	scene    []any
	resized  []image.Point
	paused   int
	resumeOK bool
	closed   int
	failWith error
	gpuBytes uint64
	onRender func(w *Worker, frame FrameInfo)
}

func newMockRenderer(c compositor.Compositor) *mockRenderer {
	return &mockRenderer{comp: c, color: color.RGBA{R: 255, A: 255}, resumeOK: true}
}

func (r *mockRenderer) Update() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
}

func (r *mockRenderer) ApplySceneUpdate(update any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scene = append(r.scene, update)
	if c, ok := update.(color.RGBA); ok {
		r.color = c
	}
}

func (r *mockRenderer) Render(w *Worker, frame FrameInfo, rb *Readback) error {
	r.mu.Lock()
	r.renders = append(r.renders, frame)
	err := r.failWith
	hook := r.onRender
	r.mu.Unlock()

	if hook != nil {
		hook(w, frame)
	}
	if err != nil {
		return err
	}
	if r.comp != nil {
		r.draw()
		ReadbackInto(r.comp, rb)
	}
	return nil
}

func (r *mockRenderer) draw() {
	const tile = 8
	c := r.comp
	if !r.surface {
		c.CreateSurface(1, image.Point{}, image.Pt(tile, tile), true)
		c.CreateTile(1, 0, 0)
		r.surface = true
	}
	c.BeginFrame()
	full := image.Rect(0, 0, tile, tile)
	data, stride := c.MapTile(compositor.TileID{Surface: 1}, full, full)
	for y := range tile {
		for x := range tile {
			i := y*stride + x*4
			data[i], data[i+1], data[i+2], data[i+3] = r.color.R, r.color.G, r.color.B, r.color.A
		}
	}
	c.UnmapTile()
	c.AddSurface(1, image.Point{}, image.Rectangle{})
	c.EndFrame()
}

func (r *mockRenderer) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused++
}

func (r *mockRenderer) Resume() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resumeOK
}

func (r *mockRenderer) AccumulateMemoryReport(m *MemoryReport) {
	m.GPUCacheBytes += r.gpuBytes
}

func (r *mockRenderer) Compositor() compositor.Compositor { return r.comp }

func (r *mockRenderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	if r.comp != nil {
		if r.surface {
			r.comp.DestroyTile(1, 0, 0)
			r.comp.DestroySurface(1)
		}
		r.comp.Deinit()
	}
}

func (r *mockRenderer) PipelineSizeChanged(_ uint64, size image.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resized = append(r.resized, size)
}

func (r *mockRenderer) renderedVsyncs() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint64, len(r.renders))
	for i, f := range r.renders {
		out[i] = f.StartVsync
	}
	return out
}

func (r *mockRenderer) counts() (renders, updates, closed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.renders), r.updates, r.closed
}

// addSoftwareRenderer creates a software compositor for window and adds a
// mock renderer drawing through it.
func addSoftwareRenderer(t *testing.T, rt *RenderThread, window WindowID, size image.Point) *mockRenderer {
	t.Helper()
	var r *mockRenderer
	onWorker(t, rt, func(w *Worker) {
		c, err := w.CreateCompositor(sizedWidget{size})
		if err != nil {
			t.Errorf("CreateCompositor: %v", err)
			return
		}
		r = newMockRenderer(c)
		w.AddRenderer(window, r)
	})
	if r == nil {
		t.FailNow()
	}
	return r
}

// mockDevice implements gpucontext.Device for testing.
type mockDevice struct {
	mu        sync.Mutex
	destroyed int
}

func (d *mockDevice) Poll(bool) {}

func (d *mockDevice) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyed++
}

func (d *mockDevice) destroyCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}

// mockProvider implements gpucontext.DeviceProvider for testing.
type mockProvider struct {
	device *mockDevice
}

func (p *mockProvider) Device() gpucontext.Device             { return p.device }
func (p *mockProvider) Queue() gpucontext.Queue               { return nil }
func (p *mockProvider) Adapter() gpucontext.Adapter           { return nil }
func (p *mockProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatBGRA8Unorm }

func (p *mockProvider) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: "mock", Type: gpucontext.AdapterTypeSoftware}
}

var _ gpucontext.DeviceProvider = (*mockProvider)(nil)

// frameLog collects FrameObserver callbacks.
type frameLog struct {
	mu     sync.Mutex
	frames []FrameStats
}

func (l *frameLog) DidRender(_ WindowID, s FrameStats) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, s)
}

func (l *frameLog) snapshot() []FrameStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]FrameStats(nil), l.frames...)
}
