package renderthread

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/gogpu/renderthread/texture"
)

func waitReport(t *testing.T, f *MemoryReportFuture) (MemoryReport, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return f.Wait(ctx)
}

func TestAccumulateMemoryReport(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RecordFrames = true
	rt := startRenderThread(t, WithConfig(cfg))

	r1 := addSoftwareRenderer(t, rt, 1, image.Pt(8, 8))
	r1.gpuBytes = 100
	r2 := newMockRenderer(nil)
	r2.gpuBytes = 20
	onWorker(t, rt, func(w *Worker) { w.AddRenderer(2, r2) })

	rt.RegisterExternalImage(1, texture.NewSharedSurfaceHost(image.NewRGBA(image.Rect(0, 0, 2, 2))))

	_ = rt.IncPendingFrameCount(1, 1, time.Now(), 1)
	_ = rt.HandleFrameOneDoc(1, true)

	report, err := waitReport(t, rt.AccumulateMemoryReport(MemoryReport{GPUCacheBytes: 5}))
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if report.Renderers != 2 {
		t.Errorf("Renderers = %d, want 2", report.Renderers)
	}
	if report.GPUCacheBytes != 125 {
		t.Errorf("GPUCacheBytes = %d, want 125", report.GPUCacheBytes)
	}
	if report.ExternalImageBytes != 16 {
		t.Errorf("ExternalImageBytes = %d, want 16", report.ExternalImageBytes)
	}
	// One tile and one framebuffer of window 1.
	if report.SurfacePoolBuffers != 2 {
		t.Errorf("SurfacePoolBuffers = %d, want 2", report.SurfacePoolBuffers)
	}
	if report.RecordedFrameBytes == 0 {
		t.Error("RecordedFrameBytes = 0 after a recorded frame")
	}
	if got, want := report.TotalBytes(), 125+16+report.RecordedFrameBytes; got != want {
		t.Errorf("TotalBytes = %d, want %d", got, want)
	}
}

func TestAccumulateMemoryReportAfterShutdown(t *testing.T) {
	rt, err := Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = Shutdown() })
	if err := Shutdown(); err != nil {
		t.Fatal(err)
	}

	initial := MemoryReport{TextureCacheBytes: 7}
	f := rt.AccumulateMemoryReport(initial)
	select {
	case <-f.Done():
	default:
		t.Fatal("future of a shut down render thread is not resolved")
	}
	report, err := waitReport(t, f)
	if !errors.Is(err, ErrShutdown) {
		t.Errorf("Wait error = %v, want ErrShutdown", err)
	}
	if report != initial {
		t.Errorf("report = %+v, want the initial report", report)
	}
}

func TestMemoryReportFutureWaitCanceled(t *testing.T) {
	f := newMemoryReportFuture()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait = %v, want context.Canceled", err)
	}
}

func TestMemoryReportAdd(t *testing.T) {
	a := MemoryReport{Renderers: 1, GPUCacheBytes: 10, SurfacePoolBuffers: 2}
	a.Add(MemoryReport{Renderers: 2, GPUCacheBytes: 5, RenderTargetBytes: 3, ExternalImageBytes: 4, SurfacePoolBuffers: 1})
	want := MemoryReport{Renderers: 3, GPUCacheBytes: 15, RenderTargetBytes: 3, ExternalImageBytes: 4, SurfacePoolBuffers: 3}
	if a != want {
		t.Errorf("Add = %+v, want %+v", a, want)
	}
	if a.TotalBytes() != 22 {
		t.Errorf("TotalBytes = %d, want 22", a.TotalBytes())
	}
}
