package renderthread

import (
	"context"
)

// MemoryReport accumulates the memory held by the render thread.
type MemoryReport struct {
	Renderers int

	// Filled by renderers.
	GPUCacheBytes     uint64
	RenderTargetBytes uint64
	TextureCacheBytes uint64

	// Filled by the render thread.
	ExternalImageBytes uint64
	SurfacePoolBuffers int64
	RecordedFrameBytes uint64
}

// Add adds o to m.
func (m *MemoryReport) Add(o MemoryReport) {
	m.Renderers += o.Renderers
	m.GPUCacheBytes += o.GPUCacheBytes
	m.RenderTargetBytes += o.RenderTargetBytes
	m.TextureCacheBytes += o.TextureCacheBytes
	m.ExternalImageBytes += o.ExternalImageBytes
	m.SurfacePoolBuffers += o.SurfacePoolBuffers
	m.RecordedFrameBytes += o.RecordedFrameBytes
}

// TotalBytes sums the byte counters.
func (m MemoryReport) TotalBytes() uint64 {
	return m.GPUCacheBytes + m.RenderTargetBytes + m.TextureCacheBytes +
		m.ExternalImageBytes + m.RecordedFrameBytes
}

// MemoryReportFuture is the pending result of AccumulateMemoryReport. It is
// completed on the render worker and can be awaited from any goroutine.
type MemoryReportFuture struct {
	done   chan struct{}
	report MemoryReport
	err    error
}

func newMemoryReportFuture() *MemoryReportFuture {
	return &MemoryReportFuture{done: make(chan struct{})}
}

func (f *MemoryReportFuture) resolve(r MemoryReport, err error) {
	f.report, f.err = r, err
	close(f.done)
}

// Done is closed once the report is available.
func (f *MemoryReportFuture) Done() <-chan struct{} { return f.done }

// Wait blocks until the report is available or ctx ends.
func (f *MemoryReportFuture) Wait(ctx context.Context) (MemoryReport, error) {
	select {
	case <-f.done:
		return f.report, f.err
	case <-ctx.Done():
		return MemoryReport{}, ctx.Err()
	}
}

// AccumulateMemoryReport asks the worker to add the memory of every live
// renderer and of the render thread's shared resources to initial. The
// future resolves with ErrShutdown if the render thread is gone.
func (rt *RenderThread) AccumulateMemoryReport(initial MemoryReport) *MemoryReportFuture {
	f := newMemoryReportFuture()
	err := rt.post(0, func(w *Worker) {
		f.resolve(w.accumulateMemoryReport(initial), nil)
	})
	if err != nil {
		f.resolve(initial, err)
	}
	return f
}

func (w *Worker) accumulateMemoryReport(r MemoryReport) MemoryReport {
	for _, st := range w.renderers {
		st.renderer.AccumulateMemoryReport(&r)
		r.Renderers++
	}
	r.ExternalImageBytes += w.rt.textures.BytesUsed()
	if w.surfacePool != nil {
		r.SurfacePoolBuffers += w.surfacePool.Outstanding()
	}
	for _, rec := range w.recorders {
		r.RecordedFrameBytes += rec.BytesUsed()
	}
	return r
}
