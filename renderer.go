package renderthread

import (
	"image"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/renderthread/compositor"
)

// WindowID names one independently paced render target.
type WindowID uint64

// FrameInfo describes the frame a Renderer is asked to composite.
type FrameInfo struct {
	Window     WindowID
	StartVsync uint64
	Start      time.Time
}

// Readback asks a composite to copy its result to the CPU.
type Readback struct {
	Size   image.Point
	Format gputypes.TextureFormat

	// Buffer receives Size.X*Size.Y*4 bytes of tightly packed pixels.
	Buffer []byte
}

// Renderer is the per-window scene consumer owned by the render thread.
//
// Every method runs on the render worker.
type Renderer interface {
	// Update advances the scene without compositing.
	Update()

	// ApplySceneUpdate consumes an update posted with PostSceneUpdate.
	ApplySceneUpdate(update any)

	// Render composites one frame, filling rb when it is not nil.
	Render(w *Worker, frame FrameInfo, rb *Readback) error

	// Pause tells the renderer to stop using the GPU.
	Pause()

	// Resume resumes GPU use. It returns false if that is not possible.
	Resume() bool

	// AccumulateMemoryReport adds the renderer's memory to r.
	AccumulateMemoryReport(r *MemoryReport)

	// Compositor returns the backend the renderer draws through, or nil.
	Compositor() compositor.Compositor

	// Close releases the renderer. It is called once, from RemoveRenderer
	// or Shutdown.
	Close()
}

// PipelineResizer is implemented by renderers that track pipeline sizes.
type PipelineResizer interface {
	PipelineSizeChanged(pipeline uint64, size image.Point)
}

// FrameStats describes one executed frame.
type FrameStats struct {
	StartVsync uint64
	Start      time.Time
	End        time.Time

	// Rendered is true when the backend composited the frame.
	Rendered bool

	// SkippedForReset is true when the frame was skipped because device
	// reset handling is active.
	SkippedForReset bool
}

// FrameObserver is told about every frame the worker executes. DidRender
// runs on the render worker and must not block.
type FrameObserver interface {
	DidRender(window WindowID, stats FrameStats)
}

// FrameObserverFunc adapts a function to FrameObserver.
type FrameObserverFunc func(window WindowID, stats FrameStats)

// DidRender calls f.
func (f FrameObserverFunc) DidRender(window WindowID, stats FrameStats) { f(window, stats) }

// ReadbackInto copies the last frame composited by c into rb. It supports
// RGBA8Unorm and BGRA8Unorm and returns false for other formats, a short
// buffer, or a backend without readback.
func ReadbackInto(c compositor.Compositor, rb *Readback) bool {
	if rb == nil || c == nil {
		return false
	}
	src, ok := c.(compositor.Readbacker)
	if !ok {
		return false
	}
	swap := false
	switch rb.Format {
	case gputypes.TextureFormatRGBA8Unorm:
	case gputypes.TextureFormatBGRA8Unorm:
		swap = true
	default:
		return false
	}
	n := rb.Size.X * rb.Size.Y * 4
	if rb.Size.X <= 0 || rb.Size.Y <= 0 || len(rb.Buffer) < n {
		return false
	}
	dst := &image.RGBA{
		Pix:    rb.Buffer[:n],
		Stride: rb.Size.X * 4,
		Rect:   image.Rectangle{Max: rb.Size},
	}
	if !src.Readback(dst) {
		return false
	}
	if swap {
		for i := 0; i < n; i += 4 {
			dst.Pix[i], dst.Pix[i+2] = dst.Pix[i+2], dst.Pix[i]
		}
	}
	return true
}
