package compositor

import (
	"image"
	"sync"
	"sync/atomic"
)

// SurfacePool reuses tile pixel buffers across compositors.
//
// The render thread owns one pool shared by every window. Buffers are keyed
// by size; a buffer returned to the pool is zeroed before it is handed out
// again. Clear drops every cached buffer, which the render thread does on
// device reset and shutdown.
//
// Thread safety: SurfacePool is safe for concurrent use.
type SurfacePool struct {
	// pools holds one *sync.Pool per buffer size, keyed by image.Point.
	pools sync.Map

	outstanding atomic.Int64
}

// NewSurfacePool creates an empty pool.
func NewSurfacePool() *SurfacePool {
	return &SurfacePool{}
}

// Get returns a zeroed buffer of the given size, or nil for an empty size.
func (p *SurfacePool) Get(size image.Point) *image.RGBA {
	if size.X <= 0 || size.Y <= 0 {
		return nil
	}
	pool := p.getOrCreatePool(size)
	img := pool.Get().(*image.RGBA)
	clear(img.Pix)
	p.outstanding.Add(1)
	return img
}

// Put returns a buffer to the pool. Buffers whose size pool was dropped by
// Clear are left to the GC. If img is nil, this is a no-op.
func (p *SurfacePool) Put(img *image.RGBA) {
	if img == nil {
		return
	}
	p.outstanding.Add(-1)
	size := img.Rect.Size()
	if pool, ok := p.pools.Load(size); ok {
		pool.(*sync.Pool).Put(img)
	}
}

// Outstanding returns the number of buffers handed out and not yet returned.
func (p *SurfacePool) Outstanding() int64 {
	return p.outstanding.Load()
}

// Clear drops every cached buffer.
func (p *SurfacePool) Clear() {
	p.pools.Range(func(key, _ any) bool {
		p.pools.Delete(key)
		return true
	})
}

// getOrCreatePool gets or creates a sync.Pool for the given size.
func (p *SurfacePool) getOrCreatePool(size image.Point) *sync.Pool {
	if pool, ok := p.pools.Load(size); ok {
		return pool.(*sync.Pool)
	}

	newPool := &sync.Pool{
		New: func() any {
			return image.NewRGBA(image.Rectangle{Max: size})
		},
	}

	actual, _ := p.pools.LoadOrStore(size, newPool)
	return actual.(*sync.Pool)
}
